// Package review builds the four-stage code review workflow on top of the
// graph orchestrator: changed files are analysed, improved, integrated and
// verified by four models in turn, each stage guarded by a quality check
// with a bounded retry loop, and the result is posted to the pull request.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/reviewgraph/graph"
	"github.com/dshills/reviewgraph/graph/model"
	"github.com/dshills/reviewgraph/internal/github"
)

// Node ids of the pipeline graph besides the four stages.
const (
	NodeFileRetrieval     = "file_retrieval"
	NodeQualityGate       = "quality_gate"
	NodeEarlyExit         = "early_exit"
	NodeStoreAnalysis     = "store_analysis"
	NodeAnalysisCheck     = "analysis_check"
	NodeAnalysisRetry     = "analysis_retry"
	NodeStoreGeneration   = "store_generation"
	NodeGenerationCheck   = "generation_check"
	NodeGenerationRetry   = "generation_retry"
	NodeIntegrationCheck  = "integration_check"
	NodeIntegrationRetry  = "integration_retry"
	NodeFinalCheck        = "final_check"
	NodeVerificationRetry = "verification_retry"
	NodeReport            = "report_generation"
	NodeGitHub            = "github_integration"
)

// Data keys read and written by the pipeline nodes.
const (
	keyPRNumber        = "pr_number"
	keySessionID       = "session_id"
	keyProjectType     = "project_type"
	keyChangedFiles    = "changed_files"
	keyCodeFiles       = "code_files"
	keyFilesCount      = "files_count"
	keyFilesSummary    = "files_summary"
	keyFilesBlock      = "files_block"
	keyQualityWarning  = "quality_gate_warning"
	keyQualityReason   = "quality_gate_reason"
	keyDemoMode        = "demo_mode"
	keyEarlyExit       = "early_exit"
	keyExitReason      = "exit_reason"
	keyAnalysisScore   = "analysis_quality_score"
	keyPipelineSuccess = "pipeline_success"
	keyFinalReport     = "final_report"
	keyGitHubPosted    = "github_posted"
	keyGitHubError     = "github_error"
)

// largePRFiles is the file count above which a PR is flagged as large.
const largePRFiles = 50

// PipelineVersion is recorded in every run's metadata.
const PipelineVersion = "2.0.0"

// GitHub is the part of the GitHub client the pipeline uses.
type GitHub interface {
	ChangedFiles(ctx context.Context, number int) ([]github.ChangedFile, error)
	PostComment(ctx context.Context, number int, body string) error
	SetCommitStatus(ctx context.Context, number int, state, description, statusContext string) error
}

// Models assigns a chat model to each stage.
type Models struct {
	Analysis     model.ChatModel
	Generation   model.ChatModel
	Integration  model.ChatModel
	Verification model.ChatModel
}

func (m Models) forStage(st Stage) model.ChatModel {
	switch st {
	case StageAnalysis:
		return m.Analysis
	case StageGeneration:
		return m.Generation
	case StageIntegration:
		return m.Integration
	case StageVerification:
		return m.Verification
	}
	return nil
}

// Settings tunes a Pipeline.
type Settings struct {
	// ProjectType selects the prompt profile; empty uses the store's
	// active type.
	ProjectType string

	// MaxFiles and MaxFileSize bound what is sent to the models. Zero
	// means no limit.
	MaxFiles    int
	MaxFileSize int

	// PostComment posts the report to the PR; SetStatus also sets a
	// commit status on the head commit.
	PostComment bool
	SetStatus   bool

	// MaxSteps bounds a run; zero uses the orchestrator default.
	MaxSteps int

	// ModelNames labels each stage in the report.
	ModelNames map[Stage]string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithGitHub sets the pull request collaborator. Without one the
// pipeline reviews DemoFiles and never posts.
func WithGitHub(gh GitHub) Option {
	return func(p *Pipeline) { p.github = gh }
}

// WithPrompts sets the prompt store.
func WithPrompts(ps *PromptStore) Option {
	return func(p *Pipeline) { p.prompts = ps }
}

// WithSettings sets the pipeline settings.
func WithSettings(s Settings) Option {
	return func(p *Pipeline) { p.settings = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// Pipeline is the review workflow registered on an orchestrator.
type Pipeline struct {
	orch      *graph.Orchestrator
	models    Models
	github    GitHub
	prompts   *PromptStore
	sanitizer *Sanitizer
	settings  Settings
	profile   Profile
	project   string
	logger    *slog.Logger
	now       func() time.Time
}

// Result summarises one pipeline run.
type Result struct {
	SessionID       string
	ExecutionID     string
	FilesAnalyzed   int
	PipelineSuccess bool
	EarlyExit       bool
	ExitReason      string
	DemoMode        bool
	GitHubPosted    bool
	Report          string
	Duration        time.Duration
	Context         *graph.ExecutionContext
}

// New registers the review graph on orch. orch must not already contain
// nodes with the pipeline's ids.
func New(orch *graph.Orchestrator, models Models, opts ...Option) (*Pipeline, error) {
	if orch == nil {
		return nil, errors.New("review: orchestrator is required")
	}
	p := &Pipeline{
		orch:   orch,
		models: models,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("module", "review")
	if p.prompts == nil {
		p.prompts = NewPromptStore(p.logger)
	}
	p.sanitizer = NewSanitizer(p.logger)

	for _, st := range Stages {
		if models.forStage(st) == nil {
			return nil, fmt.Errorf("review: no model for %s", st)
		}
	}

	profile, err := p.prompts.Resolve(p.settings.ProjectType)
	if err != nil {
		return nil, fmt.Errorf("review: %w", err)
	}
	p.profile = profile
	p.project = p.settings.ProjectType
	if p.project == "" {
		p.project = p.prompts.Active()
	}

	if err := p.build(); err != nil {
		return nil, fmt.Errorf("review: build graph: %w", err)
	}
	return p, nil
}

// Orchestrator returns the orchestrator the pipeline is registered on.
func (p *Pipeline) Orchestrator() *graph.Orchestrator { return p.orch }

// Profile returns the resolved prompt profile in use.
func (p *Pipeline) Profile() Profile { return p.profile }

func (p *Pipeline) build() error {
	o := p.orch
	steps := []func() error{
		func() error {
			return o.AddTransform(NodeFileRetrieval, p.retrieveFiles,
				graph.WithName("File Retrieval"),
				graph.WithDescription("Fetches the PR's changed files, or sample files in demo mode"))
		},
		func() error {
			return o.AddCondition(NodeQualityGate, p.logged(NodeQualityGate, qualityGate),
				string(StageAnalysis), NodeEarlyExit,
				graph.WithName("Quality Gate"),
				graph.WithDependencies(NodeFileRetrieval))
		},
		func() error {
			return o.AddTransform(NodeEarlyExit, p.earlyExit, graph.WithName("Early Exit Handler"))
		},
	}

	checks := map[Stage]struct {
		id, name string
		pred     graph.Predicate
		retry    string
	}{
		StageAnalysis:     {NodeAnalysisCheck, "Analysis Quality Check", analysisCheck, NodeAnalysisRetry},
		StageGeneration:   {NodeGenerationCheck, "Generation Quality Check", generationCheck, NodeGenerationRetry},
		StageIntegration:  {NodeIntegrationCheck, "Integration Quality Check", integrationCheck, NodeIntegrationRetry},
		StageVerification: {NodeFinalCheck, "Final Quality Check", finalCheck, NodeVerificationRetry},
	}
	stores := map[Stage]struct{ id, name, key string }{
		StageAnalysis:   {NodeStoreAnalysis, "Store Analysis Results", "{session_id}_analysis"},
		StageGeneration: {NodeStoreGeneration, "Store Generation Results", "{session_id}_generation"},
	}
	names := map[Stage]string{
		StageAnalysis:     "Deep Analysis",
		StageGeneration:   "Code Generation",
		StageIntegration:  "Code Integration",
		StageVerification: "Verification",
	}

	for i, st := range Stages {
		next := NodeReport
		if i+1 < len(Stages) {
			next = string(Stages[i+1])
		}
		chk := checks[st]
		prompt := p.profile.Prompt(st)

		steps = append(steps,
			func() error {
				return o.AddAICall(string(st), p.stageCall(st), prompt.SystemPrompt, p.stageTemplate(st),
					graph.WithName(names[st]),
					graph.WithDescription(strings.Join(prompt.FocusAreas, ", ")))
			},
			func() error {
				return o.AddCondition(chk.id, p.logged(chk.id, chk.pred), next, chk.retry,
					graph.WithName(chk.name),
					graph.WithDependencies(string(st)))
			},
			func() error {
				return o.AddTransform(chk.retry, retryHandler(st, p.logger),
					graph.WithName(strings.ToUpper(retryName[st][:1])+retryName[st][1:]+" Retry Handler"))
			},
		)
		if s, ok := stores[st]; ok {
			steps = append(steps, func() error {
				return o.AddMemoryStore(s.id, s.key, graph.ResponseKey(string(st)), graph.WithName(s.name))
			})
		}
	}

	steps = append(steps,
		func() error {
			return o.AddTransform(NodeReport, p.generateReport, graph.WithName("Report Generation"))
		},
		func() error {
			return o.AddTransform(NodeGitHub, p.postToGitHub, graph.WithName("GitHub Integration"))
		},
	)
	for _, add := range steps {
		if err := add(); err != nil {
			return err
		}
	}

	edges := [][2]string{
		{NodeFileRetrieval, NodeQualityGate},
		{string(StageAnalysis), NodeStoreAnalysis},
		{NodeStoreAnalysis, NodeAnalysisCheck},
		{string(StageGeneration), NodeStoreGeneration},
		{NodeStoreGeneration, NodeGenerationCheck},
		{string(StageIntegration), NodeIntegrationCheck},
		{string(StageVerification), NodeFinalCheck},
		{NodeReport, NodeGitHub},
		{NodeAnalysisRetry, string(StageAnalysis)},
		{NodeGenerationRetry, string(StageGeneration)},
		{NodeIntegrationRetry, string(StageIntegration)},
		{NodeVerificationRetry, string(StageVerification)},
	}
	for _, e := range edges {
		if err := o.Connect(e[0], e[1]); err != nil {
			return err
		}
	}
	return nil
}

// stageTemplate builds the prompt template of st. Retry hints are empty
// until the stage's quality check fails.
func (p *Pipeline) stageTemplate(st Stage) string {
	var b strings.Builder
	b.WriteString("Project type: {" + keyProjectType + "}\n")
	if focus := p.profile.Prompt(st).FocusAreas; len(focus) > 0 {
		b.WriteString("Focus areas: " + escapeBraces(strings.Join(focus, ", ")) + "\n")
	}
	b.WriteString("{" + retryHintKey(st) + "}\n\n")

	switch st {
	case StageAnalysis:
		b.WriteString("Analyze these changed files ({" + keyFilesSummary + "}) for issues and improvements:\n\n{" + keyFilesBlock + "}\n\n")
		b.WriteString("Provide your analysis in the specified JSON format.")
	case StageGeneration:
		b.WriteString("Analysis results:\n{" + graph.ResponseKey(string(StageAnalysis)) + "}\n\n")
		b.WriteString("Original files:\n\n{" + keyFilesBlock + "}\n\n")
		b.WriteString("Generate improved code addressing the analysis, in the specified JSON format.")
	case StageIntegration:
		b.WriteString("Generated improvements:\n{" + graph.ResponseKey(string(StageGeneration)) + "}\n\n")
		b.WriteString("Existing files:\n\n{" + keyFilesBlock + "}\n\n")
		b.WriteString("Integrate the improvements consistently with the existing code, in the specified JSON format.")
	case StageVerification:
		b.WriteString("Issues found during analysis:\n{" + graph.ResponseKey(string(StageAnalysis)) + "}\n\n")
		b.WriteString("Integrated code:\n{" + graph.ResponseKey(string(StageIntegration)) + "}\n\n")
		b.WriteString("Verify the integrated code in the specified JSON format.")
	}
	return b.String()
}

func escapeBraces(s string) string {
	return strings.NewReplacer("{", "{{", "}", "}}").Replace(s)
}

// stageCall wraps the stage model with response sanitization. Replies too
// short to be useful fail the attempt so the node is retried.
func (p *Pipeline) stageCall(st Stage) graph.AICallFunc {
	call := model.AICall(p.models.forStage(st))
	return func(ctx context.Context, prompt, systemPrompt string) (string, error) {
		resp, err := call(ctx, prompt, systemPrompt)
		if err != nil {
			return "", err
		}
		resp = p.sanitizer.SanitizeResponse(resp)
		if err := CheckResponse(resp, true); err != nil {
			if errors.Is(err, ErrResponseTooShort) {
				return "", fmt.Errorf("%s: %w", st, err)
			}
			p.logger.Warn("stage response failed validation", "stage", st, "error", err)
		}
		return resp, nil
	}
}

func (p *Pipeline) logged(id string, pred graph.Predicate) graph.Predicate {
	return func(data map[string]any) bool {
		ok := pred(data)
		if ok {
			p.logger.Info("quality check passed", "check", id)
		} else {
			p.logger.Warn("quality check failed", "check", id)
		}
		return ok
	}
}

func (p *Pipeline) retrieveFiles(ctx context.Context, data map[string]any) (map[string]any, error) {
	pr := intValue(data, keyPRNumber)

	var files []SourceFile
	demo := p.github == nil || pr <= 0
	if demo {
		files = DemoFiles()
		p.logger.Info("using demo files", "files", len(files))
	} else {
		changed, err := p.github.ChangedFiles(ctx, pr)
		if err != nil {
			return nil, fmt.Errorf("retrieve changed files for PR #%d: %w", pr, err)
		}
		for _, f := range changed {
			files = append(files, fromChangedFile(f))
		}
		p.logger.Info("retrieved changed files", "pr", pr, "files", len(files))
	}

	code := make([]SourceFile, 0, len(files))
	for _, f := range files {
		if f.Content == "" {
			continue
		}
		if err := ValidatePath(f.Path); err != nil {
			p.logger.Debug("file skipped", "path", f.Path, "reason", err)
			continue
		}
		if p.settings.MaxFileSize > 0 && len(f.Content) > p.settings.MaxFileSize {
			p.logger.Warn("file skipped", "path", f.Path, "size", len(f.Content), "limit", p.settings.MaxFileSize)
			continue
		}
		if p.settings.MaxFiles > 0 && len(code) >= p.settings.MaxFiles {
			p.logger.Warn("file limit reached", "limit", p.settings.MaxFiles, "total", len(files))
			break
		}
		f.Content = p.sanitizer.SanitizeCode(f.Path, f.Content)
		code = append(code, f)
	}

	summary := fmt.Sprintf("%d files changed", len(files))
	if demo {
		summary = fmt.Sprintf("%d sample files", len(files))
	}
	out := map[string]any{
		keyChangedFiles: files,
		keyCodeFiles:    code,
		keyFilesCount:   len(files),
		keyFilesSummary: summary,
		keyFilesBlock:   formatFiles(code),
		keyDemoMode:     demo,
	}
	for _, st := range Stages {
		out[retryHintKey(st)] = ""
	}
	switch {
	case len(files) == 0:
		out[keyQualityReason] = "no files changed"
	case len(code) == 0:
		out[keyQualityReason] = "no readable source files"
	}
	if len(files) > largePRFiles {
		p.logger.Warn("large pull request, consider splitting it", "files", len(files))
		out[keyQualityWarning] = "Large PR detected"
	}
	return out, nil
}

func (p *Pipeline) earlyExit(_ context.Context, data map[string]any) (map[string]any, error) {
	reason, _ := data[keyQualityReason].(string)
	if reason == "" {
		reason = "quality gate not met"
	}
	p.logger.Info("early exit", "reason", reason)
	return map[string]any{keyEarlyExit: true, keyExitReason: reason}, nil
}

func (p *Pipeline) generateReport(_ context.Context, data map[string]any) (map[string]any, error) {
	in := ReportInput{
		PRNumber:    intValue(data, keyPRNumber),
		ProjectType: p.project,
		Responses:   make(map[Stage]string, len(Stages)),
		Models:      p.settings.ModelNames,
		Retries:     make(map[Stage]int, len(Stages)),
		Failed:      make(map[Stage]bool, len(Stages)),
		GeneratedAt: p.now(),
	}
	in.SessionID, _ = data[keySessionID].(string)
	in.Files, _ = data[keyCodeFiles].([]SourceFile)
	for _, st := range Stages {
		in.Responses[st] = response(data, st)
		in.Retries[st] = intValue(data, retryCountKey(st))
		in.Failed[st] = flag(data, failedKey(st))
	}
	in.QualityScore = AnalysisScore(in.Responses[StageAnalysis])
	in.Success = !in.Failed[StageVerification] && PipelineSucceeded(in.Responses[StageVerification])

	report := MaskSecrets(BuildReport(in))
	p.logger.Info("report generated", "bytes", len(report), "pipeline_success", in.Success)
	return map[string]any{
		keyFinalReport:     report,
		keyPipelineSuccess: in.Success,
		keyAnalysisScore:   in.QualityScore,
	}, nil
}

// postToGitHub publishes the report. Publishing failures are recorded in
// the data rather than failing a run whose review already completed.
func (p *Pipeline) postToGitHub(ctx context.Context, data map[string]any) (map[string]any, error) {
	pr := intValue(data, keyPRNumber)
	report, _ := data[keyFinalReport].(string)
	if p.github == nil || pr <= 0 || !p.settings.PostComment || report == "" {
		p.logger.Info("report generated without GitHub posting")
		return map[string]any{keyGitHubPosted: false, keyDemoMode: p.github == nil || pr <= 0}, nil
	}

	out := map[string]any{keyGitHubPosted: true}
	if err := p.github.PostComment(ctx, pr, report); err != nil {
		p.logger.Error("posting report failed", "pr", pr, "error", err)
		out[keyGitHubPosted] = false
		out[keyGitHubError] = err.Error()
		return out, nil
	}
	p.logger.Info("report posted", "pr", pr)

	if p.settings.SetStatus {
		state, desc := "failure", "Multi-LLM review needs attention"
		if flag(data, keyPipelineSuccess) {
			state, desc = "success", "Multi-LLM review passed"
		}
		if err := p.github.SetCommitStatus(ctx, pr, state, desc, github.DefaultStatusContext); err != nil {
			p.logger.Warn("setting commit status failed", "pr", pr, "error", err)
		}
	}
	return out, nil
}

// Run executes the pipeline for pull request prNumber; zero reviews the
// demo files. An empty sessionID gets a generated one. The returned Result
// is populated even when err is not nil.
func (p *Pipeline) Run(ctx context.Context, prNumber int, sessionID string) (*Result, error) {
	if sessionID == "" {
		sessionID = strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	ec := graph.NewExecutionContext(sessionID, map[string]any{
		keyPRNumber:    prNumber,
		keySessionID:   sessionID,
		keyProjectType: p.project,
	})
	ec.Metadata["pipeline_version"] = PipelineVersion

	p.logger.Info("pipeline started", "session_id", sessionID, "pr", prNumber, "project_type", p.project)
	start := p.now()
	final, err := p.orch.Execute(ctx, NodeFileRetrieval, ec, p.settings.MaxSteps)

	res := &Result{SessionID: sessionID, Duration: p.now().Sub(start), Context: final}
	if final != nil {
		res.ExecutionID = final.ExecutionID
		res.FilesAnalyzed = intValue(final.Data, keyFilesCount)
		res.PipelineSuccess = flag(final.Data, keyPipelineSuccess)
		res.EarlyExit = flag(final.Data, keyEarlyExit)
		res.ExitReason, _ = final.Data[keyExitReason].(string)
		res.DemoMode = flag(final.Data, keyDemoMode)
		res.GitHubPosted = flag(final.Data, keyGitHubPosted)
		res.Report, _ = final.Data[keyFinalReport].(string)
	}
	if err != nil {
		p.logger.Error("pipeline failed", "session_id", sessionID, "error", err)
		return res, err
	}
	p.logger.Info("pipeline completed", "session_id", sessionID, "duration", res.Duration,
		"pipeline_success", res.PipelineSuccess, "early_exit", res.EarlyExit)
	return res, nil
}
