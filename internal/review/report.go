package review

import (
	"fmt"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Issue is one finding from the analysis stage.
type Issue struct {
	Type           string `json:"type"`
	Severity       string `json:"severity"`
	File           string `json:"file"`
	Location       string `json:"location"`
	Description    string `json:"description"`
	Impact         string `json:"impact"`
	Recommendation string `json:"recommendation"`
}

// Analysis is the structured reply of the analysis stage.
type Analysis struct {
	Issues              []Issue  `json:"issues"`
	OverallAssessment   string   `json:"overall_assessment"`
	ImprovementPriority []string `json:"improvement_priority"`
}

// Change is one modification proposed by the generation stage.
type Change struct {
	Type        string `json:"type"`
	File        string `json:"file"`
	Description string `json:"description"`
	LineRange   string `json:"line_range"`
	Impact      string `json:"impact"`
}

// Generation is the structured reply of the generation stage.
type Generation struct {
	Changes         []Change `json:"changes"`
	IssuesAddressed []struct {
		OriginalIssue string `json:"original_issue"`
		Solution      string `json:"solution"`
	} `json:"issues_addressed"`
	Summary string `json:"summary"`
}

// Integration is the structured reply of the integration stage.
type Integration struct {
	IntegrationNotes []string `json:"integration_notes"`
	StyleAdjustments []struct {
		Adjustment string `json:"adjustment"`
		Reason     string `json:"reason"`
	} `json:"style_adjustments"`
	CompatibilityChecks string `json:"compatibility_checks"`
	Summary             string `json:"summary"`
}

// Verification is the structured reply of the verification stage.
type Verification struct {
	VerificationPassed    *bool    `json:"verification_passed"`
	OverallQualityScore   float64  `json:"overall_quality_score"`
	CorrectnessCheck      string   `json:"correctness_check"`
	PerformanceAssessment string   `json:"performance_assessment"`
	SecurityReview        string   `json:"security_review"`
	Warnings              []string `json:"warnings"`
	Recommendations       []string `json:"recommendations"`
	FinalAssessment       string   `json:"final_assessment"`
	RegressionRisks       []string `json:"regression_risks"`
}

var severityRank = map[string]int{
	"critical": 4,
	"high":     3,
	"medium":   2,
	"low":      1,
}

var severityOrder = []string{"Critical", "High", "Medium", "Low"}

// extractJSON returns the outermost {...} of a reply that may wrap its
// JSON in prose or code fences.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

// decodeStage parses a stage reply into T.
func decodeStage[T any](resp string) (T, bool) {
	var out T
	if strings.TrimSpace(resp) == "" {
		return out, false
	}
	if err := json.Unmarshal([]byte(extractJSON(resp)), &out); err != nil {
		return out, false
	}
	return out, true
}

// ReportInput is everything the report is assembled from.
type ReportInput struct {
	SessionID    string
	PRNumber     int
	ProjectType  string
	Files        []SourceFile
	Responses    map[Stage]string
	Models       map[Stage]string
	Retries      map[Stage]int
	Failed       map[Stage]bool
	QualityScore float64
	Success      bool
	GeneratedAt  time.Time
}

// BuildReport renders the markdown report posted to the pull request.
func BuildReport(in ReportInput) string {
	analysis, analysisOK := decodeStage[Analysis](in.Responses[StageAnalysis])
	generation, generationOK := decodeStage[Generation](in.Responses[StageGeneration])
	integration, integrationOK := decodeStage[Integration](in.Responses[StageIntegration])
	verification, verificationOK := decodeStage[Verification](in.Responses[StageVerification])

	sections := []string{
		reportHeader(in),
		executiveSummary(in, analysis, generation, verification, verificationOK),
		analysisSection(in, analysis, analysisOK),
		generationSection(in, generation, generationOK),
		integrationSection(in, integration, integrationOK),
		verificationSection(in, verification, verificationOK),
		changesSection(in.Files, generation),
		recommendationsSection(in, analysis, verification, verificationOK),
		reportFooter(in),
	}
	return strings.Join(sections, "\n\n") + "\n"
}

func reportHeader(in ReportInput) string {
	var b strings.Builder
	b.WriteString("## Multi-LLM Pipeline Report\n\n")
	fmt.Fprintf(&b, "**Generated**: %s\n", in.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	if in.PRNumber > 0 {
		fmt.Fprintf(&b, "**Pull Request**: #%d\n", in.PRNumber)
	}
	fmt.Fprintf(&b, "**Project Type**: %s\n", in.ProjectType)
	fmt.Fprintf(&b, "**Session**: %s", in.SessionID)
	return b.String()
}

func executiveSummary(in ReportInput, a Analysis, g Generation, v Verification, vOK bool) string {
	status := "Needs review"
	if in.Success {
		status = "Passed"
	}
	score := "n/a"
	if vOK && v.OverallQualityScore > 0 {
		score = fmt.Sprintf("%.0f/10", v.OverallQualityScore)
	}

	var b strings.Builder
	b.WriteString("### Executive Summary\n\n")
	b.WriteString("| Metric | Value |\n|--------|-------|\n")
	fmt.Fprintf(&b, "| Files Analyzed | %d |\n", len(in.Files))
	fmt.Fprintf(&b, "| Issues Identified | %d |\n", len(a.Issues))
	fmt.Fprintf(&b, "| Critical Issues | %d |\n", countSeverity(a.Issues, "critical"))
	fmt.Fprintf(&b, "| Changes Proposed | %d |\n", len(g.Changes))
	fmt.Fprintf(&b, "| Analysis Coverage | %.2f |\n", in.QualityScore)
	fmt.Fprintf(&b, "| Verification | %s |\n", status)
	fmt.Fprintf(&b, "| Quality Score | %s |", score)
	return b.String()
}

func stageTitle(in ReportInput, st Stage, title string) string {
	if m := in.Models[st]; m != "" {
		return fmt.Sprintf("### %s (%s)", title, m)
	}
	return "### " + title
}

// stageFallback covers a stage whose reply was missing or not JSON.
func stageFallback(in ReportInput, st Stage, b *strings.Builder) {
	if in.Failed[st] {
		fmt.Fprintf(b, "\nQuality check not met after %d retries.\n", in.Retries[st])
	}
	resp := strings.TrimSpace(in.Responses[st])
	if resp == "" {
		b.WriteString("\n_No output from this stage._")
		return
	}
	fmt.Fprintf(b, "\n<details><summary>Raw response</summary>\n\n```text\n%s\n```\n\n</details>", truncate(resp, 4000))
}

func analysisSection(in ReportInput, a Analysis, ok bool) string {
	var b strings.Builder
	b.WriteString(stageTitle(in, StageAnalysis, "Stage 1: Deep Analysis"))
	b.WriteByte('\n')
	if !ok {
		stageFallback(in, StageAnalysis, &b)
		return b.String()
	}

	b.WriteString("\n| Severity | Count |\n|----------|-------|\n")
	for _, sev := range severityOrder {
		fmt.Fprintf(&b, "| %s | %d |\n", sev, countSeverity(a.Issues, sev))
	}

	issues := append([]Issue(nil), a.Issues...)
	sort.SliceStable(issues, func(i, j int) bool {
		return severityRank[strings.ToLower(issues[i].Severity)] > severityRank[strings.ToLower(issues[j].Severity)]
	})
	if len(issues) > 0 {
		b.WriteString("\n**Top Issues**\n\n")
		for i, is := range issues {
			if i == 10 {
				fmt.Fprintf(&b, "- ... and %d more\n", len(issues)-10)
				break
			}
			loc := is.Location
			if is.File != "" {
				loc = strings.TrimSpace(is.File + " " + loc)
			}
			fmt.Fprintf(&b, "- **[%s] %s** %s: %s", is.Severity, is.Type, loc, is.Description)
			if is.Recommendation != "" {
				fmt.Fprintf(&b, " _Fix_: %s", is.Recommendation)
			}
			b.WriteByte('\n')
		}
	}
	if a.OverallAssessment != "" {
		fmt.Fprintf(&b, "\n**Assessment**: %s\n", a.OverallAssessment)
	}
	if len(a.ImprovementPriority) > 0 {
		b.WriteString("\n**Priorities**\n\n")
		for i, p := range a.ImprovementPriority {
			fmt.Fprintf(&b, "%d. %s\n", i+1, p)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func generationSection(in ReportInput, g Generation, ok bool) string {
	var b strings.Builder
	b.WriteString(stageTitle(in, StageGeneration, "Stage 2: Code Generation"))
	b.WriteByte('\n')
	if !ok {
		stageFallback(in, StageGeneration, &b)
		return b.String()
	}

	byType := map[string]int{}
	for _, c := range g.Changes {
		byType[c.Type]++
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	fmt.Fprintf(&b, "\n**Changes**: %d, **Issues Addressed**: %d\n", len(g.Changes), len(g.IssuesAddressed))
	for _, t := range types {
		fmt.Fprintf(&b, "- %s: %d\n", t, byType[t])
	}
	if g.Summary != "" {
		fmt.Fprintf(&b, "\n**Summary**: %s\n", g.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

func integrationSection(in ReportInput, it Integration, ok bool) string {
	var b strings.Builder
	b.WriteString(stageTitle(in, StageIntegration, "Stage 3: Integration"))
	b.WriteByte('\n')
	if !ok {
		stageFallback(in, StageIntegration, &b)
		return b.String()
	}

	for _, n := range it.IntegrationNotes {
		fmt.Fprintf(&b, "- %s\n", n)
	}
	if len(it.StyleAdjustments) > 0 {
		b.WriteString("\n**Style Adjustments**\n\n")
		for _, s := range it.StyleAdjustments {
			fmt.Fprintf(&b, "- %s (%s)\n", s.Adjustment, s.Reason)
		}
	}
	if it.CompatibilityChecks != "" {
		fmt.Fprintf(&b, "\n**Compatibility**: %s\n", it.CompatibilityChecks)
	}
	if it.Summary != "" {
		fmt.Fprintf(&b, "\n**Summary**: %s\n", it.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

func verificationSection(in ReportInput, v Verification, ok bool) string {
	var b strings.Builder
	b.WriteString(stageTitle(in, StageVerification, "Stage 4: Verification"))
	b.WriteByte('\n')
	if !ok {
		stageFallback(in, StageVerification, &b)
		return b.String()
	}

	passed := "no"
	if v.VerificationPassed != nil && *v.VerificationPassed {
		passed = "yes"
	}
	fmt.Fprintf(&b, "\n**Verification Passed**: %s\n", passed)
	if v.OverallQualityScore > 0 {
		fmt.Fprintf(&b, "**Quality Score**: %.0f/10\n", v.OverallQualityScore)
	}
	for _, kv := range [][2]string{
		{"Correctness", v.CorrectnessCheck},
		{"Performance", v.PerformanceAssessment},
		{"Security", v.SecurityReview},
		{"Final Assessment", v.FinalAssessment},
	} {
		if kv[1] != "" {
			fmt.Fprintf(&b, "**%s**: %s\n", kv[0], kv[1])
		}
	}
	writeList(&b, "Warnings", v.Warnings)
	writeList(&b, "Regression Risks", v.RegressionRisks)
	return strings.TrimRight(b.String(), "\n")
}

func changesSection(files []SourceFile, g Generation) string {
	var b strings.Builder
	b.WriteString("### Code Changes Summary\n\n")
	if len(files) == 0 {
		b.WriteString("No files were reviewed.")
		return b.String()
	}

	perFile := map[string]int{}
	for _, c := range g.Changes {
		perFile[c.File]++
	}
	b.WriteString("| File | Language | Status | Lines | Proposed Changes |\n|------|----------|--------|-------|------------------|\n")
	for _, f := range files {
		fmt.Fprintf(&b, "| `%s` | %s | %s | +%d/-%d | %d |\n", f.Path, f.Language, f.Status, f.Additions, f.Deletions, perFile[f.Path])
	}
	return strings.TrimRight(b.String(), "\n")
}

func recommendationsSection(in ReportInput, a Analysis, v Verification, vOK bool) string {
	var b strings.Builder
	b.WriteString("### Recommendations\n\n")

	score := v.OverallQualityScore
	switch {
	case in.Success && (score >= 9 || (score == 0 && vOK)):
		b.WriteString("#### Excellent Code Quality\n\n- **Recommendation**: ready for merge after final review\n")
	case in.Success && score >= 7:
		b.WriteString("#### Good Code Quality with Minor Issues\n\n- **Recommendation**: review warnings and consider fixes before merge\n")
	default:
		b.WriteString("#### Code Quality Needs Attention\n\n- **Recommendation**: address the issues below before merge\n")
	}

	if countSeverity(a.Issues, "critical") > 0 {
		b.WriteString("\n#### Attention Required\n\n- Critical issues were identified in the analysis stage\n")
	}
	if len(v.Warnings) > 0 {
		b.WriteString("- Warnings were raised during verification; see the verification section\n")
	}
	writeList(&b, "Further Recommendations", v.Recommendations)

	b.WriteString("\n#### Next Steps\n\n")
	b.WriteString("1. Review the findings from each stage\n")
	b.WriteString("2. Run the test suite against the proposed changes\n")
	b.WriteString("3. Manually review critical changes\n")
	b.WriteString("4. Deploy through staging before production")
	return b.String()
}

func reportFooter(in ReportInput) string {
	var b strings.Builder
	b.WriteString("---\n\n**Pipeline Stages**\n\n")
	labels := map[Stage]string{
		StageAnalysis:     "Deep code analysis and issue identification",
		StageGeneration:   "Code generation and improvement",
		StageIntegration:  "Integration and consistency",
		StageVerification: "Final verification and quality assurance",
	}
	for i, st := range Stages {
		model := in.Models[st]
		if model == "" {
			model = string(st)
		}
		fmt.Fprintf(&b, "%d. **%s**: %s\n", i+1, model, labels[st])
	}
	b.WriteString("\n*Report generated by reviewgraph*")
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n**%s**\n\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}

func countSeverity(issues []Issue, severity string) int {
	n := 0
	for _, is := range issues {
		if strings.EqualFold(is.Severity, severity) {
			n++
		}
	}
	return n
}
