package review

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"dario.cat/mergo"
	yaml "go.yaml.in/yaml/v2"
)

// Stage identifies one of the four model stages. The value is also the
// stage's node id in the pipeline graph.
type Stage string

const (
	StageAnalysis     Stage = "stage_1_gemini"
	StageGeneration   Stage = "stage_2_chatgpt"
	StageIntegration  Stage = "stage_3_claude"
	StageVerification Stage = "stage_4_deepseek"
)

// Stages lists the stages in execution order.
var Stages = []Stage{StageAnalysis, StageGeneration, StageIntegration, StageVerification}

// ParseStage accepts a full stage name or its "stage_N" short form.
func ParseStage(s string) (Stage, error) {
	for i, st := range Stages {
		if s == string(st) || s == fmt.Sprintf("stage_%d", i+1) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// Built-in project types.
const (
	ProjectGeneral         = "general"
	ProjectWebDevelopment  = "web_development"
	ProjectAIML            = "ai_ml"
	ProjectBackendAPI      = "backend_api"
	ProjectMobileApp       = "mobile_app"
	ProjectDataScience     = "data_science"
	ProjectGameDevelopment = "game_development"
	ProjectDevOpsInfra     = "devops_infra"
	ProjectSecurity        = "security"
	ProjectEmbedded        = "embedded"
)

// ErrUnknownProfile is returned for a project type the store does not hold.
var ErrUnknownProfile = errors.New("unknown project type")

// StagePrompt is the system prompt and focus list for one stage.
type StagePrompt struct {
	FocusAreas   []string `yaml:"focus_areas,omitempty"`
	SystemPrompt string   `yaml:"system_prompt,omitempty"`
}

// Profile is the prompt set for a project type. Stages left empty are
// taken from Base, and from general when Base is empty.
type Profile struct {
	Name         string      `yaml:"name"`
	Description  string      `yaml:"description,omitempty"`
	Base         string      `yaml:"base,omitempty"`
	Analysis     StagePrompt `yaml:"stage_1_gemini,omitempty"`
	Generation   StagePrompt `yaml:"stage_2_chatgpt,omitempty"`
	Integration  StagePrompt `yaml:"stage_3_claude,omitempty"`
	Verification StagePrompt `yaml:"stage_4_deepseek,omitempty"`
}

// Prompt returns the profile's prompt for st.
func (p Profile) Prompt(st Stage) StagePrompt {
	switch st {
	case StageAnalysis:
		return p.Analysis
	case StageGeneration:
		return p.Generation
	case StageIntegration:
		return p.Integration
	case StageVerification:
		return p.Verification
	}
	return StagePrompt{}
}

func (p *Profile) stage(st Stage) *StagePrompt {
	switch st {
	case StageAnalysis:
		return &p.Analysis
	case StageGeneration:
		return &p.Generation
	case StageIntegration:
		return &p.Integration
	case StageVerification:
		return &p.Verification
	}
	return nil
}

// promptFile is the YAML document read by Import and written by Export.
type promptFile struct {
	Active   string             `yaml:"active_project_type"`
	Profiles map[string]Profile `yaml:"project_types"`
}

// PromptStore holds the prompt profiles and the active project type.
type PromptStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	active   string
	logger   *slog.Logger
}

// NewPromptStore returns a store seeded with the built-in project types
// and general active.
func NewPromptStore(logger *slog.Logger) *PromptStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &PromptStore{
		profiles: builtinProfiles(),
		active:   ProjectGeneral,
		logger:   logger.With("module", "prompts"),
	}
	return s
}

// Active returns the active project type.
func (s *PromptStore) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetActive selects the project type used by Resolve("").
func (s *PromptStore) SetActive(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	s.active = name
	s.logger.Info("active project type set", "project_type", name)
	return nil
}

// Names lists the project types, sorted.
func (s *PromptStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.profiles))
	for k := range s.profiles {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Profile returns the stored profile for name without inheritance applied.
func (s *PromptStore) Profile(name string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[name]
	return cloneProfile(p), ok
}

// Resolve returns the profile for name with every empty stage filled from
// its base chain. An empty name resolves the active project type.
func (s *PromptStore) Resolve(name string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if name == "" {
		name = s.active
	}
	p, ok := s.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	out := cloneProfile(p)

	seen := map[string]bool{name: true}
	for cur, curName := p, name; curName != ProjectGeneral; {
		baseName := cur.Base
		if baseName == "" {
			baseName = ProjectGeneral
		}
		if seen[baseName] {
			return Profile{}, fmt.Errorf("project type %s: inheritance cycle through %s", name, baseName)
		}
		seen[baseName] = true
		base, ok := s.profiles[baseName]
		if !ok {
			return Profile{}, fmt.Errorf("project type %s: %w: base %s", name, ErrUnknownProfile, baseName)
		}
		if err := mergo.Merge(&out, cloneProfile(base)); err != nil {
			return Profile{}, fmt.Errorf("project type %s: merge %s: %w", name, baseName, err)
		}
		cur, curName = base, baseName
	}
	out.Base = p.Base
	return out, nil
}

// Customize replaces the system prompt of one stage. Focus areas are
// replaced when focus is not empty.
func (s *PromptStore) Customize(name string, st Stage, systemPrompt string, focus []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "" {
		name = s.active
	}
	p, ok := s.profiles[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	sp := p.stage(st)
	if sp == nil {
		return fmt.Errorf("unknown stage %q", st)
	}
	sp.SystemPrompt = systemPrompt
	if len(focus) > 0 {
		sp.FocusAreas = slices.Clone(focus)
	}
	s.profiles[name] = p
	s.logger.Info("stage prompt customized", "project_type", name, "stage", st)
	return nil
}

// CreateCustom adds a project type inheriting every stage from base and
// returns its key, the lower-cased name with spaces replaced by
// underscores.
func (s *PromptStore) CreateCustom(name, description, base string) (string, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
	if key == "" {
		return "", errors.New("project type name is required")
	}
	if base == "" {
		base = ProjectGeneral
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[base]; !ok {
		return "", fmt.Errorf("%w: base %s", ErrUnknownProfile, base)
	}
	if _, exists := s.profiles[key]; exists {
		return "", fmt.Errorf("project type %s already exists", key)
	}
	s.profiles[key] = Profile{Name: name, Description: description, Base: base}
	s.logger.Info("custom project type created", "project_type", key, "base", base)
	return key, nil
}

// Export writes every profile and the active type as YAML.
func (s *PromptStore) Export(w io.Writer) error {
	s.mu.RLock()
	doc := promptFile{Active: s.active, Profiles: make(map[string]Profile, len(s.profiles))}
	for k, p := range s.profiles {
		doc.Profiles[k] = cloneProfile(p)
	}
	s.mu.RUnlock()

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal prompts: %w", err)
	}
	_, err = w.Write(out)
	return err
}

// Import reads a YAML document written by Export. Imported profiles
// replace stored ones with the same key; the active type is switched when
// the document names one.
func (s *PromptStore) Import(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read prompts: %w", err)
	}
	var doc promptFile
	if err := yaml.UnmarshalStrict(raw, &doc); err != nil {
		return fmt.Errorf("parse prompts: %w", err)
	}
	if len(doc.Profiles) == 0 {
		return errors.New("parse prompts: no project_types")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, p := range doc.Profiles {
		if base := p.Base; base != "" {
			if _, ok := s.profiles[base]; !ok {
				if _, inDoc := doc.Profiles[base]; !inDoc {
					return fmt.Errorf("project type %s: %w: base %s", k, ErrUnknownProfile, base)
				}
			}
		}
	}
	for k, p := range doc.Profiles {
		s.profiles[k] = p
	}
	if doc.Active != "" {
		if _, ok := s.profiles[doc.Active]; !ok {
			return fmt.Errorf("%w: active %s", ErrUnknownProfile, doc.Active)
		}
		s.active = doc.Active
	}
	s.logger.Info("prompts imported", "profiles", len(doc.Profiles), "active", s.active)
	return nil
}

// LoadFile imports path.
func (s *PromptStore) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.Import(f)
}

// SaveFile exports to path.
func (s *PromptStore) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.Export(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func cloneProfile(p Profile) Profile {
	for _, st := range Stages {
		sp := p.stage(st)
		sp.FocusAreas = slices.Clone(sp.FocusAreas)
	}
	return p
}
