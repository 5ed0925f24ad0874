package review

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptStore_Builtins(t *testing.T) {
	s := NewPromptStore(quietLogger())

	names := s.Names()
	for _, want := range []string{ProjectGeneral, ProjectWebDevelopment, ProjectAIML, ProjectSecurity, ProjectEmbedded} {
		assert.Contains(t, names, want)
	}
	assert.Equal(t, ProjectGeneral, s.Active())

	for _, name := range names {
		p, err := s.Resolve(name)
		require.NoError(t, err, name)
		for _, st := range Stages {
			assert.NotEmpty(t, p.Prompt(st).SystemPrompt, "%s %s", name, st)
		}
	}
}

func TestPromptStore_ResolveInheritsMissingStages(t *testing.T) {
	s := NewPromptStore(quietLogger())

	web, err := s.Resolve(ProjectWebDevelopment)
	require.NoError(t, err)
	assert.Equal(t, "Web Development", web.Name)
	assert.Contains(t, web.Analysis.SystemPrompt, "web security")
	assert.Contains(t, web.Analysis.FocusAreas, "Accessibility Issues")
	// Integration is not defined for web development.
	assert.Equal(t, generalIntegrationPrompt, web.Integration.SystemPrompt)
	assert.Contains(t, web.Integration.FocusAreas, "Code Style Consistency")

	raw, ok := s.Profile(ProjectWebDevelopment)
	require.True(t, ok)
	assert.Empty(t, raw.Integration.SystemPrompt, "resolution must not modify the stored profile")
}

func TestPromptStore_CustomProfiles(t *testing.T) {
	s := NewPromptStore(quietLogger())

	key, err := s.CreateCustom("Payments Service", "PCI scoped code", ProjectSecurity)
	require.NoError(t, err)
	assert.Equal(t, "payments_service", key)

	_, err = s.CreateCustom("Payments Service", "", "")
	assert.Error(t, err)
	_, err = s.CreateCustom("x", "", "nope")
	assert.ErrorIs(t, err, ErrUnknownProfile)

	require.NoError(t, s.Customize(key, StageVerification, "Verify PCI DSS compliance.", []string{"PCI"}))

	p, err := s.Resolve(key)
	require.NoError(t, err)
	assert.Equal(t, "Payments Service", p.Name)
	assert.Equal(t, ProjectSecurity, p.Base)
	assert.Contains(t, p.Analysis.SystemPrompt, "cybersecurity expert")
	assert.Equal(t, generalGenerationPrompt, p.Generation.SystemPrompt)
	assert.Equal(t, "Verify PCI DSS compliance.", p.Verification.SystemPrompt)
	assert.Equal(t, []string{"PCI"}, p.Verification.FocusAreas)

	require.NoError(t, s.SetActive(key))
	active, err := s.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "Payments Service", active.Name)

	assert.ErrorIs(t, s.SetActive("missing"), ErrUnknownProfile)
	assert.ErrorIs(t, s.Customize("missing", StageAnalysis, "x", nil), ErrUnknownProfile)
}

func TestPromptStore_Cycle(t *testing.T) {
	s := NewPromptStore(quietLogger())
	doc := `
project_types:
  a:
    name: A
    base: b
  b:
    name: B
    base: a
`
	require.NoError(t, s.Import(strings.NewReader(doc)))
	_, err := s.Resolve("a")
	assert.ErrorContains(t, err, "inheritance cycle")
}

func TestPromptStore_ExportImport(t *testing.T) {
	src := NewPromptStore(quietLogger())
	key, err := src.CreateCustom("Data Platform", "warehouse jobs", ProjectDataScience)
	require.NoError(t, err)
	require.NoError(t, src.Customize(key, StageAnalysis, "Check partitioning.", nil))
	require.NoError(t, src.SetActive(key))

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, src.SaveFile(path))

	dst := NewPromptStore(quietLogger())
	require.NoError(t, dst.LoadFile(path))
	assert.Equal(t, key, dst.Active())

	p, err := dst.Resolve(key)
	require.NoError(t, err)
	assert.Equal(t, "Check partitioning.", p.Analysis.SystemPrompt)
	assert.Contains(t, p.Analysis.FocusAreas, "Data Leakage")
}

func TestPromptStore_ImportErrors(t *testing.T) {
	s := NewPromptStore(quietLogger())

	assert.Error(t, s.Import(strings.NewReader("project_types: {}")))
	assert.Error(t, s.Import(strings.NewReader("unknown_field: 1\nproject_types:\n  a:\n    name: A\n")))
	assert.ErrorIs(t, s.Import(strings.NewReader("project_types:\n  a:\n    name: A\n    base: ghost\n")), ErrUnknownProfile)
	assert.ErrorIs(t, s.Import(strings.NewReader("active_project_type: ghost\nproject_types:\n  a:\n    name: A\n")), ErrUnknownProfile)

	var buf bytes.Buffer
	require.NoError(t, s.Export(&buf))
	assert.Contains(t, buf.String(), "active_project_type: general")
}

func TestParseStage(t *testing.T) {
	st, err := ParseStage("stage_2")
	require.NoError(t, err)
	assert.Equal(t, StageGeneration, st)

	st, err = ParseStage("stage_4_deepseek")
	require.NoError(t, err)
	assert.Equal(t, StageVerification, st)

	_, err = ParseStage("stage_5")
	assert.Error(t, err)
}
