package deepseek

import (
	"testing"

	"github.com/dshills/reviewgraph/graph/model/openai"
)

// TestNewChatModel verifies DeepSeek defaults and overrides.
func TestNewChatModel(t *testing.T) {
	m := NewChatModel("key", "")
	if m.ModelName() != DefaultModel {
		t.Errorf("expected %q, got %q", DefaultModel, m.ModelName())
	}
	if m.BaseURL() != DefaultBaseURL {
		t.Errorf("expected %q, got %q", DefaultBaseURL, m.BaseURL())
	}
	if m.Provider() != "deepseek" {
		t.Errorf("expected provider deepseek, got %q", m.Provider())
	}

	m = NewChatModel("key", "deepseek-coder", openai.WithBaseURL("http://proxy/v1"))
	if m.ModelName() != "deepseek-coder" || m.BaseURL() != "http://proxy/v1" {
		t.Errorf("overrides not applied: %s %s", m.ModelName(), m.BaseURL())
	}
}
