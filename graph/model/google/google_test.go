package google

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"

	"github.com/dshills/reviewgraph/graph/model"
)

type mockGoogleClient struct {
	response   *genai.GenerateContentResponse
	err        error
	callCount  int
	lastSystem string
	lastMsgs   []model.Message
}

func (m *mockGoogleClient) generateContent(_ context.Context, systemPrompt string, messages []model.Message) (*genai.GenerateContentResponse, error) {
	m.callCount++
	m.lastSystem = systemPrompt
	m.lastMsgs = messages
	return m.response, m.err
}

func textResponse(texts ...string) *genai.GenerateContentResponse {
	parts := make([]genai.Part, len(texts))
	for i, t := range texts {
		parts[i] = genai.Text(t)
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
		UsageMetadata: &genai.UsageMetadata{
			PromptTokenCount:     40,
			CandidatesTokenCount: 10,
		},
	}
}

// TestNewChatModel verifies the default model name.
func TestNewChatModel(t *testing.T) {
	if got := NewChatModel("key", "").ModelName(); got != DefaultModel {
		t.Errorf("expected %q, got %q", DefaultModel, got)
	}
}

// TestChatModel_Chat verifies the system prompt is split out and parts are
// joined.
func TestChatModel_Chat(t *testing.T) {
	mock := &mockGoogleClient{response: textResponse("issue one", "issue two")}
	m := &ChatModel{modelName: DefaultModel, client: mock}

	out, err := m.Chat(context.Background(), model.Messages("analyze", "you analyze code"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "issue one\nissue two" {
		t.Errorf("unexpected text %q", out.Text)
	}
	if out.Usage.InputTokens != 40 || out.Usage.OutputTokens != 10 {
		t.Errorf("unexpected usage %+v", out.Usage)
	}
	if mock.lastSystem != "you analyze code" || len(mock.lastMsgs) != 1 {
		t.Errorf("unexpected request: %q %+v", mock.lastSystem, mock.lastMsgs)
	}
}

// TestChatModel_SafetyFilter verifies blocked responses surface a
// SafetyFilterError.
func TestChatModel_SafetyFilter(t *testing.T) {
	blocked := &genai.BlockedError{
		Candidate: &genai.Candidate{
			FinishReason: genai.FinishReasonSafety,
			SafetyRatings: []*genai.SafetyRating{
				{Category: genai.HarmCategoryDangerousContent, Blocked: true},
			},
		},
	}
	m := &ChatModel{client: &mockGoogleClient{err: blocked}}

	_, err := m.Chat(context.Background(), model.Messages("p", ""))
	var safetyErr *SafetyFilterError
	if !errors.As(err, &safetyErr) {
		t.Fatalf("expected SafetyFilterError, got %v", err)
	}
	if safetyErr.Category() != "HarmCategoryDangerousContent" {
		t.Errorf("unexpected category %q", safetyErr.Category())
	}
	if safetyErr.Reason() != "FinishReasonSafety" {
		t.Errorf("unexpected reason %q", safetyErr.Reason())
	}
	if model.IsRetryable(err) {
		t.Errorf("safety blocks are not retryable")
	}
}

// TestChatModel_Errors verifies classification and validation.
func TestChatModel_Errors(t *testing.T) {
	m := &ChatModel{client: &mockGoogleClient{err: errors.New("googleapi: Error 503: unavailable")}}
	_, err := m.Chat(context.Background(), model.Messages("p", ""))
	var pe *model.ProviderError
	if !errors.As(err, &pe) || pe.Code != model.CodeUnavailable || !pe.Retryable {
		t.Errorf("expected retryable unavailable error, got %v", err)
	}

	mock := &mockGoogleClient{}
	m = &ChatModel{client: mock}
	if _, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleSystem, Content: "s"}}); err == nil {
		t.Error("expected error without user message")
	}
	if mock.callCount != 0 {
		t.Error("expected no API call")
	}
}

// TestHistory verifies roles map to Gemini's user/model roles.
func TestHistory(t *testing.T) {
	h := history([]model.Message{
		{Role: model.RoleUser, Content: "a"},
		{Role: model.RoleAssistant, Content: "b"},
		{Role: model.RoleUser, Content: "c"},
	})
	if len(h) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(h))
	}
	if h[0].Role != "user" || h[1].Role != "model" {
		t.Errorf("unexpected roles %q %q", h[0].Role, h[1].Role)
	}
	if history([]model.Message{{Role: model.RoleUser, Content: "only"}}) != nil {
		t.Error("single message has no history")
	}
}
