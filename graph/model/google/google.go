// Package google provides a model.ChatModel backed by the Gemini API.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/reviewgraph/graph/model"
)

// DefaultModel is used when no model name is given.
const DefaultModel = "gemini-1.5-pro"

// ChatModel implements model.ChatModel for Gemini.
type ChatModel struct {
	modelName string
	client    googleClient
}

// googleClient is the subset of the API used by ChatModel.
type googleClient interface {
	generateContent(ctx context.Context, systemPrompt string, messages []model.Message) (*genai.GenerateContentResponse, error)
}

// NewChatModel returns a ChatModel using apiKey. An empty modelName selects
// DefaultModel.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &ChatModel{
		modelName: modelName,
		client:    &defaultClient{apiKey: apiKey, modelName: modelName},
	}
}

// ModelName returns the configured model.
func (m *ChatModel) ModelName() string {
	return m.modelName
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	system, conversation := model.SplitSystem(messages)
	if len(conversation) == 0 {
		return model.ChatOut{}, errors.New("google: at least one user message is required")
	}

	resp, err := m.client.generateContent(ctx, system, conversation)
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return model.ChatOut{}, &model.ProviderError{
			Provider: "google",
			Code:     model.CodeSafetyFilter,
			Message:  "response blocked",
			Err:      newSafetyFilterError(blocked),
		}
	}
	if err != nil {
		return model.ChatOut{}, model.ClassifyError("google", err)
	}

	out := convertResponse(resp)
	if out.Text == "" {
		return out, model.ClassifyError("google", model.ErrEmptyResponse)
	}
	return out, nil
}

// newSafetyFilterError describes a prompt or candidate rejected by Gemini
// safety filters.
func newSafetyFilterError(err *genai.BlockedError) *SafetyFilterError {
	if fb := err.PromptFeedback; fb != nil {
		return &SafetyFilterError{reason: fb.BlockReason.String(), category: blockedCategory(fb.SafetyRatings)}
	}
	if c := err.Candidate; c != nil {
		return &SafetyFilterError{reason: c.FinishReason.String(), category: blockedCategory(c.SafetyRatings)}
	}
	return &SafetyFilterError{reason: "unknown", category: "unknown"}
}

func blockedCategory(ratings []*genai.SafetyRating) string {
	for _, r := range ratings {
		if r != nil && r.Blocked {
			return r.Category.String()
		}
	}
	return "unknown"
}

func convertResponse(resp *genai.GenerateContentResponse) model.ChatOut {
	var out model.ChatOut
	if resp == nil {
		return out
	}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}

	var parts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	out.Text = strings.Join(parts, "\n")
	return out
}

// history converts all but the last message into Gemini chat history.
func history(messages []model.Message) []*genai.Content {
	if len(messages) <= 1 {
		return nil
	}
	out := make([]*genai.Content, 0, len(messages)-1)
	for _, msg := range messages[:len(messages)-1] {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}
	return out
}

type defaultClient struct {
	apiKey    string
	modelName string
}

func (c *defaultClient) generateContent(ctx context.Context, systemPrompt string, messages []model.Message) (*genai.GenerateContentResponse, error) {
	if c.apiKey == "" {
		return nil, errors.New("google API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}
	defer func() { _ = client.Close() }()

	genModel := client.GenerativeModel(c.modelName)
	if systemPrompt != "" {
		genModel.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}

	last := genai.Text(messages[len(messages)-1].Content)
	if len(messages) == 1 {
		return genModel.GenerateContent(ctx, last)
	}
	session := genModel.StartChat()
	session.History = history(messages)
	return session.SendMessage(ctx, last)
}

// SafetyFilterError reports content blocked by Gemini safety filters.
//
//	var safetyErr *google.SafetyFilterError
//	if errors.As(err, &safetyErr) {
//	    log.Printf("blocked: %s", safetyErr.Category())
//	}
type SafetyFilterError struct {
	reason   string
	category string
}

func (e *SafetyFilterError) Error() string {
	return "content blocked by safety filter: " + e.category
}

// Category returns the harm category that triggered the block.
func (e *SafetyFilterError) Category() string {
	return e.category
}

// Reason returns the block or finish reason.
func (e *SafetyFilterError) Reason() string {
	return e.reason
}
