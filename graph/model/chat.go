// Package model adapts LLM chat providers to AI call nodes.
//
// Each provider subpackage (anthropic, openai, google, deepseek) exposes a
// ChatModel backed by the vendor SDK. AICall turns any ChatModel into the
// function shape expected by graph.Orchestrator.AddAICall.
package model

import (
	"context"
	"errors"
	"strings"

	"github.com/dshills/reviewgraph/graph"
)

// ChatModel is a single-turn chat completion provider.
//
// Implementations must respect ctx cancellation and should return a
// *ProviderError for vendor failures so callers can tell transient errors
// from permanent ones.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

// Message is one entry of a conversation.
type Message struct {
	Role    string
	Content string
}

// Standard roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Usage counts the tokens billed for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// ChatOut is the result of a chat completion.
type ChatOut struct {
	Text  string
	Usage Usage
}

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("empty response from model")

// Messages builds the conversation for a prompt and an optional system
// prompt.
func Messages(prompt, systemPrompt string) []Message {
	msgs := make([]Message, 0, 2)
	if systemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: systemPrompt})
	}
	return append(msgs, Message{Role: RoleUser, Content: prompt})
}

// SplitSystem separates system messages from the rest of the conversation.
// Multiple system messages are joined with a blank line.
func SplitSystem(messages []Message) (string, []Message) {
	var parts []string
	var rest []Message
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			parts = append(parts, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(parts, "\n\n"), rest
}

// AICall adapts m to the AI call node signature.
func AICall(m ChatModel) graph.AICallFunc {
	return func(ctx context.Context, prompt, systemPrompt string) (string, error) {
		out, err := m.Chat(ctx, Messages(prompt, systemPrompt))
		if err != nil {
			return "", err
		}
		return out.Text, nil
	}
}
