// Package deepseek provides a model.ChatModel for DeepSeek, which serves an
// OpenAI-compatible API.
package deepseek

import "github.com/dshills/reviewgraph/graph/model/openai"

const (
	// DefaultModel is used when no model name is given.
	DefaultModel = "deepseek-chat"

	// DefaultBaseURL is the DeepSeek API endpoint.
	DefaultBaseURL = "https://api.deepseek.com/v1"
)

// NewChatModel returns a ChatModel for DeepSeek.
func NewChatModel(apiKey, modelName string, opts ...openai.Option) *openai.ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	base := []openai.Option{
		openai.WithBaseURL(DefaultBaseURL),
		openai.WithProviderName("deepseek"),
	}
	return openai.NewChatModel(apiKey, modelName, append(base, opts...)...)
}
