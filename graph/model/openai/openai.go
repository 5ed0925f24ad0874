// Package openai provides a model.ChatModel backed by the OpenAI chat
// completions API. Any OpenAI-compatible endpoint can be targeted with
// WithBaseURL.
package openai

import (
	"context"
	"errors"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dshills/reviewgraph/graph/model"
)

// DefaultModel is used when no model name is given.
const DefaultModel = "gpt-4o"

// ChatModel implements model.ChatModel for OpenAI-compatible APIs.
type ChatModel struct {
	provider    string
	modelName   string
	baseURL     string
	temperature *float64
	client      openaiClient
}

// openaiClient is the subset of the API used by ChatModel.
type openaiClient interface {
	createChatCompletion(ctx context.Context, params sdk.ChatCompletionNewParams) (*sdk.ChatCompletion, error)
}

// Option configures a ChatModel.
type Option func(*ChatModel)

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(m *ChatModel) { m.baseURL = url }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(m *ChatModel) { m.temperature = &t }
}

// WithProviderName sets the name used in errors. Defaults to "openai".
func WithProviderName(name string) Option {
	return func(m *ChatModel) { m.provider = name }
}

// NewChatModel returns a ChatModel using apiKey. An empty modelName selects
// DefaultModel.
func NewChatModel(apiKey, modelName string, opts ...Option) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	m := &ChatModel{provider: "openai", modelName: modelName}
	for _, opt := range opts {
		opt(m)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if m.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(m.baseURL))
	}
	m.client = &defaultClient{client: sdk.NewClient(reqOpts...)}
	return m
}

// ModelName returns the configured model.
func (m *ChatModel) ModelName() string {
	return m.modelName
}

// BaseURL returns the endpoint override, or "" for the default.
func (m *ChatModel) BaseURL() string {
	return m.baseURL
}

// Provider returns the name used in errors.
func (m *ChatModel) Provider() string {
	return m.provider
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}
	if len(messages) == 0 {
		return model.ChatOut{}, errors.New(m.provider + ": at least one message is required")
	}

	resp, err := m.client.createChatCompletion(ctx, m.buildParams(messages))
	if err != nil {
		return model.ChatOut{}, model.ClassifyError(m.provider, err)
	}

	out := convertResponse(resp)
	if out.Text == "" {
		return out, model.ClassifyError(m.provider, model.ErrEmptyResponse)
	}
	return out, nil
}

func (m *ChatModel) buildParams(messages []model.Message) sdk.ChatCompletionNewParams {
	params := sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.modelName),
		Messages: convertMessages(messages),
	}
	if m.temperature != nil {
		params.Temperature = sdk.Float(*m.temperature)
	}
	return params
}

func convertMessages(messages []model.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, sdk.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, sdk.AssistantMessage(msg.Content))
		default:
			out = append(out, sdk.UserMessage(msg.Content))
		}
	}
	return out
}

func convertResponse(resp *sdk.ChatCompletion) model.ChatOut {
	if resp == nil || len(resp.Choices) == 0 {
		return model.ChatOut{}
	}
	return model.ChatOut{
		Text: resp.Choices[0].Message.Content,
		Usage: model.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}
}

type defaultClient struct {
	client sdk.Client
}

func (c *defaultClient) createChatCompletion(ctx context.Context, params sdk.ChatCompletionNewParams) (*sdk.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}
