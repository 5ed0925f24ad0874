// Package anthropic provides a model.ChatModel backed by the Claude
// Messages API.
package anthropic

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/reviewgraph/graph/model"
)

// DefaultModel is used when no model name is given.
const DefaultModel = "claude-3-5-sonnet-20241022"

// DefaultMaxTokens bounds the response length.
const DefaultMaxTokens = 4096

// ChatModel implements model.ChatModel for Claude.
//
// Anthropic takes the system prompt as a separate parameter, so system
// messages are pulled out of the conversation before the request is built.
type ChatModel struct {
	modelName string
	maxTokens int64
	client    anthropicClient
}

// anthropicClient is the subset of the API used by ChatModel.
type anthropicClient interface {
	createMessage(ctx context.Context, params sdk.MessageNewParams) (*sdk.Message, error)
}

// NewChatModel returns a ChatModel using apiKey. An empty modelName selects
// DefaultModel.
func NewChatModel(apiKey, modelName string, opts ...option.RequestOption) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &ChatModel{
		modelName: modelName,
		maxTokens: DefaultMaxTokens,
		client:    &defaultClient{client: sdk.NewClient(reqOpts...)},
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

	params, err := m.buildParams(messages)
	if err != nil {
		return model.ChatOut{}, err
	}

	resp, err := m.client.createMessage(ctx, params)
	if err != nil {
		return model.ChatOut{}, model.ClassifyError("anthropic", err)
	}

	out := convertResponse(resp)
	if out.Text == "" {
		return out, model.ClassifyError("anthropic", model.ErrEmptyResponse)
	}
	return out, nil
}

func (m *ChatModel) buildParams(messages []model.Message) (sdk.MessageNewParams, error) {
	system, conversation := model.SplitSystem(messages)
	if len(conversation) == 0 {
		return sdk.MessageNewParams{}, errors.New("anthropic: at least one user message is required")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(m.modelName),
		MaxTokens: m.maxTokens,
		Messages:  convertMessages(conversation),
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	return params, nil
}

func convertMessages(messages []model.Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := sdk.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			out = append(out, sdk.NewAssistantMessage(block))
		} else {
			out = append(out, sdk.NewUserMessage(block))
		}
	}
	return out
}

func convertResponse(resp *sdk.Message) model.ChatOut {
	if resp == nil {
		return model.ChatOut{}
	}
	var out model.ChatOut
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.Text += block.Text
		}
	}
	out.Usage = model.Usage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}
	return out
}

type defaultClient struct {
	client sdk.Client
}

func (c *defaultClient) createMessage(ctx context.Context, params sdk.MessageNewParams) (*sdk.Message, error) {
	return c.client.Messages.New(ctx, params)
}
