package model

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Pricing is a model's token price in USD per million tokens.
type Pricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// DefaultPricing covers the models used by the review stages. Unknown
// models are tracked at zero cost.
var DefaultPricing = map[string]Pricing{
	"gemini-1.5-pro":             {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-1.5-flash":           {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gpt-4o":                     {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":                {InputPer1M: 0.15, OutputPer1M: 0.60},
	"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-5-haiku-20241022":  {InputPer1M: 0.80, OutputPer1M: 4.00},
	"deepseek-chat":              {InputPer1M: 0.27, OutputPer1M: 1.10},
}

// Call is one tracked model invocation.
type Call struct {
	Model     string    `json:"model"`
	Usage     Usage     `json:"usage"`
	CostUSD   float64   `json:"cost_usd"`
	Timestamp time.Time `json:"timestamp"`
}

// UsageTracker accumulates token usage and cost across model calls. It is
// safe for concurrent use.
type UsageTracker struct {
	mu      sync.RWMutex
	pricing map[string]Pricing
	calls   []Call
	byModel map[string]float64
	total   float64
	input   int64
	output  int64
}

// NewUsageTracker returns a tracker priced with DefaultPricing.
func NewUsageTracker() *UsageTracker {
	pricing := make(map[string]Pricing, len(DefaultPricing))
	for k, v := range DefaultPricing {
		pricing[k] = v
	}
	return &UsageTracker{pricing: pricing, byModel: make(map[string]float64)}
}

// SetPricing overrides the price of modelName.
func (t *UsageTracker) SetPricing(modelName string, p Pricing) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pricing[modelName] = p
}

// Record adds one call.
func (t *UsageTracker) Record(modelName string, u Usage) Call {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.pricing[modelName]
	cost := float64(u.InputTokens)/1_000_000*p.InputPer1M + float64(u.OutputTokens)/1_000_000*p.OutputPer1M

	call := Call{Model: modelName, Usage: u, CostUSD: cost, Timestamp: time.Now()}
	t.calls = append(t.calls, call)
	t.byModel[modelName] += cost
	t.total += cost
	t.input += int64(u.InputTokens)
	t.output += int64(u.OutputTokens)
	return call
}

// TotalCost returns the cumulative cost in USD.
func (t *UsageTracker) TotalCost() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.total
}

// CostByModel returns a copy of the per-model cost breakdown.
func (t *UsageTracker) CostByModel() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]float64, len(t.byModel))
	for k, v := range t.byModel {
		out[k] = v
	}
	return out
}

// Calls returns the recorded calls in order.
func (t *UsageTracker) Calls() []Call {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Call(nil), t.calls...)
}

// Tokens returns total input and output tokens.
func (t *UsageTracker) Tokens() (input, output int64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.input, t.output
}

// Reset clears recorded calls, keeping the pricing.
func (t *UsageTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = nil
	t.byModel = make(map[string]float64)
	t.total = 0
	t.input = 0
	t.output = 0
}

func (t *UsageTracker) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fmt.Sprintf("calls=%d cost=$%.4f input_tokens=%d output_tokens=%d",
		len(t.calls), t.total, t.input, t.output)
}

// Tracked wraps m so every successful call is recorded under modelName.
func Tracked(m ChatModel, modelName string, t *UsageTracker) ChatModel {
	if t == nil {
		return m
	}
	return &trackedModel{next: m, name: modelName, tracker: t}
}

type trackedModel struct {
	next    ChatModel
	name    string
	tracker *UsageTracker
}

func (m *trackedModel) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	out, err := m.next.Chat(ctx, messages)
	if err == nil {
		m.tracker.Record(m.name, out.Usage)
	}
	return out, err
}
