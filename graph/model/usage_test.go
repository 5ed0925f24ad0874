package model

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// TestUsageTracker_Record verifies cost calculation and aggregation.
func TestUsageTracker_Record(t *testing.T) {
	tr := NewUsageTracker()
	call := tr.Record("gpt-4o", Usage{InputTokens: 1_000_000, OutputTokens: 500_000})
	if !almostEqual(call.CostUSD, 2.50+5.00) {
		t.Errorf("unexpected cost %v", call.CostUSD)
	}
	tr.Record("unknown-model", Usage{InputTokens: 10, OutputTokens: 10})

	if !almostEqual(tr.TotalCost(), 7.50) {
		t.Errorf("expected total 7.50, got %v", tr.TotalCost())
	}
	byModel := tr.CostByModel()
	if byModel["unknown-model"] != 0 {
		t.Errorf("unknown models should cost nothing")
	}
	in, out := tr.Tokens()
	if in != 1_000_010 || out != 500_010 {
		t.Errorf("unexpected tokens %d/%d", in, out)
	}
	if len(tr.Calls()) != 2 {
		t.Errorf("expected 2 calls")
	}

	tr.SetPricing("unknown-model", Pricing{InputPer1M: 1_000_000})
	tr.Record("unknown-model", Usage{InputTokens: 1})
	if !almostEqual(tr.CostByModel()["unknown-model"], 1) {
		t.Errorf("custom pricing not applied")
	}

	tr.Reset()
	if tr.TotalCost() != 0 || len(tr.Calls()) != 0 {
		t.Errorf("expected reset tracker")
	}
}

// TestUsageTracker_Concurrent verifies concurrent recording.
func TestUsageTracker_Concurrent(t *testing.T) {
	tr := NewUsageTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record("deepseek-chat", Usage{InputTokens: 1, OutputTokens: 1})
		}()
	}
	wg.Wait()
	if len(tr.Calls()) != 50 {
		t.Errorf("expected 50 calls, got %d", len(tr.Calls()))
	}
}

// TestTracked verifies the wrapper records successful calls only.
func TestTracked(t *testing.T) {
	tr := NewUsageTracker()
	mock := &MockChatModel{Responses: []ChatOut{{Text: "ok", Usage: Usage{InputTokens: 5, OutputTokens: 7}}}}
	m := Tracked(mock, "gpt-4o", tr)

	if _, err := m.Chat(context.Background(), Messages("p", "")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mock.Err = errors.New("fail")
	_, _ = m.Chat(context.Background(), Messages("p", ""))

	calls := tr.Calls()
	if len(calls) != 1 || calls[0].Usage.Total() != 12 || calls[0].Model != "gpt-4o" {
		t.Errorf("unexpected calls: %+v", calls)
	}

	if Tracked(mock, "x", nil) != ChatModel(mock) {
		t.Error("nil tracker should return the model unchanged")
	}
}
