package graph

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/reviewgraph/graph/emit"
)

// TestExecute_SingleNode verifies a node without successors ends the run
// after one step.
func TestExecute_SingleNode(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	mustNil(t, o.AddTransform("only", setData(map[string]any{"x": 1})))

	out, err := o.Execute(context.Background(), "only", NewExecutionContext("s1", nil), 10)
	mustNil(t, err)

	if out.Data["x"] != 1 {
		t.Errorf("data = %v", out.Data)
	}
	if !out.Flag("only_completed") {
		t.Error("completion flag not set")
	}

	h := o.History(0)
	if len(h) != 1 {
		t.Fatalf("history len = %d, want 1", len(h))
	}
	if h[0].Status != RunCompleted || len(h[0].Steps) != 1 || h[0].StepsExecuted != 1 {
		t.Errorf("unexpected record: %+v", h[0])
	}
	if h[0].Steps[0].Status != StepCompleted || h[0].Steps[0].Attempts != 1 {
		t.Errorf("unexpected step: %+v", h[0].Steps[0])
	}
}

// TestExecute_Scenario runs A -> B(condition) -> C with D untaken.
func TestExecute_Scenario(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	var dCalls atomic.Int32

	mustNil(t, o.AddTransform("A", setData(map[string]any{"n": 1})))
	mustNil(t, o.AddCondition("B", func(data map[string]any) bool { return data["n"] == 1 }, "C", "D"))
	mustNil(t, o.AddTransform("C", setData(map[string]any{"done": true})))
	mustNil(t, o.AddTransform("D", func(context.Context, map[string]any) (map[string]any, error) {
		dCalls.Add(1)
		return nil, nil
	}))
	mustNil(t, o.Connect("A", "B"))

	out, err := o.Execute(context.Background(), "A", NewExecutionContext("s", nil), 10)
	mustNil(t, err)

	if want := map[string]any{"n": 1, "done": true}; !reflect.DeepEqual(out.Data, want) {
		t.Errorf("data = %v, want %v", out.Data, want)
	}
	if out.Metadata[BranchKey("B")] != "C" {
		t.Errorf("branch = %v", out.Metadata[BranchKey("B")])
	}
	if dCalls.Load() != 0 {
		t.Error("untaken branch executed")
	}

	rec := o.History(1)[0]
	if rec.Status != RunCompleted || len(rec.Steps) != 3 {
		t.Fatalf("record = %+v", rec)
	}
	for i, want := range []string{"A", "B", "C"} {
		if rec.Steps[i].NodeID != want || rec.Steps[i].Step != i+1 {
			t.Errorf("step %d = %+v, want node %s", i, rec.Steps[i], want)
		}
	}
}

// TestExecute_ConditionRouting verifies both branches.
func TestExecute_ConditionRouting(t *testing.T) {
	tests := []struct {
		name    string
		value   bool
		want    string
		untaken string
	}{
		{"true branch", true, "yes", "no"},
		{"false branch", false, "no", "yes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := newTestOrchestrator(t)
			visited := make(map[string]int)
			var mu sync.Mutex
			track := func(id string) TransformFunc {
				return func(context.Context, map[string]any) (map[string]any, error) {
					mu.Lock()
					visited[id]++
					mu.Unlock()
					return nil, nil
				}
			}
			mustNil(t, o.AddCondition("check", func(map[string]any) bool { return tt.value }, "yes", "no"))
			mustNil(t, o.AddTransform("yes", track("yes")))
			mustNil(t, o.AddTransform("no", track("no")))

			out, err := o.Execute(context.Background(), "check", NewExecutionContext("s", nil), 10)
			mustNil(t, err)

			if visited[tt.want] != 1 || visited[tt.untaken] != 0 {
				t.Errorf("visited = %v", visited)
			}
			if out.Metadata["check_condition_result"] != tt.value {
				t.Errorf("condition result = %v", out.Metadata["check_condition_result"])
			}
		})
	}
}

// TestExecute_ConditionIgnoresEdges verifies edges of a condition node are
// not followed.
func TestExecute_ConditionIgnoresEdges(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	mustNil(t, o.AddCondition("c", func(map[string]any) bool { return true }, "", ""))
	mustNil(t, o.AddTransform("edge", setData(map[string]any{"edge": true})))
	mustNil(t, o.Connect("c", "edge"))

	out, err := o.Execute(context.Background(), "c", NewExecutionContext("s", nil), 10)
	mustNil(t, err)
	if _, ok := out.Data["edge"]; ok {
		t.Error("edge of condition node was followed")
	}
}

// TestExecute_RetryThenSucceed verifies k failures then success produce
// one completed step after k+1 calls with doubling delays.
func TestExecute_RetryThenSucceed(t *testing.T) {
	o, sleeps := newTestOrchestrator(t, WithBackoff(time.Second, time.Minute))
	f := &flakyTransform{failures: 2}
	mustNil(t, o.AddTransform("flaky", f.run, WithRetryLimit(3)))

	out, err := o.Execute(context.Background(), "flaky", NewExecutionContext("s", nil), 10)
	mustNil(t, err)

	if f.count() != 3 {
		t.Errorf("calls = %d, want 3", f.count())
	}
	if out.Data["ok"] != true {
		t.Errorf("data = %v", out.Data)
	}

	rec := o.History(1)[0]
	if len(rec.Steps) != 1 || rec.Steps[0].Status != StepCompleted || rec.Steps[0].Attempts != 3 {
		t.Errorf("steps = %+v", rec.Steps)
	}
	if want := []time.Duration{time.Second, 2 * time.Second}; !reflect.DeepEqual(sleeps.recorded(), want) {
		t.Errorf("delays = %v, want %v", sleeps.recorded(), want)
	}
}

// TestExecute_RetriesExhausted verifies a node that always fails aborts
// the run after exactly retry limit calls.
func TestExecute_RetriesExhausted(t *testing.T) {
	buf := emit.NewBufferedEmitter()
	o, sleeps := newTestOrchestrator(t, WithEmitter(buf))
	f := &flakyTransform{failures: 100}
	mustNil(t, o.AddTransform("broken", f.run, WithRetryLimit(4)))
	mustNil(t, o.AddTransform("after", setData(map[string]any{"after": true})))
	mustNil(t, o.Connect("broken", "after"))

	out, err := o.Execute(context.Background(), "broken", NewExecutionContext("s", map[string]any{"in": 1}), 10)
	if err == nil {
		t.Fatal("expected error")
	}

	var aborted *RunAbortedError
	if !errors.As(err, &aborted) {
		t.Fatalf("expected RunAbortedError, got %T", err)
	}
	if aborted.NodeID != "broken" || aborted.Step != 1 || aborted.Attempts != 4 {
		t.Errorf("aborted = %+v", aborted)
	}
	var nodeErr *NodeExecutionError
	if !errors.As(err, &nodeErr) || nodeErr.Attempt != 4 {
		t.Errorf("expected NodeExecutionError for attempt 4, got %v", err)
	}

	if f.count() != 4 {
		t.Errorf("calls = %d, want 4", f.count())
	}
	if len(sleeps.recorded()) != 3 {
		t.Errorf("sleeps = %v, want 3 delays", sleeps.recorded())
	}

	if out == nil || out.Data["in"] != 1 {
		t.Fatalf("expected partial context, got %+v", out)
	}
	if _, ok := out.Metadata["broken_error"]; !ok {
		t.Error("error metadata missing")
	}
	if _, ok := out.Data["after"]; ok {
		t.Error("run continued past failed node")
	}

	rec := o.History(1)[0]
	if rec.Status != RunFailed || rec.Error == "" {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.Steps) != 1 || rec.Steps[0].Status != StepFailed || rec.Steps[0].Error == "" {
		t.Errorf("steps = %+v", rec.Steps)
	}
	if rec.EndTime.IsZero() || rec.TotalDuration != 0 {
		t.Errorf("failed run timing: end=%v total=%v", rec.EndTime, rec.TotalDuration)
	}

	retries := buf.HistoryWithFilter(aborted.ExecutionID, emit.HistoryFilter{Msg: emit.MsgNodeRetry})
	if len(retries) != 3 {
		t.Errorf("retry events = %d, want 3", len(retries))
	}
}

// TestExecute_StatusMatchesSteps verifies a record is completed exactly
// when no step failed.
func TestExecute_StatusMatchesSteps(t *testing.T) {
	o, _ := newTestOrchestrator(t, WithDefaultRetryLimit(1))
	mustNil(t, o.AddTransform("good", setData(nil)))
	mustNil(t, o.AddTransform("bad", func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.New("nope")
	}))

	for i := 0; i < 3; i++ {
		_, _ = o.Execute(context.Background(), "good", nil, 5)
		_, _ = o.Execute(context.Background(), "bad", nil, 5)
	}

	h := o.History(0)
	if len(h) != 6 {
		t.Fatalf("history len = %d, want 6", len(h))
	}
	for _, rec := range h {
		failed := false
		for _, s := range rec.Steps {
			if s.Status == StepFailed {
				failed = true
			}
		}
		if (rec.Status == RunCompleted) == failed {
			t.Errorf("record %s status %s with failed step = %v", rec.ExecutionID, rec.Status, failed)
		}
	}
}

// TestExecute_MaxStepsCycle verifies a two-node cycle stops at max steps.
func TestExecute_MaxStepsCycle(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	var calls atomic.Int32
	count := func(context.Context, map[string]any) (map[string]any, error) {
		calls.Add(1)
		return nil, nil
	}
	mustNil(t, o.AddTransform("A", count))
	mustNil(t, o.AddTransform("B", count))
	mustNil(t, o.Connect("A", "B"))
	mustNil(t, o.Connect("B", "A"))

	_, err := o.Execute(context.Background(), "A", nil, 5)
	mustNil(t, err)

	rec := o.History(1)[0]
	if rec.Status != RunCompleted || len(rec.Steps) != 5 || rec.StepsExecuted != 5 {
		t.Errorf("record = %+v", rec)
	}
	if calls.Load() != 5 {
		t.Errorf("calls = %d, want 5", calls.Load())
	}
}

// TestExecute_DefaultMaxSteps verifies maxSteps <= 0 uses the option.
func TestExecute_DefaultMaxSteps(t *testing.T) {
	o, _ := newTestOrchestrator(t, WithMaxSteps(3))
	mustNil(t, o.AddTransform("loop", setData(nil)))
	mustNil(t, o.Connect("loop", "loop"))

	_, err := o.Execute(context.Background(), "loop", nil, 0)
	mustNil(t, err)
	if got := len(o.History(1)[0].Steps); got != 3 {
		t.Errorf("steps = %d, want 3", got)
	}
}

// TestExecute_DanglingSuccessor verifies undeclared branch targets are
// skipped without failing the run.
func TestExecute_DanglingSuccessor(t *testing.T) {
	buf := emit.NewBufferedEmitter()
	o, _ := newTestOrchestrator(t, WithEmitter(buf))
	mustNil(t, o.AddCondition("gate", func(map[string]any) bool { return false }, "next", "ghost"))
	mustNil(t, o.AddTransform("next", setData(nil)))

	_, err := o.Execute(context.Background(), "gate", nil, 10)
	mustNil(t, err)

	rec := o.History(1)[0]
	if rec.Status != RunCompleted || len(rec.Steps) != 1 {
		t.Errorf("record = %+v", rec)
	}
	skipped := buf.HistoryWithFilter(rec.ExecutionID, emit.HistoryFilter{Msg: emit.MsgNodeSkipped})
	if len(skipped) != 1 || skipped[0].NodeID != "ghost" {
		t.Errorf("skipped events = %+v", skipped)
	}
}

// TestExecute_UnknownStart verifies an undeclared start node is skipped
// like any missing successor and the run completes.
func TestExecute_UnknownStart(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	out, err := o.Execute(context.Background(), "nowhere", NewExecutionContext("", map[string]any{"k": 1}), 10)
	mustNil(t, err)
	if out.Data["k"] != 1 {
		t.Errorf("data = %v", out.Data)
	}

	h := o.History(0)
	if len(h) != 1 || h[0].Status != RunCompleted || len(h[0].Steps) != 0 {
		t.Errorf("history = %+v", h)
	}
}

// TestExecute_ExecutorReturnsBareContext verifies a context returned without
// maps or identity is repaired before later nodes use it.
func TestExecute_ExecutorReturnsBareContext(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	mustNil(t, o.Add(&Node{
		ID:   "a",
		Kind: KindTransform,
		Exec: ExecutorFunc(func(context.Context, *ExecutionContext) (*ExecutionContext, error) {
			return &ExecutionContext{}, nil
		}),
	}))
	mustNil(t, o.Add(&Node{
		ID:   "b",
		Kind: KindTransform,
		Exec: ExecutorFunc(func(context.Context, *ExecutionContext) (*ExecutionContext, error) {
			return nil, errors.New("b failed")
		}),
		RetryLimit: 1,
	}))
	mustNil(t, o.Connect("a", "b"))

	out, err := o.Execute(context.Background(), "a", NewExecutionContext("sess", nil), 5)
	var aborted *RunAbortedError
	if !errors.As(err, &aborted) || aborted.NodeID != "b" {
		t.Fatalf("expected RunAbortedError in b, got %v", err)
	}
	if out.SessionID != "sess" || out.ExecutionID != aborted.ExecutionID {
		t.Errorf("identity = %q/%q, want sess/%q", out.SessionID, out.ExecutionID, aborted.ExecutionID)
	}
	if msg, _ := out.Metadata["b_error"].(string); !strings.Contains(msg, "b failed") {
		t.Errorf("b_error = %v", out.Metadata["b_error"])
	}
	if h := o.History(1); h[0].Status != RunFailed || !strings.Contains(h[0].Error, "b failed") {
		t.Errorf("record = %+v", h[0])
	}
}

// TestExecute_DoesNotMutateInitial verifies the caller's context is copied.
func TestExecute_DoesNotMutateInitial(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	mustNil(t, o.AddTransform("t", func(_ context.Context, data map[string]any) (map[string]any, error) {
		nested := data["nested"].(map[string]any)
		nested["changed"] = true
		data["list"].([]any)[0] = "changed"
		return map[string]any{"added": 1}, nil
	}))

	initial := NewExecutionContext("s", map[string]any{
		"nested": map[string]any{"orig": true},
		"list":   []any{"orig"},
	})
	initial.Metadata["keep"] = "me"

	out, err := o.Execute(context.Background(), "t", initial, 10)
	mustNil(t, err)

	if _, ok := initial.Data["added"]; ok {
		t.Error("initial data gained a key")
	}
	if _, ok := initial.Data["nested"].(map[string]any)["changed"]; ok {
		t.Error("initial nested map mutated")
	}
	if initial.Data["list"].([]any)[0] != "orig" {
		t.Error("initial slice mutated")
	}
	if _, ok := initial.Metadata["t_completed"]; ok {
		t.Error("initial metadata mutated")
	}
	if initial.ExecutionID != "" {
		t.Error("initial execution id assigned")
	}
	if out.ExecutionID == "" || out.Metadata["keep"] != "me" {
		t.Errorf("out = %+v", out)
	}
}

// TestExecute_FreshExecutionIDs verifies each run gets its own id.
func TestExecute_FreshExecutionIDs(t *testing.T) {
	n := 0
	o, _ := newTestOrchestrator(t, WithIDGenerator(func() string {
		n++
		return "exec-" + string(rune('0'+n))
	}))
	mustNil(t, o.AddTransform("t", setData(nil)))

	ec := NewExecutionContext("s", nil)
	first, _ := o.Execute(context.Background(), "t", ec, 1)
	second, _ := o.Execute(context.Background(), "t", ec, 1)

	if first.ExecutionID != "exec-1" || second.ExecutionID != "exec-2" {
		t.Errorf("ids = %s, %s", first.ExecutionID, second.ExecutionID)
	}
	if first.SessionID != "s" || second.SessionID != "s" {
		t.Error("session id not preserved")
	}
}

// TestExecute_Timeout verifies a hung attempt times out and is retried.
func TestExecute_Timeout(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	var calls atomic.Int32
	release := make(chan struct{})
	defer close(release)

	mustNil(t, o.Add(&Node{
		ID:   "slow",
		Kind: KindTransform,
		Exec: ExecutorFunc(func(ctx context.Context, ec *ExecutionContext) (*ExecutionContext, error) {
			if calls.Add(1) == 1 {
				<-release // ignores ctx on purpose
			}
			ec.Data["finished"] = true
			return ec, nil
		}),
		RetryLimit: 2,
		Timeout:    20 * time.Millisecond,
	}))

	out, err := o.Execute(context.Background(), "slow", nil, 1)
	mustNil(t, err)

	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if out.Data["finished"] != true {
		t.Error("second attempt result missing")
	}
	if got := o.History(1)[0].Steps[0].Attempts; got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

// TestExecute_TimeoutExhausted verifies timeouts surface as TimeoutError.
func TestExecute_TimeoutExhausted(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	mustNil(t, o.Add(&Node{
		ID:   "stuck",
		Kind: KindTransform,
		Exec: ExecutorFunc(func(ctx context.Context, ec *ExecutionContext) (*ExecutionContext, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
		RetryLimit: 2,
		Timeout:    10 * time.Millisecond,
	}))

	_, err := o.Execute(context.Background(), "stuck", nil, 1)
	if !errors.Is(err, ErrNodeTimeout) {
		t.Fatalf("expected ErrNodeTimeout, got %v", err)
	}
	var te *TimeoutError
	if !errors.As(err, &te) || te.NodeID != "stuck" || te.Timeout != 10*time.Millisecond {
		t.Errorf("timeout error = %+v", te)
	}
}

// TestExecute_Panic verifies a panicking executor fails like any error.
func TestExecute_Panic(t *testing.T) {
	o, _ := newTestOrchestrator(t, WithDefaultRetryLimit(2))
	mustNil(t, o.AddTransform("boom", func(context.Context, map[string]any) (map[string]any, error) {
		panic("kaboom")
	}))

	_, err := o.Execute(context.Background(), "boom", nil, 1)
	var nodeErr *NodeExecutionError
	if !errors.As(err, &nodeErr) {
		t.Fatalf("expected NodeExecutionError, got %v", err)
	}
	if len(o.History(0)) != 1 {
		t.Error("panicking run not recorded")
	}
}

// TestExecute_Cancelled verifies cancellation stops retries and is
// reported through the run error.
func TestExecute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	o, _ := newTestOrchestrator(t, withSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))
	mustNil(t, o.AddTransform("fail", func(context.Context, map[string]any) (map[string]any, error) {
		calls.Add(1)
		return nil, errors.New("down")
	}, WithRetryLimit(5)))

	_, err := o.Execute(ctx, "fail", nil, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var nodeErr *NodeExecutionError
	if !errors.As(err, &nodeErr) {
		t.Errorf("expected wrapped node error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if h := o.History(0); len(h) != 1 || h[0].Status != RunFailed {
		t.Errorf("history = %+v", h)
	}
}

// TestExecute_ConcurrentRuns verifies shared history and memory stay
// consistent across simultaneous runs.
func TestExecute_ConcurrentRuns(t *testing.T) {
	o, _ := newTestOrchestrator(t, WithMemoryCapacity(8))
	mustNil(t, o.AddAICall("ai", func(_ context.Context, prompt, _ string) (string, error) {
		return "re: " + prompt, nil
	}, "sys", "hello {name}"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ec := NewExecutionContext(string(rune('a'+i)), map[string]any{"name": i})
			if _, err := o.Execute(context.Background(), "ai", ec, 1); err != nil {
				t.Errorf("run %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if got := len(o.History(0)); got != 20 {
		t.Errorf("history len = %d, want 20", got)
	}
	if got := o.Memory().Len(); got > 8 {
		t.Errorf("memory len = %d exceeds capacity", got)
	}
}

// TestExecute_Archive verifies every record reaches the archive and that
// archive failures do not fail the run.
func TestExecute_Archive(t *testing.T) {
	a := &recordingArchive{}
	o, _ := newTestOrchestrator(t, WithArchive(a), WithDefaultRetryLimit(1))
	mustNil(t, o.AddTransform("ok", setData(nil)))
	mustNil(t, o.AddTransform("bad", func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.New("x")
	}))

	_, _ = o.Execute(context.Background(), "ok", nil, 1)
	_, _ = o.Execute(context.Background(), "bad", nil, 1)

	if len(a.records) != 2 || a.records[0].Status != RunCompleted || a.records[1].Status != RunFailed {
		t.Errorf("archived = %+v", a.records)
	}

	a.err = errors.New("disk full")
	if _, err := o.Execute(context.Background(), "ok", nil, 1); err != nil {
		t.Errorf("archive failure leaked into run: %v", err)
	}
}

type recordingArchive struct {
	mu      sync.Mutex
	records []ExecutionRecord
	err     error
}

func (a *recordingArchive) SaveRecord(_ context.Context, rec ExecutionRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.records = append(a.records, rec)
	return nil
}

// TestExecute_Events verifies the event sequence of a successful run.
func TestExecute_Events(t *testing.T) {
	buf := emit.NewBufferedEmitter()
	o, _ := newTestOrchestrator(t, WithEmitter(buf))
	mustNil(t, o.AddTransform("a", setData(nil)))
	mustNil(t, o.AddTransform("b", setData(nil)))
	mustNil(t, o.Connect("a", "b"))

	out, err := o.Execute(context.Background(), "a", nil, 5)
	mustNil(t, err)

	var msgs []string
	for _, e := range buf.History(out.ExecutionID) {
		msgs = append(msgs, e.Msg)
	}
	want := []string{
		emit.MsgRunStart,
		emit.MsgNodeStart, emit.MsgNodeEnd,
		emit.MsgNodeStart, emit.MsgNodeEnd,
		emit.MsgRunEnd,
	}
	if !reflect.DeepEqual(msgs, want) {
		t.Errorf("events = %v, want %v", msgs, want)
	}
}
