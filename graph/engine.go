package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/reviewgraph/graph/emit"
	"github.com/dshills/reviewgraph/graph/memory"
)

// Orchestrator owns a graph of nodes, the memory store they share and the
// history of every run.
//
// Build the graph with Add, Connect and the typed constructors, then call
// Execute any number of times, possibly concurrently. The graph must not
// be changed while runs are in progress.
type Orchestrator struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string
	edges map[string][]string

	memory  *memory.Store
	history *History

	emitter emit.Emitter
	logger  *slog.Logger
	metrics *PrometheusMetrics
	archive Archive

	opts  Options
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string
	now   func() time.Time
}

// New creates an orchestrator with DefaultOptions adjusted by opts.
func New(opts ...Option) (*Orchestrator, error) {
	cfg := engineConfig{opts: DefaultOptions()}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	o := &Orchestrator{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		history: NewHistory(),
		emitter: cfg.emitter,
		logger:  cfg.logger,
		metrics: cfg.metrics,
		archive: cfg.archive,
		opts:    cfg.opts,
		sleep:   cfg.sleep,
		newID:   cfg.newID,
		now:     cfg.clock,
	}
	if o.emitter == nil {
		o.emitter = emit.NewNullEmitter()
	}
	if o.logger == nil {
		o.logger = slog.Default().With("module", "graph")
	}
	if o.sleep == nil {
		o.sleep = sleepContext
	}
	if o.newID == nil {
		o.newID = func() string { return uuid.New().String() }
	}
	if o.now == nil {
		o.now = time.Now
	}

	o.memory = cfg.memory
	if o.memory == nil {
		o.memory = memory.New(o.opts.MemoryCapacity, memory.WithEvictionHook(o.onEvict))
	} else {
		o.memory.SetEvictionHook(o.onEvict)
	}
	return o, nil
}

func (o *Orchestrator) onEvict(key string, e memory.Entry) {
	o.metrics.IncrementEvictions()
	o.logger.Debug("memory entry evicted", "key", key, "access_count", e.AccessCount)
	o.emitter.Emit(emit.Event{
		Msg:  emit.MsgEviction,
		Time: o.now(),
		Meta: map[string]any{"key": key, "access_count": e.AccessCount},
	})
}

// Memory returns the store shared by every run.
func (o *Orchestrator) Memory() *memory.Store {
	return o.memory
}

// Options returns the effective execution defaults.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Add declares a node. The node is copied; later changes to n have no
// effect.
func (o *Orchestrator) Add(n *Node) error {
	if n == nil || n.ID == "" {
		return &GraphError{Op: "declare", Err: fmt.Errorf("%w: node id is required", ErrInvalidNode)}
	}
	if n.Exec == nil {
		return &GraphError{Op: "declare", NodeID: n.ID, Err: fmt.Errorf("%w: executor is required", ErrInvalidNode)}
	}
	if !n.Kind.Valid() {
		return &GraphError{Op: "declare", NodeID: n.ID, Err: fmt.Errorf("%w: kind %q", ErrInvalidNode, n.Kind)}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.nodes[n.ID]; exists {
		return &GraphError{Op: "declare", NodeID: n.ID, Err: ErrDuplicateNode}
	}

	node := *n
	if node.Name == "" {
		node.Name = node.ID
	}
	node.Parameters = maps.Clone(n.Parameters)
	node.Dependencies = append([]string(nil), n.Dependencies...)
	o.nodes[node.ID] = &node
	o.order = append(o.order, node.ID)
	return nil
}

// Connect appends to as a successor of from. Both nodes must already be
// declared.
func (o *Orchestrator) Connect(from, to string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, id := range []string{from, to} {
		if _, ok := o.nodes[id]; !ok {
			return &GraphError{Op: "connect", NodeID: id, Err: ErrUnknownNode}
		}
	}
	o.edges[from] = append(o.edges[from], to)
	return nil
}

// Node returns a copy of the declared node.
func (o *Orchestrator) Node(id string) (Node, bool) {
	n, ok := o.lookup(id)
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Nodes returns copies of every node in declaration order.
func (o *Orchestrator) Nodes() []Node {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]Node, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, *o.nodes[id])
	}
	return out
}

// Successors returns the edge list of id.
func (o *Orchestrator) Successors(id string) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]string(nil), o.edges[id]...)
}

func (o *Orchestrator) lookup(id string) (*Node, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n, ok := o.nodes[id]
	return n, ok
}

// Execute runs the graph from startNode against a copy of initial.
//
// Each step visits every node of the current frontier in discovery order.
// A node is attempted up to its retry limit, each attempt bounded by its
// timeout, with exponential backoff between attempts. Successors of a
// condition node come from its recorded branch; all other nodes follow
// their edges. Successor ids with no declared node are skipped with a
// warning. The run ends when the frontier is empty or after maxSteps steps
// (the orchestrator default when maxSteps <= 0).
//
// When a node exhausts its attempts, or ctx is done, Execute returns the
// partial context together with a *RunAbortedError. Every call appends
// exactly one record to the history.
func (o *Orchestrator) Execute(ctx context.Context, startNode string, initial *ExecutionContext, maxSteps int) (*ExecutionContext, error) {
	if maxSteps <= 0 {
		maxSteps = o.opts.MaxSteps
	}

	ec := initial.Clone()
	if ec == nil {
		ec = NewExecutionContext("", nil)
	}
	if ec.Timestamp.IsZero() {
		ec.Timestamp = o.now()
	}
	ec.ExecutionID = o.newID()

	rec := ExecutionRecord{
		ExecutionID: ec.ExecutionID,
		SessionID:   ec.SessionID,
		StartNode:   startNode,
		Status:      RunRunning,
		StartTime:   o.now(),
	}
	log := o.logger.With("execution_id", rec.ExecutionID, "session_id", rec.SessionID)

	o.metrics.RunStarted()
	o.emit(ec, 0, "", emit.MsgRunStart, map[string]any{"start_node": startNode, "max_steps": maxSteps})
	log.Info("workflow execution started", "start_node", startNode)

	defer o.finish(ctx, &rec, log)

	frontier := []string{startNode}
	step := 0
	for len(frontier) > 0 && step < maxSteps {
		step++
		rec.StepsExecuted = step

		var next []string
		queued := make(map[string]struct{})
		for _, id := range frontier {
			node, ok := o.lookup(id)
			if !ok {
				o.metrics.IncrementSkipped()
				o.emit(ec, step, id, emit.MsgNodeSkipped, nil)
				log.Warn("node not found, skipping", "node_id", id, "step", step)
				continue
			}

			out, sr, err := o.runStep(ctx, node, ec, step, log)
			rec.Steps = append(rec.Steps, sr)
			if err != nil {
				ec.Metadata[errorKey(id)] = err.Error()
				return ec, o.abort(&rec, step, id, sr.Attempts, err)
			}
			ec = out

			for _, succ := range o.successorsOf(node, ec) {
				if _, dup := queued[succ]; dup {
					continue
				}
				queued[succ] = struct{}{}
				next = append(next, succ)
			}
		}
		frontier = next
	}

	if len(frontier) > 0 {
		log.Warn("max steps reached", "max_steps", maxSteps, "pending", frontier)
	}
	rec.Status = RunCompleted
	return ec, nil
}

func (o *Orchestrator) abort(rec *ExecutionRecord, step int, nodeID string, attempts int, cause error) error {
	rec.Status = RunFailed
	rec.Error = cause.Error()
	return &RunAbortedError{
		ExecutionID: rec.ExecutionID,
		Step:        step,
		NodeID:      nodeID,
		Attempts:    attempts,
		Err:         cause,
	}
}

// finish closes rec and appends it to the history. It runs deferred so a
// panicking run is still recorded.
func (o *Orchestrator) finish(ctx context.Context, rec *ExecutionRecord, log *slog.Logger) {
	if rec.Status == RunRunning {
		rec.Status = RunFailed
		rec.Error = "run did not complete"
	}
	rec.EndTime = o.now()
	if rec.Status == RunCompleted {
		rec.TotalDuration = rec.EndTime.Sub(rec.StartTime)
	}

	o.history.Append(*rec)
	o.metrics.RunFinished(rec.Status)
	o.metrics.SetMemoryEntries(o.memory.Len())

	meta := map[string]any{
		"status":      string(rec.Status),
		"steps":       rec.StepsExecuted,
		"duration_ms": rec.EndTime.Sub(rec.StartTime).Milliseconds(),
	}
	if rec.Error != "" {
		meta["error"] = rec.Error
	}
	o.emitter.Emit(emit.Event{
		ExecutionID: rec.ExecutionID,
		SessionID:   rec.SessionID,
		Step:        rec.StepsExecuted,
		Msg:         emit.MsgRunEnd,
		Time:        rec.EndTime,
		Meta:        meta,
	})

	if rec.Status == RunCompleted {
		log.Info("workflow execution completed", "steps", rec.StepsExecuted, "duration", rec.TotalDuration)
	} else {
		log.Error("workflow execution failed", "steps", rec.StepsExecuted, "error", rec.Error)
	}

	if o.archive != nil {
		if err := o.archive.SaveRecord(context.WithoutCancel(ctx), *rec); err != nil {
			log.Warn("archive record failed", "error", err)
		}
	}
}

// runStep attempts node until it succeeds or its retry limit is exhausted.
func (o *Orchestrator) runStep(ctx context.Context, node *Node, ec *ExecutionContext, step int, log *slog.Logger) (*ExecutionContext, StepRecord, error) {
	limit := node.RetryLimit
	if limit <= 0 {
		limit = o.opts.DefaultRetryLimit
	}
	if limit < 1 {
		limit = 1
	}
	timeout := getNodeTimeout(node, o.opts.DefaultNodeTimeout)

	start := o.now()
	sr := StepRecord{
		Step:      step,
		NodeID:    node.ID,
		NodeName:  node.displayName(),
		Timestamp: start,
	}
	o.emit(ec, step, node.ID, emit.MsgNodeStart, map[string]any{"kind": string(node.Kind)})

	var lastErr error
	for attempt := 1; attempt <= limit; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = errors.Join(err, lastErr)
			break
		}
		sr.Attempts = attempt

		out, err := executeNodeWithTimeout(ctx, node, ec.Clone(), timeout)
		if err == nil {
			sr.Duration = o.now().Sub(start)
			sr.Status = StepCompleted
			o.metrics.RecordStepLatency(node.ID, sr.Duration, StepCompleted)
			o.emit(out, step, node.ID, emit.MsgNodeEnd, map[string]any{
				"kind":        string(node.Kind),
				"attempt":     attempt,
				"duration_ms": sr.Duration.Milliseconds(),
			})
			log.Debug("node completed", "node_id", node.ID, "step", step, "attempt", attempt, "duration", sr.Duration)
			return out, sr, nil
		}

		lastErr = &NodeExecutionError{NodeID: node.ID, Attempt: attempt, Err: err}
		if ctx.Err() != nil {
			lastErr = errors.Join(ctx.Err(), lastErr)
			break
		}
		if attempt == limit {
			break
		}

		reason := "error"
		if errors.Is(err, ErrNodeTimeout) {
			reason = "timeout"
		}
		delay := computeBackoff(attempt-1, o.opts.BackoffBase, o.opts.BackoffMax)
		o.metrics.IncrementRetries(node.ID, reason)
		o.emit(ec, step, node.ID, emit.MsgNodeRetry, map[string]any{
			"attempt":  attempt,
			"reason":   reason,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})
		log.Warn("node attempt failed, retrying", "node_id", node.ID, "attempt", attempt, "limit", limit, "delay", delay, "error", err)

		if serr := o.sleep(ctx, delay); serr != nil {
			lastErr = errors.Join(serr, lastErr)
			break
		}
	}

	sr.Duration = o.now().Sub(start)
	sr.Status = StepFailed
	sr.Error = lastErr.Error()
	o.metrics.RecordStepLatency(node.ID, sr.Duration, StepFailed)
	o.emit(ec, step, node.ID, emit.MsgNodeError, map[string]any{
		"kind":     string(node.Kind),
		"attempts": sr.Attempts,
		"error":    sr.Error,
	})
	log.Error("node failed", "node_id", node.ID, "step", step, "attempts", sr.Attempts, "error", lastErr)
	return ec, sr, lastErr
}

// successorsOf resolves the ids to visit after node succeeded.
func (o *Orchestrator) successorsOf(node *Node, ec *ExecutionContext) []string {
	if node.Kind == KindCondition {
		if branch, ok := ec.Metadata[branchKey(node.ID)].(string); ok && branch != "" {
			return []string{branch}
		}
		return nil
	}
	return o.Successors(node.ID)
}

func (o *Orchestrator) emit(ec *ExecutionContext, step int, nodeID, msg string, meta map[string]any) {
	o.emitter.Emit(emit.Event{
		ExecutionID: ec.ExecutionID,
		SessionID:   ec.SessionID,
		Step:        step,
		NodeID:      nodeID,
		Msg:         msg,
		Time:        o.now(),
		Meta:        meta,
	})
}

// History returns up to limit of the most recent run records, oldest
// first. A non-positive limit returns all of them.
func (o *Orchestrator) History(limit int) []ExecutionRecord {
	return o.history.Recent(limit)
}

// Stats summarizes the graph shape, run outcomes and memory usage.
func (o *Orchestrator) Stats() Stats {
	o.mu.RLock()
	s := Stats{TotalNodes: len(o.nodes)}
	for _, succ := range o.edges {
		s.TotalEdges += len(succ)
	}
	o.mu.RUnlock()

	o.history.summarize(&s)
	s.MemoryEntries = o.memory.Len()
	return s
}

// Clear removes every node and edge and empties the memory store. The run
// history is kept.
func (o *Orchestrator) Clear() {
	o.mu.Lock()
	o.nodes = make(map[string]*Node)
	o.order = nil
	o.edges = make(map[string][]string)
	o.mu.Unlock()

	o.memory.Clear()
	o.metrics.SetMemoryEntries(0)
	o.logger.Info("workflow cleared")
}
