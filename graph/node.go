package graph

import (
	"context"
	"time"
)

// Kind tags the behavior a node was built for.
type Kind string

const (
	KindAICall         Kind = "ai_call"
	KindTransform      Kind = "transform"
	KindCondition      Kind = "condition"
	KindMemoryStore    Kind = "memory_store"
	KindMemoryRetrieve Kind = "memory_retrieve"
)

// Valid reports whether k is one of the five declared kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindAICall, KindTransform, KindCondition, KindMemoryStore, KindMemoryRetrieve:
		return true
	}
	return false
}

// Executor is the contract every node implements. Run receives a private
// copy of the run's context and returns the updated context.
//
// Run may be called more than once for the same step when retries are
// configured; executors with external side effects must tolerate that.
type Executor interface {
	Run(ctx context.Context, ec *ExecutionContext) (*ExecutionContext, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, ec *ExecutionContext) (*ExecutionContext, error)

// Run calls f(ctx, ec).
func (f ExecutorFunc) Run(ctx context.Context, ec *ExecutionContext) (*ExecutionContext, error) {
	return f(ctx, ec)
}

// Node is a declared unit of work.
type Node struct {
	ID          string
	Kind        Kind
	Name        string
	Description string
	Exec        Executor

	// Parameters records kind-specific configuration such as templates or
	// branch targets. It is informational and exported with the graph.
	Parameters map[string]any

	// RetryLimit is the total number of attempts. Zero selects the
	// orchestrator default.
	RetryLimit int

	// Timeout bounds each attempt. Zero selects the orchestrator default.
	Timeout time.Duration

	Dependencies []string
}

// NodeOption customizes a node built by one of the typed constructors.
type NodeOption func(*Node)

// WithName sets a display name.
func WithName(name string) NodeOption {
	return func(n *Node) { n.Name = name }
}

// WithDescription sets a description.
func WithDescription(desc string) NodeOption {
	return func(n *Node) { n.Description = desc }
}

// WithRetryLimit sets the total number of attempts.
func WithRetryLimit(limit int) NodeOption {
	return func(n *Node) { n.RetryLimit = limit }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) NodeOption {
	return func(n *Node) { n.Timeout = d }
}

// WithDependencies records informational upstream node ids.
func WithDependencies(ids ...string) NodeOption {
	return func(n *Node) { n.Dependencies = append([]string(nil), ids...) }
}

// WithParameter attaches an extra exported parameter.
func WithParameter(key string, value any) NodeOption {
	return func(n *Node) {
		if n.Parameters == nil {
			n.Parameters = make(map[string]any)
		}
		n.Parameters[key] = value
	}
}

func (n *Node) displayName() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// Metadata key helpers. Every bookkeeping entry a node writes is prefixed
// with its id.
func completedKey(id string) string       { return id + "_completed" }
func errorKey(id string) string           { return id + "_error" }
func branchKey(id string) string          { return id + "_branch" }
func conditionResultKey(id string) string { return id + "_condition_result" }
func responseKey(id string) string        { return id + "_response" }
func storedKey(id string) string          { return id + "_stored_key" }
func retrievedKey(id string) string       { return id + "_retrieved" }
func notFoundKey(id string) string        { return id + "_not_found" }

// BranchKey returns the metadata key under which a condition node records
// the successor it chose.
func BranchKey(nodeID string) string { return branchKey(nodeID) }

// ResponseKey returns the data key under which an AI call node stores its
// response text.
func ResponseKey(nodeID string) string { return responseKey(nodeID) }
