// Package graph provides the workflow execution engine: a directed graph of
// typed nodes executed step by step with retries, timeouts, conditional
// branching and a shared bounded memory store.
package graph

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownNode indicates a reference to a node id that was never declared.
var ErrUnknownNode = errors.New("unknown node")

// ErrDuplicateNode indicates a second declaration of an existing node id.
var ErrDuplicateNode = errors.New("duplicate node")

// ErrNodeTimeout is matched by every *TimeoutError.
var ErrNodeTimeout = errors.New("node attempt timed out")

// ErrInvalidNode is returned when a node declaration is incomplete.
var ErrInvalidNode = errors.New("invalid node")

// GraphError reports graph construction misuse. It is never retried.
//
// Use errors.Is with ErrUnknownNode or ErrDuplicateNode to classify it.
type GraphError struct {
	Op     string
	NodeID string
	Err    error
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.NodeID, e.Err)
}

func (e *GraphError) Unwrap() error { return e.Err }

// TemplateError reports a prompt or key template that referenced a field
// missing from the context data.
type TemplateError struct {
	Template string
	Key      string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %q references missing key %q", e.Template, e.Key)
}

// TimeoutError reports a single attempt that exceeded its node timeout.
type TimeoutError struct {
	NodeID  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("node %s exceeded timeout of %v", e.NodeID, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrNodeTimeout }

// NodeExecutionError wraps the failure of one node attempt.
type NodeExecutionError struct {
	NodeID  string
	Attempt int
	Err     error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s failed on attempt %d: %v", e.NodeID, e.Attempt, e.Err)
}

func (e *NodeExecutionError) Unwrap() error { return e.Err }

// RunAbortedError is the terminal error of a failed run. It wraps the last
// node error, or the context error when the caller cancelled the run.
type RunAbortedError struct {
	ExecutionID string
	Step        int
	NodeID      string
	Attempts    int
	Err         error
}

func (e *RunAbortedError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("run %s aborted at step %d: %v", e.ExecutionID, e.Step, e.Err)
	}
	return fmt.Sprintf("run %s aborted at step %d in node %s after %d attempt(s): %v",
		e.ExecutionID, e.Step, e.NodeID, e.Attempts, e.Err)
}

func (e *RunAbortedError) Unwrap() error { return e.Err }
