package graph

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// getNodeTimeout resolves the attempt timeout: the node's own value, then
// the orchestrator default. Zero means unbounded.
func getNodeTimeout(node *Node, defaultTimeout time.Duration) time.Duration {
	if node != nil && node.Timeout > 0 {
		return node.Timeout
	}
	if defaultTimeout > 0 {
		return defaultTimeout
	}
	return 0
}

type attemptResult struct {
	ec  *ExecutionContext
	err error
}

// executeNodeWithTimeout runs one attempt of node against ec.
//
// The attempt runs on its own goroutine so an executor that ignores ctx
// still cannot hold the run past its timeout. An abandoned attempt keeps
// working on its private copy of the context and its result is discarded.
func executeNodeWithTimeout(ctx context.Context, node *Node, ec *ExecutionContext, timeout time.Duration) (*ExecutionContext, error) {
	if timeout <= 0 {
		return runNode(ctx, node, ec)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		out, err := runNode(attemptCtx, node, ec)
		done <- attemptResult{ec: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{NodeID: node.ID, Timeout: timeout}
		}
		return r.ec, r.err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, &TimeoutError{NodeID: node.ID, Timeout: timeout}
	}
}

// runNode calls the executor, converting a panic into an error.
func runNode(ctx context.Context, node *Node, ec *ExecutionContext) (out *ExecutionContext, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic in node %s: %v", node.ID, r)
		}
	}()
	out, err = node.Exec.Run(ctx, ec)
	if err != nil {
		return out, err
	}
	return adopt(out, ec), nil
}

// adopt makes out usable as the run's context: nil maps are replaced and
// the run identity is taken from in, whatever the executor returned.
func adopt(out, in *ExecutionContext) *ExecutionContext {
	if out == nil {
		return in
	}
	if out.Data == nil {
		out.Data = make(map[string]any)
	}
	if out.Metadata == nil {
		out.Metadata = make(map[string]any)
	}
	out.SessionID = in.SessionID
	out.ExecutionID = in.ExecutionID
	out.Timestamp = in.Timestamp
	return out
}
