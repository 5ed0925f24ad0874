package graph

import (
	"context"
	"fmt"
	"maps"
	"strings"
)

// AICallFunc sends prompt, with systemPrompt as instructions, to a model
// and returns the response text.
type AICallFunc func(ctx context.Context, prompt, systemPrompt string) (string, error)

// TransformFunc derives new fields from the context data. The returned
// map is merged into the data, replacing existing keys.
type TransformFunc func(ctx context.Context, data map[string]any) (map[string]any, error)

// Predicate decides a condition node's branch.
type Predicate func(data map[string]any) bool

func (o *Orchestrator) declare(id string, kind Kind, exec ExecutorFunc, params map[string]any, opts []NodeOption) error {
	n := &Node{ID: id, Kind: kind, Exec: exec, Parameters: params}
	for _, opt := range opts {
		opt(n)
	}
	return o.Add(n)
}

// AddAICall declares a node that formats promptTemplate against the data,
// calls fn and stores the reply under "<id>_response". The reply is also
// archived in the memory store as "<session>_<id>_response".
func (o *Orchestrator) AddAICall(id string, fn AICallFunc, systemPrompt, promptTemplate string, opts ...NodeOption) error {
	if fn == nil {
		return &GraphError{Op: "declare", NodeID: id, Err: fmt.Errorf("%w: ai call function is required", ErrInvalidNode)}
	}
	params := map[string]any{
		"system_prompt":   systemPrompt,
		"prompt_template": promptTemplate,
		"template_keys":   templateKeys(promptTemplate),
	}
	exec := func(ctx context.Context, ec *ExecutionContext) (*ExecutionContext, error) {
		prompt, err := formatTemplate(promptTemplate, ec.Data)
		if err != nil {
			return nil, err
		}
		resp, err := fn(ctx, prompt, systemPrompt)
		if err != nil {
			return nil, err
		}
		// An abandoned attempt must not archive a late reply.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ec.Data[responseKey(id)] = resp
		ec.Metadata[completedKey(id)] = true
		o.memory.Put(ec.SessionID+"_"+responseKey(id), resp, map[string]any{
			"node_id":   id,
			"timestamp": ec.Timestamp,
		})
		o.metrics.SetMemoryEntries(o.memory.Len())
		return ec, nil
	}
	return o.declare(id, KindAICall, exec, params, opts)
}

// AddTransform declares a node that merges fn's result into the data.
func (o *Orchestrator) AddTransform(id string, fn TransformFunc, opts ...NodeOption) error {
	if fn == nil {
		return &GraphError{Op: "declare", NodeID: id, Err: fmt.Errorf("%w: transform function is required", ErrInvalidNode)}
	}
	exec := func(ctx context.Context, ec *ExecutionContext) (*ExecutionContext, error) {
		out, err := fn(ctx, ec.Data)
		if err != nil {
			return nil, err
		}
		maps.Copy(ec.Data, out)
		ec.Metadata[completedKey(id)] = true
		return ec, nil
	}
	return o.declare(id, KindTransform, exec, map[string]any{}, opts)
}

// AddCondition declares a node that evaluates pred and continues with
// truePath or falsePath only. The boolean result is recorded in metadata
// under "<id>_condition_result" and the chosen id under BranchKey(id).
// Branch targets are not validated; an undeclared target is skipped at
// run time.
func (o *Orchestrator) AddCondition(id string, pred Predicate, truePath, falsePath string, opts ...NodeOption) error {
	if pred == nil {
		return &GraphError{Op: "declare", NodeID: id, Err: fmt.Errorf("%w: predicate is required", ErrInvalidNode)}
	}
	params := map[string]any{"true_path": truePath, "false_path": falsePath}
	exec := func(_ context.Context, ec *ExecutionContext) (*ExecutionContext, error) {
		result := pred(ec.Data)
		branch := falsePath
		if result {
			branch = truePath
		}
		ec.Metadata[conditionResultKey(id)] = result
		ec.Metadata[branchKey(id)] = branch
		ec.Metadata[completedKey(id)] = true
		return ec, nil
	}
	return o.declare(id, KindCondition, exec, params, opts)
}

// AddMemoryStore declares a node that writes the data value at valuePath
// into the memory store under the formatted keyTemplate. valuePath may use
// dots to reach into nested maps.
func (o *Orchestrator) AddMemoryStore(id, keyTemplate, valuePath string, opts ...NodeOption) error {
	params := map[string]any{"key_template": keyTemplate, "value_key": valuePath}
	exec := func(_ context.Context, ec *ExecutionContext) (*ExecutionContext, error) {
		key, err := formatTemplate(keyTemplate, ec.Data)
		if err != nil {
			return nil, err
		}
		value, ok := lookupPath(ec.Data, valuePath)
		if !ok {
			return nil, &TemplateError{Template: valuePath, Key: valuePath}
		}

		o.memory.Put(key, value, map[string]any{
			"node_id":    id,
			"session_id": ec.SessionID,
			"timestamp":  ec.Timestamp,
		})
		o.metrics.SetMemoryEntries(o.memory.Len())
		ec.Metadata[storedKey(id)] = key
		ec.Metadata[completedKey(id)] = true
		return ec, nil
	}
	return o.declare(id, KindMemoryStore, exec, params, opts)
}

// AddMemoryRetrieve declares a node that reads the formatted keyTemplate
// from the memory store into data[outputKey]. A miss is not an error; it
// sets "<id>_not_found" in metadata.
func (o *Orchestrator) AddMemoryRetrieve(id, keyTemplate, outputKey string, opts ...NodeOption) error {
	params := map[string]any{"key_template": keyTemplate, "output_key": outputKey}
	exec := func(_ context.Context, ec *ExecutionContext) (*ExecutionContext, error) {
		key, err := formatTemplate(keyTemplate, ec.Data)
		if err != nil {
			return nil, err
		}
		if value, ok := o.memory.Get(key); ok {
			ec.Data[outputKey] = value
			ec.Metadata[retrievedKey(id)] = true
		} else {
			ec.Metadata[notFoundKey(id)] = true
		}
		ec.Metadata[completedKey(id)] = true
		return ec, nil
	}
	return o.declare(id, KindMemoryRetrieve, exec, params, opts)
}

// lookupPath returns data[path], or walks dotted segments through nested
// maps when no such key exists.
func lookupPath(data map[string]any, path string) (any, bool) {
	if v, ok := data[path]; ok {
		return v, true
	}
	if !strings.Contains(path, ".") {
		return nil, false
	}
	var cur any = data
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}
