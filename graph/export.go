package graph

import (
	"fmt"
	"io"
	"os"
	"time"

	json "github.com/goccy/go-json"
)

// ExportedNode is the serialized form of a node declaration.
type ExportedNode struct {
	Kind         Kind           `json:"node_type"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Parameters   map[string]any `json:"parameters"`
	RetryLimit   int            `json:"retry_count"`
	Timeout      float64        `json:"timeout"`
	Dependencies []string       `json:"dependencies"`
}

// ExportedGraph is the document written by Export.
type ExportedGraph struct {
	Nodes      map[string]ExportedNode `json:"nodes"`
	Edges      map[string][]string     `json:"edges"`
	ExportedAt time.Time               `json:"exported_at"`
}

// Snapshot captures the node and edge declarations. Runtime state such as
// memory and history is not included. Retry limits and timeouts are the
// effective values, defaults applied; timeouts are in seconds.
func (o *Orchestrator) Snapshot() ExportedGraph {
	o.mu.RLock()
	defer o.mu.RUnlock()

	g := ExportedGraph{
		Nodes:      make(map[string]ExportedNode, len(o.nodes)),
		Edges:      make(map[string][]string, len(o.edges)),
		ExportedAt: o.now().UTC(),
	}
	for id, n := range o.nodes {
		retry := n.RetryLimit
		if retry <= 0 {
			retry = o.opts.DefaultRetryLimit
		}
		params := n.Parameters
		if params == nil {
			params = map[string]any{}
		}
		deps := n.Dependencies
		if deps == nil {
			deps = []string{}
		}
		g.Nodes[id] = ExportedNode{
			Kind:         n.Kind,
			Name:         n.displayName(),
			Description:  n.Description,
			Parameters:   params,
			RetryLimit:   retry,
			Timeout:      getNodeTimeout(n, o.opts.DefaultNodeTimeout).Seconds(),
			Dependencies: deps,
		}
	}
	for id, succ := range o.edges {
		g.Edges[id] = append([]string(nil), succ...)
	}
	return g
}

// Export writes the graph declarations to w as indented JSON.
func (o *Orchestrator) Export(w io.Writer) error {
	data, err := json.MarshalIndent(o.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write graph: %w", err)
	}
	return nil
}

// ExportFile writes the graph declarations to path.
func (o *Orchestrator) ExportFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := o.Export(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	o.logger.Info("workflow exported", "path", path)
	return nil
}
