package graph

import (
	"fmt"
	"strings"
)

// Visualize renders every node with its successors as plain text.
//
//	Workflow Graph:
//	==================================================
//	[a] Load files (transform)
//	  └─> [b] Check
//
// Condition nodes list their true and false targets instead of edges.
func (o *Orchestrator) Visualize() string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var b strings.Builder
	b.WriteString("Workflow Graph:\n")
	b.WriteString(strings.Repeat("=", 50))
	b.WriteString("\n")

	for _, id := range o.order {
		n := o.nodes[id]
		fmt.Fprintf(&b, "[%s] %s (%s)\n", n.ID, n.displayName(), n.Kind)

		if n.Kind == KindCondition {
			for _, branch := range []string{"true", "false"} {
				target, _ := n.Parameters[branch+"_path"].(string)
				if target == "" {
					continue
				}
				fmt.Fprintf(&b, "  └─(%s)─> [%s] %s\n", branch, target, o.nameOf(target))
			}
		}
		for _, succ := range o.edges[id] {
			fmt.Fprintf(&b, "  └─> [%s] %s\n", succ, o.nameOf(succ))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// nameOf must be called with o.mu held.
func (o *Orchestrator) nameOf(id string) string {
	if n, ok := o.nodes[id]; ok {
		return n.displayName()
	}
	return "(undeclared)"
}
