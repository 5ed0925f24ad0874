package graph

import "fmt"

// Sequential connects ids into a chain: ids[0] -> ids[1] -> ... .
func (o *Orchestrator) Sequential(ids ...string) error {
	for i := 1; i < len(ids); i++ {
		if err := o.Connect(ids[i-1], ids[i]); err != nil {
			return fmt.Errorf("sequential %d: %w", i, err)
		}
	}
	return nil
}

// Parallel fans start out to every branch and, when merge is not empty,
// joins every branch into merge. All branches run in the same step.
func (o *Orchestrator) Parallel(start string, branches []string, merge string) error {
	for _, b := range branches {
		if err := o.Connect(start, b); err != nil {
			return err
		}
		if merge == "" {
			continue
		}
		if err := o.Connect(b, merge); err != nil {
			return err
		}
	}
	return nil
}
