package lineage

import (
	"fmt"
	"strings"

	"github.com/roach88/mcg/internal/ir"
)

// Narrate renders an explain chain as a short provenance narrative with a
// reproducibility section listing the runs and their inputs.
func Narrate(target string, chain []ir.Edge) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Provenance of %s\n", target)
	if len(chain) == 0 {
		b.WriteString("  (no recorded lineage)\n")
		return b.String()
	}

	for i, e := range chain {
		fmt.Fprintf(&b, "  %d. %s %s %s  [seq %d, run %s]\n", i+1, e.SrcID, e.Relation, e.DstID, e.Seq, e.RunID)
	}

	var runs, inputs []string
	seenRun := map[string]bool{}
	seenInput := map[string]bool{}
	for _, e := range chain {
		if !seenRun[e.RunID] {
			seenRun[e.RunID] = true
			runs = append(runs, e.RunID)
		}
		if e.Relation.IsInput() && !seenInput[e.SrcID] {
			seenInput[e.SrcID] = true
			inputs = append(inputs, e.SrcID)
		}
	}

	b.WriteString("\nReproducibility\n")
	fmt.Fprintf(&b, "  Runs: %s\n", strings.Join(runs, ", "))
	if len(inputs) > 0 {
		fmt.Fprintf(&b, "  Inputs: %s\n", strings.Join(inputs, ", "))
	}
	b.WriteString("  To reproduce: fetch the inputs, re-execute the runs with identical\n")
	b.WriteString("  parameters, and compare the recomputed asset ids.\n")
	return b.String()
}
