package app

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/execution"
	"github.com/felixgeelhaar/nodeprep/internal/domain/platform"
	"github.com/felixgeelhaar/nodeprep/internal/domain/probe"
	"github.com/felixgeelhaar/nodeprep/internal/domain/report"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseFormat validates an --output value.
func ParseFormat(s string) (string, error) {
	switch s {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text or json)", s)
	}
}

// PrintPlan outputs the plan in the given format.
func (n *Nodeprep) PrintPlan(plan *execution.Plan, format string) error {
	if format == FormatJSON {
		return writeJSON(n.out, planJSON(plan))
	}

	summary := plan.Summary()

	n.printf("\nNodeprep Plan\n")
	n.printf("=============\n\n")

	if !plan.HasChanges() {
		n.printf("No changes needed. This node is already provisioned.\n")
		return nil
	}

	n.printf("Steps: %d total, %d to apply, %d satisfied\n\n",
		summary.Total, summary.NeedsApply, summary.Satisfied)

	for _, entry := range plan.Entries() {
		status := "✓"
		if entry.Status() == compiler.StatusNeedsApply {
			status = "+"
		}

		n.printf("  %s %s\n", status, entry.Step().ID().String())

		diff := entry.Diff()
		if !diff.IsEmpty() {
			n.printf("      %s\n", diff.Summary())
		}
		if err := entry.CheckError(); err != nil {
			n.printf("      check: %v\n", err)
		}
	}

	n.printf("\nRun 'nodeprep provision' to execute this plan.\n")
	return nil
}

type planStepJSON struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Status      string   `json:"status"`
	Diff        string   `json:"diff,omitempty"`
	CheckError  string   `json:"check_error,omitempty"`
}

type planOutputJSON struct {
	Total      int            `json:"total"`
	NeedsApply int            `json:"needs_apply"`
	Satisfied  int            `json:"satisfied"`
	Steps      []planStepJSON `json:"steps"`
}

func planJSON(plan *execution.Plan) planOutputJSON {
	summary := plan.Summary()
	out := planOutputJSON{
		Total:      summary.Total,
		NeedsApply: summary.NeedsApply,
		Satisfied:  summary.Satisfied,
		Steps:      make([]planStepJSON, 0, plan.Len()),
	}
	for _, entry := range plan.Entries() {
		step := entry.Step()
		s := planStepJSON{
			ID:          step.ID().String(),
			Description: step.Description(),
			Status:      entry.Status().String(),
		}
		for _, dep := range step.DependsOn() {
			s.DependsOn = append(s.DependsOn, dep.String())
		}
		if d := entry.Diff(); !d.IsEmpty() {
			s.Diff = d.Summary()
		}
		if err := entry.CheckError(); err != nil {
			s.CheckError = err.Error()
		}
		out.Steps = append(out.Steps, s)
	}
	return out
}

// PrintReport outputs a run report. styled enables terminal colors.
func (n *Nodeprep) PrintReport(rep *report.Report, format string, styled bool) error {
	if format == FormatJSON {
		return rep.WriteJSON(n.out)
	}
	return rep.Render(n.out, styled)
}

// PrintChecks outputs preflight results.
func (n *Nodeprep) PrintChecks(checks []platform.Check, format string) error {
	if format == FormatJSON {
		return writeJSON(n.out, checks)
	}
	tw := tabwriter.NewWriter(n.out, 0, 0, 2, ' ', 0)
	for _, c := range checks {
		mark := "✓"
		if !c.Passed {
			mark = "✗"
		}
		_, _ = fmt.Fprintf(tw, "  %s\t%s\t%s\n", mark, c.Name, c.Detail)
	}
	return tw.Flush()
}

// PrintFacts outputs a probe snapshot.
func (n *Nodeprep) PrintFacts(facts probe.Facts, format string) error {
	if format == FormatJSON {
		return writeJSON(n.out, facts.All())
	}
	tw := tabwriter.NewWriter(n.out, 0, 0, 2, ' ', 0)
	for _, f := range facts.All() {
		value := f.Value
		if f.Error != "" {
			value = "error: " + f.Error
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", f.Key, value)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printf is a helper that writes to the output writer, ignoring errors.
func (n *Nodeprep) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(n.out, format, args...)
}
