package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/felixgeelhaar/nodeprep/internal/domain/compiler"
	"github.com/felixgeelhaar/nodeprep/internal/domain/execution"
)

var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "#40a02b", Dark: "#a6e3a1"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#df8e1d", Dark: "#f9e2af"}
	colorError   = lipgloss.AdaptiveColor{Light: "#d20f39", Dark: "#f38ba8"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6c6f85", Dark: "#6c7086"}
	colorPrimary = lipgloss.AdaptiveColor{Light: "#1e66f5", Dark: "#89b4fa"}
)

type styles struct {
	title  lipgloss.Style
	status map[execution.Status]lipgloss.Style
	muted  lipgloss.Style
	fail   lipgloss.Style
}

func newStyles(styled bool) styles {
	if !styled {
		plain := lipgloss.NewStyle()
		return styles{title: plain, status: map[execution.Status]lipgloss.Style{}, muted: plain, fail: plain}
	}
	return styles{
		title: lipgloss.NewStyle().Bold(true).Foreground(colorPrimary),
		status: map[execution.Status]lipgloss.Style{
			execution.StatusApplied:    lipgloss.NewStyle().Foreground(colorSuccess),
			execution.StatusSkipped:    lipgloss.NewStyle().Foreground(colorMuted),
			execution.StatusWouldApply: lipgloss.NewStyle().Foreground(colorWarning),
			execution.StatusFailed:     lipgloss.NewStyle().Bold(true).Foreground(colorError),
			execution.StatusAborted:    lipgloss.NewStyle().Foreground(colorWarning),
		},
		muted: lipgloss.NewStyle().Foreground(colorMuted),
		fail:  lipgloss.NewStyle().Bold(true).Foreground(colorError),
	}
}

var statusSymbols = map[execution.Status]string{
	execution.StatusApplied:    "✓",
	execution.StatusSkipped:    "=",
	execution.StatusWouldApply: "~",
	execution.StatusFailed:     "✗",
	execution.StatusAborted:    "-",
	execution.StatusPending:    " ",
}

// Title returns the display form of a status, e.g. "Would-Apply".
func Title(s execution.Status) string {
	return cases.Title(language.English).String(s.String())
}

// Render writes a human-readable summary. Colors are used only when styled
// is true.
func (r *Report) Render(w io.Writer, styled bool) error {
	st := newStyles(styled)
	var b strings.Builder

	heading := fmt.Sprintf("nodeprep %s run %s", r.Role, r.RunID)
	if r.DryRun {
		heading += " (dry run)"
	}
	b.WriteString(st.title.Render(heading))
	b.WriteString("\n\n")

	width := 0
	for _, res := range r.Results {
		if n := len(res.StepID().String()); n > width {
			width = n
		}
	}

	for _, res := range r.Results {
		status := res.Status()
		label := fmt.Sprintf("%s %-11s", statusSymbols[status], Title(status))
		if s, ok := st.status[status]; ok {
			label = s.Render(label)
		}
		fmt.Fprintf(&b, "  %s %-*s  %s\n", label, width, res.StepID().String(), st.muted.Render(oneLine(res.Detail())))
	}

	b.WriteString("\n")
	var counts []string
	for _, s := range execution.Statuses {
		if n := r.Count(s); n > 0 {
			counts = append(counts, fmt.Sprintf("%s %d", Title(s), n))
		}
	}
	if len(counts) == 0 {
		counts = append(counts, "no steps")
	}
	fmt.Fprintf(&b, "%s in %s\n", strings.Join(counts, ", "), r.Elapsed.Round(time.Millisecond))

	if f := r.FirstFailure; f != nil {
		header := "First failure: " + f.StepID
		if f.Code != "" {
			header += " [" + f.Code + "]"
		}
		b.WriteString("\n" + st.fail.Render(header) + "\n")
		fmt.Fprintf(&b, "  %s\n", f.Detail)
		if f.LogPath != "" {
			fmt.Fprintf(&b, "  Output captured in %s\n", f.LogPath)
		}
	} else if r.Cancelled {
		b.WriteString("\n" + st.fail.Render("Run cancelled before all steps ran") + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

type jsonStep struct {
	StepID     string    `json:"step_id"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	Changed    bool      `json:"changed"`
	Code       string    `json:"code,omitempty"`
	Error      string    `json:"error,omitempty"`
	LogPath    string    `json:"log_path,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

type jsonReport struct {
	RunID        string         `json:"run_id"`
	Role         string         `json:"role"`
	DryRun       bool           `json:"dry_run"`
	Success      bool           `json:"success"`
	Cancelled    bool           `json:"cancelled,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	ElapsedMS    int64          `json:"elapsed_ms"`
	Counts       map[string]int `json:"counts"`
	FirstFailure *Failure       `json:"first_failure,omitempty"`
	Steps        []jsonStep     `json:"steps"`
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	out := jsonReport{
		RunID:        r.RunID,
		Role:         r.Role,
		DryRun:       r.DryRun,
		Success:      r.Success(),
		Cancelled:    r.Cancelled,
		StartedAt:    r.StartedAt,
		ElapsedMS:    r.Elapsed.Milliseconds(),
		Counts:       make(map[string]int, len(r.Counts)),
		FirstFailure: r.FirstFailure,
		Steps:        make([]jsonStep, 0, len(r.Results)),
	}
	for s, n := range r.Counts {
		out.Counts[s.String()] = n
	}
	for _, res := range r.Results {
		step := jsonStep{
			StepID:     res.StepID().String(),
			Status:     res.Status().String(),
			Detail:     res.Detail(),
			Changed:    res.Changed(),
			LogPath:    res.LogPath(),
			StartedAt:  res.Timestamp(),
			DurationMS: res.Duration().Milliseconds(),
		}
		if err := res.Error(); err != nil {
			step.Error = err.Error()
			step.Code = compiler.CodeOf(err)
		}
		out.Steps = append(out.Steps, step)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func oneLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
