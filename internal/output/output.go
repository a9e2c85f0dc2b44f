// Package output renders CLI messages, tables and status colours.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/joescharf/tracker/internal/models"
)

// UI writes prefixed messages. Info, Success and VerboseLog go to Out;
// Warning, Error and DryRunMsg go to ErrOut.
type UI struct {
	Verbose bool
	DryRun  bool
	Out     io.Writer
	ErrOut  io.Writer
}

// New creates a UI on stdout and stderr.
func New() *UI {
	return &UI{Out: os.Stdout, ErrOut: os.Stderr}
}

var (
	cyan   = color.New(color.FgHiCyan).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	red    = color.New(color.FgHiRed).SprintFunc()
	blue   = color.New(color.FgHiBlue).SprintFunc()
)

// Message prefixes.
var (
	infoMark    = blue("i")
	successMark = green("✓")
	warningMark = yellow("⚠")
	errorMark   = red("✗")
	verboseMark = blue("  →")
)

// statusPalette colours issue and action statuses. "completed" is shared.
var statusPalette = map[string]func(...any) string{
	string(models.IssueStatusCurrent):     yellow,
	string(models.ActionStatusInProgress): yellow,
	string(models.IssueStatusParked):      cyan,
	string(models.ActionStatusPending):    cyan,
	string(models.IssueStatusCompleted):   green,
}

// Cyan highlights names, emails and headings.
func Cyan(s string) string { return cyan(s) }

// StatusColor returns status coloured by its state. Unknown values are
// returned unchanged.
func StatusColor(status string) string {
	if paint, ok := statusPalette[strings.ToLower(status)]; ok {
		return paint(status)
	}
	return status
}

// PriorityColor colours label by priority: 1 and 2 red, 3 yellow, 4 and 5
// plain.
func PriorityColor(priority int, label string) string {
	switch {
	case priority <= 2:
		return red(label)
	case priority == 3:
		return yellow(label)
	default:
		return label
	}
}

// Overdue marks s red when overdue is set.
func Overdue(s string, overdue bool) string {
	if overdue {
		return red(s)
	}
	return s
}

func line(w io.Writer, mark, format string, a []any) {
	fmt.Fprintf(w, "%s %s\n", mark, fmt.Sprintf(format, a...))
}

func (u *UI) Info(format string, a ...any)    { line(u.Out, infoMark, format, a) }
func (u *UI) Success(format string, a ...any) { line(u.Out, successMark, format, a) }
func (u *UI) Warning(format string, a ...any) { line(u.ErrOut, warningMark, format, a) }
func (u *UI) Error(format string, a ...any)   { line(u.ErrOut, errorMark, format, a) }

// VerboseLog prints only with --verbose.
func (u *UI) VerboseLog(format string, a ...any) {
	if u.Verbose {
		line(u.Out, verboseMark, format, a)
	}
}

// DryRunMsg reports a skipped write. It prints only with --dry-run.
func (u *UI) DryRunMsg(format string, a ...any) {
	if u.DryRun {
		u.Warning("[DRY-RUN] "+format, a...)
	}
}

// Table returns a borderless, left-aligned table on Out with headers set.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}
