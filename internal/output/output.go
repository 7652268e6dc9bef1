// Package output provides consistent CLI output formatting.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	scoreStyle   = lipgloss.NewStyle().Faint(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	snippetStyle = lipgloss.NewStyle().PaddingLeft(3)
)

// Writer provides formatted output for the CLI.
// Write errors are intentionally ignored for console output.
type Writer struct {
	out io.Writer
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Header prints a section header.
func (w *Writer) Header(msg string) {
	_, _ = fmt.Fprintln(w.out, headerStyle.Render(msg))
}

// Success prints a success message.
func (w *Writer) Success(format string, args ...any) {
	_, _ = fmt.Fprintln(w.out, successStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Warning prints a warning message.
func (w *Writer) Warning(format string, args ...any) {
	_, _ = fmt.Fprintln(w.out, warnStyle.Render("! "+fmt.Sprintf(format, args...)))
}

// Error prints an error message.
func (w *Writer) Error(format string, args ...any) {
	_, _ = fmt.Fprintln(w.out, errorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

// Plain prints an unstyled line.
func (w *Writer) Plain(format string, args ...any) {
	_, _ = fmt.Fprintf(w.out, format+"\n", args...)
}

// Field prints an aligned key/value line.
func (w *Writer) Field(key string, value any) {
	_, _ = fmt.Fprintf(w.out, "  %-18s %v\n", key+":", value)
}

// Result prints one ranked search result with its scores and snippets.
func (w *Writer) Result(rank int, title string, lexScore, vecScore float64, hasLex, hasVec bool, snippets []string) {
	var scores []string
	if hasLex {
		scores = append(scores, fmt.Sprintf("score=%.3f", lexScore))
	}
	if hasVec {
		scores = append(scores, fmt.Sprintf("vscore=%.3f", vecScore))
	}
	_, _ = fmt.Fprintf(w.out, "%2d. %s %s\n",
		rank,
		titleStyle.Render(title),
		scoreStyle.Render("("+strings.Join(scores, " ")+")"))
	for _, s := range snippets {
		_, _ = fmt.Fprintln(w.out, snippetStyle.Render(s))
	}
}
