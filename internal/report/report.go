// Package report implements the diagnostic sink spec §6 describes: a
// mutable buffer that the parser, binder and runner append human-readable
// messages to, each carrying an optional source span. Grounded on
// original_source/src/report.c's report_fmt_va/report_source: that C
// original writes ANSI-colored headers straight into a DString; this port
// keeps the same three severities and position-carrying messages but
// returns a structured Report a CLI can render however it likes.
package report

import (
	"fmt"
	"strings"
)

// Severity classifies one diagnostic entry.
type Severity int

const (
	Note Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Note:
		return "NOTE"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Span is a source location a diagnostic is attached to: a byte offset and
// length, plus the line range it covers. Zero value means "no location".
type Span struct {
	Offset    int
	Length    int
	FirstLine int
	LastLine  int
}

// Entry is one line of the report.
type Entry struct {
	Severity Severity
	Message  string
	Span     Span
}

// Report accumulates diagnostics for a single db_run call: one Report per
// batch of statements, reset between calls rather than reused across them.
type Report struct {
	entries []Entry
}

// New returns an empty report.
func New() *Report { return &Report{} }

func (r *Report) add(sev Severity, span Span, format string, args ...any) {
	r.entries = append(r.entries, Entry{Severity: sev, Message: fmt.Sprintf(format, args...), Span: span})
}

// Notef appends an informational entry.
func (r *Report) Notef(span Span, format string, args ...any) { r.add(Note, span, format, args...) }

// Warnf appends a warning entry.
func (r *Report) Warnf(span Span, format string, args ...any) { r.add(Warning, span, format, args...) }

// Errorf appends an error entry. Recoverable syntax/semantic failures (spec
// §7) are reported this way rather than returned as a bare Go error, so a
// single db_run call can report every statement's outcome.
func (r *Report) Errorf(span Span, format string, args ...any) { r.add(Error, span, format, args...) }

// HasErrors reports whether any entry at Error severity was recorded.
func (r *Report) HasErrors() bool {
	for _, e := range r.entries {
		if e.Severity == Error {
			return true
		}
	}
	return false
}

// Entries returns every recorded diagnostic, in the order they were added.
func (r *Report) Entries() []Entry { return r.entries }

// String renders the report the way the C original's DString-based sink
// did: one "SEVERITY: message" line per entry.
func (r *Report) String() string {
	var b strings.Builder
	for _, e := range r.entries {
		b.WriteString(e.Severity.String())
		b.WriteString(": ")
		b.WriteString(e.Message)
		b.WriteByte('\n')
	}
	return b.String()
}
