// Package notify is the user-visible notification channel. Failures and
// completions are reported here rather than returned up through callers.
package notify

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

// Message keys shared by the front-ends.
const (
	MissingReportOidOrPath = "missingReportOidOrPath"
	MissingExecutionID     = "missingExecutionId"
	ResumeExecutionFailed  = "resumeExecutionFailed"
	CalculationCompleted   = "calculationCompleted"
	InvalidReportName      = "pleaseInputCalcReportName"
	SaveSucceeded          = "saveSucceeded"
)

var messages = map[string]string{
	MissingReportOidOrPath: "No report id or local file selected",
	MissingExecutionID:     "No execution to resume",
	ResumeExecutionFailed:  "Failed to resume the calculation",
	CalculationCompleted:   "Calculation completed",
	InvalidReportName:      "Report name must start with a letter or underscore and contain only letters, digits and underscores",
	SaveSucceeded:          "Saved",
}

// Text resolves a message key. Unknown keys are returned unchanged so
// free-form text can be passed through.
func Text(key string) string {
	if msg, ok := messages[key]; ok {
		return msg
	}
	return key
}

// Notifier receives user-facing notifications.
type Notifier interface {
	Success(msg string)
	Error(msg string)
	Info(msg string)
}

// Console prints coloured notifications to a writer.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole returns a Console writing to w, or stderr when w is nil.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stderr
	}
	return &Console{out: w}
}

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
)

func (c *Console) Success(msg string) { c.print(successColor, "✓", msg) }
func (c *Console) Error(msg string)   { c.print(errorColor, "✗", msg) }
func (c *Console) Info(msg string)    { c.print(infoColor, "•", msg) }

func (c *Console) print(col *color.Color, glyph, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, col.Sprint(glyph)+" "+Text(msg))
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Success(string) {}
func (Nop) Error(string)   {}
func (Nop) Info(string)    {}

// Entry is one recorded notification.
type Entry struct {
	Level   string
	Message string
}

// Recorder keeps notifications in memory. Used by tests and by front-ends
// that render notifications themselves.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Recorder) Success(msg string) { r.add("success", msg) }
func (r *Recorder) Error(msg string)   { r.add("error", msg) }
func (r *Recorder) Info(msg string)    { r.add("info", msg) }

func (r *Recorder) add(level, msg string) {
	r.mu.Lock()
	r.entries = append(r.entries, Entry{Level: level, Message: msg})
	r.mu.Unlock()
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Drain returns and clears the recorded entries.
func (r *Recorder) Drain() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.entries
	r.entries = nil
	return out
}

// Has reports whether a notification with the given level and message was recorded.
func (r *Recorder) Has(level, msg string) bool {
	for _, e := range r.Entries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

// Or returns n, or Nop when n is nil.
func Or(n Notifier) Notifier {
	if n == nil {
		return Nop{}
	}
	return n
}
