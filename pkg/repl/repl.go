// Package repl implements the interactive calculation prompt: start a
// report, fill in its input windows, and resume until it completes.
package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/uyoufu/uzoncalc/pkg/api"
	"github.com/uyoufu/uzoncalc/pkg/calc"
	"github.com/uyoufu/uzoncalc/pkg/execution"
)

// ReportLookup resolves report metadata. *api.Client implements it.
type ReportLookup interface {
	GetReport(ctx context.Context, reportOid string, opts ...api.CallOption) (*api.Report, error)
}

// Options configures a REPL.
type Options struct {
	Executor *execution.Executor
	// Dialog backs "open" without an argument. Nil outside desktop mode.
	Dialog  execution.FileDialog
	Reports ReportLookup
	Output  io.Writer
	// Width wraps rendered html. Zero disables wrapping.
	Width int
}

// REPL is an interactive prompt bound to one Executor.
type REPL struct {
	exec    *execution.Executor
	dialog  execution.FileDialog
	reports ReportLookup
	output  io.Writer
	width   int
	rl      *readline.Instance
}

// New creates a REPL.
func New(opts Options) *REPL {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	return &REPL{
		exec:    opts.Executor,
		dialog:  opts.Dialog,
		reports: opts.Reports,
		output:  out,
		width:   opts.Width,
	}
}

var commands = []string{"start", "resume", "restart", "set", "windows", "html",
	"status", "open", "report", "inputs save", "inputs load", "help", "quit"}

// Run starts the interactive loop. It returns nil on quit, EOF or ^C.
func (r *REPL) Run(ctx context.Context) error {
	completer := readline.NewPrefixCompleter()
	for _, cmd := range commands {
		completer.Children = append(completer.Children, readline.PcItem(cmd))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          r.buildPrompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		Stdout:          r.output,
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	r.rl = rl
	defer rl.Close()

	fmt.Fprintf(r.output, "uzoncalc: %s\n", r.sourceLabel())
	fmt.Fprintf(r.output, "Type 'help' for available commands, 'start' to begin.\n\n")

	for {
		rl.SetPrompt(r.buildPrompt())
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return err
		}
		if r.Exec(ctx, line) {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Exec runs one command line and reports whether the REPL should exit.
func (r *REPL) Exec(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "start", "s":
		r.report(r.handleStart(ctx))
	case "resume", "r", "next", "n":
		r.report(r.handleResume(ctx))
	case "restart", "R":
		r.report(r.handleRestart(ctx))
	case "set":
		r.report(r.handleSet(rest))
	case "windows", "w":
		r.handleWindows()
	case "html":
		r.handleHTML()
	case "status", "st":
		r.handleStatus()
	case "open", "o":
		r.report(r.handleOpen(ctx, rest))
	case "report":
		r.report(r.handleReport(ctx, rest))
	case "inputs":
		r.report(r.handleInputs(rest))
	case "help", "?":
		r.handleHelp()
	case "quit", "q", "exit":
		fmt.Fprintf(r.output, "Bye.\n")
		return true
	default:
		fmt.Fprintf(r.output, "Unknown command: %q. Type 'help' for available commands.\n", cmd)
	}
	return false
}

func (r *REPL) report(err error) {
	if err != nil {
		fmt.Fprintf(r.output, "Error: %v\n", err)
	}
}

func (r *REPL) sourceLabel() string {
	src := r.exec.Source()
	switch {
	case src.DisplayName != "":
		return src.DisplayName
	case src.ReportOid != "":
		return "report " + src.ReportOid
	case src.FilePath != "":
		return calc.DisplayName(src.FilePath)
	default:
		return "no report selected"
	}
}

// buildPrompt creates the prompt string: uzoncalc[name | state]>
func (r *REPL) buildPrompt() string {
	res := r.exec.Result()
	var state string
	switch {
	case res.ExecutionID == "":
		state = "idle"
	case res.IsCompleted:
		state = "done"
	default:
		state = fmt.Sprintf("%d windows", len(res.Windows))
	}
	return fmt.Sprintf("uzoncalc[%s | %s]> ", r.sourceLabel(), state)
}
