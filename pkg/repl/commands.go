package repl

import (
	"context"
	"fmt"

	"github.com/uyoufu/uzoncalc/pkg/execution"
	"github.com/uyoufu/uzoncalc/pkg/inputs"
	"github.com/uyoufu/uzoncalc/pkg/render"
)

// handleStart begins a new session. An existing session must be restarted
// instead so its inputs are carried over.
func (r *REPL) handleStart(ctx context.Context) error {
	if !r.exec.CanStart() {
		fmt.Fprintf(r.output, "A session is already running; use 'restart' to start over.\n")
		return nil
	}
	if err := r.exec.Start(ctx, nil); err != nil {
		return err
	}
	r.showProgress()
	return nil
}

func (r *REPL) handleResume(ctx context.Context) error {
	if r.exec.CanRestart() && !r.exec.CanResume() {
		fmt.Fprintf(r.output, "Calculation already completed; use 'restart' to run it again.\n")
		return nil
	}
	if err := r.exec.Resume(ctx); err != nil {
		return err
	}
	r.showProgress()
	return nil
}

func (r *REPL) handleRestart(ctx context.Context) error {
	if err := r.exec.Restart(ctx); err != nil {
		return err
	}
	r.showProgress()
	return nil
}

// showProgress prints the windows awaiting input, or the report when done.
func (r *REPL) showProgress() {
	res := r.exec.Result()
	if res.IsCompleted {
		r.handleHTML()
		return
	}
	r.handleWindows()
	fmt.Fprintf(r.output, "\nEdit values with 'set Window.field=value', then 'resume'.\n")
}

// handleSet applies a single "Window.field=expr" assignment.
func (r *REPL) handleSet(arg string) error {
	if arg == "" {
		fmt.Fprintf(r.output, "Usage: set <Window.field>=<value>\n")
		return nil
	}
	a, err := inputs.ParseAssignment(arg)
	if err != nil {
		return err
	}
	value := a.Eval(r.exec.InputValues())
	if r.exec.ApplyDefaults(map[string]map[string]any{a.Window: {a.Field: value}}) == 0 {
		return fmt.Errorf("no field %q in window %q", a.Field, a.Window)
	}
	fmt.Fprintf(r.output, "  %s.%s = %s\n", a.Window, a.Field, render.FormatValue(value))
	return nil
}

func (r *REPL) handleWindows() {
	fmt.Fprintln(r.output, render.Windows(r.exec.Result().Windows, r.width))
}

func (r *REPL) handleHTML() {
	res := r.exec.Result()
	if res.HTML == "" {
		fmt.Fprintf(r.output, "No report output yet.\n")
		return
	}
	fmt.Fprintln(r.output, render.HTML(res.HTML, r.width))
}

func (r *REPL) handleStatus() {
	src := r.exec.Source()
	fmt.Fprintf(r.output, "  source:    %s\n", r.sourceLabel())
	if src.ReportOid != "" {
		fmt.Fprintf(r.output, "  report:    %s (silent=%t)\n", src.ReportOid, src.IsSilent)
	}
	if src.FilePath != "" {
		fmt.Fprintf(r.output, "  file:      %s\n", src.FilePath)
	}
	fmt.Fprintf(r.output, "  state:     %s\n", render.Status(r.exec.Result(), r.exec.IsExecuting()))
}

// handleOpen switches to a local report file, from the argument or the
// desktop file dialog.
func (r *REPL) handleOpen(ctx context.Context, arg string) error {
	dialog := r.dialog
	if arg != "" {
		dialog = execution.StaticPath(arg)
	}
	sel := &execution.LocalFileSelector{Dialog: dialog, Executor: r.exec}
	path, reset, err := sel.Select(ctx)
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Fprintf(r.output, "No file selected.\n")
		return nil
	}
	fmt.Fprintf(r.output, "Opened %s\n", path)
	if reset {
		fmt.Fprintf(r.output, "Previous session cleared.\n")
	}
	return nil
}

// handleReport switches to a stored report by oid.
func (r *REPL) handleReport(ctx context.Context, oid string) error {
	if oid == "" {
		fmt.Fprintf(r.output, "Usage: report <oid>\n")
		return nil
	}
	name := oid
	if r.reports != nil {
		rep, err := r.reports.GetReport(ctx, oid)
		if err != nil {
			return err
		}
		name = rep.Name
	}
	r.exec.SetReport(oid, name)
	fmt.Fprintf(r.output, "Selected report %s\n", name)
	return nil
}

// handleInputs saves or loads the current input values.
func (r *REPL) handleInputs(arg string) error {
	var sub, path string
	if n, _ := fmt.Sscan(arg, &sub, &path); n < 2 {
		fmt.Fprintf(r.output, "Usage: inputs save|load <file>\n")
		return nil
	}
	switch sub {
	case "save":
		if err := inputs.WriteFile(path, r.exec.InputValues()); err != nil {
			return err
		}
		fmt.Fprintf(r.output, "Saved inputs to %s\n", path)
	case "load":
		d, err := inputs.LoadFile(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.output, "Applied %d values from %s\n", r.exec.ApplyDefaults(d), path)
	default:
		fmt.Fprintf(r.output, "Usage: inputs save|load <file>\n")
	}
	return nil
}

func (r *REPL) handleHelp() {
	fmt.Fprintf(r.output, `Commands:
  start, s                 Start the selected report
  resume, r                Resume with the current input values
  restart, R               Start over, keeping the current input values
  set <Window.field>=<v>   Set an input value (expressions allowed)
  windows, w               Show input windows
  html                     Show the rendered report
  status, st               Show source and execution state
  open [path]              Run a local report file (dialog when no path)
  report <oid>             Run a stored report
  inputs save|load <file>  Save or load input values (yaml or json)
  help, ?                  Show this help
  quit, q                  Exit
`)
}
