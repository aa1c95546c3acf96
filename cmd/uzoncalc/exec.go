package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/uyoufu/uzoncalc/pkg/calc"
	"github.com/uyoufu/uzoncalc/pkg/execution"
	"github.com/uyoufu/uzoncalc/pkg/inputs"
	"github.com/uyoufu/uzoncalc/pkg/notify"
	"github.com/uyoufu/uzoncalc/pkg/render"
	"github.com/uyoufu/uzoncalc/pkg/session"
)

// overrideFlags are the input-override flags shared by every command that
// starts or resumes a calculation.
type overrideFlags struct {
	sets     []string
	files    []string
	command  string
	cmdLimit time.Duration
}

func (o *overrideFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&o.sets, "set", nil, "Override an input (Window.field=value), repeatable")
	cmd.Flags().StringArrayVar(&o.files, "inputs", nil, "Load input values from a YAML or JSON file, repeatable")
	cmd.Flags().StringVar(&o.command, "input-cmd", "", "Command that prints input values as JSON or YAML")
	cmd.Flags().DurationVar(&o.cmdLimit, "input-cmd-timeout", 10*time.Second, "Timeout for --input-cmd")
}

// manager builds the input providers in priority order: files, command,
// then --set assignments.
func (o *overrideFlags) manager() (*inputs.Manager, error) {
	m := inputs.NewManager(logger)
	for _, f := range o.files {
		m.Register(inputs.File{Path: f})
	}
	if o.command != "" {
		parts := strings.Fields(o.command)
		if len(parts) == 0 {
			return nil, fmt.Errorf("--input-cmd: empty command")
		}
		m.Register(&inputs.Command{Binary: parts[0], Args: parts[1:], Timeout: o.cmdLimit, Logger: logger})
	}
	if len(o.sets) > 0 {
		as, err := inputs.ParseAssignments(o.sets)
		if err != nil {
			return nil, err
		}
		m.Register(as)
	}
	return m, nil
}

// resolve returns the overrides merged over the executor's current values,
// or nil when no override flag was given.
func (o *overrideFlags) resolve(ctx context.Context, e *execution.Executor, n notify.Notifier) (calc.Defaults, error) {
	m, err := o.manager()
	if err != nil {
		return nil, err
	}
	if m.Len() == 0 {
		return nil, nil
	}
	d, warnings, err := m.Resolve(ctx, e.InputValues())
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		n.Info(w)
	}
	return d, nil
}

// printResult writes the windows awaiting input, or the rendered report
// once the calculation is complete.
func printResult(w io.Writer, res calc.ExecutionResult) {
	if res.HTML != "" {
		fmt.Fprintln(w, render.HTML(res.HTML, 0))
	}
	if !res.IsCompleted && len(res.Windows) > 0 {
		fmt.Fprintln(w, render.Windows(res.Windows, 0))
	}
	fmt.Fprintln(w, render.Status(res, false))
}

// --- run ---

var (
	runOverrides overrideFlags
	runSilent    bool
	runYes       bool
)

var runCmd = &cobra.Command{
	Use:   "run <report-oid|file.py>",
	Short: "Run a calculation, prompting for each input window until it completes",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	n := consoleNotifier()
	client := newClient(n)
	src, err := sourceFor(ctx, client, args[0])
	if err != nil {
		return err
	}
	src.IsSilent = runSilent || cfg.Silent

	e := execution.New(client, execution.WithNotifier(n), execution.WithLogger(logger), execution.WithSource(src))
	defaults, err := runOverrides.resolve(ctx, e, n)
	if err != nil {
		return err
	}
	if err := e.Start(ctx, defaults); err != nil {
		return err
	}

	var rl *readline.Instance
	if !runYes {
		rl, err = readline.NewEx(&readline.Config{InterruptPrompt: "^C", EOFPrompt: "", Stdout: cmd.OutOrStdout()})
		if err != nil {
			return fmt.Errorf("init readline: %w", err)
		}
		defer rl.Close()
	}

	// Overrides are re-applied to every window as it appears.
	for {
		res := e.Result()
		if res.IsCompleted || len(res.Windows) == 0 {
			break
		}
		if defaults != nil {
			e.ApplyDefaults(defaults)
		}
		if rl != nil {
			if err := promptWindows(cmd.OutOrStdout(), rl, e); err != nil {
				return err
			}
		}
		before := len(e.Result().Windows)
		if err := e.Resume(ctx); err != nil {
			return err
		}
		if after := e.Result(); !after.IsCompleted && len(after.Windows) == before {
			return fmt.Errorf("calculation made no progress after resume")
		}
	}
	printResult(cmd.OutOrStdout(), e.Result())
	return nil
}

// promptWindows asks for a value for every visible field of the last
// window. An empty answer keeps the current value.
func promptWindows(w io.Writer, rl *readline.Instance, e *execution.Executor) error {
	res := e.Result()
	last := len(res.Windows) - 1
	win := res.Windows[last]
	fmt.Fprintln(w, render.Windows([]calc.Window{win}, 0))

	for _, f := range win.Fields {
		current := e.Result().Windows[last]
		if ok, err := inputs.Visible(current, f); err == nil && !ok {
			continue
		}
		value := e.InputValues()[win.Title][f.Name]
		rl.SetPrompt(fmt.Sprintf("%s [%s]: ", render.FieldLabel(f), render.FormatValue(value)))
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return context.Canceled
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		a := inputs.Assignment{Window: win.Title, Field: f.Name, Source: line}
		if err := e.SetFieldValue(last, f.Name, a.Eval(e.InputValues())); err != nil {
			return err
		}
	}
	return nil
}

// --- start / resume / restart (persisted sessions) ---

var (
	sessionName     string
	startOverrides  overrideFlags
	resumeOverrides overrideFlags
	startSilent     bool
)

var startCmd = &cobra.Command{
	Use:   "start <report-oid|file.py>",
	Short: "Start a calculation and save the session for a later resume",
	Args:  cobra.ExactArgs(1),
	RunE:  runStart,
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the saved session with its current inputs and any overrides",
	Args:  cobra.NoArgs,
	RunE:  runResume,
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Start the saved session over, keeping its last input values",
	Args:  cobra.NoArgs,
	RunE:  runRestart,
}

func sessionStore() *session.Store {
	return session.NewStore(cfg.SessionDir)
}

// loadExecutor restores the named session into a new Executor.
func loadExecutor(client execution.Backend, n notify.Notifier) (*execution.Executor, error) {
	st, err := sessionStore().Load(sessionName)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, fmt.Errorf("%w; run 'uzoncalc start' first", err)
		}
		return nil, err
	}
	return execution.New(client, execution.WithNotifier(n), execution.WithLogger(logger), execution.WithSnapshot(st.Snapshot)), nil
}

func saveSession(e *execution.Executor) error {
	return sessionStore().Save(sessionName, e.Snapshot())
}

func finish(cmd *cobra.Command, e *execution.Executor) error {
	if err := saveSession(e); err != nil {
		return err
	}
	if outputJSON {
		return writeJSON(cmd.OutOrStdout(), e.Snapshot())
	}
	printResult(cmd.OutOrStdout(), e.Result())
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	n := consoleNotifier()
	client := newClient(n)
	src, err := sourceFor(ctx, client, args[0])
	if err != nil {
		return err
	}
	src.IsSilent = startSilent || cfg.Silent

	e := execution.New(client, execution.WithNotifier(n), execution.WithLogger(logger), execution.WithSource(src))
	defaults, err := startOverrides.resolve(ctx, e, n)
	if err != nil {
		return err
	}
	if err := e.Start(ctx, defaults); err != nil {
		return err
	}
	return finish(cmd, e)
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	n := consoleNotifier()
	e, err := loadExecutor(newClient(n), n)
	if err != nil {
		return err
	}
	overrides, err := resumeOverrides.resolve(ctx, e, n)
	if err != nil {
		return err
	}
	if overrides != nil {
		e.ApplyDefaults(overrides)
	}
	if err := e.Resume(ctx); err != nil {
		return err
	}
	return finish(cmd, e)
}

func runRestart(cmd *cobra.Command, args []string) error {
	n := consoleNotifier()
	e, err := loadExecutor(newClient(n), n)
	if err != nil {
		return err
	}
	if err := e.Restart(cmd.Context()); err != nil {
		return err
	}
	return finish(cmd, e)
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List saved sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		states, err := sessionStore().List()
		if err != nil {
			return err
		}
		if len(states) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No saved sessions.")
			return nil
		}
		for _, st := range states {
			label := st.Snapshot.Source.DisplayName
			if label == "" {
				label = st.Snapshot.Source.ReportOid + st.Snapshot.Source.FilePath
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-24s %-12s %s\n",
				st.Name, label, sessionState(st.Snapshot.Result), st.UpdatedAt.Local().Format(time.DateTime))
		}
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionStore().Delete(args[0])
	},
}

func sessionState(res calc.ExecutionResult) string {
	switch {
	case res.ExecutionID == "":
		return "idle"
	case res.IsCompleted:
		return "completed"
	default:
		return fmt.Sprintf("%d windows", len(res.Windows))
	}
}

func init() {
	runOverrides.register(runCmd)
	runCmd.Flags().BoolVar(&runSilent, "silent", false, "Run without stopping at input windows")
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "Accept current values without prompting")

	startOverrides.register(startCmd)
	startCmd.Flags().BoolVar(&startSilent, "silent", false, "Run without stopping at input windows")
	resumeOverrides.register(resumeCmd)

	for _, c := range []*cobra.Command{startCmd, resumeCmd, restartCmd} {
		c.Flags().StringVar(&sessionName, "session", session.DefaultName, "Session name")
	}

	sessionsCmd.AddCommand(sessionsDeleteCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(sessionsCmd)
}
