package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/uyoufu/uzoncalc/pkg/execution"
	"github.com/uyoufu/uzoncalc/pkg/notify"
	"github.com/uyoufu/uzoncalc/pkg/repl"
	"github.com/uyoufu/uzoncalc/pkg/tui"
	"github.com/uyoufu/uzoncalc/pkg/watch"
)

// --- repl ---

var replSilent bool

var replCmd = &cobra.Command{
	Use:   "repl [report-oid|file.py]",
	Short: "Interactive calculation prompt",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		n := consoleNotifier()
		client := newClient(n)
		var arg string
		if len(args) == 1 {
			arg = args[0]
		}
		src, err := sourceFor(ctx, client, arg)
		if err != nil {
			return err
		}
		src.IsSilent = replSilent || cfg.Silent

		e := execution.New(client, execution.WithNotifier(n), execution.WithLogger(logger), execution.WithSource(src))
		r := repl.New(repl.Options{
			Executor: e,
			Dialog:   dialogFor(client),
			Reports:  client,
			Output:   cmd.OutOrStdout(),
		})
		return r.Run(ctx)
	},
}

// --- tui ---

var (
	tuiSilent    bool
	tuiAutoStart bool
)

var tuiCmd = &cobra.Command{
	Use:   "tui [report-oid|file.py]",
	Short: "Full-screen calculation viewer",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		// Console output would corrupt the alternate screen; notifications
		// are shown in the status line instead.
		notes := &notify.Recorder{}
		client := newClient(notes)
		var arg string
		if len(args) == 1 {
			arg = args[0]
		}
		src, err := sourceFor(ctx, client, arg)
		if err != nil {
			return err
		}
		src.IsSilent = tuiSilent || cfg.Silent

		e := execution.New(client, execution.WithNotifier(notes), execution.WithLogger(logger), execution.WithSource(src))
		return tui.Run(ctx, tui.Config{
			Executor:  e,
			Dialog:    dialogFor(client),
			Notes:     notes,
			AutoStart: tuiAutoStart && !src.Empty(),
		})
	},
}

// --- watch ---

var (
	watchOverrides overrideFlags
	watchDebounce  time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <file.py>",
	Short: "Re-run a local report file every time it is saved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		n := consoleNotifier()
		client := newClient(n)
		e := execution.New(client, execution.WithNotifier(n), execution.WithLogger(logger))
		defaults, err := watchOverrides.resolve(ctx, e, n)
		if err != nil {
			return err
		}

		w := &watch.Watcher{
			Executor: e,
			Path:     args[0],
			Debounce: watchDebounce,
			Initial:  true,
			Defaults: defaults,
			Logger:   logger,
			OnRun: func(err error) {
				ts := time.Now().Format(time.TimeOnly)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  ✗ %v\n", ts, err)
					return
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", ts, e.Source().DisplayName)
				printResult(cmd.OutOrStdout(), e.Result())
			},
		}
		return w.Run(ctx)
	},
}

// --- open ---

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Pick a local report file with the desktop file dialog and run it interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		n := consoleNotifier()
		client := newClient(n)
		e := execution.New(client, execution.WithNotifier(n), execution.WithLogger(logger))

		sel := &execution.LocalFileSelector{Dialog: dialogFor(client), Executor: e}
		path, _, err := sel.Select(ctx)
		if err != nil {
			return err
		}
		if path == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No file selected.")
			return nil
		}
		return repl.New(repl.Options{
			Executor: e,
			Dialog:   sel.Dialog,
			Reports:  client,
			Output:   cmd.OutOrStdout(),
		}).Run(ctx)
	},
}

func init() {
	replCmd.Flags().BoolVar(&replSilent, "silent", false, "Run without stopping at input windows")
	tuiCmd.Flags().BoolVar(&tuiSilent, "silent", false, "Run without stopping at input windows")
	tuiCmd.Flags().BoolVar(&tuiAutoStart, "start", true, "Start the calculation when the viewer opens")
	watchOverrides.register(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period after a save before re-running")

	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(openCmd)
}
