package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uyoufu/uzoncalc/pkg/api"
	"github.com/uyoufu/uzoncalc/pkg/calc"
	"github.com/uyoufu/uzoncalc/pkg/config"
	"github.com/uyoufu/uzoncalc/pkg/execution"
	"github.com/uyoufu/uzoncalc/pkg/logging"
	"github.com/uyoufu/uzoncalc/pkg/notify"
	"github.com/uyoufu/uzoncalc/pkg/schema"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var (
	flagConfig  string
	flagServer  string
	flagToken   string
	flagVerbose bool
	flagLogJSON bool
)

// Resolved once per invocation by the root command's pre-run hook.
var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "uzoncalc",
	Short:         "UzonCalc calculation client",
	Long:          "uzoncalc runs UzonCalc calculation reports against a UzonCalc server or the desktop backend.",
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func setup(cmd *cobra.Command) error {
	c, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("server") {
		c.Server = strings.TrimRight(flagServer, "/")
	}
	if cmd.Flags().Changed("token") {
		c.Token = flagToken
	}
	if flagVerbose {
		c.Log.Level = "debug"
	}
	if flagLogJSON {
		c.Log.JSON = true
	}

	l, err := logging.New(logging.Options{Level: c.Log.Level, JSON: c.Log.JSON})
	if err != nil {
		return err
	}
	cfg, logger = c, l
	logger.Debug("configuration loaded",
		zap.String("path", c.Path),
		zap.String("server", c.Server),
		zap.Bool("desktop", c.Desktop))
	return nil
}

// newClient builds an API client that reports failures to n.
func newClient(n notify.Notifier) *api.Client {
	return api.New(api.Options{
		BaseURL:   cfg.Server,
		APIPrefix: cfg.APIPrefix,
		Token:     cfg.Token,
		Timeout:   cfg.Timeout.Duration,
		Notifier:  n,
		Logger:    logger,
		Endpoints: cfg.Endpoints,
		Validate:  cfg.ValidateResponses,
	})
}

func consoleNotifier() notify.Notifier {
	return notify.NewConsole(os.Stderr)
}

// dialogFor returns the desktop file dialog, or nil outside desktop mode.
func dialogFor(c *api.Client) execution.FileDialog {
	if !cfg.Desktop {
		return nil
	}
	return c
}

// sourceFor interprets a command-line argument as a local report file when
// it names an existing file or ends in .py, otherwise as a report oid.
func sourceFor(ctx context.Context, c *api.Client, arg string) (execution.Source, error) {
	if arg == "" {
		return execution.Source{}, nil
	}
	if isLocalFile(arg) {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return execution.Source{}, fmt.Errorf("resolve %s: %w", arg, err)
		}
		return execution.Source{FilePath: abs, DisplayName: calc.DisplayName(abs)}, nil
	}

	src := execution.Source{ReportOid: arg, DisplayName: arg}
	if r, err := c.GetReport(ctx, arg, api.StopNotifyError()); err == nil && r.Name != "" {
		src.DisplayName = r.Name
	} else if err != nil {
		logger.Debug("report lookup failed", zap.String("report", arg), zap.Error(err))
	}
	return src, nil
}

func isLocalFile(arg string) bool {
	if strings.EqualFold(filepath.Ext(arg), ".py") {
		return true
	}
	info, err := os.Stat(arg)
	return err == nil && !info.IsDir()
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of an execution result",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := schema.GenerateExecutionResultJSONSchema()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "uzoncalc %s (build: %s)\n", version, commit)
		server, err := newClient(notify.Nop{}).ServerVersion(cmd.Context())
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "server: unreachable (%s)\n", cfg.Server)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "server: %s (%s)\n", server, cfg.Server)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Path to uzoncalc.yaml (default: discovered from the working directory)")
	pf.StringVar(&flagServer, "server", "", "UzonCalc server URL (overrides config)")
	pf.StringVar(&flagToken, "token", "", "Bearer token (overrides config)")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(&flagLogJSON, "log-json", false, "Log as JSON")

	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}
