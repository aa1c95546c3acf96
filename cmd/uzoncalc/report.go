package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/uyoufu/uzoncalc/pkg/api"
	"github.com/uyoufu/uzoncalc/pkg/calc"
	"github.com/uyoufu/uzoncalc/pkg/editor"
	"github.com/uyoufu/uzoncalc/pkg/execution"
	"github.com/uyoufu/uzoncalc/pkg/signal"
)

var outputJSON bool

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printValue writes v as YAML, or JSON with --json.
func printValue(w io.Writer, v any) error {
	if outputJSON {
		return writeJSON(w, v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// --- report ---

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Manage calculation reports",
}

var reportGetCmd = &cobra.Command{
	Use:   "get <report-oid>",
	Short: "Show a report's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newClient(consoleNotifier()).GetReport(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printValue(cmd.OutOrStdout(), r)
	},
}

var (
	reportCategory int64
	reportFilter   string
	reportSkip     int
	reportLimit    int
)

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := newClient(consoleNotifier()).ListReports(cmd.Context(), api.ReportFilter{
			CategoryID: reportCategory,
			Filter:     reportFilter,
			Pagination: api.Pagination{Skip: reportSkip, Limit: reportLimit, SortBy: "id", Descending: true},
		})
		if err != nil {
			return err
		}
		if outputJSON {
			return writeJSON(cmd.OutOrStdout(), page)
		}
		for _, r := range page.Items {
			fmt.Fprintf(cmd.OutOrStdout(), "%-26s %s\n", r.Oid, r.Name)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "(%d-%d of %d)\n", page.Skip+min(1, len(page.Items)), page.Skip+len(page.Items), page.Total)
		return nil
	},
}

var reportCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count reports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := newClient(consoleNotifier()).CountReports(cmd.Context(), reportCategory, reportFilter)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

var (
	saveName     string
	saveOid      string
	saveCategory string
	saveAs       bool
	saveRun      bool
)

var reportSaveCmd = &cobra.Command{
	Use:   "save <file.py>",
	Short: "Save report source to the server, optionally running it afterwards",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportSave,
}

func runReportSave(cmd *cobra.Command, args []string) error {
	if saveAs && saveRun {
		return fmt.Errorf("--save-as and --run cannot be combined: the draft no longer points at the saved report")
	}
	code, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	name := saveName
	if name == "" {
		name = calc.Stem(args[0])
	}

	ctx := cmd.Context()
	n := consoleNotifier()
	client := newClient(n)
	draft := &editor.Draft{Name: name, Code: string(code), ReportOid: saveOid, CategoryOid: saveCategory}
	saver := &editor.Saver{API: client, Notifier: n, Logger: logger, SaveAs: saveAs}

	if !saveRun {
		if _, err := saver.Save(ctx, draft); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), draft.ReportOid)
		return nil
	}

	start := signal.New()
	started, stop := start.Subscribe()
	defer stop()
	e := execution.New(client, execution.WithNotifier(n), execution.WithLogger(logger))
	runner := &editor.Runner{Saver: saver, Executing: e.IsExecuting, StartSignal: start}
	if _, err := runner.Run(ctx, draft); err != nil {
		return err
	}

	select {
	case <-started:
	default:
		return nil
	}
	e.SetReport(draft.ReportOid, draft.Name)
	if err := e.Start(ctx, nil); err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), e.Result())
	return nil
}

// --- category ---

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Manage report categories",
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cats, err := newClient(consoleNotifier()).ListCategories(cmd.Context())
		if err != nil {
			return err
		}
		if outputJSON {
			return writeJSON(cmd.OutOrStdout(), cats)
		}
		for _, c := range cats {
			fmt.Fprintf(cmd.OutOrStdout(), "%-26s %3d  %s\n", c.Oid, c.Order, c.Name)
		}
		return nil
	},
}

var (
	categoryName        string
	categoryOrder       int
	categoryDescription string
)

var categoryCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(consoleNotifier()).CreateCategory(cmd.Context(), args[0], categoryOrder, categoryDescription)
		if err != nil {
			return err
		}
		return printValue(cmd.OutOrStdout(), c)
	},
}

var categoryUpdateCmd = &cobra.Command{
	Use:   "update <category-oid>",
	Short: "Update a category's name, order or description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields := map[string]any{}
		if cmd.Flags().Changed("name") {
			fields["name"] = categoryName
		}
		if cmd.Flags().Changed("order") {
			fields["order"] = categoryOrder
		}
		if cmd.Flags().Changed("description") {
			fields["description"] = categoryDescription
		}
		if len(fields) == 0 {
			return fmt.Errorf("nothing to update: pass --name, --order or --description")
		}
		c, err := newClient(consoleNotifier()).UpdateCategory(cmd.Context(), args[0], fields)
		if err != nil {
			return err
		}
		return printValue(cmd.OutOrStdout(), c)
	},
}

var categoryDeleteCmd = &cobra.Command{
	Use:   "delete <category-oid>",
	Short: "Delete a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient(consoleNotifier()).DeleteCategory(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Print results as JSON")

	for _, c := range []*cobra.Command{reportListCmd, reportCountCmd} {
		c.Flags().Int64Var(&reportCategory, "category", 0, "Only reports in this category id")
		c.Flags().StringVar(&reportFilter, "filter", "", "Name filter")
	}
	reportListCmd.Flags().IntVar(&reportSkip, "skip", 0, "Reports to skip")
	reportListCmd.Flags().IntVar(&reportLimit, "limit", 20, "Reports per page")

	reportSaveCmd.Flags().StringVar(&saveName, "name", "", "Report name (default: the file name without extension)")
	reportSaveCmd.Flags().StringVar(&saveOid, "oid", "", "Existing report oid to overwrite")
	reportSaveCmd.Flags().StringVar(&saveCategory, "category", "", "Category oid for a new report")
	reportSaveCmd.Flags().BoolVar(&saveAs, "save-as", false, "Detach the draft after saving so the next save creates a new report")
	reportSaveCmd.Flags().BoolVar(&saveRun, "run", false, "Start the calculation after a successful save")

	reportCmd.AddCommand(reportGetCmd, reportListCmd, reportCountCmd, reportSaveCmd)

	categoryCreateCmd.Flags().IntVar(&categoryOrder, "order", 0, "Sort order")
	categoryCreateCmd.Flags().StringVar(&categoryDescription, "description", "", "Description")
	categoryUpdateCmd.Flags().StringVar(&categoryName, "name", "", "New name")
	categoryUpdateCmd.Flags().IntVar(&categoryOrder, "order", 0, "New sort order")
	categoryUpdateCmd.Flags().StringVar(&categoryDescription, "description", "", "New description")
	categoryCmd.AddCommand(categoryListCmd, categoryCreateCmd, categoryUpdateCmd, categoryDeleteCmd)

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(categoryCmd)
}
