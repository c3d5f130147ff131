package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"calpadsrunner/internal/adapters/registry"
	"calpadsrunner/internal/adapters/runstore"
	"calpadsrunner/internal/adapters/xlsxtemplate"
	"calpadsrunner/internal/core/domain"
	"calpadsrunner/internal/core/ports"
	"calpadsrunner/internal/service"
)

var (
	flagUnits      []string
	flagDate       string
	flagReportType string
	flagFile       string
	flagReport     string
	flagFormat     string
)

func addJobFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&flagUnits, "unit", "u", nil, "org unit short code, name or key; repeatable, \"*\" for all")
	cmd.Flags().StringVar(&flagDate, "date", "", "run date used in artifact names (default today)")
}

func init() {
	runCmd := &cobra.Command{
		Use:   "run <manifest.yaml>",
		Short: "Run every job in a manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := LoadManifest(args[0])
			if err != nil {
				return err
			}
			reqs, err := m.Requests()
			if err != nil {
				return err
			}
			date, err := m.RunDate(time.Now())
			if err != nil {
				return err
			}
			return runBatch(cmd.Context(), reqs, date)
		},
	}

	uploadCmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a data file for one or more units",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSingle(cmd, domain.TaskUpload, domain.Params{FilePath: flagFile, ReportType: strings.ToUpper(flagReportType)})
		},
	}
	addJobFlags(uploadCmd)
	uploadCmd.Flags().StringVarP(&flagFile, "file", "f", "", "file to upload")
	uploadCmd.Flags().StringVarP(&flagReportType, "report-type", "t", "", "file type code, e.g. SENR")
	_ = uploadCmd.MarkFlagRequired("file")
	_ = uploadCmd.MarkFlagRequired("report-type")

	extractCmd := &cobra.Command{
		Use:   "extract",
		Short: "Request an ODS extract",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSingle(cmd, domain.TaskExtractRequest, domain.Params{ReportType: strings.ToUpper(flagReportType)})
		},
	}
	addJobFlags(extractCmd)
	extractCmd.Flags().StringVarP(&flagReportType, "report-type", "t", "", "extract record type, e.g. SDEM")
	_ = extractCmd.MarkFlagRequired("report-type")

	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Download the most recent extract",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSingle(cmd, domain.TaskExtractDownload, domain.Params{})
		},
	}
	addJobFlags(downloadCmd)

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Export a report from the report viewer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSingle(cmd, domain.TaskReportExport, domain.Params{ReportURL: flagReport, Format: flagFormat})
		},
	}
	addJobFlags(reportCmd)
	reportCmd.Flags().StringVarP(&flagReport, "report", "r", "", "named report (see config) or report URL")
	reportCmd.Flags().StringVar(&flagFormat, "format", "CSV", "export format, e.g. CSV or EXCELOPENXML")
	_ = reportCmd.MarkFlagRequired("report")

	rootCmd.AddCommand(runCmd, uploadCmd, extractCmd, downloadCmd, reportCmd,
		newScheduleCmd(), newHistoryCmd(), newOrgsCmd(), newTemplateCmd())
}

func runSingle(cmd *cobra.Command, task domain.TaskType, params domain.Params) error {
	reqs, err := unitRequests(task, flagUnits, params)
	if err != nil {
		return err
	}
	date, err := parseRunDate(flagDate, time.Now())
	if err != nil {
		return err
	}
	return runBatch(cmd.Context(), reqs, date)
}

func newScheduleCmd() *cobra.Command {
	var expr string
	cmd := &cobra.Command{
		Use:   "schedule <manifest.yaml>",
		Short: "Run a manifest on a cron schedule",
		Long: `Run a manifest on a cron schedule until interrupted. Each tick opens a
fresh browser session. A tick that fires while the previous batch is still
running is skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := LoadManifest(args[0])
			if err != nil {
				return err
			}
			reqs, err := m.Requests()
			if err != nil {
				return err
			}
			sched, err := service.NewScheduler(expr, func(ctx context.Context) error {
				date, err := m.RunDate(time.Now())
				if err != nil {
					return err
				}
				return runBatch(ctx, reqs, date)
			}, logger)
			if err != nil {
				return err
			}
			return sched.Start(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&expr, "cron", "", "cron expression, e.g. \"0 6 * * 1-5\" or \"@daily\"")
	_ = cmd.MarkFlagRequired("cron")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var limit int
	var runID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs, or the jobs of one run",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := runstore.New(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			if runID != "" {
				rows, err := store.Results(cmd.Context(), runID)
				if err != nil {
					return err
				}
				table := tablewriter.NewWriter(os.Stdout)
				table.SetHeader([]string{"#", "Unit", "Task", "Artifact", "Outcome", "Attempts", "Error"})
				for _, r := range rows {
					table.Append([]string{
						fmt.Sprintf("%d", r.Seq+1), r.Unit, r.Task, r.Artifact, r.Outcome,
						fmt.Sprintf("%d", r.Attempts), r.ErrorKind,
					})
				}
				table.Render()
				return nil
			}

			runs, err := store.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printRuns(runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "show the jobs of this run")
	return cmd
}

func printRuns(runs []ports.RunSummary) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Run", "Started", "Duration", "Succeeded", "Failed"})
	for _, r := range runs {
		table.Append([]string{
			r.RunID,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String(),
			fmt.Sprintf("%d", r.Succeeded),
			fmt.Sprintf("%d", r.Failed),
		})
	}
	table.Render()
}

func newOrgsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orgs [query]",
		Short: "List registry units, or resolve one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Load(cfg.Registry.Path)
			if err != nil {
				return err
			}
			units := reg.All()
			if len(args) == 1 {
				u, err := reg.Resolve(args[0])
				if err != nil {
					return err
				}
				units = []domain.OrgUnit{u}
			}
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Short", "Name", "LEA", "Context Key"})
			for _, u := range units {
				table.Append([]string{u.Short, u.Name, u.NumericKey, u.ContextKey})
			}
			table.Render()
			return nil
		},
	}
}

func newTemplateCmd() *cobra.Command {
	var (
		templatePath string
		label        string
		outDir       string
		delimiter    string
	)
	cmd := &cobra.Command{
		Use:   "template <extract-file>",
		Short: "Fill a spreadsheet template with a downloaded extract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(flagUnits) != 1 || flagUnits[0] == "*" {
				return fmt.Errorf("template needs exactly one --unit")
			}
			reg, err := registry.Load(cfg.Registry.Path)
			if err != nil {
				return err
			}
			unit, err := reg.Resolve(flagUnits[0])
			if err != nil {
				return err
			}
			date, err := parseRunDate(flagDate, time.Now())
			if err != nil {
				return err
			}
			delim := []rune(delimiter)
			if len(delim) != 1 {
				return fmt.Errorf("delimiter must be a single character")
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			rows, err := xlsxtemplate.ReadDelimited(f, delim[0])
			if err != nil {
				return err
			}

			if outDir == "" {
				outDir = filepath.Join(cfg.Browser.DataDir, "templates")
			}
			out := filepath.Join(outDir, domain.TemplateFileName(unit, label, date))
			var w ports.TemplateWriter = xlsxtemplate.Writer{}
			if err := w.Write(templatePath, rows, out); err != nil {
				return err
			}
			logger.Info("Template written", zap.String("unit", unit.Short), zap.Int("rows", len(rows)), zap.String("path", out))
			fmt.Println(out)
			return nil
		},
	}
	addJobFlags(cmd)
	cmd.Flags().StringVar(&templatePath, "template", "", "xlsx template whose first row is the header")
	cmd.Flags().StringVar(&label, "label", "", "label used in the output name, e.g. Corrected_FRL_SPRG")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default <data_dir>/templates)")
	cmd.Flags().StringVar(&delimiter, "delimiter", "^", "extract field delimiter")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}
