package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"metrika-etl/internal/domain"
	"metrika-etl/internal/service/pipeline"
)

func newExportCmd(opts *rootOpts) *cobra.Command {
	var (
		dateFrom string
		dateTo   string
		sources  []string
		counter  int64
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Run one full export: probe, submit, poll, download, load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if dateFrom != "" {
				cfg.DateFrom = dateFrom
			}
			if dateTo != "" {
				cfg.DateTo = dateTo
			}
			if len(sources) > 0 {
				cfg.Sources = sources
			}
			if counter > 0 {
				cfg.CounterID = counter
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			for _, w := range cfg.Warnings {
				logger.Warn(w)
			}

			a, err := buildApp(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report := a.orch.Run(ctx, cfg.DateFrom, cfg.DateTo, domain.TriggerTypeManual)
			printReport(report)
			return pipeline.FirstError(report)
		},
	}

	cmd.Flags().StringVar(&dateFrom, "date-from", "", "Export range start, YYYY-MM-DD (overrides config)")
	cmd.Flags().StringVar(&dateTo, "date-to", "", "Export range end, YYYY-MM-DD (overrides config)")
	cmd.Flags().StringSliceVar(&sources, "sources", nil, "Sources to export: hits, visits (overrides config)")
	cmd.Flags().Int64Var(&counter, "counter", 0, "Counter ID (overrides config)")
	return cmd
}

func printReport(report domain.RunReport) {
	elapsed := report.FinishedAt.Sub(report.StartedAt).Round(time.Second)
	pterm.Printf("Run %s (%s..%s) finished in %s\n", report.RunID, report.DateFrom, report.DateTo, elapsed)

	data := pterm.TableData{{"source", "status", "table", "rows", "parts", "fields", "unavailable", "error"}}
	for _, src := range report.Sources {
		status := pterm.Green(string(src.Status))
		if src.Status != domain.SourceSucceeded {
			status = pterm.Red(string(src.Status))
		}
		errText := src.Error
		if src.ErrorKind != "" {
			errText = fmt.Sprintf("[%s] %s", src.ErrorKind, src.Error)
		}
		data = append(data, []string{
			string(src.Kind),
			status,
			src.Table,
			fmt.Sprintf("%d", src.RowsLoaded),
			fmt.Sprintf("%d", src.Parts),
			fmt.Sprintf("%d", src.AvailableFields),
			strings.Join(src.UnavailableFields, ", "),
			errText,
		})
	}
	if text, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender(); err == nil {
		pterm.Println(text)
	}
}
