package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"metrika-etl/internal/config"
	"metrika-etl/internal/domain"
)

// minimalVisitFields is the smallest export that any counter with data
// should accept; if this fails the problem is access, not field choice.
var minimalVisitFields = []string{"ym:s:visitID", "ym:s:date", "ym:s:clientID"}

func newPreflightCmd(opts *rootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check credentials, counter access, date range and destination before exporting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := validatedConfig(opts)
			if err != nil {
				return err
			}
			a, err := buildApp(cfg, logger)
			if err != nil {
				return err
			}
			return runPreflight(cmd.Context(), a)
		},
	}
	return cmd
}

// preflightCheck is one sequential diagnostic step. A returned error stops
// the run; warnings render but do not.
type preflightCheck struct {
	name string
	run  func(ctx context.Context) (detail string, err error)
}

func runPreflight(ctx context.Context, a *app) error {
	cfg := a.cfg

	checks := []preflightCheck{
		{
			name: "OAuth token shape",
			run: func(context.Context) (string, error) {
				if strings.ContainsAny(cfg.Token, " \t\n\"'") {
					return "", fmt.Errorf("token contains whitespace or quote characters; re-copy it")
				}
				if len(cfg.Token) < 20 {
					return "", fmt.Errorf("token is %d characters, expected a full OAuth token", len(cfg.Token))
				}
				return fmt.Sprintf("%d characters", len(cfg.Token)), nil
			},
		},
		{
			name: "counter access",
			run: func(ctx context.Context) (string, error) {
				name, err := a.api.CounterName(ctx, cfg.CounterID)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("counter %d (%s)", cfg.CounterID, name), nil
			},
		},
		{
			name: "date range",
			run: func(context.Context) (string, error) {
				warnings, err := config.ValidateDates(cfg.DateFrom, cfg.DateTo, time.Now())
				if err != nil {
					return "", err
				}
				detail := cfg.DateFrom + " .. " + cfg.DateTo
				if len(warnings) > 0 {
					detail += " (" + strings.Join(warnings, "; ") + ")"
				}
				return detail, nil
			},
		},
		{
			name: "minimal visits export",
			run: func(ctx context.Context) (string, error) {
				eval, err := a.api.Evaluate(ctx, cfg.CounterID, domain.SourceVisits, cfg.DateFrom, cfg.DateTo, minimalVisitFields)
				if err != nil {
					return "", err
				}
				if !eval.Possible {
					return "", fmt.Errorf("remote declares even the minimal field set impossible for this range")
				}
				return "possible", nil
			},
		},
		{
			name: "full visits field set",
			run: func(ctx context.Context) (string, error) {
				eval, err := a.api.Evaluate(ctx, cfg.CounterID, domain.SourceVisits, cfg.DateFrom, cfg.DateTo,
					a.catalog.SourceIDs(domain.SourceVisits))
				if err != nil {
					// Not fatal: the exporter degrades to per-field probing.
					return "rejected — export will probe fields individually", nil
				}
				return fmt.Sprintf("possible, expected size %d bytes", eval.ExpectedSize), nil
			},
		},
		{
			name: "ClickHouse connection",
			run: func(ctx context.Context) (string, error) {
				version, err := a.dest.Ping(ctx)
				if err != nil {
					return "", err
				}
				return "version " + version, nil
			},
		},
	}

	for _, check := range checks {
		detail, err := check.run(ctx)
		if err != nil {
			pterm.Printf("%s %s: %s\n", pterm.Red("✗"), check.name, err)
			return fmt.Errorf("preflight failed at %q", check.name)
		}
		pterm.Printf("%s %s: %s\n", pterm.Green("✓"), check.name, detail)
	}

	pterm.Println(pterm.Green("All preflight checks passed."))
	return nil
}
