package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"metrika-etl/internal/clickhouse"
	"metrika-etl/internal/config"
	"metrika-etl/internal/query"
)

func newQueryCmd(opts *rootOpts) *cobra.Command {
	var (
		sql         string
		table       string
		limit       int
		stats       bool
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Inspect loaded data: run SQL, browse a table or show column statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if err := cfg.ValidateDestination(); err != nil {
				return err
			}

			dest, err := clickhouse.NewClient(clickhouse.Config{
				Host:       cfg.CHHost,
				Port:       cfg.CHPort,
				Secure:     cfg.CHSecure,
				User:       cfg.CHUser,
				Password:   cfg.CHPassword,
				CACertPath: cfg.CHCACert,
			}, logger)
			if err != nil {
				return fmt.Errorf("clickhouse client: %w", err)
			}

			v := query.New(dest, os.Stdout)
			ctx := cmd.Context()

			switch {
			case interactive:
				return v.Interactive(ctx, os.Stdin)
			case stats:
				if table == "" {
					return fmt.Errorf("--stats requires --table")
				}
				return v.RenderStats(ctx, qualified(cfg, table))
			case sql != "":
				return v.RunSQL(ctx, sql, limit)
			case table != "":
				return v.ShowTable(ctx, qualified(cfg, table), limit)
			default:
				return fmt.Errorf("one of --sql, --table or --interactive is required")
			}
		},
	}

	cmd.Flags().StringVar(&sql, "sql", "", "SQL statement to run")
	cmd.Flags().StringVar(&table, "table", "", "Table to browse (bare names resolve against the configured database)")
	cmd.Flags().IntVar(&limit, "limit", query.DefaultLimit, "Maximum rows to return when the query has no LIMIT")
	cmd.Flags().BoolVar(&stats, "stats", false, "Show per-column statistics for --table")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "Start an interactive SQL prompt")
	return cmd
}

// qualified resolves a bare table name against the configured database.
// Names that already carry a dot pass through unchanged.
func qualified(cfg *config.Config, table string) string {
	for _, r := range table {
		if r == '.' {
			return table
		}
	}
	return cfg.CHDatabase + "." + table
}
