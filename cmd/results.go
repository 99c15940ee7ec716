package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/rf-ate/internal/config"
	"github.com/ethpandaops/rf-ate/internal/output/table"
	"github.com/ethpandaops/rf-ate/internal/store"
)

// errNoStore is returned when neither results backend is configured.
var errNoStore = errors.New("no results store configured: set results.sqlite_path or results.clickhouse_url")

var resultsLimit int

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Manage stored run results",
}

var resultsMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply result schema migrations to every configured store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		return migrateStores(cmd.Context(), cfg)
	},
}

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs from the local SQLite store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out, err := recentRuns(cmd.Context(), cfg, resultsLimit)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), out)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.AddCommand(resultsMigrateCmd, resultsListCmd)

	resultsListCmd.Flags().IntVarP(&resultsLimit, "limit", "n", store.DefaultListLimit, "Number of runs to list")
}

func migrateStores(ctx context.Context, cfg *config.Config) error {
	if cfg.Results.SQLitePath == "" && cfg.Results.ClickHouseURL == "" {
		return errNoStore
	}

	if cfg.Results.SQLitePath != "" {
		s, err := store.OpenSQLite(cfg.Results.SQLitePath, Logger)
		if err != nil {
			return err
		}

		if err := migrateAndClose(ctx, s); err != nil {
			return err
		}
	}

	if cfg.Results.ClickHouseURL != "" {
		s, err := store.OpenClickHouse(cfg.Results.ClickHouseURL, Logger)
		if err != nil {
			return err
		}

		if err := migrateAndClose(ctx, s); err != nil {
			return err
		}
	}

	return nil
}

func migrateAndClose(ctx context.Context, s *store.Store) error {
	defer s.Close()

	if err := s.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating %s: %w", s.Name(), err)
	}

	Logger.WithField("store", s.Name()).Info("Migrations applied")

	return nil
}

func recentRuns(ctx context.Context, cfg *config.Config, limit int) (string, error) {
	s, err := store.OpenSQLite(cfg.Results.SQLitePath, Logger)
	if err != nil {
		return "", err
	}
	defer s.Close()

	runs, err := s.ListRuns(ctx, limit)
	if err != nil {
		return "", err
	}

	colors := table.NewColorHelper()
	rows := make([][]string, 0, len(runs))

	for _, r := range runs {
		verdict := colors.Success("PASS")
		if !r.Passed {
			verdict = colors.Failure("FAIL")
		}

		rows = append(rows, []string{
			r.ID,
			r.Started.Local().Format("2006-01-02 15:04:05"),
			r.Station,
			r.Gender,
			strconv.Itoa(r.DUTs),
			strconv.Itoa(r.Rejected),
			table.Duration(r.Duration),
			verdict,
		})
	}

	return table.NewRenderer(Logger).RenderToString(
		[]string{"Run", "Started", "Station", "Gender", "DUTs", "Rejected", "Duration", "Result"}, rows), nil
}
