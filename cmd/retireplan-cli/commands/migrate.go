package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"retireplan/internal/storage"
)

func migrateCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQLite schema",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default: SQLITE_DB_PATH)")

	path := func() string {
		if dbPath != "" {
			return dbPath
		}
		return cfg.SQLiteDBPath
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := storage.RunMigrations(path())
			if err != nil {
				return err
			}
			logger.Info("Migrations applied", "db_path", path(), "version", version)
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}, &cobra.Command{
		Use:   "down",
		Short: "Revert every migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := storage.RollbackMigrations(path()); err != nil {
				return err
			}
			logger.Info("Migrations reverted", "db_path", path())
			fmt.Fprintln(cmd.OutOrStdout(), "all migrations reverted")
			return nil
		},
	})
	return cmd
}
