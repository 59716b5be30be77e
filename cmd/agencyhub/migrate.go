package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matiasleandrokruk/agencyhub/internal/infra/config"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
)

func newMigrateCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides DB_PATH)")

	openDB := func() (*sql.DB, error) {
		path := dbPath
		if path == "" {
			path = config.Load().DBPath
		}
		db, err := sqlite.NewDB(path)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return db, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := sqlite.MigrateUp(db); err != nil {
				return err
			}
			v, err := sqlite.MigrationVersion(db)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", v)
			return err
		},
	}, &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			v, err := sqlite.MigrationVersion(db)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", v)
			return err
		},
	})
	return cmd
}
