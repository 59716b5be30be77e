package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/agencyhub/internal/infra/config"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/logging"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
	"github.com/matiasleandrokruk/agencyhub/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Apply migrations and start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if cmd.Flags().Changed("host") {
				cfg.HTTPHost = host
			}
			if cmd.Flags().Changed("port") {
				cfg.HTTPPort = port
			}

			logger, err := logging.New(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := sqlite.NewDB(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			if err := sqlite.MigrateUp(db); err != nil {
				return err
			}
			if v, err := sqlite.MigrationVersion(db); err == nil {
				logger.Info("database ready", zap.String("path", cfg.DBPath), zap.Int("schema_version", v))
			}

			srv, err := server.NewServer(db, server.FromAppConfig(cfg), logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides HTTP_HOST)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides HTTP_PORT)")
	return cmd
}
