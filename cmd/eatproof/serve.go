package main

import (
	"context"
	"fmt"
	"time"

	"github.com/franckalain/eatproof/internal/database"
	"github.com/franckalain/eatproof/internal/reference"
	"github.com/franckalain/eatproof/internal/scoring"
	"github.com/franckalain/eatproof/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scoring API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		db, err := database.NewSQLiteDB(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		tables, err := reference.Builtin()
		if err != nil {
			return fmt.Errorf("failed to load reference tables: %w", err)
		}
		provider := reference.NewProvider(tables)
		logger.Info("reference tables loaded", zap.String("version", tables.Version()))

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		if cfg.Reference.RefreshURL != "" {
			interval := time.Duration(cfg.Reference.RefreshIntervalMinutes) * time.Minute
			refresher, err := reference.NewRefresher(cfg.Reference.RefreshURL, provider, interval, logger)
			if err != nil {
				return fmt.Errorf("failed to configure reference refresh: %w", err)
			}
			go refresher.Run(ctx)
		}

		scorer := scoring.New(provider, logger)
		sessionTTL := time.Duration(cfg.Auth.SessionTTLHours) * time.Hour

		srv := server.New(db, scorer, provider, sessionTTL, logger)
		return srv.Start(cfg.Server.Port)
	},
}
