// Package cli implements portalctl, the operator tool for the civic portal.
package cli

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-portal-api/pkg/config"
	"github.com/noah-isme/civic-portal-api/pkg/database"
	"github.com/noah-isme/civic-portal-api/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "portalctl",
	Short: "Operate the civic portal API",
	Long: `portalctl runs database migrations, bootstraps administrator accounts
and prints the workflow transition tables the API enforces.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// env is the configuration and connections a command needs.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
}

func (e *env) Close() {
	if e.db != nil {
		_ = e.db.Close()
	}
	_ = e.logger.Sync()
}

// connect loads configuration the same way the server does and opens Postgres.
func connect(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &env{cfg: cfg, logger: logr, db: db}, nil
}
