// Package server assembles the tenantvault application: database, vault,
// repositories, services and the HTTP front, plus schema migrations on
// startup.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cloudpad/tenantvault/internal/logging"
	"github.com/cloudpad/tenantvault/internal/server/config"
	"github.com/cloudpad/tenantvault/internal/server/httpapi"
	"github.com/cloudpad/tenantvault/internal/server/mirror"
	"github.com/cloudpad/tenantvault/internal/server/repositories/repomanager"
	"github.com/cloudpad/tenantvault/internal/server/services"
	"github.com/cloudpad/tenantvault/internal/server/storage"
	"github.com/cloudpad/tenantvault/internal/vault"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	server *httpapi.Server
}

func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	v := vault.New(cfg.VaultSecret)

	factory := storage.NewFactory(db, repos, v, logger)
	mirrorWriter := mirror.NewPostgresWriter(db, repos, v, logger)
	notifier := services.NewWebhookNotifier(db, repos, cfg, logger)
	engine := services.NewSyncEngine(db, repos, factory, mirrorWriter, notifier, logger)
	credService := services.NewCredentialService(db, repos, v, factory, logger)

	handler := httpapi.NewHandler(credService, engine, logger)
	srv := httpapi.New(cfg, handler, logger)

	return &App{config: cfg, logger: logger, db: db, server: srv}, nil
}

// Run serves HTTP until shutdown, then closes the database.
func (app *App) Run(ctx context.Context) {
	app.logger.Info(ctx, "starting tenantvault server", "addr", app.config.EndpointAddrHTTP)

	if err := app.server.Run(); err != nil {
		app.logger.Error(ctx, "server stopped with error", "error", err.Error())
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
}
