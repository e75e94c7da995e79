// Package server wires the sync backend: database, repositories, services
// and the HTTP API, with signal handling and graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/okarpov/lingohist/internal/logging"
	"github.com/okarpov/lingohist/internal/server/config"
	"github.com/okarpov/lingohist/internal/server/httpapi"
	"github.com/okarpov/lingohist/internal/server/repositories/repomanager"
	"github.com/okarpov/lingohist/internal/server/services"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	repos  repomanager.RepositoryManager
	server *httpapi.Server
}

func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	userService := services.NewUserService(db, repos, cfg)
	historyService := services.NewHistoryService(db, repos)

	handler := httpapi.NewHandler(userService, historyService, logger)
	router := httpapi.NewRouter(handler, userService)
	server := httpapi.NewServer(cfg.EndpointAddr, router, logger)

	return &App{config: cfg, logger: logger, db: db, repos: repos, server: server}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting server")
	app.initSignalHandler(cancelFunc)

	if err := app.repos.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	defer func() {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "closing database", "error", err)
		}
	}()

	return app.server.Run(ctx)
}
