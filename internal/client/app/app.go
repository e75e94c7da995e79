// Package app wires the headless history client: local database, remote
// store, auth and the sync engine, plus the interactive sign-in flow.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/okarpov/lingohist/internal/client/auth"
	"github.com/okarpov/lingohist/internal/client/config"
	"github.com/okarpov/lingohist/internal/client/remote"
	"github.com/okarpov/lingohist/internal/client/services"
	"github.com/okarpov/lingohist/internal/client/storage"
	"github.com/okarpov/lingohist/internal/common"
	"github.com/okarpov/lingohist/internal/logging"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	repos    *storage.Repositories
	provider *auth.HTTPProvider
	history  *services.HistoryService
	engine   *services.SyncEngine
	merger   *services.Merger
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	repos, err := storage.InitDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	provider := auth.NewHTTPProvider(cfg.ServerEndpointAddr, nil)
	store := remote.NewHTTPStore(cfg.ServerEndpointAddr, provider, nil)

	history := services.NewHistoryService(repos.Records, store, provider, logger)
	engine := services.NewSyncEngine(cfg, repos.Records, repos.Metadata, store, provider, history, logger)
	history.BindSyncer(engine)
	merger := services.NewMerger(cfg, history, logger)

	return &App{
		config:   cfg,
		logger:   logger,
		repos:    repos,
		provider: provider,
		history:  history,
		engine:   engine,
		merger:   merger,
	}, nil
}

// History exposes the record facade to embedding UIs.
func (app *App) History() *services.HistoryService { return app.history }

// Merger exposes duplicate detection and merge execution to embedding UIs.
func (app *App) Merger() *services.Merger { return app.merger }

// signIn prompts for credentials and establishes a session, offering to
// register the account when the backend does not know it yet.
func (app *App) signIn(ctx context.Context) error {
	reader := bufio.NewReader(os.Stdin)

	email, err := GetSimpleText(reader, "Email", os.Stdout)
	if err != nil {
		return err
	}
	password, err := GetPassword(os.Stdout)
	if err != nil {
		return err
	}

	err = app.provider.SignIn(ctx, email, string(password))
	if !errors.Is(err, common.ErrInvalidCredentials) {
		return err
	}

	answer, err := GetSimpleText(reader, "Sign-in failed. Register this account? (y/n)", os.Stdout)
	if err != nil {
		return err
	}
	if answer != "y" {
		return common.ErrInvalidCredentials
	}
	if err := app.provider.SignUp(ctx, email, string(password)); err != nil {
		return err
	}
	return app.provider.SignIn(ctx, email, string(password))
}

// Run signs the user in, starts continuous sync and blocks until the process
// is interrupted.
func (app *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	defer func() {
		if err := app.repos.DB.Close(); err != nil {
			app.logger.Error(ctx, "closing database", "error", err)
		}
	}()

	if err := app.signIn(ctx); err != nil {
		return fmt.Errorf("sign-in failed: %w", err)
	}

	account, err := app.provider.CurrentAccount(ctx)
	if err != nil {
		return err
	}
	app.logger.Info(ctx, "signed in", "email", account.Email)

	app.engine.StartContinuousSync()
	defer app.engine.StopContinuousSync()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case <-sigs:
	case <-ctx.Done():
	}

	app.logger.Info(ctx, "shutting down")
	return nil
}
