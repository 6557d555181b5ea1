// Package server initializes and runs the upload API server. It wires the
// session registry, the object store gateway, and the HTTP endpoint, handles
// graceful shutdown, and runs the stale draft sweeper.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/devchaudhary24k/vidcastx/internal/logging"
	"github.com/devchaudhary24k/vidcastx/internal/server/config"
	"github.com/devchaudhary24k/vidcastx/internal/server/httpapi"
	"github.com/devchaudhary24k/vidcastx/internal/server/repositories/sessions"
	"github.com/devchaudhary24k/vidcastx/internal/server/services"
	"github.com/devchaudhary24k/vidcastx/internal/server/store"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	uploads *services.UploadService
	db      *sql.DB
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	var repo sessions.Repository
	var db *sql.DB
	if cfg.DatabaseDSN == "" {
		logger.Warn(ctx, "no database DSN, using the in-memory session registry")
		repo = sessions.NewInMemoryRepository()
	} else {
		var err error
		db, err = sql.Open("pgx", cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		if err := sessions.RunMigrations(ctx, db); err != nil {
			return nil, fmt.Errorf("db migration error: %w", err)
		}
		repo = sessions.NewPostgresRepository(db)
	}

	gateway, err := store.NewS3Gateway(ctx, store.Options{
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3BaseEndpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		SignTTL:   cfg.SignTTL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("object store init error: %w", err)
	}

	uploads := services.NewUploadService(repo, gateway, services.NewLogNotifier(logger), logger)

	return &App{config: cfg, logger: logger, uploads: uploads, db: db}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	api := httpapi.NewServer(app.uploads, app.logger, []byte(app.config.SecretKey))

	srv := &http.Server{
		Addr:         app.config.EndpointAddrHTTP,
		Handler:      api.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// runSweeper periodically aborts and fails drafts stuck in waiting_upload
// longer than MaxDraftAge.
func (app *App) runSweeper(ctx context.Context) {
	if app.config.SweepInterval <= 0 {
		return
	}

	ticker := time.NewTicker(app.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.uploads.SweepExpired(ctx, app.config.MaxDraftAge); err != nil {
				app.logger.Error(ctx, "sweep error", "error", err)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runSweeper(ctx)
	}()

	wg.Wait()

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close error", "error", err)
		}
	}
}
