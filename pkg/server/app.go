package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"MT5Hub/internal/usecase"
	"MT5Hub/pkg/config"
	xhttp "MT5Hub/pkg/http"
	applogger "MT5Hub/pkg/logger"
)

// Closer is a named resource released on shutdown.
type Closer struct {
	Name  string
	Close func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	httpServer *xhttp.Server
	reporter   *usecase.ChangeReporter
	closers    []Closer
}

// New creates a new App instance with all dependencies. Closers run in order on shutdown.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	reporter *usecase.ChangeReporter,
	closers ...Closer,
) *App {
	return &App{
		cfg:        cfg,
		l:          l.With(applogger.String("component", "app")),
		httpServer: httpServer,
		reporter:   reporter,
		closers:    closers,
	}
}

// Logger returns the application logger.
func (a *App) Logger() *applogger.Logger { return a.l }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the reporter and the HTTP server and blocks until ctx is done
// or the server fails.
func (a *App) RunContext(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.reporter.Run(ctx); err != nil {
			a.l.Error("change reporter error", applogger.Error(err))
		}
	}()

	a.l.Info("mt5hub started",
		applogger.Ints("bot_ids", a.cfg.Runtime.BotIDs),
		applogger.String("notify_backend", a.cfg.Notify.Backend),
		applogger.String("history", a.cfg.Storage.History),
		applogger.String("permissions", a.cfg.Storage.Permissions),
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case err, ok := <-a.httpServer.Start():
		if ok && err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	cancel()
	wg.Wait()
	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	a.l.Info("shutting down...")

	var firstErr error
	if err := a.httpServer.Stop(context.Background()); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
		firstErr = err
	}

	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.l.Warn("close error", applogger.String("resource", c.Name), applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return firstErr
}
