// Package app wires the identd server runtime: config, logging, storage,
// metrics and HTTP routes.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"identd/cmd/internal/identityapi"
	"identd/cmd/internal/issuance"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App is the identd server runtime: it owns the store and HTTP server wiring.
type App struct {
	cfg Config
	log Logger

	closeStore func()

	svc      *issuance.Service
	registry *prometheus.Registry
	api      *identityapi.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	st, closeStore, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics, err := issuance.NewMetrics(reg)
	if err != nil {
		closeStore()
		return nil, err
	}

	svc, err := issuance.NewService(st, issuance.Config{MaxAttempts: cfg.IssueMaxAttempts},
		issuance.WithLogger(log),
		issuance.WithMetrics(metrics),
	)
	if err != nil {
		closeStore()
		return nil, err
	}

	api, err := identityapi.NewHandler(log, svc)
	if err != nil {
		closeStore()
		return nil, err
	}

	return &App{
		cfg:        cfg,
		log:        log,
		closeStore: closeStore,
		svc:        svc,
		registry:   reg,
		api:        api,
	}, nil
}

// Service exposes the issuance service for in-process callers such as the CLI.
func (a *App) Service() *issuance.Service { return a.svc }

// Close releases the store. Run calls it on shutdown.
func (a *App) Close() {
	if a.closeStore != nil {
		a.closeStore()
		a.closeStore = nil
	}
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.svc, a.registry, a.api)
	return WithRequestLogging(mux, a.log)
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "postgres", a.cfg.DatabaseURL != "")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
