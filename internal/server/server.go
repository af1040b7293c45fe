package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cadencefm/cadence/internal/db"
	"github.com/cadencefm/cadence/internal/server/tracing"
	"github.com/cadencefm/cadence/internal/version"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	config *Config
	server *http.Server
	db     *sqlx.DB
	svc    *Services

	stopTracing func(context.Context) error
}

// New builds the server from a validated config
func New(ctx context.Context, config *Config) (*Server, error) {
	stopTracing, err := tracing.Init(ctx, &config.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	database, err := db.Open(config.DB)
	if err != nil {
		stopTracing(ctx)
		return nil, fmt.Errorf("open db: %w", err)
	}

	svc, err := NewServices(ctx, config, database, nil)
	if err != nil {
		database.Close()
		stopTracing(ctx)
		return nil, err
	}

	return &Server{
		config:      config,
		db:          database,
		svc:         svc,
		stopTracing: stopTracing,
		server: &http.Server{
			Addr:              config.HTTP.Addr,
			Handler:           otelhttp.NewHandler(SetupRoutes(config, svc), "cadence"),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *Server) Services() *Services {
	return s.svc
}

// Start serves until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	slog.Info("cadence server start", "version", version.Short(), "addr", s.config.HTTP.Addr)

	eg, egCtx := errgroup.WithContext(ctx)

	if err := s.svc.Start(egCtx); err != nil {
		return err
	}

	eg.Go(func() error {
		if err := s.runHttpServer(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("cadence shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.HTTP.ShutdownGrace)
		defer cancel()
		return s.Stop(shutdownCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("cadence server failure", "error", err)
		return err
	}

	slog.Info("cadence server stop")
	return nil
}

// Stop drains in-flight requests first, then the services behind them
func (s *Server) Stop(ctx context.Context) error {
	var errs []error

	if err := s.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.svc.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close db: %w", err))
	}
	if err := s.stopTracing(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop tracing: %w", err))
	}

	return errors.Join(errs...)
}

func (s *Server) runHttpServer() error {
	if s.config.HTTP.CertFile != "" && s.config.HTTP.KeyFile != "" {
		slog.Info("server start https", "addr", s.config.HTTP.Addr, "cert", s.config.HTTP.CertFile, "key", s.config.HTTP.KeyFile)
		return s.server.ListenAndServeTLS(s.config.HTTP.CertFile, s.config.HTTP.KeyFile)
	}

	slog.Info("server start http", "addr", s.config.HTTP.Addr)
	return s.server.ListenAndServe()
}
