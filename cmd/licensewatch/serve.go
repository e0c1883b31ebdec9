package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"licensewatch/internal/license/handler"
	"licensewatch/internal/license/sweep"
	"licensewatch/internal/platform/httpserver"
	"licensewatch/pkg/platform/httputil"
	request "licensewatch/pkg/platform/middleware/request"
	"licensewatch/pkg/platform/middleware/requesttime"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled sweeps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := commonRun()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			a.startAudit()
			defer func() {
				shutdownCtx, cancel := shutdownContext(cfg)
				defer cancel()
				a.close(shutdownCtx)
			}()
			return a.serve(ctx)
		},
	}
}

func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(a.logger))
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(a.logger, a.http))

	r.Get("/healthz", a.handleHealthz)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	handler.New(a.engine, a.cfg.HTTP.AdminToken, a.logger).Register(r)
	return r
}

func (a *app) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	checks := map[string]string{}
	healthy := true
	if a.db != nil {
		checks["database"] = "ok"
		if err := a.db.PingContext(ctx); err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
	}
	if a.redis != nil {
		checks["redis"] = "ok"
		if err := a.redis.Health(ctx); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
	}
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, map[string]any{"healthy": healthy, "checks": checks})
}

// serve runs the HTTP server and the scheduler until ctx is cancelled.
func (a *app) serve(ctx context.Context) error {
	if a.cfg.HTTP.AdminToken == "" {
		a.logger.Warn("no admin token configured; mutating routes are disabled")
	}
	srv := httpserver.New(a.cfg.HTTP.Addr, a.router())
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting http server", "addr", a.cfg.HTTP.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sweep.NewScheduler(a.engine, a.cfg.Sweep.Interval, a.logger).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := shutdownContext(a.cfg)
		defer cancel()
		a.logger.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
