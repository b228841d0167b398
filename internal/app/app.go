// Package app wires configuration, storage, and the promo sweeper into a
// runnable worker with health probes and graceful shutdown.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/glowmart/coupon-engine/internal/storage/postgres"
	"github.com/glowmart/coupon-engine/internal/sweeper"
	"github.com/glowmart/coupon-engine/pkg/health"
	"github.com/glowmart/coupon-engine/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the sweep loop and the operational
// HTTP listener, and handles graceful shutdown. It is the single wiring
// point for the worker.
func Run(ctx context.Context, lg *zap.Logger, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("ops_addr", cfg.OpsAddr),
		zap.Duration("sweep_interval", cfg.Sweep.Interval),
		zap.Duration("abandon_after", cfg.Sweep.AbandonAfter),
	)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.DatabasePingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	db := postgres.NewDB(pool)
	sw := sweeper.New(postgres.NewCouponRepository(db), postgres.NewCartRepository(db), sweeper.Config{
		Interval:     cfg.Sweep.Interval,
		AbandonAfter: cfg.Sweep.AbandonAfter,
	}, lg)

	// Ops listener: health probes only.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.OpsAddr,
		Handler: httpmiddleware.Chain(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Cancellation is the normal way the loop stops on shutdown.
		if err := sw.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lg.Info("Ops listener up", zap.String("addr", cfg.OpsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "ops server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down ops listener", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Ops listener shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	return g.Wait()
}
