// Package app wires the rotator runtime: config, logging, token store, signer,
// lifecycle controller, scheduler and the HTTP surface.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"rotator/cmd/internal/lifecycle"
	"rotator/cmd/security/signer"
)

// Deps lets tests replace the environment the App runs against.
// Zero values select the production implementations.
type Deps struct {
	Clock  clockwork.Clock
	Fs     afero.Fs
	Signer lifecycle.Signer
}

// App is the rotator runtime.
type App struct {
	cfg Config
	log Logger

	ctrl    *lifecycle.Controller
	sched   *lifecycle.Scheduler
	dbPool  *pgxpool.Pool
	handler http.Handler
}

// New constructs a fully wired App. It opens the token store but does not
// load it; that happens in Run.
func New(ctx context.Context, cfg Config, log Logger, deps Deps) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}

	if cfg.Lifecycle.GraceGap() {
		log.Warn("config.grace_gap",
			"rotation", cfg.Lifecycle.RotationPeriod,
			"ttl", cfg.Lifecycle.TTL,
			"reason", "rotation period exceeds ttl; there will be windows with no passive token",
		)
	}

	sig := deps.Signer
	if sig == nil {
		var err error
		sig, err = signer.New(cfg.Signer, log)
		if err != nil {
			return nil, err
		}
	}

	store, pool, err := newTokenStore(ctx, cfg, deps.Fs, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := lifecycle.NewMetrics(reg)

	ctrl, err := lifecycle.NewController(cfg.Lifecycle, lifecycle.Deps{
		Log:     log,
		Clock:   deps.Clock,
		Signer:  sig,
		Store:   store,
		Payload: lifecycle.StaticPayload(cfg.Claims),
		Metrics: metrics,
	})
	if err != nil {
		closePool(pool)
		return nil, err
	}

	sched, err := lifecycle.NewScheduler(log, deps.Clock,
		cfg.Lifecycle.MaintenanceInterval, cfg.Lifecycle.ShutdownGrace, ctrl.Tick, metrics)
	if err != nil {
		closePool(pool)
		return nil, err
	}

	mux := http.NewServeMux()
	registerHTTP(mux, routes{
		log:      log,
		cfg:      cfg,
		clock:    deps.Clock,
		ctrl:     ctrl,
		dbPool:   pool,
		gatherer: reg,
		feed:     NewFeedGateway(log, ctrl, cfg.WSOriginPatterns),
	})

	return &App{
		cfg:     cfg,
		log:     log,
		ctrl:    ctrl,
		sched:   sched,
		dbPool:  pool,
		handler: WithRequestLogging(WithSecurityHeaders(mux), log),
	}, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Controller exposes the lifecycle controller.
func (a *App) Controller() *lifecycle.Controller { return a.ctrl }

// Run bootstraps the token state, then serves HTTP and runs the maintenance
// scheduler until ctx is cancelled or either fails.
//
// A bootstrap signing failure is not fatal: readers get the placeholder and
// the first tick retries.
func (a *App) Run(ctx context.Context) error {
	defer closePool(a.dbPool)

	active, err := a.ctrl.Bootstrap(ctx)
	if err != nil {
		a.log.Warn("lifecycle.bootstrap.degraded", "active", active, "err", err)
	} else {
		a.log.Info("lifecycle.bootstrap.ok", "active", active)
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbPool != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := a.sched.Run(gctx)
		if errors.Is(err, lifecycle.ErrShutdownGrace) {
			// In-memory state is authoritative; the abandoned tick is not an app failure.
			a.log.Warn("scheduler.shutdown.grace_exceeded", "err", err)
			return nil
		}
		return err
	})

	err = g.Wait()
	a.log.Info("server.stopped", "summary", a.ctrl.Summary())
	return err
}

func closePool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
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
