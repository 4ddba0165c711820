package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/l1jgo/frametask/internal/app"
	"github.com/l1jgo/frametask/internal/async"
	"github.com/l1jgo/frametask/internal/config"
	"github.com/l1jgo/frametask/internal/metrics"
	"github.com/l1jgo/frametask/internal/persist"
	"github.com/l1jgo/frametask/internal/scripting"
	"github.com/l1jgo/frametask/internal/system"
)

func run(parent context.Context, cfg *config.Config, log *zap.Logger) (int, error) {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 2. Lifecycle journal
	var (
		recorder async.Recorder
		journal  *system.JournalSystem
		repo     *persist.JournalRepo
	)
	if cfg.Journal.DSN != "" {
		dbCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		db, err := persist.NewDB(dbCtx, cfg.Journal, log)
		if err != nil {
			cancel()
			return 1, fmt.Errorf("journal database: %w", err)
		}
		defer db.Close()
		if _, err := persist.RunMigrations(dbCtx, db.Pool, log); err != nil {
			cancel()
			return 1, fmt.Errorf("journal migrations: %w", err)
		}
		cancel()
		printOK("routine journal ready")

		buf := system.NewJournalBuffer(cfg.Journal.BufferSize)
		recorder = buf
		journal = system.NewJournalSystem(buf, log.Named("journal"), cfg.Journal.FlushIntervalFrames)
		repo = persist.NewJournalRepo(db)
	}

	// 3. Scripts
	engine, err := scripting.NewEngine(cfg.Scripting.Dir, log.Named("lua"))
	if err != nil {
		return 1, fmt.Errorf("scripting: %w", err)
	}
	defer engine.Close()
	if err := loadDemoScripts(engine); err != nil {
		return 1, fmt.Errorf("demo scripts: %w", err)
	}

	// 4. World
	a := app.New(app.Options{
		Log:           log,
		Metrics:       m,
		Recorder:      recorder,
		QueueSize:     cfg.Async.CommandQueueSize,
		SettleTimeout: cfg.Async.SettleTimeout.Std(),
		Context:       ctx,
	})
	engine.Install(a.Runner)
	a.Register(system.NewCleanupSystem())
	if journal != nil {
		a.Register(journal)
	}
	spawnDemo(a, engine, log.Named("demo"))

	log.Info("frame loop starting",
		zap.Duration("tick_rate", cfg.App.TickRate.Std()),
		zap.Uint64("max_frames", cfg.App.MaxFrames),
		zap.Int("command_queue_size", cfg.Async.CommandQueueSize),
	)

	// 5. Frame loop, journal writer and metrics endpoint
	g, gctx := errgroup.WithContext(ctx)
	loopDone, finish := context.WithCancel(gctx)
	var code int

	g.Go(func() error {
		defer finish()
		var err error
		code, err = a.Run(gctx, cfg.App.TickRate.Std(), cfg.App.MaxFrames)
		if journal != nil {
			journal.Close()
		}
		if errors.Is(err, context.Canceled) {
			log.Info("shutdown signal received", zap.Uint64("frames", a.Runner.Ticks()))
			return nil
		}
		return err
	})

	if journal != nil {
		g.Go(func() error {
			return journal.RunWriter(gctx, repo)
		})
	}

	if cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              cfg.Metrics.BindAddress,
			Handler:           metricsMux(m),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("metrics listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-loopDone.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return 1, err
	}
	log.Info("frametask stopped", zap.Int("exit_code", code))
	return code, nil
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
