package app

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/l1jgo/frametask/internal/async"
	"github.com/l1jgo/frametask/internal/core/ecs"
	"github.com/l1jgo/frametask/internal/core/event"
	"github.com/l1jgo/frametask/internal/core/system"
	"github.com/l1jgo/frametask/internal/metrics"
)

// App bundles a world, its runner, the standard clocks and the async driver.
type App struct {
	World  *ecs.World
	Runner *system.Runner
	Driver *async.Driver
	Clock  clockwork.Clock
	log    *zap.Logger
	exit   event.Reader[event.AppExit]
}

// Options configures New. Zero values pick real clocks, a nop logger and
// unregistered metrics.
type Options struct {
	Clock         clockwork.Clock
	Log           *zap.Logger
	Metrics       *metrics.Metrics
	Recorder      async.Recorder
	QueueSize     int
	SettleTimeout time.Duration
	Context       context.Context
}

func New(opts Options) *App {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	w := ecs.NewWorld()
	r := system.NewRunner(w)
	r.Register(system.NewTimeSystem(opts.Clock))
	r.Register(system.NewFrameCountSystem())
	event.Add[event.AppExit](r)
	d := async.Install(r, async.Options{
		QueueSize:     opts.QueueSize,
		SettleTimeout: opts.SettleTimeout,
		Log:           opts.Log,
		Metrics:       opts.Metrics,
		Recorder:      opts.Recorder,
		Clock:         opts.Clock,
		Context:       opts.Context,
	})
	return &App{World: w, Runner: r, Driver: d, Clock: opts.Clock, log: opts.Log}
}

// Register adds persistent systems.
func (a *App) Register(systems ...system.System) *App {
	for _, s := range systems {
		a.Runner.Register(s)
	}
	return a
}

// Spawn starts a routine.
func (a *App) Spawn(body async.Routine) ecs.EntityID {
	return a.Driver.Spawn(body)
}

// Update runs one tick.
func (a *App) Update() {
	a.Runner.Tick()
}

// ExitRequested reports whether an AppExit event arrived since the last call.
func (a *App) ExitRequested() (event.AppExit, bool) {
	evs := a.exit.Read(event.Of[event.AppExit](a.World))
	if len(evs) == 0 {
		return event.AppExit{}, false
	}
	return evs[len(evs)-1], true
}

// Run ticks every tickRate until ctx is done, an AppExit event arrives, or
// maxFrames ticks ran (0 means unbounded). It closes the driver and waits for
// routines to return before it returns.
func (a *App) Run(ctx context.Context, tickRate time.Duration, maxFrames uint64) (int, error) {
	ticker := a.Clock.NewTicker(tickRate)
	defer ticker.Stop()
	defer a.Close()

	for {
		select {
		case <-ticker.Chan():
			a.Update()
			if ex, ok := a.ExitRequested(); ok {
				a.log.Info("app exit requested", zap.Int("code", ex.Code), zap.Uint64("frames", a.Runner.Ticks()))
				return ex.Code, nil
			}
			if maxFrames > 0 && a.Runner.Ticks() >= maxFrames {
				a.log.Info("frame limit reached", zap.Uint64("frames", maxFrames))
				return 0, nil
			}
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Close closes the driver, canceling every live routine, and waits for the
// routine goroutines to return.
func (a *App) Close() {
	a.Driver.Close()
	a.Driver.Executor().Wait()
}
