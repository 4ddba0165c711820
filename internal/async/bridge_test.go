package async_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l1jgo/frametask/internal/app"
	"github.com/l1jgo/frametask/internal/async"
	"github.com/l1jgo/frametask/internal/async/delay"
	"github.com/l1jgo/frametask/internal/async/once"
	"github.com/l1jgo/frametask/internal/async/repeat"
	"github.com/l1jgo/frametask/internal/async/wait"
	"github.com/l1jgo/frametask/internal/core/ecs"
	"github.com/l1jgo/frametask/internal/core/event"
	"github.com/l1jgo/frametask/internal/core/state"
	"github.com/l1jgo/frametask/internal/core/system"
	"github.com/l1jgo/frametask/internal/metrics"
)

type ping struct{}

// pingCounter counts ping events at the end of every tick.
type pingCounter struct {
	rd event.Reader[ping]
	n  int
}

func (c *pingCounter) Phase() system.Phase { return system.PhaseLast }

func (c *pingCounter) Update(w *ecs.World) {
	c.n += len(c.rd.Read(event.Of[ping](w)))
}

type journal struct {
	mu   sync.Mutex
	recs []async.Lifecycle
}

func (j *journal) Record(l async.Lifecycle) {
	j.mu.Lock()
	j.recs = append(j.recs, l)
	j.mu.Unlock()
}

func (j *journal) events() []async.LifecycleEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]async.LifecycleEvent, len(j.recs))
	for i, r := range j.recs {
		out[i] = r.Event
	}
	return out
}

func (j *journal) last() async.Lifecycle {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.recs[len(j.recs)-1]
}

func newApp(t *testing.T, opts app.Options) *app.App {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = clockwork.NewFakeClock()
	}
	if opts.SettleTimeout == 0 {
		opts.SettleTimeout = 5 * time.Second
	}
	a := app.New(opts)
	t.Cleanup(a.Close)
	return a
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("routine never reported")
		panic("unreachable")
	}
}

func TestDelayFramesThenSend(t *testing.T) {
	a := newApp(t, app.Options{})
	event.Add[ping](a.Runner)
	c := &pingCounter{}
	a.Register(c)

	a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		if _, err := async.Run(ctx, s, system.PhaseUpdate, delay.Frames(3)); err != nil {
			return err
		}
		_, err := async.Run(ctx, s, system.PhaseUpdate, once.Send(ping{}))
		return err
	})

	for i := 0; i < 3; i++ {
		a.Update()
	}
	assert.Zero(t, c.n, "no event after three updates")

	a.Update()
	assert.Equal(t, 1, c.n, "exactly one event after the fourth")

	for i := 0; i < 100; i++ {
		a.Update()
	}
	assert.Equal(t, 1, c.n)
	assert.Zero(t, ecs.Components[async.RoutineHandle](a.World).Len(), "finished routine swept")
}

func TestUntilThenSendOnFollowingTick(t *testing.T) {
	a := newApp(t, app.Options{})
	event.Add[ping](a.Runner)
	c := &pingCounter{}
	a.Register(c)

	checks := 0
	a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		pred := wait.UntilFunc(func(w *ecs.World) bool {
			checks++
			return ecs.InitResource[system.FrameCount](w).N == 2
		})
		if _, err := async.Run(ctx, s, system.PhaseUpdate, pred); err != nil {
			return err
		}
		_, err := async.Run(ctx, s, system.PhaseUpdate, once.Send(ping{}))
		return err
	})

	for i := 1; i <= 3; i++ {
		a.Update()
		assert.Zero(t, c.n, "update %d", i)
	}
	assert.Equal(t, 3, checks, "predicate holds on the third update")

	a.Update()
	assert.Equal(t, 1, c.n)

	for i := 0; i < 20; i++ {
		a.Update()
	}
	assert.Equal(t, 1, c.n)
	assert.Equal(t, 3, checks, "predicate never runs after it held")
}

type gate struct{ open bool }

func TestCancelOneOfTwoUntil(t *testing.T) {
	m := metrics.NewUnregistered()
	a := newApp(t, app.Options{Metrics: m})
	ecs.InsertResource(a.World, gate{})

	spawn := func(res chan<- error) ecs.EntityID {
		return a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
			_, err := async.Run(ctx, s, system.PhaseUpdate, wait.UntilFunc(func(w *ecs.World) bool {
				return ecs.MustResource[gate](w).open
			}))
			res <- err
			return err
		})
	}
	resA, resB := make(chan error, 1), make(chan error, 1)
	idA := spawn(resA)
	idB := spawn(resB)

	a.Update()
	require.True(t, a.World.DespawnRecursive(idA))
	assert.ErrorIs(t, recv(t, resA), async.ErrCanceled)

	a.Update()
	ecs.MustResource[gate](a.World).open = true
	a.Update()
	assert.NoError(t, recv(t, resB))

	a.Update()
	assert.False(t, a.World.Alive(idB), "completed routine swept")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdapterOutcomes.WithLabelValues("wait.until", "abandoned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdapterOutcomes.WithLabelValues("wait.until", "fulfilled")))
}

func TestDespawnStopsRepeatForeverWithinOneTick(t *testing.T) {
	j := &journal{}
	a := newApp(t, app.Options{Recorder: j})

	runs := 0
	id := a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		_, err := async.Run(ctx, s, system.PhaseUpdate, repeat.Forever(system.Do(func(*ecs.World) { runs++ })))
		return err
	})

	a.Update()
	a.Update()
	require.Equal(t, 2, runs)

	a.World.DespawnRecursive(id)
	a.Update()
	a.Update()
	assert.Equal(t, 2, runs)
	assert.Equal(t, []async.LifecycleEvent{async.LifecycleSpawned, async.LifecycleCanceled}, j.events())
}

func TestFutureCancelIsKeepAliveToken(t *testing.T) {
	a := newApp(t, app.Options{})

	runs := 0
	a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		forever := async.AddSystem(s, system.PhaseUpdate, repeat.Forever(system.Do(func(*ecs.World) { runs++ })))
		if _, err := async.Run(ctx, s, system.PhaseUpdate, delay.Frames(3)); err != nil {
			return err
		}
		forever.Cancel()
		_, err := async.Run(ctx, s, system.PhaseUpdate, delay.Frames(5))
		return err
	})

	for i := 0; i < 3; i++ {
		a.Update()
	}
	assert.Equal(t, 3, runs)
	for i := 0; i < 4; i++ {
		a.Update()
	}
	assert.Equal(t, 3, runs, "no run after the token was dropped")
}

func TestRepeatTimes(t *testing.T) {
	a := newApp(t, app.Options{})

	runs := 0
	res := make(chan int, 2)
	a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		if _, err := async.Run(ctx, s, system.PhaseUpdate, repeat.Times(0, system.Do(func(*ecs.World) { runs++ }))); err != nil {
			return err
		}
		res <- runs
		_, err := async.Run(ctx, s, system.PhaseUpdate, repeat.Times(3, system.Do(func(*ecs.World) { runs++ })))
		res <- runs
		return err
	})

	a.Update()
	assert.Zero(t, recv(t, res), "zero repetitions finish without running")

	for i := 0; i < 2; i++ {
		a.Update()
		assert.Equal(t, i+1, runs)
	}
	a.Update()
	assert.Equal(t, 3, recv(t, res))
	for i := 0; i < 5; i++ {
		a.Update()
	}
	assert.Equal(t, 3, runs)
}

func TestOnceRunDeliversOutput(t *testing.T) {
	a := newApp(t, app.Options{})
	ecs.InsertResource(a.World, gate{open: true})

	res := make(chan int, 1)
	a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		v, err := async.Run(ctx, s, system.PhasePostUpdate, once.Run(system.Of(func(w *ecs.World) int {
			if ecs.MustResource[gate](w).open {
				return 42
			}
			return 0
		})))
		res <- v
		return err
	})

	a.Update()
	assert.Equal(t, 42, recv(t, res))
}

func TestOnceResourceAdapters(t *testing.T) {
	a := newApp(t, app.Options{})
	type score struct{ N int }

	a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		if _, err := async.Run(ctx, s, system.PhaseUpdate, once.InitResource[score]()); err != nil {
			return err
		}
		if _, err := async.Run(ctx, s, system.PhaseUpdate, once.InitResource[gate]()); err != nil {
			return err
		}
		_, err := async.Run(ctx, s, system.PhaseUpdate, once.InsertResource(score{N: 9}))
		return err
	})
	ecs.InsertResource(a.World, gate{open: true})

	a.Update()
	sc, ok := ecs.Resource[score](a.World)
	require.True(t, ok)
	assert.Zero(t, sc.N)

	a.Update()
	assert.True(t, ecs.MustResource[gate](a.World).open, "init keeps an existing resource")

	a.Update()
	assert.Equal(t, 9, ecs.MustResource[score](a.World).N)
}

func TestOnceAppExit(t *testing.T) {
	a := newApp(t, app.Options{})
	a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		_, err := async.Run(ctx, s, system.PhaseUpdate, once.AppExit())
		return err
	})

	_, ok := a.ExitRequested()
	assert.False(t, ok)
	a.Update()
	ex, ok := a.ExitRequested()
	assert.True(t, ok)
	assert.Zero(t, ex.Code)
}

func TestWaitOutputAndEvents(t *testing.T) {
	a := newApp(t, app.Options{})
	event.Add[ping](a.Runner)
	event.Add[int](a.Runner)
	type ticket struct{ ID string }

	res := make(chan string, 3)
	a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		tk, err := async.Run(ctx, s, system.PhaseUpdate, wait.Output(system.Of(func(w *ecs.World) system.Maybe[string] {
			if tk, ok := ecs.Resource[ticket](w); ok {
				return system.Some(tk.ID)
			}
			return system.None[string]()
		})))
		if err != nil {
			return err
		}
		res <- tk
		if _, err := async.Run(ctx, s, system.PhaseUpdate, wait.UntilEvent[ping]()); err != nil {
			return err
		}
		res <- "ping"
		n, err := async.Run(ctx, s, system.PhaseUpdate, wait.OutputEvent[int]())
		res <- strings.Repeat("x", n)
		return err
	})

	a.Update()
	a.Update()
	ecs.InsertResource(a.World, ticket{ID: "t-1"})
	a.Update()
	assert.Equal(t, "t-1", recv(t, res))

	a.Update()
	a.Update()
	event.Send(a.World, ping{})
	a.Update()
	assert.Equal(t, "ping", recv(t, res))

	a.Update()
	event.Send(a.World, 3)
	event.Send(a.World, 5)
	a.Update()
	assert.Equal(t, "xxx", recv(t, res), "oldest unseen event")
}

func TestSetState(t *testing.T) {
	type mode int
	const (
		idle mode = iota
		busy
	)
	a := newApp(t, app.Options{})
	st := state.Add(a.Runner, idle)

	a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		_, err := async.Run(ctx, s, system.PhaseUpdate, once.SetState(busy))
		return err
	})
	a.Update()
	assert.Equal(t, idle, st.Get(), "applied by the next PreUpdate")
	a.Update()
	assert.Equal(t, busy, st.Get())
}

func TestTimerCountsFrameTime(t *testing.T) {
	fc := clockwork.NewFakeClock()
	a := newApp(t, app.Options{Clock: fc})

	res := make(chan error, 1)
	id := a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		_, err := async.Run(ctx, s, system.PhaseUpdate, delay.Timer(50*time.Millisecond))
		res <- err
		return err
	})

	a.Update()
	timers := ecs.Components[delay.Countdown](a.World)
	require.Equal(t, 1, timers.Len())
	timers.Each(func(tid ecs.EntityID, _ *delay.Countdown) {
		p, ok := ecs.Get[ecs.Parent](a.World, tid)
		require.True(t, ok)
		assert.Equal(t, id, p.ID, "timer entity is a child of the routine handle")
	})

	for i := 0; i < 2; i++ {
		fc.Advance(20 * time.Millisecond)
		a.Update()
		assert.Equal(t, 1, timers.Len())
	}
	fc.Advance(20 * time.Millisecond)
	a.Update()
	assert.Zero(t, timers.Len())
	assert.NoError(t, recv(t, res))
}

func TestTimerAbandonedWithHandle(t *testing.T) {
	fc := clockwork.NewFakeClock()
	a := newApp(t, app.Options{Clock: fc})

	id := a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		_, err := async.Run(ctx, s, system.PhaseUpdate, delay.Timer(time.Hour))
		return err
	})
	a.Update()
	require.Equal(t, 1, ecs.Components[delay.Countdown](a.World).Len())

	a.World.DespawnRecursive(id)
	assert.Zero(t, ecs.Components[delay.Countdown](a.World).Len())
	a.Update()
}

func TestInstallOnce(t *testing.T) {
	a := newApp(t, app.Options{})
	calls := 0
	install := func() { calls++ }

	assert.True(t, a.Driver.InstallOnce(system.PhaseUpdate, "x", install))
	assert.False(t, a.Driver.InstallOnce(system.PhaseUpdate, "x", install))
	assert.True(t, a.Driver.InstallOnce(system.PhaseLast, "x", install))
	assert.Equal(t, 2, calls)
}

func TestRunnerQueueInstalledOncePerPhase(t *testing.T) {
	a := newApp(t, app.Options{})
	before := a.Runner.Len(system.PhaseUpdate)
	for i := 0; i < 3; i++ {
		a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
			_, err := async.Run(ctx, s, system.PhaseUpdate, once.Do(func(*ecs.World) {}))
			return err
		})
	}
	a.Update()
	assert.Equal(t, before+1, a.Runner.Len(system.PhaseUpdate))
}

func TestFinishedRoutineIsSwept(t *testing.T) {
	j := &journal{}
	a := newApp(t, app.Options{Recorder: j})
	id := a.Spawn(func(context.Context, *async.Scheduler) error { return nil })

	a.Update()
	assert.False(t, a.World.Alive(id))
	assert.Equal(t, []async.LifecycleEvent{async.LifecycleSpawned, async.LifecycleCompleted}, j.events())
}

func TestRoutinePanicIsRecovered(t *testing.T) {
	j := &journal{}
	m := metrics.NewUnregistered()
	a := newApp(t, app.Options{Recorder: j, Metrics: m})
	id := a.Spawn(func(context.Context, *async.Scheduler) error { panic("boom") })

	a.Update()
	assert.False(t, a.World.Alive(id))
	last := j.last()
	assert.Equal(t, async.LifecycleFailed, last.Event)
	assert.Contains(t, last.Err, "boom")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoutinesFinished.WithLabelValues("failed")))
	assert.Zero(t, testutil.ToFloat64(m.RoutinesActive))
}

func TestSendAfterCloseFailsRoutine(t *testing.T) {
	j := &journal{}
	a := newApp(t, app.Options{Recorder: j})
	a.Close()

	a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		_, err := async.Run(ctx, s, system.PhaseUpdate, once.Do(func(*ecs.World) {}))
		return err
	})
	a.Driver.Executor().Wait()
	last := j.last()
	assert.Equal(t, async.LifecycleFailed, last.Event)
	assert.Contains(t, last.Err, async.ErrDriverClosed.Error())
}

func TestCloseCancelsParkedRoutines(t *testing.T) {
	a := newApp(t, app.Options{})
	res := make(chan error, 1)
	a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		_, err := async.Run(ctx, s, system.PhaseUpdate, wait.UntilFunc(func(*ecs.World) bool { return false }))
		res <- err
		return err
	})
	a.Update()
	a.Close()
	assert.ErrorIs(t, recv(t, res), async.ErrCanceled)
}

func TestSettleTimeout(t *testing.T) {
	const timeout = 300 * time.Millisecond
	m := metrics.NewUnregistered()
	a := newApp(t, app.Options{Metrics: m, SettleTimeout: timeout})

	release := make(chan struct{})
	ran := make(chan struct{}, 1)
	a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		<-release
		_, err := async.Run(ctx, s, system.PhaseUpdate, once.Do(func(*ecs.World) {
			ran <- struct{}{}
		}))
		return err
	})

	start := time.Now()
	a.Update()
	assert.GreaterOrEqual(t, time.Since(start), timeout, "first drain waits for the new routine")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SettleTimeouts))
	assert.Zero(t, a.Driver.Executor().Running(), "straggler released")

	for i := 0; i < 2; i++ {
		start = time.Now()
		a.Update()
		assert.Less(t, time.Since(start), timeout/2, "update %d must not wait for a blocked routine", i+2)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SettleTimeouts))

	// once it parks again the routine is served as usual
	close(release)
	for i := 0; i < 100; i++ {
		a.Update()
		select {
		case <-ran:
			return
		default:
			time.Sleep(time.Millisecond)
		}
	}
	t.Fatal("released routine never got its system run")
}

func TestSpawnDeferred(t *testing.T) {
	a := newApp(t, app.Options{})
	spawned := false
	a.Register(system.Each(system.PhaseUpdate, system.Do(func(w *ecs.World) {
		if spawned {
			return
		}
		spawned = true
		async.SpawnDeferred(w, func(ctx context.Context, s *async.Scheduler) error {
			_, err := async.Run(ctx, s, system.PhaseUpdate, once.Do(func(*ecs.World) {}))
			return err
		})
		assert.Zero(t, ecs.Components[async.RoutineHandle](w).Len(), "not spawned mid-phase")
	})))

	a.Update()
	handles := ecs.Components[async.RoutineHandle](a.World)
	assert.Equal(t, 1, handles.Len())
	a.Update()
	a.Update()
	assert.Zero(t, handles.Len())
}

func TestAwaitAfterCancelIsCanceled(t *testing.T) {
	a := newApp(t, app.Options{})
	runs := 0
	res := make(chan error, 1)
	a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		f := async.AddSystem(s, system.PhaseUpdate, once.Do(func(*ecs.World) { runs++ }))
		f.Cancel()
		_, err := f.Await(ctx)
		res <- err
		return nil
	})
	a.Update()
	err := recv(t, res)
	assert.True(t, errors.Is(err, async.ErrCanceled))
	a.Update()
	assert.Zero(t, runs, "canceled before install, never run")
}

func TestStartupPhaseRejected(t *testing.T) {
	j := &journal{}
	a := newApp(t, app.Options{Recorder: j})
	a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		_, err := async.Run(ctx, s, system.PhaseStartup, once.Do(func(*ecs.World) {}))
		return err
	})
	a.Update()
	last := j.last()
	assert.Equal(t, async.LifecycleFailed, last.Event)
	assert.Contains(t, last.Err, async.ErrInvalidPhase.Error())
}

func TestOutputEventValueReusedAcrossInstalls(t *testing.T) {
	a := newApp(t, app.Options{})
	event.Add[int](a.Runner)
	shared := wait.OutputEvent[int]()

	res := make(chan int, 2)
	for i := 0; i < 2; i++ {
		a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
			v, err := async.Run(ctx, s, system.PhaseUpdate, shared)
			res <- v
			return err
		})
	}

	a.Update()
	event.Send(a.World, 5)
	a.Update()
	assert.Equal(t, 5, recv(t, res))
	assert.Equal(t, 5, recv(t, res), "each install reads with its own cursor")
}

func TestClosedBeforeRunHasNoSideEffects(t *testing.T) {
	m := metrics.NewUnregistered()
	a := newApp(t, app.Options{Metrics: m})
	runs := 0
	before := a.Runner.Len(system.PhaseUpdate)

	a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		async.AddSystem(s, system.PhaseUpdate, once.Do(func(*ecs.World) { runs++ })).Cancel()
		async.AddSystem(s, system.PhaseUpdate, delay.Frames(1)).Cancel()
		async.AddSystem(s, system.PhaseUpdate, repeat.Times(2, system.Do(func(*ecs.World) { runs++ }))).Cancel()
		_, err := async.Run(ctx, s, system.PhasePostUpdate, delay.Frames(3))
		return err
	})

	for i := 0; i < 4; i++ {
		a.Update()
	}
	assert.Zero(t, runs)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdapterOutcomes.WithLabelValues("once", "abandoned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdapterOutcomes.WithLabelValues("delay.frames", "abandoned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdapterOutcomes.WithLabelValues("repeat.times", "abandoned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdapterOutcomes.WithLabelValues("delay.frames", "fulfilled")), "only the awaited delay")
	assert.Equal(t, before+1, a.Runner.Len(system.PhaseUpdate), "only the runner queue remains")
}
