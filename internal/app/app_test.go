package app

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l1jgo/frametask/internal/async"
	"github.com/l1jgo/frametask/internal/async/delay"
	"github.com/l1jgo/frametask/internal/async/once"
	"github.com/l1jgo/frametask/internal/core/ecs"
	"github.com/l1jgo/frametask/internal/core/event"
	"github.com/l1jgo/frametask/internal/core/system"
)

// drive advances fc until the test ends so Run's ticker keeps firing.
func drive(t *testing.T, fc interface{ Advance(time.Duration) }, step time.Duration) {
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				fc.Advance(step)
				time.Sleep(time.Millisecond)
			}
		}
	}()
}

func TestRunStopsOnAppExit(t *testing.T) {
	fc := clockwork.NewFakeClock()
	a := New(Options{Clock: fc, SettleTimeout: 5 * time.Second})
	a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		if _, err := async.Run(ctx, s, system.PhaseUpdate, delay.Frames(2)); err != nil {
			return err
		}
		_, err := async.Run(ctx, s, system.PhaseUpdate, once.Send(event.AppExit{Code: 3}))
		return err
	})
	drive(t, fc, 10*time.Millisecond)

	code, err := a.Run(context.Background(), 10*time.Millisecond, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, uint64(3), a.Runner.Ticks())
}

func TestRunStopsAtFrameLimit(t *testing.T) {
	fc := clockwork.NewFakeClock()
	a := New(Options{Clock: fc})
	drive(t, fc, 10*time.Millisecond)

	code, err := a.Run(context.Background(), 10*time.Millisecond, 5)
	require.NoError(t, err)
	assert.Zero(t, code)
	assert.Equal(t, uint64(5), a.Runner.Ticks())
	assert.Equal(t, uint64(5), ecs.MustResource[system.FrameCount](a.World).N)
}

func TestRunCancelsRoutinesOnContextDone(t *testing.T) {
	fc := clockwork.NewFakeClock()
	a := New(Options{Clock: fc, SettleTimeout: 5 * time.Second})
	res := make(chan error, 1)
	a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		_, err := async.Run(ctx, s, system.PhaseUpdate, delay.Frames(1_000_000))
		res <- err
		return err
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Run(ctx, time.Second, 0)
	assert.ErrorIs(t, err, context.Canceled)

	select {
	case err := <-res:
		assert.ErrorIs(t, err, async.ErrCanceled)
	case <-time.After(5 * time.Second):
		t.Fatal("routine still running after Run returned")
	}
}

func TestTimeAdvancesWithClock(t *testing.T) {
	fc := clockwork.NewFakeClock()
	a := New(Options{Clock: fc})
	t.Cleanup(a.Close)

	a.Update()
	tm := ecs.MustResource[system.Time](a.World)
	assert.Zero(t, tm.Delta)

	fc.Advance(25 * time.Millisecond)
	a.Update()
	assert.Equal(t, 25*time.Millisecond, tm.Delta)
	assert.Equal(t, 25*time.Millisecond, tm.Elapsed)
}
