package async_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l1jgo/frametask/internal/async"
)

func panicErr(t *testing.T, fn func()) (err error) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		e, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		err = e
	}()
	fn()
	return nil
}

func noop(name string) async.Command {
	return async.CommandFunc{Name: name, Fn: func(*async.Driver) {}}
}

func TestCommandQueueFullPanics(t *testing.T) {
	q := async.NewCommandQueue(2)
	q.Send(noop("a"))
	q.Send(noop("b"))

	err := panicErr(t, func() { q.Send(noop("c")) })
	assert.True(t, errors.Is(err, async.ErrCommandQueueFull))
	assert.Equal(t, 2, q.Len())
}

func TestCommandQueueClosedPanics(t *testing.T) {
	q := async.NewCommandQueue(4)
	q.Close()
	q.Close()

	err := panicErr(t, func() { q.Send(noop("late")) })
	assert.True(t, errors.Is(err, async.ErrDriverClosed))
}

func TestCommandQueueDrainIsNonBlocking(t *testing.T) {
	q := async.NewCommandQueue(8)
	assert.Zero(t, q.Drain(func(async.Command) { t.Fatal("nothing queued") }))

	q.Send(noop("a"))
	q.Send(noop("b"))
	var kinds []string
	n := q.Drain(func(c async.Command) {
		kinds = append(kinds, c.Kind())
		// sent while draining: left for the next drain
		if c.Kind() == "a" {
			q.Send(noop("c"))
		}
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, kinds)
	assert.Equal(t, 1, q.Len())
}
