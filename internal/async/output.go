package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/l1jgo/frametask/internal/core/ecs"
)

var (
	// ErrClosed is returned when an adapter closed its output without a value.
	ErrClosed = errors.New("async: output closed without a value")
	// ErrCanceled is returned when the awaiting side was dropped or canceled.
	ErrCanceled = errors.New("async: canceled")
)

// output is a single-slot channel: at most one value is ever sent, and the
// channel is closed right after it. Dropping the receiving side is how a
// consumer cancels; the sending adapter observes it through IsClosed.
type output[T any] struct {
	ch       chan T
	mu       sync.Mutex
	closed   bool
	dropped  atomic.Bool
	dropOnce sync.Once
	dropCh   chan struct{}
	owner    *routine
}

func newOutput[T any](owner *routine) *output[T] {
	return &output[T]{
		ch:     make(chan T, 1),
		dropCh: make(chan struct{}),
		owner:  owner,
	}
}

func (o *output[T]) send(v T) bool {
	o.mu.Lock()
	if o.closed || o.dropped.Load() {
		o.mu.Unlock()
		return false
	}
	o.ch <- v
	o.closed = true
	close(o.ch)
	o.mu.Unlock()
	o.notify()
	return true
}

func (o *output[T]) close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.ch)
	o.mu.Unlock()
	o.notify()
}

func (o *output[T]) notify() {
	if o.owner != nil {
		o.owner.wake(o)
	}
}

// ready reports whether a receive would not block.
func (o *output[T]) ready() bool {
	if o.dropped.Load() {
		return true
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// drop wakes the owner like a send does, so a routine canceled from the frame
// side is counted as running until it parks again or returns.
func (o *output[T]) drop() {
	o.dropOnce.Do(func() {
		o.dropped.Store(true)
		close(o.dropCh)
		o.notify()
	})
}

// Sender is the adapter half of an output channel.
type Sender[T any] struct {
	out   *output[T]
	owner ecs.EntityID
}

// Send delivers v and closes the channel. It is a no-op that reports false
// once the channel was fulfilled, closed, or its receiver dropped.
func (s *Sender[T]) Send(v T) bool { return s.out.send(v) }

// Close closes the channel without a value. Closing twice is a no-op.
func (s *Sender[T]) Close() { s.out.close() }

// IsClosed reports whether nothing can be delivered anymore, either because
// the channel was fulfilled or closed, or because the receiver went away.
func (s *Sender[T]) IsClosed() bool {
	if s.out.dropped.Load() {
		return true
	}
	s.out.mu.Lock()
	defer s.out.mu.Unlock()
	return s.out.closed
}

// Owner is the handle entity of the routine that awaits this output, or the
// zero EntityID for channels made with NewOutput.
func (s *Sender[T]) Owner() ecs.EntityID { return s.owner }

// Receiver is the awaiting half of an output channel.
type Receiver[T any] struct {
	out *output[T]
}

// Recv blocks until a value arrives, the channel closes empty, the receiver
// is dropped, or ctx is done.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-r.out.ch:
		if !ok {
			return zero, ErrClosed
		}
		return v, nil
	case <-r.out.dropCh:
		// a value may have raced the drop
		select {
		case v, ok := <-r.out.ch:
			if ok {
				return v, nil
			}
		default:
		}
		return zero, ErrCanceled
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	}
}

// Drop abandons the channel. Pending and future sends become no-ops.
func (r *Receiver[T]) Drop() { r.out.drop() }

// NewOutput creates a channel pair that is not tied to any routine.
func NewOutput[T any]() (*Sender[T], *Receiver[T]) {
	o := newOutput[T](nil)
	return &Sender[T]{out: o}, &Receiver[T]{out: o}
}
