package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/l1jgo/frametask/internal/core/ecs"
	"github.com/l1jgo/frametask/internal/metrics"
)

// ErrPanicked wraps a value recovered from a routine body.
var ErrPanicked = errors.New("async: routine panicked")

// pending is the type-erased view of an output a routine may await.
type pending interface {
	ready() bool
	drop()
}

// Executor runs routine bodies on their own goroutines and tracks which of
// them the frame driver should wait for: routines just spawned or resumed by
// a frame-side send, until they park in Future.Await or return. The driver
// uses that set to let resumed routines queue their next command before it
// drains. A routine that misses a settle window is not waited for again
// until it parks.
type Executor struct {
	log      *zap.Logger
	metrics  *metrics.Metrics
	recorder Recorder
	clock    clockwork.Clock

	mu      sync.Mutex
	pending map[*routine]struct{}
	idle    chan struct{} // closed while pending is empty

	wg sync.WaitGroup
}

func NewExecutor(log *zap.Logger, m *metrics.Metrics, rec Recorder, clock clockwork.Clock) *Executor {
	idle := make(chan struct{})
	close(idle)
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Executor{
		log:      log,
		metrics:  m,
		recorder: rec,
		clock:    clock,
		pending:  make(map[*routine]struct{}),
		idle:     idle,
	}
}

// inc and dec require e.mu.
func (e *Executor) inc(r *routine) {
	if _, ok := e.pending[r]; ok {
		return
	}
	if len(e.pending) == 0 {
		e.idle = make(chan struct{})
	}
	e.pending[r] = struct{}{}
}

func (e *Executor) dec(r *routine) {
	if _, ok := e.pending[r]; !ok {
		return
	}
	delete(e.pending, r)
	if len(e.pending) == 0 {
		close(e.idle)
	}
}

// Running returns how many routines the next Settle would wait for.
func (e *Executor) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Settle waits up to timeout for every woken routine to park or finish. On
// timeout the stragglers are released: later calls do not wait for them
// until they park and are woken again. It never waits when timeout <= 0.
func (e *Executor) Settle(timeout time.Duration) bool {
	e.mu.Lock()
	if len(e.pending) == 0 {
		e.mu.Unlock()
		return true
	}
	idle := e.idle
	e.mu.Unlock()
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-idle:
			return true
		case <-t.C:
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.pending)
	if n == 0 {
		return true
	}
	clear(e.pending)
	close(e.idle)
	e.log.Debug("settle timed out", zap.Int("routines", n), zap.Duration("timeout", timeout))
	return false
}

// Wait blocks until every routine goroutine has returned.
func (e *Executor) Wait() { e.wg.Wait() }

func (e *Executor) spawn(parent context.Context, entity ecs.EntityID, body func(context.Context, *routine) error) *Task {
	ctx, cancel := context.WithCancel(parent)
	rt := &routine{ex: e, outputs: make(map[pending]struct{})}
	t := &Task{
		id:     uuid.New(),
		entity: entity,
		done:   make(chan struct{}),
		cancel: cancel,
		rt:     rt,
	}

	e.mu.Lock()
	e.inc(rt)
	e.mu.Unlock()
	e.wg.Add(1)
	e.metrics.RoutinesActive.Inc()
	e.record(t, LifecycleSpawned, nil)
	e.log.Debug("routine spawned", zap.Stringer("routine", t.id), zap.Stringer("entity", entity))

	go e.run(ctx, t, body)
	return t
}

func (e *Executor) run(ctx context.Context, t *Task, body func(context.Context, *routine) error) {
	defer e.wg.Done()
	err := e.call(ctx, t, body)
	t.rt.dropAll()
	t.err = err

	ev := outcome(ctx, err)
	e.metrics.RoutinesActive.Dec()
	e.metrics.RoutinesFinished.WithLabelValues(string(ev)).Inc()
	e.record(t, ev, err)
	switch ev {
	case LifecycleFailed:
		e.log.Warn("routine failed", zap.Stringer("routine", t.id), zap.Stringer("entity", t.entity), zap.Error(err))
	default:
		e.log.Debug("routine finished", zap.Stringer("routine", t.id), zap.String("outcome", string(ev)))
	}

	close(t.done)
	t.cancel()
	e.mu.Lock()
	t.rt.awaiting = nil
	e.dec(t.rt)
	e.mu.Unlock()
}

func (e *Executor) call(ctx context.Context, t *Task, body func(context.Context, *routine) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, p)
			e.log.Error("routine panic", zap.Stringer("routine", t.id), zap.Any("panic", p), zap.Stack("stack"))
		}
	}()
	return body(ctx, t.rt)
}

func (e *Executor) record(t *Task, ev LifecycleEvent, err error) {
	l := Lifecycle{Routine: t.id, Entity: t.entity, Event: ev, At: e.clock.Now()}
	if err != nil {
		l.Err = err.Error()
	}
	e.recorder.Record(l)
}

func outcome(ctx context.Context, err error) LifecycleEvent {
	switch {
	case err == nil:
		return LifecycleCompleted
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return LifecycleCanceled
	default:
		return LifecycleFailed
	}
}

// routine is the executor-side state of one spawned body.
type routine struct {
	ex       *Executor
	awaiting pending // guarded by ex.mu

	mu       sync.Mutex
	outputs  map[pending]struct{}
	finished bool
}

// track registers an output the routine may later await. It reports false
// once the routine finished or was canceled.
func (r *routine) track(p pending) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return false
	}
	r.outputs[p] = struct{}{}
	return true
}

func (r *routine) untrack(p pending) {
	r.mu.Lock()
	delete(r.outputs, p)
	r.mu.Unlock()
}

// dropAll abandons every tracked output so the adapters behind them evict
// themselves on their next tick.
func (r *routine) dropAll() {
	r.mu.Lock()
	r.finished = true
	outs := r.outputs
	r.outputs = nil
	r.mu.Unlock()
	for p := range outs {
		p.drop()
	}
}

// park marks r as blocked on p. It reports false, leaving r pending, when p
// can already be received.
func (r *routine) park(p pending) bool {
	r.ex.mu.Lock()
	defer r.ex.mu.Unlock()
	if p.ready() {
		return false
	}
	r.awaiting = p
	r.ex.dec(r)
	return true
}

// wake is called by the sending side. Marking r pending before it is
// scheduled keeps the driver from draining ahead of r's next command.
func (r *routine) wake(p pending) {
	r.ex.mu.Lock()
	if r.awaiting == p {
		r.awaiting = nil
		r.ex.inc(r)
	}
	r.ex.mu.Unlock()
}

// resume is called by r itself after Await returns for any reason.
func (r *routine) resume() {
	r.ex.mu.Lock()
	if r.awaiting != nil {
		r.awaiting = nil
		r.ex.inc(r)
	}
	r.ex.mu.Unlock()
}

// Task is the driving task of one routine.
type Task struct {
	id     uuid.UUID
	entity ecs.EntityID
	done   chan struct{}
	err    error
	cancel context.CancelFunc
	rt     *routine
}

func (t *Task) ID() uuid.UUID         { return t.id }
func (t *Task) Entity() ecs.EntityID  { return t.entity }
func (t *Task) Done() <-chan struct{} { return t.done }

// Poll reports, without blocking, whether the routine finished and with
// which error.
func (t *Task) Poll() (bool, error) {
	select {
	case <-t.done:
		return true, t.err
	default:
		return false, nil
	}
}

// Cancel cancels the routine's context and abandons every output it still
// awaits. It does not wait for the body to return.
func (t *Task) Cancel() {
	t.cancel()
	t.rt.dropAll()
}
