package async

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/l1jgo/frametask/internal/core/ecs"
	"github.com/l1jgo/frametask/internal/core/system"
	"github.com/l1jgo/frametask/internal/metrics"
)

// Options configures a Driver.
type Options struct {
	// QueueSize bounds the schedule command channel.
	QueueSize int
	// SettleTimeout bounds how long each drain waits for resumed routines to
	// park. Zero drains immediately.
	SettleTimeout time.Duration
	Log           *zap.Logger
	Metrics       *metrics.Metrics
	Recorder      Recorder
	Clock         clockwork.Clock
	// Context parents every routine context.
	Context context.Context
}

func (o *Options) fill() {
	if o.QueueSize <= 0 {
		o.QueueSize = 100
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewUnregistered()
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Context == nil {
		o.Context = context.Background()
	}
}

type markerKey struct {
	phase system.Phase
	name  string
}

// Driver is the frame-side end of the bridge. It is the first system of
// PhaseFirst: each tick it lets resumed routines settle, then drains the
// command queue and installs every command against the world. It also owns
// the per-phase runner queues and install-once markers.
type Driver struct {
	runner  *system.Runner
	queue   *CommandQueue
	exec    *Executor
	runners map[system.Phase]*runnerQueue
	markers map[markerKey]struct{}
	settle  time.Duration
	ctx     context.Context
	log     *zap.Logger
	metrics *metrics.Metrics
	closed  bool
}

func newDriver(r *system.Runner, opts Options) *Driver {
	opts.fill()
	return &Driver{
		runner:  r,
		queue:   NewCommandQueue(opts.QueueSize),
		exec:    NewExecutor(opts.Log, opts.Metrics, opts.Recorder, opts.Clock),
		runners: make(map[system.Phase]*runnerQueue),
		markers: make(map[markerKey]struct{}),
		settle:  opts.SettleTimeout,
		ctx:     opts.Context,
		log:     opts.Log,
		metrics: opts.Metrics,
	}
}

func (d *Driver) Phase() system.Phase { return system.PhaseFirst }

func (d *Driver) Update(_ *ecs.World) {
	if d.closed {
		return
	}
	if !d.exec.Settle(d.settle) {
		d.metrics.SettleTimeouts.Inc()
	}
	d.metrics.CommandsPending.Set(float64(d.queue.Len()))
	d.queue.Drain(d.install)
}

func (d *Driver) install(cmd Command) {
	cmd.Install(d)
}

// World returns the world commands are installed into.
func (d *Driver) World() *ecs.World { return d.runner.World() }

// Executor returns the executor running routine bodies.
func (d *Driver) Executor() *Executor { return d.exec }

func (d *Driver) Log() *zap.Logger { return d.log }

// Queue returns the command channel routines send into.
func (d *Driver) Queue() *CommandQueue { return d.queue }

// Installed counts an installation for metrics; commands call it from Install.
func (d *Driver) Installed(phase system.Phase, kind string) {
	d.metrics.CommandsInstalled.WithLabelValues(phase.String(), kind).Inc()
}

// Retired records why an adapter left the schedule.
func (d *Driver) Retired(kind string, o Outcome) {
	d.metrics.AdapterOutcomes.WithLabelValues(kind, string(o)).Inc()
}

// AddSystem installs s into the persistent schedule.
func (d *Driver) AddSystem(s system.System) {
	d.runner.Register(s)
}

// Enqueue adds r to phase's main-thread queue, installing the queue's runner
// system the first time phase is used.
func (d *Driver) Enqueue(phase system.Phase, r Runnable) {
	q, ok := d.runners[phase]
	if !ok {
		q = &runnerQueue{phase: phase, d: d}
		d.runners[phase] = q
		d.runner.AddFirst(&runnerSystem{q: q})
		d.log.Debug("runner queue installed", zap.Stringer("phase", phase))
	}
	q.push(r)
}

// InstallOnce runs install the first time it is called for (phase, name) and
// reports whether it did.
func (d *Driver) InstallOnce(phase system.Phase, name string, install func()) bool {
	k := markerKey{phase: phase, name: name}
	if _, ok := d.markers[k]; ok {
		return false
	}
	d.markers[k] = struct{}{}
	install()
	return true
}

// Close stops draining and cancels every live routine. Later command sends
// panic with ErrDriverClosed.
func (d *Driver) Close() {
	if d.closed {
		return
	}
	d.closed = true
	d.queue.Close()
	ecs.Components[RoutineHandle](d.World()).Each(func(_ ecs.EntityID, h *RoutineHandle) {
		h.task.Cancel()
	})
}
