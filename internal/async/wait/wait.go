// Package wait provides adapters that run a system every tick until it
// reports a result.
package wait

import (
	"github.com/l1jgo/frametask/internal/async"
	"github.com/l1jgo/frametask/internal/core/ecs"
	"github.com/l1jgo/frametask/internal/core/event"
	"github.com/l1jgo/frametask/internal/core/system"
)

// Until runs pred every tick and finishes on the first tick it returns true.
// pred never runs again after that.
func Until(pred system.Func[bool]) async.Adapter[system.Unit] {
	return adapter[system.Unit]{kind: "wait.until", build: func() system.Func[system.Maybe[system.Unit]] {
		return untilOutput{pred: pred}
	}}
}

// UntilFunc is Until for a plain predicate.
func UntilFunc(pred func(w *ecs.World) bool) async.Adapter[system.Unit] {
	return Until(system.Of(pred))
}

// UntilEvent finishes on the first tick an unseen E is buffered. Every
// installation reads with its own cursor.
func UntilEvent[E any]() async.Adapter[system.Unit] {
	return adapter[system.Unit]{kind: "wait.until", build: func() system.Func[system.Maybe[system.Unit]] {
		var rd event.Reader[E]
		return untilOutput{pred: system.Of(func(w *ecs.World) bool {
			return !rd.IsEmpty(event.Of[E](w))
		})}
	}}
}

// Output runs f every tick and delivers the first present value.
func Output[Out any](f system.Func[system.Maybe[Out]]) async.Adapter[Out] {
	return adapter[Out]{kind: "wait.output", build: func() system.Func[system.Maybe[Out]] { return f }}
}

// OutputEvent delivers the oldest unseen E once one is buffered. Every
// installation reads with its own cursor.
func OutputEvent[E any]() async.Adapter[E] {
	return adapter[E]{kind: "wait.output", build: func() system.Func[system.Maybe[E]] {
		var rd event.Reader[E]
		return system.Of(func(w *ecs.World) system.Maybe[E] {
			evs := rd.Read(event.Of[E](w))
			if len(evs) == 0 {
				return system.None[E]()
			}
			return system.Some(evs[0])
		})
	}}
}

// untilOutput lifts a predicate into the Maybe convention.
type untilOutput struct {
	pred system.Func[bool]
}

func (u untilOutput) Init(w *ecs.World)          { u.pred.Init(w) }
func (u untilOutput) ApplyDeferred(w *ecs.World) { u.pred.ApplyDeferred(w) }

func (u untilOutput) Run(w *ecs.World) system.Maybe[system.Unit] {
	if u.pred.Run(w) {
		return system.Some(system.Unit{})
	}
	return system.None[system.Unit]()
}

// adapter builds its system when the command installs, so per-install state
// such as event cursors is never shared between installations.
type adapter[Out any] struct {
	kind  string
	build func() system.Func[system.Maybe[Out]]
}

func (a adapter[Out]) Command(tx *async.Sender[Out], phase system.Phase) async.Command {
	return async.CommandFunc{Name: a.kind, Fn: func(d *async.Driver) {
		d.Installed(phase, a.kind)
		d.Enqueue(phase, &runner[Out]{kind: a.kind, lazy: system.NewLazy(a.build()), tx: tx, d: d})
	}}
}

type runner[Out any] struct {
	kind string
	lazy *system.Lazy[system.Maybe[Out]]
	tx   *async.Sender[Out]
	d    *async.Driver
}

func (r *runner[Out]) Run(w *ecs.World) bool {
	if r.tx.IsClosed() {
		r.d.Retired(r.kind, async.OutcomeAbandoned)
		return true
	}
	out := r.lazy.Run(w)
	if !out.OK {
		return false
	}
	r.tx.Send(out.Value)
	r.d.Retired(r.kind, async.OutcomeFulfilled)
	return true
}
