// Package once provides adapters that run a system a single time.
package once

import (
	"github.com/l1jgo/frametask/internal/async"
	"github.com/l1jgo/frametask/internal/core/ecs"
	"github.com/l1jgo/frametask/internal/core/event"
	"github.com/l1jgo/frametask/internal/core/state"
	"github.com/l1jgo/frametask/internal/core/system"
)

const kind = "once"

// Run runs f on the next tick of the target phase and delivers its output,
// whatever it is.
func Run[Out any](f system.Func[Out]) async.Adapter[Out] {
	return adapter[Out]{sys: f}
}

// Do is Run for a plain effect function.
func Do(fn func(w *ecs.World)) async.Adapter[system.Unit] {
	return Run(system.Do(fn))
}

// SetState requests a transition of State[S] to to.
func SetState[S comparable](to S) async.Adapter[system.Unit] {
	return Do(func(w *ecs.World) {
		ecs.MustResource[state.State[S]](w).Set(to)
	})
}

// Send writes ev into the world's Events[E].
func Send[E any](ev E) async.Adapter[system.Unit] {
	return Do(func(w *ecs.World) {
		event.Send(w, ev)
	})
}

// AppExit sends event.AppExit with code 0.
func AppExit() async.Adapter[system.Unit] {
	return Send(event.AppExit{})
}

// InsertResource stores a copy of r, replacing any existing R.
func InsertResource[R any](r R) async.Adapter[system.Unit] {
	return Do(func(w *ecs.World) {
		ecs.InsertResource(w, r)
	})
}

// InitResource stores the zero R unless the world already has one.
func InitResource[R any]() async.Adapter[system.Unit] {
	return Do(func(w *ecs.World) {
		ecs.InitResource[R](w)
	})
}

type adapter[Out any] struct {
	sys system.Func[Out]
}

func (a adapter[Out]) Command(tx *async.Sender[Out], phase system.Phase) async.Command {
	return async.CommandFunc{Name: kind, Fn: func(d *async.Driver) {
		d.Installed(phase, kind)
		d.Enqueue(phase, &runner[Out]{lazy: system.NewLazy(a.sys), tx: tx, d: d})
	}}
}

type runner[Out any] struct {
	lazy *system.Lazy[Out]
	tx   *async.Sender[Out]
	d    *async.Driver
}

func (r *runner[Out]) Run(w *ecs.World) bool {
	if r.tx.IsClosed() {
		r.d.Retired(kind, async.OutcomeAbandoned)
		return true
	}
	r.tx.Send(r.lazy.Run(w))
	r.d.Retired(kind, async.OutcomeFulfilled)
	return true
}
