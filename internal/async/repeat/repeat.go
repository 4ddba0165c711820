// Package repeat provides adapters that run a system once per tick a fixed
// number of times or until canceled.
package repeat

import (
	"github.com/l1jgo/frametask/internal/async"
	"github.com/l1jgo/frametask/internal/core/ecs"
	"github.com/l1jgo/frametask/internal/core/system"
)

// Times runs f once per tick, n times, and finishes right after the nth run.
// With n <= 0 it finishes on its first tick without running f.
func Times(n int, f system.Func[system.Unit]) async.Adapter[system.Unit] {
	return adapter{kind: "repeat.times", remaining: n, sys: f}
}

// Forever runs f once per tick and never delivers. Cancel the returned
// future, or despawn the routine, to stop it:
//
//	f := async.AddSystem(s, system.PhaseUpdate, repeat.Forever(sys))
//	// ...
//	f.Cancel()
func Forever(f system.Func[system.Unit]) async.Adapter[system.Unit] {
	return adapter{kind: "repeat.forever", remaining: -1, sys: f}
}

type adapter struct {
	kind      string
	remaining int // <0 means forever
	sys       system.Func[system.Unit]
}

func (a adapter) Command(tx *async.Sender[system.Unit], phase system.Phase) async.Command {
	return async.CommandFunc{Name: a.kind, Fn: func(d *async.Driver) {
		d.Installed(phase, a.kind)
		d.Enqueue(phase, &runner{
			kind:      a.kind,
			forever:   a.remaining < 0,
			remaining: max(a.remaining, 0),
			lazy:      system.NewLazy(a.sys),
			tx:        tx,
			d:         d,
		})
	}}
}

type runner struct {
	kind      string
	forever   bool
	remaining int
	lazy      *system.Lazy[system.Unit]
	tx        *async.Sender[system.Unit]
	d         *async.Driver
}

func (r *runner) Run(w *ecs.World) bool {
	if r.tx.IsClosed() {
		r.d.Retired(r.kind, async.OutcomeAbandoned)
		return true
	}
	if r.forever {
		r.lazy.Run(w)
		return false
	}
	if r.remaining > 0 {
		r.lazy.Run(w)
		r.remaining--
	}
	if r.remaining > 0 {
		return false
	}
	r.tx.Send(system.Unit{})
	r.d.Retired(r.kind, async.OutcomeFulfilled)
	return true
}
