// Package delay provides adapters that finish after a number of frames or an
// amount of frame time.
package delay

import (
	"time"

	"github.com/l1jgo/frametask/internal/async"
	"github.com/l1jgo/frametask/internal/core/ecs"
	"github.com/l1jgo/frametask/internal/core/system"
)

const (
	kindFrames = "delay.frames"
	kindTimer  = "delay.timer"
)

// Frames finishes on the nth tick of phase after installation, the
// installation tick included when phase runs after PhaseFirst.
func Frames(n int) async.Adapter[system.Unit] {
	return framesAdapter{n: n}
}

type framesAdapter struct {
	n int
}

func (a framesAdapter) Command(tx *async.Sender[system.Unit], phase system.Phase) async.Command {
	return async.CommandFunc{Name: kindFrames, Fn: func(d *async.Driver) {
		d.Installed(phase, kindFrames)
		d.AddSystem(&framesSystem{phase: phase, n: a.n, tx: tx, d: d})
	}}
}

// framesSystem is a persistent schedule member that retires itself.
type framesSystem struct {
	phase system.Phase
	n     int
	count int
	done  bool
	tx    *async.Sender[system.Unit]
	d     *async.Driver
}

func (s *framesSystem) Phase() system.Phase { return s.phase }
func (s *framesSystem) Done() bool          { return s.done }

func (s *framesSystem) Update(_ *ecs.World) {
	if s.tx.IsClosed() {
		s.done = true
		s.d.Retired(kindFrames, async.OutcomeAbandoned)
		return
	}
	s.count++
	if s.count >= s.n {
		s.tx.Send(system.Unit{})
		s.done = true
		s.d.Retired(kindFrames, async.OutcomeFulfilled)
	}
}

// Timer finishes once the summed Time.Delta seen by phase since installation
// reaches d. The first tick after installation contributes its delta too.
func Timer(d time.Duration) async.Adapter[system.Unit] {
	return timerAdapter{dur: d}
}

// Countdown is the component of a timer entity. Timer entities are children
// of the routine's handle entity, so despawning the handle removes them.
type Countdown struct {
	Remaining time.Duration
	Phase     system.Phase
	tx        *async.Sender[system.Unit]
}

type timerAdapter struct {
	dur time.Duration
}

func (a timerAdapter) Command(tx *async.Sender[system.Unit], phase system.Phase) async.Command {
	return async.CommandFunc{Name: kindTimer, Fn: func(d *async.Driver) {
		d.Installed(phase, kindTimer)
		d.InstallOnce(phase, kindTimer, func() {
			d.AddSystem(&timerSystem{phase: phase, d: d})
		})
		w := d.World()
		var id ecs.EntityID
		if owner := tx.Owner(); w.Alive(owner) {
			id = ecs.SpawnChild(w, owner)
		} else {
			id = w.Spawn()
		}
		ecs.Insert(w, id, Countdown{Remaining: a.dur, Phase: phase, tx: tx})
	}}
}

// timerSystem ticks every timer entity of one phase.
type timerSystem struct {
	phase   system.Phase
	d       *async.Driver
	expired []ecs.EntityID
}

func (s *timerSystem) Phase() system.Phase { return s.phase }

func (s *timerSystem) Update(w *ecs.World) {
	var delta time.Duration
	if t, ok := ecs.Resource[system.Time](w); ok {
		delta = t.Delta
	}
	ecs.Components[Countdown](w).Each(func(id ecs.EntityID, c *Countdown) {
		if c.Phase != s.phase {
			return
		}
		if c.tx.IsClosed() {
			s.d.Retired(kindTimer, async.OutcomeAbandoned)
			s.expired = append(s.expired, id)
			return
		}
		c.Remaining -= delta
		if c.Remaining <= 0 {
			c.tx.Send(system.Unit{})
			s.d.Retired(kindTimer, async.OutcomeFulfilled)
			s.expired = append(s.expired, id)
		}
	})
	for _, id := range s.expired {
		w.Despawn(id)
	}
	s.expired = s.expired[:0]
}
