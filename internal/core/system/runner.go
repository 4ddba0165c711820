package system

import "github.com/l1jgo/frametask/internal/core/ecs"

// Runner executes systems in phase order each tick. Within a phase systems
// run in registration order, except those added with AddFirst.
type Runner struct {
	world   *ecs.World
	phases  [phaseCount][]System
	pending [phaseCount]pendingAdds
	active  Phase
	running bool
	ticks   uint64
}

type pendingAdds struct {
	front []System
	back  []System
}

func NewRunner(world *ecs.World) *Runner {
	return &Runner{world: world, active: -1}
}

func (r *Runner) World() *ecs.World { return r.world }

// Register appends s to its phase. A system registered into the phase that is
// currently running first runs the next time that phase runs.
func (r *Runner) Register(s System) {
	r.add(s, false)
}

// AddFirst places s ahead of every system already in its phase.
func (r *Runner) AddFirst(s System) {
	r.add(s, true)
}

func (r *Runner) add(s System, front bool) {
	p := s.Phase()
	if !p.Valid() {
		panic("system: invalid phase " + p.String())
	}
	if r.running && r.active == p {
		if front {
			r.pending[p].front = append(r.pending[p].front, s)
		} else {
			r.pending[p].back = append(r.pending[p].back, s)
		}
		return
	}
	if front {
		r.phases[p] = append([]System{s}, r.phases[p]...)
	} else {
		r.phases[p] = append(r.phases[p], s)
	}
}

// Len returns how many systems are scheduled in phase p.
func (r *Runner) Len(p Phase) int {
	return len(r.phases[p]) + len(r.pending[p].front) + len(r.pending[p].back)
}

// Ticks returns how many ticks have completed.
func (r *Runner) Ticks() uint64 { return r.ticks }

// Tick runs every phase once; PhaseStartup only runs on the first tick.
func (r *Runner) Tick() {
	for _, p := range Phases {
		if p == PhaseStartup && r.ticks > 0 {
			continue
		}
		r.TickPhase(p)
	}
	r.ticks++
}

// TickPhase runs only the systems of phase p, then applies deferred commands.
func (r *Runner) TickPhase(p Phase) {
	r.active, r.running = p, true
	list := r.phases[p]
	kept := list[:0]
	for _, s := range list {
		s.Update(r.world)
		if rt, ok := s.(Retirable); ok && rt.Done() {
			continue
		}
		kept = append(kept, s)
	}
	for i := len(kept); i < len(list); i++ {
		list[i] = nil
	}
	r.running, r.active = false, -1

	pend := &r.pending[p]
	if len(pend.front) > 0 {
		kept = append(append([]System(nil), pend.front...), kept...)
	}
	kept = append(kept, pend.back...)
	pend.front, pend.back = nil, nil
	r.phases[p] = kept

	r.world.ApplyDeferred()
}
