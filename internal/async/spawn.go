package async

import (
	"context"
	"errors"
	"fmt"

	"github.com/l1jgo/frametask/internal/core/ecs"
	"github.com/l1jgo/frametask/internal/core/system"
)

// ErrInvalidPhase rejects adapters aimed at a phase that will not run again.
var ErrInvalidPhase = errors.New("async: phase cannot host adapters")

// Routine is the body of a spawned task. It runs on its own goroutine and
// reaches the world only through its Scheduler. ctx is canceled when the
// handle entity is despawned.
type Routine func(ctx context.Context, s *Scheduler) error

// Scheduler is a routine's view of the frame driver.
type Scheduler struct {
	queue  *CommandQueue
	rt     *routine
	entity ecs.EntityID
}

// Entity returns the routine's handle entity.
func (s *Scheduler) Entity() ecs.EntityID { return s.entity }

// AddSystem queues a for installation into phase and returns the future of
// its output. After the routine was canceled the future is already
// abandoned and nothing is queued.
//
// Installing into PhaseStartup, which has already run by the first drain, or
// into an unknown phase panics with ErrInvalidPhase.
func AddSystem[Out any](s *Scheduler, phase system.Phase, a Adapter[Out]) *Future[Out] {
	if phase == system.PhaseStartup || !phase.Valid() {
		panic(fmt.Errorf("add system to %s: %w", phase, ErrInvalidPhase))
	}
	o := newOutput[Out](s.rt)
	f := &Future[Out]{rx: &Receiver[Out]{out: o}, rt: s.rt}
	if !s.rt.track(o) {
		o.drop()
		return f
	}
	s.queue.Send(a.Command(&Sender[Out]{out: o, owner: s.entity}, phase))
	return f
}

// Run is AddSystem followed by Await.
func Run[Out any](ctx context.Context, s *Scheduler, phase system.Phase, a Adapter[Out]) (Out, error) {
	return AddSystem(s, phase, a).Await(ctx)
}

// Spawn starts body as a routine owned by a new handle entity and returns
// that entity. Frame goroutine only.
func (d *Driver) Spawn(body Routine) ecs.EntityID {
	w := d.World()
	id := w.Spawn()
	s := &Scheduler{queue: d.queue, entity: id}
	task := d.exec.spawn(d.ctx, id, func(ctx context.Context, rt *routine) error {
		s.rt = rt
		return body(ctx, s)
	})
	ecs.Insert(w, id, RoutineHandle{task: task})
	return id
}

// Spawn starts body through the world's driver. Frame goroutine only.
func Spawn(w *ecs.World, body Routine) ecs.EntityID {
	return DriverOf(w).Spawn(body)
}

// SpawnDeferred queues the spawn on the world's command queue, for systems
// that must not create entities mid-iteration.
func SpawnDeferred(w *ecs.World, body Routine) {
	w.Defer(func(w *ecs.World) { Spawn(w, body) })
}
