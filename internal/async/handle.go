package async

import (
	"github.com/l1jgo/frametask/internal/core/ecs"
	"github.com/l1jgo/frametask/internal/core/system"
)

// RoutineHandle binds a routine's driving task to its entity. Despawning the
// entity removes the component, which cancels the routine and abandons its
// outputs, so entity deletion is the cancellation primitive.
type RoutineHandle struct {
	task *Task
}

func (h *RoutineHandle) Task() *Task { return h.task }

// Drop implements ecs.Dropper.
func (h *RoutineHandle) Drop() { h.task.Cancel() }

// sweepSystem despawns, with their children, handle entities whose routine
// finished. Phase 5 (Last).
type sweepSystem struct {
	finished []ecs.EntityID
}

func (s *sweepSystem) Phase() system.Phase { return system.PhaseLast }

func (s *sweepSystem) Update(w *ecs.World) {
	ecs.Components[RoutineHandle](w).Each(func(id ecs.EntityID, h *RoutineHandle) {
		if done, _ := h.task.Poll(); done {
			s.finished = append(s.finished, id)
		}
	})
	for _, id := range s.finished {
		w.DespawnRecursive(id)
	}
	s.finished = s.finished[:0]
}
