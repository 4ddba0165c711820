package event

import (
	"github.com/l1jgo/frametask/internal/core/ecs"
	"github.com/l1jgo/frametask/internal/core/system"
)

// Events is a double-buffered queue of T. Events sent in tick N stay readable
// through tick N+1; Update, called once at tick start, drops the older buffer.
// Every event gets a sequence id so independent Readers track what they have
// seen.
type Events[T any] struct {
	older      []T
	newer      []T
	olderStart uint64
	newerStart uint64
	count      uint64
}

// Send appends ev to the current buffer.
func (e *Events[T]) Send(ev T) {
	e.newer = append(e.newer, ev)
	e.count++
}

// Update rotates newer->older and starts an empty current buffer.
func (e *Events[T]) Update() {
	clear(e.older)
	e.older, e.newer = e.newer, e.older[:0]
	e.olderStart = e.newerStart
	e.newerStart = e.count
}

// Len returns how many events are still buffered.
func (e *Events[T]) Len() int { return len(e.older) + len(e.newer) }

// Reader is a per-consumer cursor over an Events queue.
type Reader[T any] struct {
	next uint64
}

func (r *Reader[T]) from(e *Events[T]) uint64 {
	if r.next < e.olderStart {
		return e.olderStart
	}
	return r.next
}

// Len reports how many events r has not seen yet.
func (r *Reader[T]) Len(e *Events[T]) int {
	return int(e.count - r.from(e))
}

// IsEmpty reports whether r has no unseen events.
func (r *Reader[T]) IsEmpty(e *Events[T]) bool { return r.Len(e) == 0 }

// Read returns the unseen events, oldest first, and marks them seen.
func (r *Reader[T]) Read(e *Events[T]) []T {
	from := r.from(e)
	out := make([]T, 0, e.count-from)
	for i, ev := range e.older {
		if e.olderStart+uint64(i) >= from {
			out = append(out, ev)
		}
	}
	for i, ev := range e.newer {
		if e.newerStart+uint64(i) >= from {
			out = append(out, ev)
		}
	}
	r.next = e.count
	return out
}

// Clear marks everything currently buffered as seen.
func (r *Reader[T]) Clear(e *Events[T]) { r.next = e.count }

// Add installs the Events[T] resource and its per-tick update system.
// Adding the same type twice is a no-op.
func Add[T any](r *system.Runner) *Events[T] {
	w := r.World()
	if e, ok := ecs.Resource[Events[T]](w); ok {
		return e
	}
	e := ecs.InsertResource(w, Events[T]{})
	r.Register(&updateSystem[T]{})
	return e
}

// Of returns the world's Events[T], creating an unmanaged queue if no system
// registered it. Unmanaged queues are never rotated.
func Of[T any](w *ecs.World) *Events[T] {
	return ecs.InitResource[Events[T]](w)
}

// Send writes ev into the world's Events[T].
func Send[T any](w *ecs.World, ev T) {
	Of[T](w).Send(ev)
}

// updateSystem rotates Events[T] at tick start. Phase 1 (First).
type updateSystem[T any] struct{}

func (s *updateSystem[T]) Phase() system.Phase { return system.PhaseFirst }

func (s *updateSystem[T]) Update(w *ecs.World) {
	Of[T](w).Update()
}
