package state

import (
	"github.com/l1jgo/frametask/internal/core/ecs"
	"github.com/l1jgo/frametask/internal/core/system"
)

// State holds the current value of a state machine and an optional pending
// transition applied in PreUpdate.
type State[S comparable] struct {
	current S
	next    S
	pending bool
	changed bool
}

func (s *State[S]) Get() S { return s.current }

// Set requests a transition; the last request before PreUpdate wins.
func (s *State[S]) Set(next S) {
	s.next = next
	s.pending = true
}

// JustChanged reports whether the most recent transition pass changed the value.
func (s *State[S]) JustChanged() bool { return s.changed }

func (s *State[S]) apply() {
	s.changed = false
	if !s.pending {
		return
	}
	s.pending = false
	if s.next != s.current {
		s.current = s.next
		s.changed = true
	}
}

// Add installs State[S] starting at initial and its transition system.
func Add[S comparable](r *system.Runner, initial S) *State[S] {
	w := r.World()
	if s, ok := ecs.Resource[State[S]](w); ok {
		return s
	}
	s := ecs.InsertResource(w, State[S]{current: initial})
	r.Register(&transitionSystem[S]{})
	return s
}

// transitionSystem applies pending transitions. Phase 2 (PreUpdate).
type transitionSystem[S comparable] struct{}

func (t *transitionSystem[S]) Phase() system.Phase { return system.PhasePreUpdate }

func (t *transitionSystem[S]) Update(w *ecs.World) {
	if s, ok := ecs.Resource[State[S]](w); ok {
		s.apply()
	}
}
