package system

import (
	"github.com/l1jgo/frametask/internal/core/ecs"
	coresys "github.com/l1jgo/frametask/internal/core/system"
)

// CleanupSystem flushes the deferred entity destruction queue at tick end.
// Phase 5 (Last).
type CleanupSystem struct{}

func NewCleanupSystem() *CleanupSystem {
	return &CleanupSystem{}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseLast }

func (s *CleanupSystem) Update(w *ecs.World) {
	w.FlushDestroyQueue()
}
