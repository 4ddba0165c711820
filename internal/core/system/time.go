package system

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/l1jgo/frametask/internal/core/ecs"
)

// FrameCount counts completed ticks. It is incremented in PhaseLast, so a
// system reading it during tick k sees k-1 (0 on the first tick).
type FrameCount struct {
	N uint64
}

// Time is the per-tick wall clock resource. Delta is zero on the first tick.
type Time struct {
	Delta   time.Duration
	Elapsed time.Duration
	last    time.Time
}

// TimeSystem samples its clock at the start of every tick. Phase 1 (First).
type TimeSystem struct {
	clock clockwork.Clock
}

func NewTimeSystem(clock clockwork.Clock) *TimeSystem {
	return &TimeSystem{clock: clock}
}

func (s *TimeSystem) Phase() Phase { return PhaseFirst }

func (s *TimeSystem) Update(w *ecs.World) {
	t := ecs.InitResource[Time](w)
	now := s.clock.Now()
	if t.last.IsZero() {
		t.Delta = 0
	} else {
		t.Delta = now.Sub(t.last)
	}
	t.Elapsed += t.Delta
	t.last = now
}

// FrameCountSystem increments FrameCount. Phase 5 (Last).
type FrameCountSystem struct{}

func NewFrameCountSystem() *FrameCountSystem { return &FrameCountSystem{} }

func (s *FrameCountSystem) Phase() Phase { return PhaseLast }

func (s *FrameCountSystem) Update(w *ecs.World) {
	ecs.InitResource[FrameCount](w).N++
}
