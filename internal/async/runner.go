package async

import (
	"github.com/l1jgo/frametask/internal/core/ecs"
	"github.com/l1jgo/frametask/internal/core/system"
)

// runnerQueue holds the main-thread runnables of one phase. It is only
// touched from the frame goroutine.
type runnerQueue struct {
	phase system.Phase
	items []Runnable
	spare []Runnable
	d     *Driver
}

func (q *runnerQueue) push(r Runnable) {
	q.items = append(q.items, r)
	q.d.metrics.RunnerQueueDepth.WithLabelValues(q.phase.String()).Set(float64(len(q.items)))
}

// runnerSystem runs a phase's queue before the phase's own systems.
type runnerSystem struct {
	q *runnerQueue
}

func (s *runnerSystem) Phase() system.Phase { return s.q.phase }

func (s *runnerSystem) Update(w *ecs.World) {
	q := s.q
	items := q.items
	q.items = q.spare[:0]
	for i, r := range items {
		if !r.Run(w) {
			q.items = append(q.items, r)
		}
		items[i] = nil
	}
	q.spare = items[:0]
	q.d.metrics.RunnerQueueDepth.WithLabelValues(q.phase.String()).Set(float64(len(q.items)))
}
