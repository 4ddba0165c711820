package async

import (
	"github.com/l1jgo/frametask/internal/core/ecs"
	"github.com/l1jgo/frametask/internal/core/system"
)

// Adapter turns repeated runs of a system into a single eventual Out. The
// constructors in the once, wait, delay and repeat packages return Adapters;
// the only consumer is AddSystem.
type Adapter[Out any] interface {
	Command(tx *Sender[Out], phase system.Phase) Command
}

// Runnable is work run once per tick from a phase's main-thread queue. Run
// reports true when the runnable is finished and must not run again.
type Runnable interface {
	Run(w *ecs.World) bool
}

// RunnableFunc adapts a function to Runnable.
type RunnableFunc func(w *ecs.World) bool

func (f RunnableFunc) Run(w *ecs.World) bool { return f(w) }

// Outcome labels why an adapter left the schedule.
type Outcome string

const (
	OutcomeFulfilled Outcome = "fulfilled"
	OutcomeAbandoned Outcome = "abandoned"
)
