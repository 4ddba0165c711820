package async

import (
	"time"

	"github.com/google/uuid"

	"github.com/l1jgo/frametask/internal/core/ecs"
)

// LifecycleEvent names a routine state change.
type LifecycleEvent string

const (
	LifecycleSpawned   LifecycleEvent = "spawned"
	LifecycleCompleted LifecycleEvent = "completed"
	LifecycleCanceled  LifecycleEvent = "canceled"
	LifecycleFailed    LifecycleEvent = "failed"
)

// Lifecycle is one routine state change.
type Lifecycle struct {
	Routine uuid.UUID
	Entity  ecs.EntityID
	Event   LifecycleEvent
	Err     string
	At      time.Time
}

// Recorder receives lifecycle records. Record is called from routine
// goroutines and from the frame goroutine and must be safe for concurrent use.
type Recorder interface {
	Record(Lifecycle)
}

type nopRecorder struct{}

func (nopRecorder) Record(Lifecycle) {}
