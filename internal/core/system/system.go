package system

import "github.com/l1jgo/frametask/internal/core/ecs"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseStartup    Phase = iota // 0: first tick only
	PhaseFirst                   // 1: clocks, event buffers, async command drain
	PhasePreUpdate               // 2: state transitions, input
	PhaseUpdate                  // 3: game logic
	PhasePostUpdate              // 4: follow-up logic
	PhaseLast                    // 5: frame counter, routine sweep, cleanup
	phaseCount
)

// Phases lists every phase in execution order.
var Phases = [...]Phase{PhaseStartup, PhaseFirst, PhasePreUpdate, PhaseUpdate, PhasePostUpdate, PhaseLast}

func (p Phase) String() string {
	switch p {
	case PhaseStartup:
		return "Startup"
	case PhaseFirst:
		return "First"
	case PhasePreUpdate:
		return "PreUpdate"
	case PhaseUpdate:
		return "Update"
	case PhasePostUpdate:
		return "PostUpdate"
	case PhaseLast:
		return "Last"
	default:
		return "Unknown"
	}
}

func (p Phase) Valid() bool { return p >= PhaseStartup && p < phaseCount }

// System is the interface every persistent schedule member implements.
type System interface {
	Phase() Phase
	Update(w *ecs.World)
}

// Retirable systems leave the schedule once Done reports true after a run.
type Retirable interface {
	Done() bool
}

// Each adapts a unit function into a persistent System of the given phase.
func Each(phase Phase, f Func[Unit]) System {
	return &eachSystem{phase: phase, lazy: NewLazy(f)}
}

type eachSystem struct {
	phase Phase
	lazy  *Lazy[Unit]
}

func (s *eachSystem) Phase() Phase        { return s.phase }
func (s *eachSystem) Update(w *ecs.World) { s.lazy.Run(w) }
