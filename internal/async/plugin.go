package async

import (
	"github.com/l1jgo/frametask/internal/core/ecs"
	"github.com/l1jgo/frametask/internal/core/system"
)

type driverRef struct {
	d *Driver
}

// Install wires the bridge into r: the driver at the front of PhaseFirst and
// the routine sweep in PhaseLast. Installing twice returns the first driver.
func Install(r *system.Runner, opts Options) *Driver {
	w := r.World()
	if ref, ok := ecs.Resource[driverRef](w); ok {
		return ref.d
	}
	d := newDriver(r, opts)
	ecs.InsertResource(w, driverRef{d: d})
	r.AddFirst(d)
	r.Register(&sweepSystem{})
	return d
}

// DriverOf returns the driver installed into w.
func DriverOf(w *ecs.World) *Driver {
	return ecs.MustResource[driverRef](w).d
}
