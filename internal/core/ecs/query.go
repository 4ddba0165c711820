package ecs

// Each2 iterates over entities that have both component A and B.
// It iterates over the smaller store and checks the larger one.
func Each2[A, B any](sa *Store[A], sb *Store[B], fn func(EntityID, *A, *B)) {
	if sa.Len() <= sb.Len() {
		for id, a := range sa.data {
			if b, ok := sb.data[id]; ok {
				fn(id, a, b)
			}
		}
		return
	}
	for id, b := range sb.data {
		if a, ok := sa.data[id]; ok {
			fn(id, a, b)
		}
	}
}

// Query2 is Each2 over the world's stores for A and B.
func Query2[A, B any](w *World, fn func(EntityID, *A, *B)) {
	Each2(Components[A](w), Components[B](w), fn)
}

// Insert attaches c to id in the world's store for T.
func Insert[T any](w *World, id EntityID, c T) *T {
	p := &c
	Components[T](w).Set(id, p)
	return p
}

// Get returns id's component of type T.
func Get[T any](w *World, id EntityID) (*T, bool) {
	return Components[T](w).Get(id)
}
