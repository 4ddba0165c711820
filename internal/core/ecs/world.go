package ecs

// World is the top-level ECS container. It owns the entity pool, the component
// registry, the resource store and two deferred queues: commands applied at
// ApplyDeferred and entities destroyed at FlushDestroyQueue.
//
// A World is not safe for concurrent use. Everything outside the frame
// goroutine reaches it through deferred commands or the async driver.
type World struct {
	pool         *EntityPool
	registry     *Registry
	resources    map[resourceKey]any
	deferred     []func(*World)
	destroyQueue []EntityID
}

func NewWorld() *World {
	return &World{
		pool:         NewEntityPool(),
		registry:     NewRegistry(),
		resources:    make(map[resourceKey]any, 16),
		deferred:     make([]func(*World), 0, 16),
		destroyQueue: make([]EntityID, 0, 64),
	}
}

func (w *World) Pool() *EntityPool   { return w.pool }
func (w *World) Registry() *Registry { return w.registry }

// Spawn creates an empty entity.
func (w *World) Spawn() EntityID {
	return w.pool.Create()
}

func (w *World) Alive(id EntityID) bool {
	return w.pool.Alive(id)
}

// Despawn removes id and all of its components immediately. Children are
// detached, not removed; use DespawnRecursive for owned subtrees.
func (w *World) Despawn(id EntityID) bool {
	if !w.pool.Alive(id) {
		return false
	}
	detach(w, id)
	if ch, ok := Get[Children](w, id); ok {
		for _, c := range ch.ids {
			Components[Parent](w).Remove(c)
		}
	}
	w.registry.RemoveAll(id)
	w.pool.Destroy(id)
	return true
}

// DespawnRecursive removes id together with every descendant.
func (w *World) DespawnRecursive(id EntityID) bool {
	if !w.pool.Alive(id) {
		return false
	}
	detach(w, id)
	w.despawnTree(id)
	return true
}

func (w *World) despawnTree(id EntityID) {
	if ch, ok := Get[Children](w, id); ok {
		ids := append([]EntityID(nil), ch.ids...)
		for _, c := range ids {
			w.despawnTree(c)
		}
	}
	w.registry.RemoveAll(id)
	w.pool.Destroy(id)
}

// Defer queues fn to run at the next ApplyDeferred.
func (w *World) Defer(fn func(*World)) {
	w.deferred = append(w.deferred, fn)
}

// ApplyDeferred runs queued commands in order. Commands queued while applying
// run in the same call.
func (w *World) ApplyDeferred() {
	for i := 0; i < len(w.deferred); i++ {
		w.deferred[i](w)
		w.deferred[i] = nil
	}
	w.deferred = w.deferred[:0]
}

// MarkForDestruction queues an entity (and its descendants) for end-of-tick
// cleanup.
func (w *World) MarkForDestruction(id EntityID) {
	w.destroyQueue = append(w.destroyQueue, id)
}

// FlushDestroyQueue destroys all queued entities. Called by CleanupSystem at
// the end of each tick.
func (w *World) FlushDestroyQueue() {
	for _, id := range w.destroyQueue {
		w.DespawnRecursive(id)
	}
	w.destroyQueue = w.destroyQueue[:0]
}
