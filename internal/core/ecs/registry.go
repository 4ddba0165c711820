package ecs

import "reflect"

// Registry tracks all component stores, keyed by component type, and supports
// bulk cleanup on despawn.
type Registry struct {
	stores map[reflect.Type]Removable
	order  []Removable
}

func NewRegistry() *Registry {
	return &Registry{
		stores: make(map[reflect.Type]Removable, 16),
		order:  make([]Removable, 0, 16),
	}
}

// Register adds a component store to the registry under its component type.
func Register[T any](r *Registry, store *Store[T]) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if _, ok := r.stores[t]; ok {
		return
	}
	r.stores[t] = store
	r.order = append(r.order, store)
}

// Components returns the store for T, creating and registering it on first use.
func Components[T any](w *World) *Store[T] {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if s, ok := w.registry.stores[t]; ok {
		return s.(*Store[T])
	}
	s := NewStore[T]()
	Register(w.registry, s)
	return s
}

// RemoveAll clears the given entity from every registered component store.
func (r *Registry) RemoveAll(id EntityID) {
	for _, s := range r.order {
		s.Remove(id)
	}
}
