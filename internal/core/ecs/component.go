package ecs

// Removable is implemented by all component stores so the Registry can
// bulk-remove an entity's data from every store on despawn.
type Removable interface {
	Remove(id EntityID)
}

// Dropper is implemented by components that own resources outside the world
// (goroutines, channels). Drop runs when the component leaves its store,
// whether by explicit removal, replacement or despawn.
type Dropper interface {
	Drop()
}

// Store is a generic typed map store for ECS components.
type Store[T any] struct {
	data map[EntityID]*T
}

func NewStore[T any]() *Store[T] {
	return &Store[T]{
		data: make(map[EntityID]*T, 64),
	}
}

// Set attaches c to id, dropping any component it replaces.
func (s *Store[T]) Set(id EntityID, c *T) {
	if old, ok := s.data[id]; ok && old != c {
		drop(old)
	}
	s.data[id] = c
}

func (s *Store[T]) Get(id EntityID) (*T, bool) {
	c, ok := s.data[id]
	return c, ok
}

func (s *Store[T]) Remove(id EntityID) {
	c, ok := s.data[id]
	if !ok {
		return
	}
	delete(s.data, id)
	drop(c)
}

func (s *Store[T]) Has(id EntityID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *Store[T]) Len() int {
	return len(s.data)
}

// Each visits every component. fn may remove the visited entity; other
// mutations of the store during iteration are not allowed.
func (s *Store[T]) Each(fn func(EntityID, *T)) {
	for id, c := range s.data {
		fn(id, c)
	}
}

func drop[T any](c *T) {
	if d, ok := any(c).(Dropper); ok {
		d.Drop()
	}
}
