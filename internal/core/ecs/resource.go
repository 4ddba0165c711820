package ecs

import "reflect"

type resourceKey = reflect.Type

func keyOf[T any]() resourceKey {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// InsertResource stores v as the world's singleton of type T, replacing any
// previous value.
func InsertResource[T any](w *World, v T) *T {
	p := &v
	w.resources[keyOf[T]()] = p
	return p
}

// InitResource stores the zero T unless one already exists.
func InitResource[T any](w *World) *T {
	if p, ok := Resource[T](w); ok {
		return p
	}
	var zero T
	return InsertResource(w, zero)
}

// Resource returns the world's singleton of type T.
func Resource[T any](w *World) (*T, bool) {
	v, ok := w.resources[keyOf[T]()]
	if !ok {
		return nil, false
	}
	return v.(*T), true
}

// MustResource is Resource for resources installed by plugins; a missing
// resource is a setup bug.
func MustResource[T any](w *World) *T {
	p, ok := Resource[T](w)
	if !ok {
		panic("ecs: missing resource " + keyOf[T]().String())
	}
	return p
}

func HasResource[T any](w *World) bool {
	_, ok := w.resources[keyOf[T]()]
	return ok
}

func RemoveResource[T any](w *World) {
	delete(w.resources, keyOf[T]())
}
