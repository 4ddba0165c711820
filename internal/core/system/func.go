package system

import "github.com/l1jgo/frametask/internal/core/ecs"

// Unit is the output of systems run for their effects only.
type Unit = struct{}

// Func is a no-input, typed-output system. Init runs once against the world
// before the first Run; ApplyDeferred flushes effects the system queued.
type Func[Out any] interface {
	Init(w *ecs.World)
	Run(w *ecs.World) Out
	ApplyDeferred(w *ecs.World)
}

// Of wraps a plain function.
func Of[Out any](run func(w *ecs.World) Out) Func[Out] {
	return &funcSystem[Out]{run: run}
}

// Do wraps a function run for its effects.
func Do(run func(w *ecs.World)) Func[Unit] {
	return &funcSystem[Unit]{run: func(w *ecs.World) Unit {
		run(w)
		return Unit{}
	}}
}

// WithInit wraps run with a one-time initializer, for systems that cache
// resource pointers or register stores.
func WithInit[Out any](init func(w *ecs.World), run func(w *ecs.World) Out) Func[Out] {
	return &funcSystem[Out]{init: init, run: run}
}

type funcSystem[Out any] struct {
	init func(*ecs.World)
	run  func(*ecs.World) Out
}

func (f *funcSystem[Out]) Init(w *ecs.World) {
	if f.init != nil {
		f.init(w)
	}
}

func (f *funcSystem[Out]) Run(w *ecs.World) Out { return f.run(w) }

func (f *funcSystem[Out]) ApplyDeferred(w *ecs.World) { w.ApplyDeferred() }

// Maybe is an optional system output.
type Maybe[T any] struct {
	Value T
	OK    bool
}

func Some[T any](v T) Maybe[T] { return Maybe[T]{Value: v, OK: true} }

func None[T any]() Maybe[T] { return Maybe[T]{} }

// Lazy initializes its system on the first Run, so callers never observe an
// uninitialized system.
type Lazy[Out any] struct {
	sys         Func[Out]
	initialized bool
}

func NewLazy[Out any](sys Func[Out]) *Lazy[Out] {
	return &Lazy[Out]{sys: sys}
}

func (l *Lazy[Out]) Run(w *ecs.World) Out {
	if !l.initialized {
		l.sys.Init(w)
		l.sys.ApplyDeferred(w)
		l.initialized = true
	}
	out := l.sys.Run(w)
	l.sys.ApplyDeferred(w)
	return out
}

func (l *Lazy[Out]) Initialized() bool { return l.initialized }
