package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/l1jgo/frametask/internal/core/ecs"
	"github.com/l1jgo/frametask/internal/core/event"
	"github.com/l1jgo/frametask/internal/core/system"
)

// Engine wraps a single gopher-lua VM whose global functions can be run as
// systems. Frame goroutine access only: building a Predicate or Action is
// safe anywhere, running one is not.
type Engine struct {
	vm    *lua.LState
	log   *zap.Logger
	world *ecs.World // set for the duration of a call
}

// ScriptEvent is sent by scripts through emit(name, value).
type ScriptEvent struct {
	Name  string
	Value float64
}

// Blackboard is the world-side store scripts read and write through get/set.
type Blackboard struct {
	Values map[string]float64
}

func (b *Blackboard) Get(key string) float64 { return b.Values[key] }

func (b *Blackboard) Set(key string, v float64) {
	if b.Values == nil {
		b.Values = make(map[string]float64)
	}
	b.Values[key] = v
}

// NewEngine creates a Lua engine and loads every .lua file in dir. A missing
// dir yields an engine with no scripts.
func NewEngine(dir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	e.registerAPI()

	if dir != "" {
		if err := e.loadDir(dir); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load scripts: %w", err)
		}
	}
	return e, nil
}

// Install registers the ScriptEvent queue with r.
func (e *Engine) Install(r *system.Runner) {
	event.Add[ScriptEvent](r)
	ecs.InitResource[Blackboard](r.World())
}

func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// LoadString runs src as a chunk named name.
func (e *Engine) LoadString(name, src string) error {
	fn, err := e.vm.LoadString(src)
	if err != nil {
		return fmt.Errorf("compile %s: %w", name, err)
	}
	e.vm.Push(fn)
	if err := e.vm.PCall(0, lua.MultRet, nil); err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}

// Has reports whether a global function named fn exists.
func (e *Engine) Has(fn string) bool {
	_, ok := e.vm.GetGlobal(fn).(*lua.LFunction)
	return ok
}

// registerAPI exposes the world to scripts:
//
//	get(key) -> number      blackboard read
//	set(key, number)        blackboard write
//	emit(name, number)      send a ScriptEvent
func (e *Engine) registerAPI() {
	e.vm.SetGlobal("get", e.vm.NewFunction(func(L *lua.LState) int {
		key := L.CheckString(1)
		L.Push(lua.LNumber(e.blackboard(L).Get(key)))
		return 1
	}))
	e.vm.SetGlobal("set", e.vm.NewFunction(func(L *lua.LState) int {
		key := L.CheckString(1)
		v := L.CheckNumber(2)
		e.blackboard(L).Set(key, float64(v))
		return 0
	}))
	e.vm.SetGlobal("emit", e.vm.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		v := L.OptNumber(2, 0)
		e.mustWorld(L)
		event.Send(e.world, ScriptEvent{Name: name, Value: float64(v)})
		return 0
	}))
}

func (e *Engine) mustWorld(L *lua.LState) {
	if e.world == nil {
		L.RaiseError("world access outside a system run")
	}
}

func (e *Engine) blackboard(L *lua.LState) *Blackboard {
	e.mustWorld(L)
	return ecs.InitResource[Blackboard](e.world)
}

// frameTable packs the per-tick clocks passed as the only argument.
func (e *Engine) frameTable(w *ecs.World) *lua.LTable {
	t := e.vm.NewTable()
	t.RawSetString("frame", lua.LNumber(ecs.InitResource[system.FrameCount](w).N))
	tm := ecs.InitResource[system.Time](w)
	t.RawSetString("delta", lua.LNumber(tm.Delta.Seconds()))
	t.RawSetString("elapsed", lua.LNumber(tm.Elapsed.Seconds()))
	return t
}

// call runs the global fn with the frame table and returns its first result.
func (e *Engine) call(w *ecs.World, fn string) (lua.LValue, error) {
	f := e.vm.GetGlobal(fn)
	if f == lua.LNil {
		return lua.LNil, fmt.Errorf("lua function %s not found", fn)
	}
	e.world = w
	defer func() { e.world = nil }()

	if err := e.vm.CallByParam(lua.P{
		Fn:      f,
		NRet:    1,
		Protect: true,
	}, e.frameTable(w)); err != nil {
		return lua.LNil, fmt.Errorf("lua %s: %w", fn, err)
	}
	ret := e.vm.Get(-1)
	e.vm.Pop(1)
	return ret, nil
}

// Predicate runs fn each time the system runs and reports its truthiness.
// Errors are logged and read as false.
func (e *Engine) Predicate(fn string) system.Func[bool] {
	return system.Of(func(w *ecs.World) bool {
		ret, err := e.call(w, fn)
		if err != nil {
			e.log.Error("lua predicate error", zap.String("func", fn), zap.Error(err))
			return false
		}
		return lua.LVAsBool(ret)
	})
}

// Action runs fn for its effects.
func (e *Engine) Action(fn string) system.Func[system.Unit] {
	return system.Do(func(w *ecs.World) {
		if _, err := e.call(w, fn); err != nil {
			e.log.Error("lua action error", zap.String("func", fn), zap.Error(err))
		}
	})
}

// Number runs fn and reads its result as a number, absent when it returns nil.
func (e *Engine) Number(fn string) system.Func[system.Maybe[float64]] {
	return system.Of(func(w *ecs.World) system.Maybe[float64] {
		ret, err := e.call(w, fn)
		if err != nil {
			e.log.Error("lua number error", zap.String("func", fn), zap.Error(err))
			return system.None[float64]()
		}
		if n, ok := ret.(lua.LNumber); ok {
			return system.Some(float64(n))
		}
		return system.None[float64]()
	})
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
