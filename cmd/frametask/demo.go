package main

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/frametask/internal/app"
	"github.com/l1jgo/frametask/internal/async"
	"github.com/l1jgo/frametask/internal/async/delay"
	"github.com/l1jgo/frametask/internal/async/once"
	"github.com/l1jgo/frametask/internal/async/repeat"
	"github.com/l1jgo/frametask/internal/async/wait"
	"github.com/l1jgo/frametask/internal/core/ecs"
	"github.com/l1jgo/frametask/internal/core/system"
	"github.com/l1jgo/frametask/internal/scripting"
)

//go:embed demo.lua
var demoLua string

// loadDemoScripts loads the built-in walker unless the script dir already
// defines it.
func loadDemoScripts(e *scripting.Engine) error {
	if e.Has("move") && e.Has("arrived") {
		return nil
	}
	return e.LoadString("demo.lua", demoLua)
}

// spawnDemo starts the demo routines: a scripted walk, then a timer loop,
// then app exit; and alongside, a repeat-forever system canceled by dropping
// its future.
func spawnDemo(a *app.App, lua *scripting.Engine, log *zap.Logger) {
	a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		log := log.With(zap.Stringer("entity", s.Entity()))

		_, err := async.Run(ctx, s, system.PhasePreUpdate, once.Do(func(w *ecs.World) {
			bb := ecs.InitResource[scripting.Blackboard](w)
			bb.Set("walker.speed", 2)
			bb.Set("walker.goal", 1)
		}))
		if err != nil {
			return fmt.Errorf("setup walker: %w", err)
		}

		walk := async.AddSystem(s, system.PhaseUpdate, repeat.Forever(lua.Action("move")))
		if _, err := async.Run(ctx, s, system.PhaseUpdate, wait.Until(lua.Predicate("arrived"))); err != nil {
			return fmt.Errorf("walk: %w", err)
		}
		walk.Cancel()
		log.Info("walker arrived")

		for i := 1; i <= 3; i++ {
			if _, err := async.Run(ctx, s, system.PhaseUpdate, delay.Timer(250*time.Millisecond)); err != nil {
				return fmt.Errorf("timer %d: %w", i, err)
			}
			ev := scripting.ScriptEvent{Name: "timer", Value: float64(i)}
			if _, err := async.Run(ctx, s, system.PhaseUpdate, once.Send(ev)); err != nil {
				return err
			}
			log.Info("timer fired", zap.Int("n", i))
		}

		frame, err := async.Run(ctx, s, system.PhaseLast, once.Run(system.Of(func(w *ecs.World) uint64 {
			return ecs.MustResource[system.FrameCount](w).N
		})))
		if err != nil {
			return err
		}
		log.Info("requesting exit", zap.Uint64("frame", frame))
		_, err = async.Run(ctx, s, system.PhaseUpdate, once.AppExit())
		return err
	})

	a.Spawn(func(ctx context.Context, s *async.Scheduler) error {
		ticks := 0
		spin := async.AddSystem(s, system.PhasePostUpdate, repeat.Forever(system.Do(func(*ecs.World) {
			ticks++
		})))
		if _, err := async.Run(ctx, s, system.PhasePostUpdate, delay.Frames(30)); err != nil {
			return err
		}
		spin.Cancel()

		ev, err := async.Run(ctx, s, system.PhaseUpdate, wait.OutputEvent[scripting.ScriptEvent]())
		if err != nil {
			return err
		}
		log.Info("spinner stopped", zap.Int("ticks", ticks), zap.String("first_event", ev.Name))
		return nil
	})
}
