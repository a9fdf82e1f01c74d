// Package engine provides the population registry, the tick scheduler and
// the wall-clock loop that drives it.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Engine drives the simulation forward in wall-clock time.
type Engine struct {
	Tick        uint64        // Completed ticks (monotonic, never resets)
	TicksPerDay int           // Day boundary period
	Interval    time.Duration // Base tick interval; 0 runs as fast as possible
	MaxTicks    uint64        // Stop after this many ticks; 0 = until Stop

	// Callbacks, populated during setup.
	OnTick func(tick uint64) // Every tick
	OnDay  func(day uint64)  // Every TicksPerDay ticks, after OnTick

	running atomic.Bool

	mu    sync.Mutex
	speed float64 // Multiplier: 1.0 = Interval per tick, 0 = paused
}

// NewEngine creates an engine with default settings.
func NewEngine(ticksPerDay int) *Engine {
	return &Engine{
		TicksPerDay: ticksPerDay,
		Interval:    100 * time.Millisecond,
		speed:       1.0,
	}
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier; 0 pauses.
func (e *Engine) SetSpeed(v float64) error {
	if v < 0 {
		return fmt.Errorf("speed must be non-negative, got %g", v)
	}
	e.mu.Lock()
	e.speed = v
	e.mu.Unlock()
	return nil
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run starts the simulation loop. Blocks until Stop is called or MaxTicks is reached.
func (e *Engine) Run() {
	e.running.Store(true)
	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed(), "max_ticks", e.MaxTicks)

	for e.running.Load() {
		if e.MaxTicks > 0 && e.Tick >= e.MaxTicks {
			break
		}

		speed := e.Speed()
		if speed <= 0 {
			// Paused; sleep briefly and check again.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()

		e.step()

		if e.Interval > 0 {
			elapsed := time.Since(start)
			target := time.Duration(float64(e.Interval) / speed)
			if elapsed < target {
				time.Sleep(target - elapsed)
			}
		}
	}

	e.running.Store(false)
	slog.Info("simulation engine stopped", "tick", e.Tick)
}

// Stop halts the simulation loop after the current tick.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// step advances the simulation by one tick.
func (e *Engine) step() {
	e.Tick++

	if e.OnTick != nil {
		e.OnTick(e.Tick)
	}

	if e.TicksPerDay > 0 && e.Tick%uint64(e.TicksPerDay) == 0 && e.OnDay != nil {
		e.OnDay(e.Tick / uint64(e.TicksPerDay))
	}
}

// SimTime returns a human-readable simulation time from a tick number.
func SimTime(tick uint64, ticksPerDay int) string {
	if ticksPerDay < 1 {
		ticksPerDay = 1
	}
	day := tick / uint64(ticksPerDay)
	within := tick % uint64(ticksPerDay)
	minutes := within * 24 * 60 / uint64(ticksPerDay)
	return fmt.Sprintf("Day %d, %02d:%02d", day+1, minutes/60, minutes%60)
}
