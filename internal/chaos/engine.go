package chaos

import (
	"math/rand/v2"
	"time"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/adapter/enum"
	"cryptofutures/internal/errors"
	"cryptofutures/pkg/exception"
)

// Config controls chaos injection behavior.
type Config struct {
	Seed          uint64        `yaml:"seed"`
	DropRate      float64       `yaml:"drop_rate"`
	DuplicateRate float64       `yaml:"duplicate_rate"`
	ReorderWindow int           `yaml:"reorder_window"`
	MaxDelay      time.Duration `yaml:"max_delay"`
}

// Enabled reports whether the config changes the stream at all.
func (c Config) Enabled() bool {
	return c.DropRate > 0 || c.DuplicateRate > 0 || c.ReorderWindow > 1 || c.MaxDelay > 0
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return errors.Wrap(exception.ErrInvalidConfig, "drop_rate must be between 0 and 1")
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return errors.Wrap(exception.ErrInvalidConfig, "duplicate_rate must be between 0 and 1")
	}
	if c.ReorderWindow < 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "reorder_window must be >= 0")
	}
	if c.MaxDelay < 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "max_delay must be >= 0")
	}
	return nil
}

// Engine drops, duplicates, reorders and delays user stream events.
// Lifecycle events pass through untouched.
type Engine struct {
	cfg     Config
	rng     *rand.Rand
	pending []adapter.RawEvent
}

// NewEngine creates a chaos engine with validation.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReorderWindow == 0 {
		cfg.ReorderWindow = 1
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UTC().UnixNano())
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed)),
	}, nil
}

// Process applies chaos to a single event and returns any output events.
func (e *Engine) Process(ev adapter.RawEvent) []adapter.RawEvent {
	if e == nil || ev.Kind == enum.EventKindLifecycle {
		return []adapter.RawEvent{ev}
	}
	if e.shouldDrop() {
		return nil
	}
	ev = e.applyDelay(ev)
	if e.cfg.ReorderWindow <= 1 {
		return e.applyDuplicate(ev)
	}
	e.pending = append(e.pending, ev)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	idx := e.rng.IntN(len(e.pending))
	out := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return e.applyDuplicate(out)
}

// Flush returns any buffered events after processing completes.
func (e *Engine) Flush() []adapter.RawEvent {
	if e == nil || len(e.pending) == 0 {
		return nil
	}
	out := make([]adapter.RawEvent, 0, len(e.pending))
	for len(e.pending) > 0 {
		idx := e.rng.IntN(len(e.pending))
		ev := e.pending[idx]
		e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
		out = append(out, e.applyDuplicate(ev)...)
	}
	return out
}

func (e *Engine) shouldDrop() bool {
	return e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate
}

func (e *Engine) applyDuplicate(ev adapter.RawEvent) []adapter.RawEvent {
	out := []adapter.RawEvent{ev}
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		out = append(out, ev)
	}
	return out
}

// applyDelay shifts the event time as if the exchange had sent it late.
func (e *Engine) applyDelay(ev adapter.RawEvent) adapter.RawEvent {
	if e.cfg.MaxDelay <= 0 {
		return ev
	}
	delay := time.Duration(e.rng.Int64N(e.cfg.MaxDelay.Nanoseconds() + 1))
	if delay == 0 || ev.EventTime.IsZero() {
		return ev
	}
	ev.EventTime = ev.EventTime.Add(delay)
	return ev
}
