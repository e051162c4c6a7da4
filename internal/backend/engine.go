package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/mini-city/internal/perfmon"
)

// Sample estimates.
const (
	memoryPerAgentMB = 0.1
	cpuPerMS         = 10.0
)

// Info reports which implementation is active.
type Info struct {
	BackendKind     Kind   `json:"backend_type"`
	NativeAvailable bool   `json:"native_available"`
	NativeActive    bool   `json:"native_active"`
	FallbackReason  string `json:"fallback_reason,omitempty"`
}

// AsyncResult carries the outcome of TickAsync.
type AsyncResult struct {
	Result TickResult
	Err    error
}

// Engine selects and drives one Backend, recording every tick in a
// performance monitor. Safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	impl   Backend
	params Params
	mon    *perfmon.Monitor
	log    *slog.Logger
	reason error // why native was not selected
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for selection and switch records.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// New builds the preferred implementation, falling back when native cannot
// be constructed. The returned Kind is the implementation actually in use.
// A nil monitor gets a default one.
func New(p Params, preferred Kind, mon *perfmon.Monitor, opts ...Option) (*Engine, Kind, error) {
	e := &Engine{params: p, mon: mon, log: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	if e.mon == nil {
		e.mon = perfmon.New(perfmon.DefaultWindow, perfmon.WithLogger(e.log))
	}

	if preferred == KindNative {
		impl, err := newNative(p)
		if err == nil {
			e.impl = impl
			e.log.Info("backend selected", "backend", KindNative)
			return e, KindNative, nil
		}
		e.reason = err
		e.log.Warn("native backend unavailable, using fallback", "err", err)
	} else if preferred != KindFallback {
		return nil, "", fmt.Errorf("%q: %w", preferred, ErrUnknownBackend)
	}

	impl, err := newFallback(p)
	if err != nil {
		return nil, "", fmt.Errorf("creating fallback backend: %w", err)
	}
	e.impl = impl
	if preferred == KindFallback {
		e.log.Info("backend selected", "backend", KindFallback)
	}
	return e, KindFallback, nil
}

// Kind returns the active implementation.
func (e *Engine) Kind() Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.impl.Kind()
}

// Info describes the active implementation.
func (e *Engine) Info() Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	info := Info{
		BackendKind:     e.impl.Kind(),
		NativeAvailable: NativeAvailable,
		NativeActive:    e.impl.Kind() == KindNative,
	}
	if e.reason != nil && !info.NativeActive {
		info.FallbackReason = e.reason.Error()
	}
	return info
}

// Switch migrates every agent into the other implementation. Switching to
// the active kind is a no-op. On failure the current backend stays active.
func (e *Engine) Switch(k Kind) error {
	if _, err := ParseKind(string(k)); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.impl.Kind() == k {
		return nil
	}
	next, err := newImpl(k, e.params)
	if err != nil {
		return fmt.Errorf("switching to %s: %w", k, err)
	}
	recs := e.impl.Export()
	next.Import(recs)
	e.log.Info("backend switched", "from", e.impl.Kind(), "to", k, "agents", len(recs))
	e.impl = next
	if k == KindNative {
		e.reason = nil
	}
	return nil
}

// Monitor returns the performance monitor fed by Tick.
func (e *Engine) Monitor() *perfmon.Monitor { return e.mon }

// AddCitizen adds a citizen to the active backend.
func (e *Engine) AddCitizen(p CitizenParams) ID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.impl.AddCitizen(p)
}

// AddBusiness adds a business to the active backend.
func (e *Engine) AddBusiness(p BusinessParams) ID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.impl.AddBusiness(p)
}

// AddGovernment adds a government to the active backend.
func (e *Engine) AddGovernment(p GovernmentParams) ID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.impl.AddGovernment(p)
}

// Reset replaces the active backend with an empty one of the same kind.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	impl, err := newImpl(e.impl.Kind(), e.params)
	if err != nil {
		return err
	}
	e.impl = impl
	e.mon.Reset()
	return nil
}

// Tick advances the backend by dt and records a performance sample.
func (e *Engine) Tick(dt float64) TickResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	res := e.impl.Tick(dt)
	elapsed := time.Since(start)

	ms := float64(elapsed) / float64(time.Millisecond)
	res.Sample = perfmon.Sample{
		UpdateTime: elapsed,
		MemoryMB:   float64(res.AgentsUpdated) * memoryPerAgentMB,
		CPUPercent: min(100, ms*cpuPerMS),
		AgentCount: res.AgentsUpdated,
	}
	e.mon.Record(res.Sample)
	return res
}

// TickAsync runs Tick on its own goroutine. The channel receives exactly one
// result; ctx cancelled before the tick starts yields ctx.Err().
func (e *Engine) TickAsync(ctx context.Context, dt float64) <-chan AsyncResult {
	out := make(chan AsyncResult, 1)
	go func() {
		defer close(out)
		if err := ctx.Err(); err != nil {
			out <- AsyncResult{Err: err}
			return
		}
		out <- AsyncResult{Result: e.Tick(dt)}
	}()
	return out
}

// Positions returns the active backend's positions.
func (e *Engine) Positions() []Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.impl.Positions()
}

// Stats returns the active backend's population summary.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.impl.Stats()
}
