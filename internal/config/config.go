// Package config holds the simulation configuration, its defaults, and
// YAML loading.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CityConfig groups the city layout and initial population.
type CityConfig struct {
	Name           string  `yaml:"name"`
	Width          float64 `yaml:"width"`          // city extent on x (must be > 0)
	Height         float64 `yaml:"height"`         // city extent on y (must be > 0)
	Seed           int64   `yaml:"seed"`           // 0 = seed from crypto/rand
	Citizens       int     `yaml:"citizens"`       // initial citizens
	Businesses     int     `yaml:"businesses"`     // initial businesses (round-robin over sectors)
	Infrastructure int     `yaml:"infrastructure"` // initial infrastructure units
	Governments    int     `yaml:"governments"`    // usually 1
}

// ScheduleConfig groups the per-tick cadence of the cycle scheduler.
type ScheduleConfig struct {
	EventProbability float64       `yaml:"event_probability"`  // chance of one new event per tick
	MarketEvery      uint64        `yaml:"market_every"`       // market clearing cadence (ticks)
	MetricsEvery     uint64        `yaml:"metrics_every"`      // metrics snapshot cadence (ticks)
	PersistEvery     uint64        `yaml:"persist_every"`      // summary write cadence (ticks)
	TickInterval     time.Duration `yaml:"tick_interval"`      // wall time between ticks in Run (0 = as fast as possible)
	SimHoursPerTick  int           `yaml:"sim_hours_per_tick"` // simulated hours per tick
	DeltaTime        float64       `yaml:"dt"`                 // dt passed to agent updates
	Workers          int           `yaml:"workers"`            // max concurrent agent tasks (0 = GOMAXPROCS)
}

// HistoryConfig bounds the metrics history.
type HistoryConfig struct {
	MetricsCap int `yaml:"metrics_cap"` // compacted to MetricsCap/2 once exceeded
}

// BackendConfig configures the dual-backend bulk engine.
type BackendConfig struct {
	Preferred         string  `yaml:"preferred"`          // "native" (default) or "fallback"
	Width             float64 `yaml:"width"`              // bulk world extent on x
	Height            float64 `yaml:"height"`             // bulk world extent on y
	CollisionRadius   float64 `yaml:"collision_radius"`   // agents closer than 2×radius are separated
	InteractionRadius float64 `yaml:"interaction_radius"` // citizen↔business interaction distance
	Capacity          int     `yaml:"capacity"`           // native pre-allocation hint (0 = grow on demand)
}

// MonitorConfig configures the performance monitor.
type MonitorConfig struct {
	Window             int     `yaml:"window"`              // samples kept per ring (100–100000)
	StabilityThreshold float64 `yaml:"stability_threshold"` // |trend slope| above this is unstable
}

// StoreConfig configures the rolling summary store.
type StoreConfig struct {
	Path string `yaml:"path"` // SQLite file; empty disables persistence
	Keep int    `yaml:"keep"` // summaries retained after each write
}

// Config is the complete simulation configuration.
type Config struct {
	City     CityConfig     `yaml:"city"`
	Schedule ScheduleConfig `yaml:"schedule"`
	History  HistoryConfig  `yaml:"history"`
	Backend  BackendConfig  `yaml:"backend"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Store    StoreConfig    `yaml:"store"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		City: CityConfig{
			Name:           "Mini City",
			Width:          100,
			Height:         100,
			Seed:           42,
			Citizens:       100,
			Businesses:     20,
			Infrastructure: 10,
			Governments:    1,
		},
		Schedule: ScheduleConfig{
			EventProbability: 0.1,
			MarketEvery:      5,
			MetricsEvery:     10,
			PersistEvery:     100,
			TickInterval:     100 * time.Millisecond,
			SimHoursPerTick:  1,
			DeltaTime:        1.0,
		},
		History: HistoryConfig{
			MetricsCap: 1000,
		},
		Backend: BackendConfig{
			Preferred:         "native",
			Width:             1000,
			Height:            1000,
			CollisionRadius:   5,
			InteractionRadius: 20,
		},
		Monitor: MonitorConfig{
			Window:             1000,
			StabilityThreshold: 0.1,
		},
		Store: StoreConfig{
			Path: "data/citysim.db",
			Keep: 500,
		},
	}
}

// Load reads a YAML file and overlays it onto Default().
// Uses strict parsing: unrecognized keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ValidationError lists every invalid field found by Validate.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Invalid builds a ValidationError for a single field.
func Invalid(field string, format string, args ...any) *ValidationError {
	return &ValidationError{Problems: []string{field + ": " + fmt.Sprintf(format, args...)}}
}

// Validate checks that all fields are usable. Returns *ValidationError.
func (c Config) Validate() error {
	var problems []string
	bad := func(field, format string, args ...any) {
		problems = append(problems, field+": "+fmt.Sprintf(format, args...))
	}

	if c.City.Width <= 0 || c.City.Height <= 0 {
		bad("city.width/height", "must be positive, got %gx%g", c.City.Width, c.City.Height)
	}
	if c.City.Citizens < 0 || c.City.Businesses < 0 || c.City.Infrastructure < 0 || c.City.Governments < 0 {
		bad("city", "agent counts must be non-negative")
	}
	if c.Schedule.EventProbability < 0 || c.Schedule.EventProbability > 1 {
		bad("schedule.event_probability", "must be in [0,1], got %g", c.Schedule.EventProbability)
	}
	if c.Schedule.MarketEvery == 0 {
		bad("schedule.market_every", "must be positive")
	}
	if c.Schedule.MetricsEvery == 0 {
		bad("schedule.metrics_every", "must be positive")
	}
	if c.Schedule.PersistEvery == 0 {
		bad("schedule.persist_every", "must be positive")
	}
	if c.Schedule.TickInterval < 0 {
		bad("schedule.tick_interval", "must be non-negative, got %s", c.Schedule.TickInterval)
	}
	if c.Schedule.SimHoursPerTick <= 0 {
		bad("schedule.sim_hours_per_tick", "must be positive, got %d", c.Schedule.SimHoursPerTick)
	}
	if c.Schedule.DeltaTime <= 0 {
		bad("schedule.dt", "must be positive, got %g", c.Schedule.DeltaTime)
	}
	if c.Schedule.Workers < 0 {
		bad("schedule.workers", "must be non-negative, got %d", c.Schedule.Workers)
	}
	if c.History.MetricsCap < 2 {
		bad("history.metrics_cap", "must be at least 2, got %d", c.History.MetricsCap)
	}
	switch c.Backend.Preferred {
	case "native", "fallback":
	default:
		bad("backend.preferred", "unknown backend %q; valid: native, fallback", c.Backend.Preferred)
	}
	if c.Backend.Width <= 0 || c.Backend.Height <= 0 {
		bad("backend.width/height", "must be positive, got %gx%g", c.Backend.Width, c.Backend.Height)
	}
	if c.Backend.CollisionRadius < 0 || c.Backend.InteractionRadius < 0 {
		bad("backend", "radii must be non-negative")
	}
	if c.Backend.Capacity < 0 {
		bad("backend.capacity", "must be non-negative, got %d", c.Backend.Capacity)
	}
	if c.Monitor.Window < 100 || c.Monitor.Window > 100000 {
		bad("monitor.window", "must be in [100,100000], got %d", c.Monitor.Window)
	}
	if c.Monitor.StabilityThreshold <= 0 {
		bad("monitor.stability_threshold", "must be positive, got %g", c.Monitor.StabilityThreshold)
	}
	if c.Store.Path != "" && c.Store.Keep <= 0 {
		bad("store.keep", "must be positive when a store path is set, got %d", c.Store.Keep)
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
