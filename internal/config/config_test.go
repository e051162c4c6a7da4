package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "city.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1000, cfg.History.MetricsCap)
	assert.Equal(t, "native", cfg.Backend.Preferred)
	assert.Equal(t, uint64(5), cfg.Schedule.MarketEvery)
	assert.Equal(t, uint64(10), cfg.Schedule.MetricsEvery)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
city:
  name: Testville
  citizens: 12
schedule:
  tick_interval: 250ms
backend:
  preferred: fallback
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Testville", cfg.City.Name)
	assert.Equal(t, 12, cfg.City.Citizens)
	assert.Equal(t, 250*time.Millisecond, cfg.Schedule.TickInterval)
	assert.Equal(t, "fallback", cfg.Backend.Preferred)

	// untouched fields keep their defaults
	def := Default()
	assert.Equal(t, def.City.Businesses, cfg.City.Businesses)
	assert.Equal(t, def.Monitor, cfg.Monitor)
	assert.Equal(t, def.Store, cfg.Store)
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	path := writeConfig(t, "city:\n  mayor: Bob\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mayor")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, "schedule:\n  event_probability: 1.5\n")
	_, err := Load(path)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 1)
}

func TestValidate_ListsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.City.Width = 0
	cfg.Schedule.MarketEvery = 0
	cfg.Backend.Preferred = "gpu"
	cfg.Monitor.Window = 10

	err := cfg.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 4)
	assert.Contains(t, err.Error(), "backend.preferred")
	assert.Contains(t, err.Error(), "monitor.window")
}

func TestValidate_StoreKeepOnlyCheckedWithPath(t *testing.T) {
	cfg := Default()
	cfg.Store.Keep = 0
	assert.Error(t, cfg.Validate())

	cfg.Store.Path = ""
	assert.NoError(t, cfg.Validate())
}

func TestInvalid_SingleField(t *testing.T) {
	err := Invalid("ticks", "must be positive, got %d", -3)
	assert.Equal(t, "invalid configuration: ticks: must be positive, got -3", err.Error())
}
