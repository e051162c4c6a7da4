package entropy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draws(s *Source, name string, n int) []int64 {
	out := make([]int64, n)
	rng := s.Stream(name)
	for i := range out {
		out[i] = rng.Int63()
	}
	return out
}

func TestSource_SameSeedSameStreams(t *testing.T) {
	a, b := NewSource(42), NewSource(42)
	assert.Equal(t, draws(a, SubsystemEvents, 5), draws(b, SubsystemEvents, 5))
	assert.Equal(t, draws(a, SubsystemAgent(3), 5), draws(b, SubsystemAgent(3), 5))
}

func TestSource_StreamsAreIsolated(t *testing.T) {
	s := NewSource(42)
	assert.NotEqual(t, draws(s, SubsystemEvents, 5), draws(s, SubsystemSpawner, 5))

	// consuming one stream leaves another unaffected
	fresh := draws(NewSource(42), SubsystemScenario, 5)
	_ = draws(s, SubsystemBackend, 100)
	assert.Equal(t, fresh, draws(s, SubsystemScenario, 5))
}

func TestSource_StreamIsCached(t *testing.T) {
	s := NewSource(7)
	assert.Same(t, s.Stream(SubsystemEvents), s.Stream(SubsystemEvents))
	assert.NotSame(t, s.Fresh(SubsystemEvents), s.Fresh(SubsystemEvents))
	assert.Equal(t, s.Fresh(SubsystemEvents).Int63(), s.Fresh(SubsystemEvents).Int63())
}

func TestResolveSeed(t *testing.T) {
	assert.Equal(t, int64(99), ResolveSeed(99))
	got := ResolveSeed(0)
	require.NotZero(t, got)
	assert.Positive(t, got)
	assert.Equal(t, got, NewSource(got).Seed())
}
