// Package entropy provides deterministic, partitioned random streams for the
// simulation. A zero seed falls back to crypto/rand so unseeded runs differ.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	mrand "math/rand"
	"sync"
)

// Well-known subsystem names.
const (
	SubsystemEvents    = "events"
	SubsystemSpawner   = "spawner"
	SubsystemScenario  = "scenario"
	SubsystemPlacement = "placement"
	SubsystemBackend   = "backend"
)

// SubsystemAgent returns the stream name owned by the agent at spawn index n.
func SubsystemAgent(n int) string {
	return fmt.Sprintf("agent_%d", n)
}

// Source derives isolated *rand.Rand streams from one master seed:
// seed XOR fnv1a64(name). The same name always returns the same stream.
//
// The returned streams are not safe for concurrent use; each one must be
// owned by a single goroutine (an agent task, the scheduler, a backend).
type Source struct {
	seed int64

	mu      sync.Mutex
	streams map[string]*mrand.Rand
}

// NewSource creates a Source. A zero seed is replaced by ResolveSeed(0).
func NewSource(seed int64) *Source {
	return &Source{
		seed:    ResolveSeed(seed),
		streams: make(map[string]*mrand.Rand),
	}
}

// Seed returns the master seed actually in use.
func (s *Source) Seed() int64 {
	return s.seed
}

// Stream returns the cached stream for name, creating it on first use.
func (s *Source) Stream(name string) *mrand.Rand {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rng, ok := s.streams[name]; ok {
		return rng
	}
	rng := mrand.New(mrand.NewSource(s.seed ^ fnv1a64(name)))
	s.streams[name] = rng
	return rng
}

// Fresh returns a new, uncached stream for name. Two calls with the same
// name yield identical sequences; used when a subsystem is rebuilt.
func (s *Source) Fresh(name string) *mrand.Rand {
	return mrand.New(mrand.NewSource(s.seed ^ fnv1a64(name)))
}

// ResolveSeed returns seed unchanged unless it is zero, in which case a
// non-zero seed is drawn from crypto/rand.
func ResolveSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 1
	}
	v := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if v == 0 {
		v = 1
	}
	return v
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
