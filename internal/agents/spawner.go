// Agent spawning. Creates the initial population and later arrivals with
// deterministic ids, names, and placement.
package agents

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/talgya/mini-city/internal/entropy"
	"github.com/talgya/mini-city/internal/world"
)

// Spawner creates agents for the simulation. Ids are UUIDs drawn from the
// spawner stream, so a fixed seed yields the same ids on every run.
type Spawner struct {
	src    *entropy.Source
	rng    *rand.Rand
	placer *world.Placer
	bounds world.Bounds
	city   string

	spawned    int
	businesses int
	infra      int
}

// NewSpawner creates a spawner placing agents inside bounds.
func NewSpawner(src *entropy.Source, bounds world.Bounds, city string) *Spawner {
	return &Spawner{
		src:    src,
		rng:    src.Stream(entropy.SubsystemSpawner),
		placer: world.NewPlacer(bounds, src.Seed(), src.Stream(entropy.SubsystemPlacement), world.DefaultPlacerConfig()),
		bounds: bounds,
		city:   city,
	}
}

// Spawned returns how many agents this spawner has created.
func (s *Spawner) Spawned() int { return s.spawned }

func (s *Spawner) next() (AgentID, *rand.Rand) {
	id, err := uuid.NewRandomFromReader(s.rng)
	if err != nil {
		id = uuid.New()
	}
	rng := s.src.Fresh(entropy.SubsystemAgent(s.spawned))
	s.spawned++
	return AgentID(id.String()), rng
}

// Citizen creates one citizen at a density-weighted position.
func (s *Spawner) Citizen() *Citizen {
	id, rng := s.next()
	return NewCitizen(id, s.personName(), s.placer.Sample(), rng)
}

// Business creates one business. Sectors are assigned round-robin so every
// sector is covered once there are at least six businesses.
func (s *Spawner) Business() *Business {
	id, rng := s.next()
	sector := AllSectors[s.businesses%NumSectors]
	s.businesses++
	name := fmt.Sprintf("%s %s Co.", lastNames[s.rng.Intn(len(lastNames))], titleCase(sector.String()))
	return NewBusiness(id, name, sector, s.placer.Sample(), rng)
}

// Infrastructure creates one unit. Kinds are assigned round-robin.
func (s *Spawner) Infrastructure() *Infrastructure {
	id, rng := s.next()
	kind := AllInfraKinds[s.infra%NumInfraKinds]
	s.infra++
	name := fmt.Sprintf("%s %s %d", titleCase(kind.String()), infraSuffix[kind], s.infra)
	return NewInfrastructure(id, name, kind, s.placer.Sample(), rng)
}

// Government creates a government seated at the city centre.
func (s *Spawner) Government() *Government {
	id, rng := s.next()
	return NewGovernment(id, s.city+" Council", s.bounds.Center(), rng)
}

// Population creates the requested counts in a fixed order: governments,
// infrastructure, businesses, citizens.
func (s *Spawner) Population(c Counts) []Agent {
	out := make([]Agent, 0, c.Total())
	for i := 0; i < c.Governments; i++ {
		out = append(out, s.Government())
	}
	for i := 0; i < c.Infrastructure; i++ {
		out = append(out, s.Infrastructure())
	}
	for i := 0; i < c.Businesses; i++ {
		out = append(out, s.Business())
	}
	for i := 0; i < c.Citizens; i++ {
		out = append(out, s.Citizen())
	}
	return out
}

func (s *Spawner) personName() string {
	first := firstNames[s.rng.Intn(len(firstNames))]
	last := lastNames[s.rng.Intn(len(lastNames))]
	return first + " " + last
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}

var infraSuffix = [NumInfraKinds]string{"Grid", "Network", "Works", "Center", "Hub"}

// Name pools for procedural generation.
var firstNames = []string{
	"Ana", "Bruno", "Carla", "Diego", "Elena", "Felipe", "Gabriela", "Hugo",
	"Isabel", "Jonas", "Karina", "Lucas", "Marina", "Nicolas", "Olivia", "Paulo",
	"Rafaela", "Samuel", "Tatiana", "Vitor", "Yasmin", "Aldric", "Astrid", "Bram",
	"Calla", "Doran", "Freya", "Greta", "Iris", "Leif", "Mira", "Quinn",
}

var lastNames = []string{
	"Voss", "Thornwood", "Ashford", "Dunmore", "Greenvale", "Millward",
	"Copperfield", "Silverdale", "Deepwell", "Brightwater", "Redforge", "Windholm",
	"Marshwood", "Goldhaven", "Riverstone", "Holloway", "Dawnridge", "Farrow",
	"Caldwell", "Harper", "Mercer", "Ward", "Cross", "Almeida", "Costa",
}
