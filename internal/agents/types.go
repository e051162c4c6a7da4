// Package agents provides the agent contract, the four agent variants, the
// mailbox, and the registry that owns them.
package agents

import (
	"encoding/json"
	"fmt"
)

// AgentID is an opaque, registry-unique agent identifier (a UUID string).
type AgentID string

// Type tags the agent variant.
type Type uint8

const (
	TypeCitizen Type = iota
	TypeBusiness
	TypeGovernment
	TypeInfrastructure
)

// NumTypes is the number of agent variants.
const NumTypes = 4

// AllTypes lists the variants in display order.
var AllTypes = [NumTypes]Type{TypeCitizen, TypeBusiness, TypeGovernment, TypeInfrastructure}

var typeNames = [NumTypes]string{"citizen", "business", "government", "infrastructure"}

// Plural names used in status maps and scenario results.
var typePlurals = [NumTypes]string{"citizens", "businesses", "governments", "infrastructure"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", t)
}

// Plural returns the collection name for t ("citizens", "businesses", ...).
func (t Type) Plural() string {
	if int(t) < len(typePlurals) {
		return typePlurals[t]
	}
	return t.String()
}

// MarshalText encodes the type by name so JSON maps keyed by Type read well.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Sector is a business sector and, for citizens, a need category.
type Sector uint8

const (
	SectorEnergy Sector = iota
	SectorFood
	SectorTransport
	SectorHealthcare
	SectorEntertainment
	SectorHousing
)

// NumSectors is the total number of sectors.
const NumSectors = 6

// AllSectors lists every sector in index order.
var AllSectors = [NumSectors]Sector{
	SectorEnergy, SectorFood, SectorTransport, SectorHealthcare, SectorEntertainment, SectorHousing,
}

var sectorNames = [NumSectors]string{"energy", "food", "transport", "healthcare", "entertainment", "housing"}

func (s Sector) String() string {
	if int(s) < len(sectorNames) {
		return sectorNames[s]
	}
	return fmt.Sprintf("sector(%d)", s)
}

// MarshalText encodes the sector by name.
func (s Sector) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseSector resolves a sector name.
func ParseSector(name string) (Sector, bool) {
	for i, n := range sectorNames {
		if n == name {
			return Sector(i), true
		}
	}
	return 0, false
}

// InfraKind is the service an infrastructure unit provides.
type InfraKind uint8

const (
	InfraEnergy InfraKind = iota
	InfraTransport
	InfraWater
	InfraHealthcare
	InfraCommunication
)

// NumInfraKinds is the total number of infrastructure kinds.
const NumInfraKinds = 5

// AllInfraKinds lists every infrastructure kind.
var AllInfraKinds = [NumInfraKinds]InfraKind{
	InfraEnergy, InfraTransport, InfraWater, InfraHealthcare, InfraCommunication,
}

var infraNames = [NumInfraKinds]string{"energy", "transport", "water", "healthcare", "communication"}

func (k InfraKind) String() string {
	if int(k) < len(infraNames) {
		return infraNames[k]
	}
	return fmt.Sprintf("infra(%d)", k)
}

// MarshalText encodes the kind by name.
func (k InfraKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ServesSector maps an infrastructure kind to the citizen need it relieves.
// Water and communication have no matching sector.
func (k InfraKind) ServesSector() (Sector, bool) {
	switch k {
	case InfraEnergy:
		return SectorEnergy, true
	case InfraTransport:
		return SectorTransport, true
	case InfraHealthcare:
		return SectorHealthcare, true
	}
	return 0, false
}

// Counts is the requested population for city initialization.
type Counts struct {
	Citizens       int `json:"citizens"`
	Businesses     int `json:"businesses"`
	Infrastructure int `json:"infrastructure"`
	Governments    int `json:"governments"`
}

// Total returns the total number of agents requested.
func (c Counts) Total() int {
	return c.Citizens + c.Businesses + c.Infrastructure + c.Governments
}

// TypeCounts holds live agent counts indexed by Type.
type TypeCounts [NumTypes]int

// Total returns the sum over all types.
func (c TypeCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// MarshalJSON encodes counts as {"citizens": n, ..., "total": n}.
func (c TypeCounts) MarshalJSON() ([]byte, error) {
	m := make(map[string]int, NumTypes+1)
	for _, t := range AllTypes {
		m[t.Plural()] = c[t]
	}
	m["total"] = c.Total()
	return json.Marshal(m)
}

// UnmarshalJSON reads the form written by MarshalJSON; "total" is ignored.
func (c *TypeCounts) UnmarshalJSON(data []byte) error {
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*c = TypeCounts{}
	for _, t := range AllTypes {
		c[t] = m[t.Plural()]
	}
	return nil
}
