package agents

import "math/rand"

// Personality holds the stable traits every agent draws at creation.
// All traits range from 0.0 to 1.0.
type Personality struct {
	RiskTolerance     float64 `json:"risk_tolerance"`
	Cooperation       float64 `json:"cooperation"`
	Innovation        float64 `json:"innovation"`
	Conservatism      float64 `json:"conservatism"`
	SocialOrientation float64 `json:"social_orientation"`
}

// RandomPersonality draws each trait uniformly from [0,1).
func RandomPersonality(rng *rand.Rand) Personality {
	return Personality{
		RiskTolerance:     rng.Float64(),
		Cooperation:       rng.Float64(),
		Innovation:        rng.Float64(),
		Conservatism:      rng.Float64(),
		SocialOrientation: rng.Float64(),
	}
}

// NeutralPersonality has every trait at 0.5.
func NeutralPersonality() Personality {
	return Personality{0.5, 0.5, 0.5, 0.5, 0.5}
}
