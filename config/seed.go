package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed describes fixture data applied to a fresh ledger by dinectl seed.
type Seed struct {
	Restaurants []SeedRestaurant `yaml:"restaurants"`
	Balances    []SeedBalance    `yaml:"balances"`
}

type SeedRestaurant struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
	Active  *bool  `yaml:"active,omitempty"`
}

// SeedBalance credits an account. Stable is a decimal string such as "100.50";
// Native is an integer amount of base units.
type SeedBalance struct {
	Address string `yaml:"address"`
	Stable  string `yaml:"stable,omitempty"`
	Native  string `yaml:"native,omitempty"`
}

// LoadSeed decodes a YAML seed file. Unknown fields are rejected.
func LoadSeed(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	seed := &Seed{}
	if err := dec.Decode(seed); err != nil {
		return nil, fmt.Errorf("config: decode seed %s: %w", path, err)
	}
	for i, r := range seed.Restaurants {
		if strings.TrimSpace(r.Address) == "" || strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("%w: seed restaurant %d needs address and name", ErrInvalidConfig, i)
		}
	}
	for i, b := range seed.Balances {
		if strings.TrimSpace(b.Address) == "" {
			return nil, fmt.Errorf("%w: seed balance %d needs an address", ErrInvalidConfig, i)
		}
	}
	return seed, nil
}

// IsActive reports the requested status, defaulting to active.
func (r SeedRestaurant) IsActive() bool {
	return r.Active == nil || *r.Active
}
