package config

import (
	"fmt"
	"sort"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// ProfileStore is a read-only lookup of risk profiles by account or name
type ProfileStore struct {
	profiles map[string]types.RiskProfile
	fallback string
}

// NewProfileStore validates every profile. fallback names the profile used
// for unknown names; empty disables the fallback.
func NewProfileStore(profiles map[string]types.RiskProfile, fallback string) (*ProfileStore, error) {
	copied := make(map[string]types.RiskProfile, len(profiles))
	for name, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorCategoryConfiguration, "config", "NewProfileStore").WithContext("profile", name)
		}
		if p.Tolerance == "" {
			p.Tolerance = types.ToleranceModerate
		}
		copied[name] = p
	}
	if fallback != "" {
		if _, ok := copied[fallback]; !ok {
			return nil, errors.NewConfigError("config", "NewProfileStore", fmt.Sprintf("fallback profile %q is not defined", fallback))
		}
	}
	return &ProfileStore{profiles: copied, fallback: fallback}, nil
}

// Profile returns the named profile, or the fallback when name is unknown
func (s *ProfileStore) Profile(name string) (types.RiskProfile, error) {
	if p, ok := s.profiles[name]; ok {
		return p, nil
	}
	if s.fallback != "" {
		return s.profiles[s.fallback], nil
	}
	return types.RiskProfile{}, errors.NewConfigError("config", "ProfileStore.Profile", fmt.Sprintf("unknown risk profile %q", name))
}

// Names lists the defined profiles in sorted order
func (s *ProfileStore) Names() []string {
	out := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ProfileStore builds the store from the profiles section. The backtest
// profile is the fallback.
func (c *Config) ProfileStore() (*ProfileStore, error) {
	fallback := c.Backtest.Profile
	if fallback == "" {
		fallback = DefaultProfileName
	}
	return NewProfileStore(c.Profiles, fallback)
}
