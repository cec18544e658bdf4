package platform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gabework/tradeguard/internal/domain"
)

// Registry holds all supported platform profiles. In-memory; profiles are
// code, not configuration.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry creates a registry with all supported platforms.
func NewRegistry() *Registry {
	r := &Registry{
		profiles: make(map[string]Profile),
	}

	r.Register(NewQuantowerProfile())
	r.Register(NewNinjaTraderProfile())
	r.Register(NewTradingViewProfile())
	r.Register(NewTradovateProfile())

	return r
}

// NewRegistryWithProfiles creates a registry with custom profiles (for testing).
func NewRegistryWithProfiles(profiles ...Profile) *Registry {
	r := &Registry{
		profiles: make(map[string]Profile),
	}
	for _, p := range profiles {
		r.Register(p)
	}
	return r
}

// Register adds a profile to the registry.
func (r *Registry) Register(p Profile) {
	r.profiles[p.ID()] = p
}

// Get returns a profile by ID or display name, case-insensitively.
func (r *Registry) Get(name string) (Profile, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if p, ok := r.profiles[key]; ok {
		return p, nil
	}
	for _, p := range r.profiles {
		if strings.EqualFold(p.Name(), name) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedPlatform, name)
}

// GetAll returns all registered profiles, ordered by ID.
func (r *Registry) GetAll() []Profile {
	result := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}

// List returns all profile IDs, sorted.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
