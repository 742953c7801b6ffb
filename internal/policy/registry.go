package policy

import (
	"fmt"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// Registry holds one evaluation's view of the configuration:
// profiles in configured order and typed rules in encounter order.
// It is built fresh from a domain.Configuration and never cached across evaluations.
type Registry struct {
	profiles []domain.Profile
	byName   map[string]int
	rules    []BlockingRule
}

// NewRegistry validates cfg and converts its rule records.
func NewRegistry(cfg *domain.Configuration) (*Registry, error) {
	r := &Registry{byName: make(map[string]int)}
	if cfg == nil {
		return r, nil
	}

	for _, p := range cfg.Profiles {
		if p.Name == "" {
			return nil, fmt.Errorf("profile with empty name")
		}
		if _, dup := r.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate profile name: %s", p.Name)
		}
		r.byName[p.Name] = len(r.profiles)
		r.profiles = append(r.profiles, p)
	}

	seenIDs := make(map[string]bool, len(cfg.Rules))
	for _, rec := range cfg.Rules {
		rule, err := FromRecord(rec)
		if err != nil {
			return nil, err
		}
		if seenIDs[rule.ID()] {
			return nil, fmt.Errorf("duplicate rule id: %s", rule.ID())
		}
		seenIDs[rule.ID()] = true
		r.rules = append(r.rules, rule)
	}

	return r, nil
}

// Profiles returns all profiles in configured order.
func (r *Registry) Profiles() []domain.Profile {
	out := make([]domain.Profile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

// Profile returns a profile by name.
func (r *Registry) Profile(name string) (domain.Profile, bool) {
	i, ok := r.byName[name]
	if !ok {
		return domain.Profile{}, false
	}
	return r.profiles[i], true
}

// TriggeredProfiles returns the profiles that have a calendar keyword, in configured order.
func (r *Registry) TriggeredProfiles() []domain.Profile {
	var out []domain.Profile
	for _, p := range r.profiles {
		if p.HasTrigger() {
			out = append(out, p)
		}
	}
	return out
}

// Rules returns every rule in encounter order.
func (r *Registry) Rules() []BlockingRule {
	out := make([]BlockingRule, len(r.rules))
	copy(out, r.rules)
	return out
}

// RulesFor returns the rules assigned to profile, in encounter order.
func (r *Registry) RulesFor(profile string) []BlockingRule {
	if profile == "" {
		return nil
	}
	var out []BlockingRule
	for _, rule := range r.rules {
		if AppliesTo(rule, profile) {
			out = append(out, rule)
		}
	}
	return out
}
