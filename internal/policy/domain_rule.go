package policy

import (
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// DomainRule blocks a comma-separated list of domains and their subdomains.
type DomainRule struct {
	base
	domainSpec    string
	allowedVideos []domain.AllowedVideo
}

// NewDomainRule creates a domain rule.
func NewDomainRule(id string, profiles []string, message, domainSpec string, allowedVideos []domain.AllowedVideo) *DomainRule {
	return &DomainRule{
		base:          base{id: id, profiles: dedupe(profiles), message: message},
		domainSpec:    domainSpec,
		allowedVideos: allowedVideos,
	}
}

func (r *DomainRule) Kind() domain.RuleKind { return domain.RuleKindDomain }

// DomainSpec returns the raw, user-entered domain list.
func (r *DomainRule) DomainSpec() string { return r.domainSpec }

// AllowedVideos returns the YouTube videos exempted from this rule.
func (r *DomainRule) AllowedVideos() []domain.AllowedVideo {
	out := make([]domain.AllowedVideo, len(r.allowedVideos))
	copy(out, r.allowedVideos)
	return out
}

func (r *DomainRule) Record() domain.RuleRecord {
	return domain.RuleRecord{
		ID:            r.id,
		Kind:          domain.RuleKindDomain,
		Profiles:      r.Profiles(),
		Message:       r.message,
		DomainSpec:    r.domainSpec,
		AllowedVideos: r.AllowedVideos(),
	}
}

// Expand normalizes every entry of the domain list.
// Entries that fail normalization are logged and skipped.
func (r *DomainRule) Expand(logger *zap.Logger) []ExpandedRule {
	if logger == nil {
		logger = zap.NewNop()
	}

	var out []ExpandedRule
	for _, part := range strings.Split(r.domainSpec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		d, err := Normalize(part)
		if err != nil {
			logger.Warn("skipping invalid domain",
				zap.String("rule", r.id),
				zap.String("input", part),
				zap.Error(err))
			continue
		}

		out = append(out, ExpandedRule{
			RuleID:        r.id,
			Domain:        d,
			Message:       r.message,
			AllowedVideos: r.AllowedVideos(),
			Profiles:      r.Profiles(),
		})
	}
	return out
}
