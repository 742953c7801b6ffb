package policy

import "github.com/eliteGoblin/focusd/site_mon/internal/domain"

// BlockAllRule blocks every http and https navigation.
// It overrides all domain rules of the profiles it is assigned to.
type BlockAllRule struct {
	base
}

// NewBlockAllRule creates a block-all rule.
func NewBlockAllRule(id string, profiles []string, message string) *BlockAllRule {
	return &BlockAllRule{base: base{id: id, profiles: dedupe(profiles), message: message}}
}

func (r *BlockAllRule) Kind() domain.RuleKind { return domain.RuleKindBlockAll }

func (r *BlockAllRule) Record() domain.RuleRecord {
	return domain.RuleRecord{
		ID:       r.id,
		Kind:     domain.RuleKindBlockAll,
		Profiles: r.Profiles(),
		Message:  r.message,
	}
}

// Expand returns the rule itself as a single block-all entry.
func (r *BlockAllRule) Expand() []ExpandedRule {
	return []ExpandedRule{{
		RuleID:   r.id,
		Message:  r.message,
		Profiles: r.Profiles(),
		BlockAll: true,
	}}
}
