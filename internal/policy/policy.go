// Package policy implements the blocking rule model.
// A rule is either a DomainRule or a BlockAllRule; both satisfy BlockingRule
// and are dispatched with a type switch.
package policy

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// BlockingRule is the sealed sum type of configured rules.
type BlockingRule interface {
	// ID returns the stable rule identifier.
	ID() string

	// Profiles returns the profiles this rule is assigned to, in configured order.
	Profiles() []string

	// Message returns the block page message, empty when unset.
	Message() string

	// Kind returns the discriminant used when persisting.
	Kind() domain.RuleKind

	// Record converts the rule back to its persisted form.
	Record() domain.RuleRecord

	isBlockingRule()
}

// ExpandedRule is one blocking target produced by expanding a rule.
// All entries expanded from the same rule share its ID.
type ExpandedRule struct {
	RuleID        string
	Domain        string // empty for block-all
	Message       string
	AllowedVideos []domain.AllowedVideo
	Profiles      []string
	BlockAll      bool
}

// base holds the fields common to every variant.
type base struct {
	id       string
	profiles []string
	message  string
}

func (b base) ID() string { return b.id }

func (b base) Profiles() []string {
	out := make([]string, len(b.profiles))
	copy(out, b.profiles)
	return out
}

func (b base) Message() string { return b.message }

func (b base) isBlockingRule() {}

// AppliesTo reports whether rule is assigned to profile.
func AppliesTo(rule BlockingRule, profile string) bool {
	for _, p := range rule.Profiles() {
		if p == profile {
			return true
		}
	}
	return false
}

// Expand expands any rule into its blocking targets.
func Expand(rule BlockingRule, logger *zap.Logger) []ExpandedRule {
	switch r := rule.(type) {
	case *DomainRule:
		return r.Expand(logger)
	case *BlockAllRule:
		return r.Expand()
	default:
		return nil
	}
}

// FromRecord converts a persisted record into a typed rule.
func FromRecord(rec domain.RuleRecord) (BlockingRule, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("rule without id (kind %q)", rec.Kind)
	}
	b := base{id: rec.ID, profiles: dedupe(rec.Profiles), message: rec.Message}

	switch rec.Kind {
	case domain.RuleKindDomain, "":
		return &DomainRule{base: b, domainSpec: rec.DomainSpec, allowedVideos: rec.AllowedVideos}, nil
	case domain.RuleKindBlockAll:
		return &BlockAllRule{base: b}, nil
	default:
		return nil, fmt.Errorf("rule %s: unknown kind %q", rec.ID, rec.Kind)
	}
}

// dedupe keeps the first occurrence of each profile name, preserving order.
func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Ensure both variants implement BlockingRule.
var (
	_ BlockingRule = (*DomainRule)(nil)
	_ BlockingRule = (*BlockAllRule)(nil)
)
