package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// RuleSynchronizer replaces the rules in the reserved id window with a desired set.
type RuleSynchronizer struct {
	engine domain.FilterEngine
	logger *zap.Logger
}

// NewRuleSynchronizer creates a synchronizer for engine.
func NewRuleSynchronizer(engine domain.FilterEngine, logger *zap.Logger) *RuleSynchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleSynchronizer{engine: engine, logger: logger}
}

// Sync makes the reserved window hold exactly desired, in one engine call.
// Rules outside the window are never touched, and nothing is written when the
// window already holds desired.
func (s *RuleSynchronizer) Sync(ctx context.Context, desired []domain.CompiledFilterRule) error {
	active, err := s.engine.ActiveRules(ctx)
	if err != nil {
		return fmt.Errorf("read active rules: %w", err)
	}

	existing := make([]int, 0, len(active))
	var installed []domain.CompiledFilterRule
	for _, r := range active {
		if domain.InReservedWindow(r.ID) {
			existing = append(existing, r.ID)
			installed = append(installed, r)
		}
	}

	if sameRuleSet(installed, desired) {
		return nil
	}

	changes := domain.RuleChanges{RemoveIDs: existing, AddRules: desired}
	if changes.AddRules == nil {
		changes.AddRules = []domain.CompiledFilterRule{}
	}

	if err := s.engine.ApplyChanges(ctx, changes); err != nil {
		if errors.Is(err, domain.ErrCapacityExceeded) {
			return fmt.Errorf("%w: %v", domain.ErrRuleLimitExceeded, err)
		}
		return fmt.Errorf("apply rule changes: %w", err)
	}

	s.logger.Info("rules synchronized",
		zap.Int("removed", len(existing)),
		zap.Int("added", len(desired)))
	return nil
}

// sameRuleSet compares two rule sets regardless of order.
func sameRuleSet(a, b []domain.CompiledFilterRule) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = sortedByID(a), sortedByID(b)
	for i := range a {
		if !sameRule(a[i], b[i]) {
			return false
		}
	}
	return true
}

func sortedByID(rules []domain.CompiledFilterRule) []domain.CompiledFilterRule {
	out := slices.Clone(rules)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sameRule(a, b domain.CompiledFilterRule) bool {
	return a.ID == b.ID &&
		a.Priority == b.Priority &&
		a.Condition.URLFilter == b.Condition.URLFilter &&
		a.Condition.RegexFilter == b.Condition.RegexFilter &&
		slices.Equal(a.Condition.ResourceTypes, b.Condition.ResourceTypes) &&
		a.Action == b.Action
}
