// Package usecase contains application business logic.
package usecase

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/policy"
)

const (
	blockAllPattern   = "^https?://"
	resourceMainFrame = "main_frame"
	actionRedirect    = "redirect"
)

// RuleCompiler turns a profile's rules into engine-facing rules.
type RuleCompiler struct {
	logger *zap.Logger
}

// NewRuleCompiler creates a compiler.
func NewRuleCompiler(logger *zap.Logger) *RuleCompiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleCompiler{logger: logger}
}

// Compile produces at most domain.MaxCompiledRules rules with ids starting at domain.RuleIDBase.
// A block-all rule, if present, replaces every domain rule with one catch-all redirect.
// Output depends only on the inputs.
func (c *RuleCompiler) Compile(rules []policy.BlockingRule, fallbackMessage, baseRedirectURL string) []domain.CompiledFilterRule {
	base := stripQuery(baseRedirectURL)

	for _, r := range rules {
		ba, ok := r.(*policy.BlockAllRule)
		if !ok {
			continue
		}
		return []domain.CompiledFilterRule{{
			ID:       domain.RuleIDBase,
			Priority: domain.PriorityBlockAll,
			Condition: domain.RuleCondition{
				RegexFilter:   blockAllPattern,
				ResourceTypes: []string{resourceMainFrame},
			},
			Action: domain.RuleAction{
				Type:        actionRedirect,
				RedirectURL: redirectURL(base, pickMessage(ba.Message(), fallbackMessage), ""),
			},
		}}
	}

	var expanded []policy.ExpandedRule
	for _, r := range rules {
		if dr, ok := r.(*policy.DomainRule); ok {
			expanded = append(expanded, dr.Expand(c.logger)...)
		}
	}

	if len(expanded) > domain.MaxCompiledRules {
		c.logger.Warn("compiled rule limit reached, dropping entries",
			zap.Int("limit", domain.MaxCompiledRules),
			zap.Int("dropped", len(expanded)-domain.MaxCompiledRules))
		expanded = expanded[:domain.MaxCompiledRules]
	}

	out := make([]domain.CompiledFilterRule, 0, len(expanded))
	for i, e := range expanded {
		out = append(out, domain.CompiledFilterRule{
			ID:       domain.RuleIDBase + i,
			Priority: domain.PriorityDomain,
			Condition: domain.RuleCondition{
				URLFilter:     "||" + e.Domain + "^",
				ResourceTypes: []string{resourceMainFrame},
			},
			Action: domain.RuleAction{
				Type:        actionRedirect,
				RedirectURL: redirectURL(base, pickMessage(e.Message, fallbackMessage), c.videoManifest(e)),
			},
		})
	}
	return out
}

// videoManifest returns the JSON list of allowed videos for YouTube entries, or "".
func (c *RuleCompiler) videoManifest(e policy.ExpandedRule) string {
	if !policy.IsVideoDomain(e.Domain) || len(e.AllowedVideos) == 0 {
		return ""
	}
	b, err := json.Marshal(e.AllowedVideos)
	if err != nil {
		c.logger.Warn("omitting allowed videos manifest",
			zap.String("rule", e.RuleID),
			zap.Error(err))
		return ""
	}
	return string(b)
}

// pickMessage treats an empty rule message as unset.
func pickMessage(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}

func stripQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}

func redirectURL(base, message, videos string) string {
	out := fmt.Sprintf("%s?message=%s", base, encodeComponent(message))
	if videos != "" {
		out += "&allowedVideos=" + encodeComponent(videos)
	}
	return out
}

// encodeComponent percent-encodes s for use inside a query value, spaces as %20.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
