package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

func TestCheck(t *testing.T) {
	videos := []domain.AllowedVideo{{ID: "abc", Name: "Science"}}
	domainRules := []BlockingRule{
		NewDomainRule("fb", []string{"Work"}, "No feeds", "facebook.com", nil),
		NewDomainRule("yt", []string{"Work"}, "", "youtube.com, youtu.be", videos),
	}

	tests := []struct {
		name        string
		rules       []BlockingRule
		url         string
		wantBlocked bool
		wantReason  string
	}{
		{name: "exact domain", rules: domainRules, url: "https://facebook.com/", wantBlocked: true, wantReason: "domain"},
		{name: "subdomain", rules: domainRules, url: "https://m.facebook.com/home", wantBlocked: true, wantReason: "domain"},
		{name: "unrelated", rules: domainRules, url: "https://golang.org", wantReason: "no matching rule"},
		{name: "allowed video", rules: domainRules, url: "https://www.youtube.com/watch?v=abc", wantReason: "allowed video"},
		{name: "allowed short link", rules: domainRules, url: "https://youtu.be/abc", wantReason: "allowed video"},
		{name: "other video", rules: domainRules, url: "https://www.youtube.com/watch?v=zzz", wantBlocked: true, wantReason: "domain"},
		{name: "youtube home", rules: domainRules, url: "https://youtube.com/", wantBlocked: true, wantReason: "domain"},
		{name: "non web scheme", rules: domainRules, url: "chrome://settings", wantReason: "not a web navigation"},
		{
			name:        "block all wins",
			rules:       append([]BlockingRule{NewBlockAllRule("all", []string{"Work"}, "")}, domainRules...),
			url:         "https://golang.org",
			wantBlocked: true,
			wantReason:  "block-all",
		},
		{name: "no rules", url: "https://facebook.com", wantReason: "no matching rule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Check(tt.rules, tt.url)
			assert.Equal(t, tt.wantBlocked, v.Blocked)
			assert.Equal(t, tt.wantReason, v.Reason)
		})
	}
}
