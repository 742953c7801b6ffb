package policy

import (
	"net/url"
	"strings"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// videoDomains are the domains whose rules may carry allowed videos.
var videoDomains = map[string]bool{
	"youtube.com": true,
	"youtu.be":    true,
}

// IsVideoDomain reports whether d is a canonical YouTube domain.
func IsVideoDomain(d string) bool {
	return videoDomains[d]
}

// MatchesHost reports whether host is the canonical domain d or one of its subdomains.
func MatchesHost(d, host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	return host == d || strings.HasSuffix(host, "."+d)
}

// Verdict is the outcome of checking a navigation against a rule set.
type Verdict struct {
	Blocked bool
	RuleID  string
	Domain  string // empty for block-all or no match
	Message string
	Reason  string
}

// Check decides whether rawURL would be blocked by rules.
// Block-all wins over domain rules; allowed YouTube videos are let through.
func Check(rules []BlockingRule, rawURL string) Verdict {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Verdict{Reason: "not a web navigation"}
	}
	host := u.Hostname()

	for _, r := range rules {
		if ba, ok := r.(*BlockAllRule); ok {
			return Verdict{Blocked: true, RuleID: ba.ID(), Message: ba.Message(), Reason: "block-all"}
		}
	}

	for _, r := range rules {
		dr, ok := r.(*DomainRule)
		if !ok {
			continue
		}
		for _, e := range dr.Expand(nil) {
			if !MatchesHost(e.Domain, host) {
				continue
			}
			if IsVideoDomain(e.Domain) && VideoAllowed(u, e.AllowedVideos) {
				return Verdict{RuleID: e.RuleID, Domain: e.Domain, Reason: "allowed video"}
			}
			return Verdict{Blocked: true, RuleID: e.RuleID, Domain: e.Domain, Message: e.Message, Reason: "domain"}
		}
	}

	return Verdict{Reason: "no matching rule"}
}

// VideoAllowed reports whether u points at one of the allowed videos.
func VideoAllowed(u *url.URL, allowed []domain.AllowedVideo) bool {
	id := videoID(u)
	if id == "" {
		return false
	}
	for _, v := range allowed {
		if v.ID == id {
			return true
		}
	}
	return false
}

// videoID extracts the video id from watch, shorts, embed and youtu.be URLs.
func videoID(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	path := strings.Trim(u.Path, "/")

	if MatchesHost("youtu.be", host) {
		return firstSegment(path)
	}
	if !MatchesHost("youtube.com", host) {
		return ""
	}
	if path == "watch" {
		return u.Query().Get("v")
	}
	for _, prefix := range []string{"shorts/", "embed/", "live/"} {
		if strings.HasPrefix(path, prefix) {
			return firstSegment(strings.TrimPrefix(path, prefix))
		}
	}
	return ""
}

func firstSegment(p string) string {
	if i := strings.Index(p, "/"); i >= 0 {
		return p[:i]
	}
	return p
}
