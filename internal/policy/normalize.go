package policy

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// compoundSuffixes are two-label public suffixes under which the registrable
// domain has three labels. Deliberately bounded; not a public suffix list.
var compoundSuffixes = map[string]bool{
	"co.uk":  true,
	"org.uk": true,
	"gov.uk": true,
	"ac.uk":  true,
	"com.au": true,
	"net.au": true,
	"org.au": true,
	"com.br": true,
	"co.jp":  true,
	"ne.jp":  true,
	"or.jp":  true,
	"co.nz":  true,
	"co.in":  true,
	"co.za":  true,
	"co.kr":  true,
	"com.mx": true,
	"com.cn": true,
	"com.tr": true,
	"com.sg": true,
	"com.hk": true,
}

var ipv4Pattern = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)

// hostProfile converts Unicode hostnames to ASCII the way browsers do,
// without STD3 restrictions.
var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(false),
)

// Normalize turns a raw domain or URL into its canonical registrable domain.
// e.g., "https://WWW.sub.Example.co.uk/path" -> "example.co.uk"
// The result is lower-case and Normalize is idempotent on its own output.
func Normalize(input string) (string, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return "", reject("empty input")
	}

	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", reject("unparseable url")
	}

	host := strings.TrimSuffix(u.Hostname(), ".")
	if host == "" {
		return "", reject("missing host")
	}
	if strings.Contains(host, ":") || ipv4Pattern.MatchString(host) {
		return "", reject("ip address")
	}
	if !strings.Contains(host, ".") {
		return "", reject("no dot in hostname")
	}

	host, err = hostProfile.ToASCII(host)
	if err != nil {
		return "", reject("invalid hostname")
	}
	host = strings.ToLower(host)

	labels := strings.Split(host, ".")
	for _, l := range labels {
		if l == "" {
			return "", reject("empty label")
		}
	}

	if labels[0] == "www" && len(labels)-1 > 2 {
		labels = labels[1:]
	}

	keep := 2
	n := len(labels)
	if n >= 3 && compoundSuffixes[labels[n-2]+"."+labels[n-1]] {
		keep = 3
	}
	if n > keep {
		labels = labels[n-keep:]
	}

	return strings.Join(labels, "."), nil
}

func reject(reason string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidDomainInput, reason)
}
