package analytics

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Traffic source categories
const (
	SourceDirect   = "direct"
	SourceSearch   = "search"
	SourceSocial   = "social"
	SourceReferral = "referral"
)

// Source is the classification of one referer
type Source struct {
	Category string
	Name     string
}

// SourceClassifier buckets referers using a fixed table of search engines
// and social networks, keyed by the first label of the registrable domain
type SourceClassifier struct {
	siteHosts map[string]bool
	search    map[string]bool
	social    map[string]bool
}

func NewSourceClassifier(siteHosts, searchEngines, socialNetworks []string) *SourceClassifier {
	return &SourceClassifier{
		siteHosts: toSet(siteHosts),
		search:    toSet(searchEngines),
		social:    toSet(socialNetworks),
	}
}

// Classify never fails; anything that is not a usable external URL is direct
func (c *SourceClassifier) Classify(referer string) Source {
	direct := Source{Category: SourceDirect, Name: SourceDirect}

	referer = strings.TrimSpace(referer)
	if referer == "" {
		return direct
	}

	u, err := url.Parse(referer)
	if err != nil || u.Hostname() == "" {
		return direct
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if c.siteHosts[host] {
		return direct
	}

	if net.ParseIP(host) != nil {
		return Source{Category: SourceReferral, Name: host}
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// Bare public suffixes such as "github.io"
		return Source{Category: SourceReferral, Name: host}
	}
	if c.siteHosts[domain] {
		return direct
	}

	label := domain
	if i := strings.IndexByte(domain, '.'); i > 0 {
		label = domain[:i]
	}

	switch {
	case c.search[label]:
		return Source{Category: SourceSearch, Name: label}
	case c.social[label]:
		return Source{Category: SourceSocial, Name: label}
	default:
		return Source{Category: SourceReferral, Name: domain}
	}
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[strings.TrimPrefix(v, "www.")] = true
		}
	}
	return set
}
