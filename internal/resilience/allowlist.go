package resilience

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
)

// Rule admits requests to one host whose path matches Path.
type Rule struct {
	Name string
	Host string // host[:port], compared case-insensitively
	Path *regexp.Regexp
}

// Allowlist is the set of destinations the client may contact. Anything not
// matched is rejected before a connection is attempted.
type Allowlist struct {
	base  *url.URL
	rules []Rule
}

// NewAllowlist builds an allowlist. Relative request URLs are resolved
// against base, which may be nil when only absolute URLs are expected.
func NewAllowlist(base *url.URL, rules ...Rule) *Allowlist {
	return &Allowlist{base: base, rules: rules}
}

// DefaultAllowlist admits the service's own read endpoint and static
// snapshot files, the upstream LSR feed, and the NWS products API.
func DefaultAllowlist(publicBaseURL, upstreamURL, alertsURL string) (*Allowlist, error) {
	own, err := parseAbsolute(publicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("public base url: %w", err)
	}
	upstream, err := parseAbsolute(upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("upstream url: %w", err)
	}
	alerts, err := parseAbsolute(alertsURL)
	if err != nil {
		return nil, fmt.Errorf("alerts url: %w", err)
	}

	ownPrefix := regexp.QuoteMeta(strings.TrimSuffix(own.Path, "/"))
	rules := []Rule{
		{Name: "cache-api", Host: own.Host, Path: regexp.MustCompile(`^` + ownPrefix + `/api/cache$`)},
		{Name: "snapshot-files", Host: own.Host, Path: regexp.MustCompile(`^` + ownPrefix + `/data/[A-Za-z0-9_-]+\.geojson$`)},
		{Name: "lsr-feed", Host: upstream.Host, Path: regexp.MustCompile(`^` + regexp.QuoteMeta(upstream.Path) + `$`)},
		{Name: "nws-products", Host: alerts.Host, Path: regexp.MustCompile(`^` + regexp.QuoteMeta(strings.TrimSuffix(alerts.Path, "/")) + `(/types/PNS|/[A-Za-z0-9-]+)?$`)},
	}
	return NewAllowlist(own, rules...), nil
}

// Check returns an error wrapping domain.ErrEgressBlocked unless rawURL
// matches a rule.
func (a *Allowlist) Check(rawURL string) error {
	_, err := a.Admit(rawURL)
	return err
}

// Admit checks rawURL and returns it as an absolute URL. Relative references
// are resolved against the base after dropping a leading "/".
func (a *Allowlist) Admit(rawURL string) (string, error) {
	u, err := a.resolve(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrEgressBlocked, rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %s: unsupported scheme", domain.ErrEgressBlocked, rawURL)
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	for _, r := range a.rules {
		if strings.EqualFold(u.Host, r.Host) && r.Path.MatchString(path) {
			return u.String(), nil
		}
	}
	return "", fmt.Errorf("%w: %s", domain.ErrEgressBlocked, rawURL)
}

// resolve turns relative references such as "api/cache?start=..." or
// "/data/reports-2026-04-26.geojson" into absolute URLs under the base.
func (a *Allowlist) resolve(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.IsAbs() {
		u.Scheme = strings.ToLower(u.Scheme)
		return u, nil
	}
	if a.base == nil {
		return nil, fmt.Errorf("relative url without base")
	}
	ref, err := url.Parse(strings.TrimPrefix(rawURL, "/"))
	if err != nil {
		return nil, err
	}
	base := *a.base
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.ResolveReference(ref), nil
}

func parseAbsolute(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute URL", raw)
	}
	return u, nil
}
