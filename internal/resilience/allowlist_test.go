package resilience

import (
	"regexp"
	"testing"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultAllowlist(t *testing.T) *Allowlist {
	t.Helper()
	a, err := DefaultAllowlist(
		"http://localhost:8080",
		"https://mesonet.agron.iastate.edu/geojson/lsr.php",
		"https://api.weather.gov/products",
	)
	require.NoError(t, err)
	return a
}

func TestDefaultAllowlist_Allows(t *testing.T) {
	a := newDefaultAllowlist(t)
	for _, u := range []string{
		"http://localhost:8080/api/cache",
		"http://localhost:8080/api/cache?start=2026-04-26&end=2026-04-27",
		"/api/cache?start=2026-04-26",
		"api/cache",
		"/data/reports-2026-04-26.geojson",
		"data/reports-2026-04-26.geojson",
		"https://mesonet.agron.iastate.edu/geojson/lsr.php?sts=202604260000&ets=202604262359&wfos=",
		"HTTPS://MESONET.AGRON.IASTATE.EDU/geojson/lsr.php",
		"https://api.weather.gov/products",
		"https://api.weather.gov/products/types/PNS",
		"https://api.weather.gov/products/5a1b2c3d-0000-4e5f-8a9b-0123456789ab",
	} {
		assert.NoError(t, a.Check(u), u)
	}
}

func TestDefaultAllowlist_Blocks(t *testing.T) {
	a := newDefaultAllowlist(t)
	for _, u := range []string{
		"https://evil.example/api/cache",
		"http://localhost:9090/api/cache",
		"http://localhost:8080/api/cache/extra",
		"http://localhost:8080/data/../../etc/passwd.geojson",
		"/data/reports-2026-04-26.json",
		"https://mesonet.agron.iastate.edu/geojson/other.php",
		"http://mesonet.agron.iastate.edu.evil.example/geojson/lsr.php",
		"https://api.weather.gov/alerts/active",
		"https://api.weather.gov/products/types/PNS/locations",
		"ftp://mesonet.agron.iastate.edu/geojson/lsr.php",
		"file:///etc/passwd",
	} {
		err := a.Check(u)
		require.Error(t, err, u)
		assert.ErrorIs(t, err, domain.ErrEgressBlocked, u)
	}
}

func TestAllowlist_AdmitResolvesRelative(t *testing.T) {
	a := newDefaultAllowlist(t)

	got, err := a.Admit("/api/cache?start=2026-04-26")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api/cache?start=2026-04-26", got)

	_, err = NewAllowlist(nil).Admit("/api/cache")
	assert.ErrorIs(t, err, domain.ErrEgressBlocked)
}

func TestDefaultAllowlist_BasePathPrefix(t *testing.T) {
	a, err := DefaultAllowlist("https://example.org/lsr/", "https://mesonet.agron.iastate.edu/geojson/lsr.php", "https://api.weather.gov/products")
	require.NoError(t, err)

	got, err := a.Admit("api/cache")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/lsr/api/cache", got)
	assert.Error(t, a.Check("https://example.org/api/cache"))
}

func TestDefaultAllowlist_InvalidURLs(t *testing.T) {
	_, err := DefaultAllowlist("localhost:8080", "https://mesonet.agron.iastate.edu/geojson/lsr.php", "https://api.weather.gov/products")
	assert.Error(t, err)
}

func TestAllowlist_EmptyPathMatchesRoot(t *testing.T) {
	a := NewAllowlist(nil, Rule{Name: "any", Host: "127.0.0.1:37847", Path: regexp.MustCompile(`^/.*$`)})

	got, err := a.Admit("http://127.0.0.1:37847")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:37847", got)
	assert.NoError(t, a.Check("http://127.0.0.1:37847?x=1"))

	rootOnly := NewAllowlist(nil, Rule{Name: "feed", Host: "127.0.0.1:37847", Path: regexp.MustCompile(`^/feed$`)})
	assert.ErrorIs(t, rootOnly.Check("http://127.0.0.1:37847"), domain.ErrEgressBlocked)
}
