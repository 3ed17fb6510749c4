package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Identity returns the content hash used to deduplicate reports across
// snapshot merges. The second return is false when the timestamp,
// coordinates or type code is missing; such reports have no identity.
func (f Feature) Identity() (string, bool) {
	r := f.Report()
	if r.ValidRaw == "" || !r.HasCoords || r.Type == "" {
		return "", false
	}
	return generateIdentity(r), true
}

func generateIdentity(r Report) string {
	parts := []string{
		r.ValidRaw,
		strconv.FormatFloat(r.Lat, 'f', -1, 64),
		strconv.FormatFloat(r.Lon, 'f', -1, 64),
		r.Type,
	}
	if r.Magnitude != "" {
		parts = append(parts, r.Magnitude)
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}
