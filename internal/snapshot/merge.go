package snapshot

import "github.com/couchcryptid/storm-data-lsr-cache/internal/domain"

// MergeStats counts how incoming reports were folded into a snapshot.
type MergeStats struct {
	Added        int // new identities appended
	Updated      int // existing identities replaced in place
	Unidentified int // identity-less reports appended
}

// Merge folds incoming reports into existing by report identity. An
// incoming report replaces the existing one with the same identity at its
// original position; new and identity-less reports are appended in
// incoming order. Existing reports are never dropped, so merging an empty
// incoming set returns existing unchanged.
func Merge(existing, incoming []domain.Feature) ([]domain.Feature, MergeStats) {
	var stats MergeStats
	out := make([]domain.Feature, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing)+len(incoming))

	for _, f := range existing {
		if id, ok := f.Identity(); ok {
			if _, seen := index[id]; !seen {
				index[id] = len(out)
			}
		}
		out = append(out, f)
	}

	for _, f := range incoming {
		id, ok := f.Identity()
		if !ok {
			out = append(out, f)
			stats.Unidentified++
			continue
		}
		if i, found := index[id]; found {
			out[i] = f
			stats.Updated++
			continue
		}
		index[id] = len(out)
		out = append(out, f)
		stats.Added++
	}
	return out, stats
}
