package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/observability"
)

// Reader is the read side of the snapshot store.
type Reader interface {
	Exists(day time.Time) bool
	Load(day time.Time) (domain.FeatureCollection, error)
}

// Outcome classifies an assembly attempt.
type Outcome int

const (
	// Hit means every day in the range had a readable snapshot.
	Hit Outcome = iota + 1
	// Miss means at least one day had no snapshot.
	Miss
	// Failed means a snapshot existed but could not be read.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case Miss:
		return "miss"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of assembling a range from disk. Collection is only
// meaningful for Hit; Missing holds the first absent day for Miss.
type Result struct {
	Outcome    Outcome
	Collection domain.FeatureCollection
	Missing    []time.Time
	Err        error
}

// Assembler builds range responses from daily snapshots.
type Assembler struct {
	store   Reader
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAssembler creates an assembler over store.
func NewAssembler(store Reader, logger *slog.Logger, metrics *observability.Metrics) *Assembler {
	return &Assembler{store: store, logger: logger, metrics: metrics}
}

// Assemble collects the reports in rng from the daily snapshots. Every day
// must be present for a hit; the first absent day ends the attempt with a
// miss and partial coverage is never returned. Reports
// whose timestamp cannot be read are kept rather than filtered out.
func (a *Assembler) Assemble(ctx context.Context, rng domain.QueryRange) Result {
	start := time.Now()
	res := a.assemble(ctx, rng)
	a.metrics.AssembleDuration.Observe(time.Since(start).Seconds())
	a.metrics.AssembleResults.WithLabelValues(res.Outcome.String()).Inc()
	return res
}

func (a *Assembler) assemble(ctx context.Context, rng domain.QueryRange) Result {
	for day := domain.StartOfDay(rng.Start); !day.After(rng.End); day = day.AddDate(0, 0, 1) {
		if !a.store.Exists(day) {
			a.logger.Debug("snapshot range incomplete", "range", rng.String(), "missing", domain.DayKey(day))
			return Result{
				Outcome: Miss,
				Missing: []time.Time{day},
				Err:     fmt.Errorf("%w: no snapshot for %s", domain.ErrCacheMiss, domain.DayKey(day)),
			}
		}
	}

	days := rng.Days()
	features := make([]domain.Feature, 0)
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return Result{Outcome: Failed, Err: err}
		}
		fc, err := a.store.Load(day)
		if err != nil {
			a.logger.Error("snapshot unreadable", "day", domain.DayKey(day), "error", err)
			return Result{Outcome: Failed, Err: fmt.Errorf("load snapshot %s: %w", domain.DayKey(day), err)}
		}
		for _, f := range fc.Features {
			if ts, ok := f.Timestamp(); ok && !rng.Contains(ts) {
				continue
			}
			features = append(features, f)
		}
	}

	return Result{Outcome: Hit, Collection: domain.NewFeatureCollection(features)}
}
