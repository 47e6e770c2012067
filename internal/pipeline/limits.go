package pipeline

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/bioleads/lead-enrichment-pipeline/internal/source"
)

// limits holds one token bucket per source kind. It is the only state
// shared across concurrent candidate workers: a large candidate batch
// draws from the same per-source budget, so it cannot exceed any single
// source's quota.
type limits struct {
	buckets map[source.Kind]*rate.Limiter
}

// newLimits builds per-source buckets from requests-per-second values.
// A kind with no entry (or rps <= 0) is unthrottled.
func newLimits(rps map[source.Kind]float64) *limits {
	buckets := make(map[source.Kind]*rate.Limiter, len(rps))
	for kind, v := range rps {
		if v <= 0 {
			continue
		}
		buckets[kind] = rate.NewLimiter(rate.Limit(v), 1)
	}
	return &limits{buckets: buckets}
}

func (l *limits) wait(ctx context.Context, kind source.Kind) error {
	if l == nil {
		return nil
	}
	lim, ok := l.buckets[kind]
	if !ok {
		return nil
	}
	return lim.Wait(ctx)
}
