// Package ratelimit enforces per-team request ceilings over fixed
// one-minute windows.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Buckets outlive their window so a counter can never expire while
// requests are still landing in it.
const bucketTTL = 2 * time.Minute

// CounterStore increments a named counter, creating it with ttl when
// absent. The shared redis client and the in-process fallback both
// implement it.
type CounterStore interface {
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Limiter counts requests per team in fixed one-minute windows. Every
// arrival increments the window's bucket first and the post-increment
// count is compared against the limit, so concurrent arrivals cannot
// both observe a pre-increment value and slip past the ceiling.
type Limiter struct {
	counters CounterStore
	now      func() time.Time
}

func New(counters CounterStore) *Limiter {
	return &Limiter{counters: counters, now: time.Now}
}

// Allow reports whether the team may proceed. A counter store failure
// admits the request; the gateway degrades to unlimited rather than
// refusing traffic it cannot count.
func (l *Limiter) Allow(ctx context.Context, teamID string, limitRPM int) bool {
	window := l.now().UTC().Unix() / 60
	key := fmt.Sprintf("ratelimit:%s:%d", teamID, window)

	count, err := l.counters.IncrWindow(ctx, key, bucketTTL)
	if err != nil {
		log.WithError(err).WithField("team_id", teamID).Warn("rate limit check failed, allowing request")
		return true
	}
	return count <= int64(limitRPM)
}
