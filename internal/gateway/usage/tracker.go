// Package usage accumulates per-team daily usage rollups and reports
// summaries over trailing windows.
package usage

import (
	"context"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/strayline/llm-gateway/internal/shared/database"
	"github.com/strayline/llm-gateway/internal/shared/models"
)

const dateLayout = "2006-01-02"

// Summary is the aggregate view of a team's usage over a trailing window.
type Summary struct {
	Days                int
	Start               time.Time
	End                 time.Time
	TotalRequests       int64
	TotalInputTokens    int64
	TotalOutputTokens   int64
	TotalCostUSD        float64
	AvgDailyCostUSD     float64
	AvgTokensPerRequest float64
	Daily               []models.DailyUsage
	ByModel             []models.ModelUsage
}

// Tracker records request usage and summarizes it per team.
type Tracker struct {
	store         database.UsageStore
	retentionDays int
	now           func() time.Time
}

func NewTracker(store database.UsageStore, retentionDays int) *Tracker {
	return &Tracker{store: store, retentionDays: retentionDays, now: time.Now}
}

// Record folds one served request into the team's rollup for today (UTC).
// Failures are logged and swallowed: a request the backend already served
// must not fail because accounting did.
func (t *Tracker) Record(ctx context.Context, teamID, model string, inputTokens, outputTokens int, costUSD float64) {
	now := t.now().UTC()
	delta := models.UsageDelta{
		Requests:     1,
		InputTokens:  int64(inputTokens),
		OutputTokens: int64(outputTokens),
		CostUSD:      costUSD,
		Model:        model,
	}

	err := t.store.AddUsage(ctx, teamID, now.Format(dateLayout), delta, now.AddDate(0, 0, t.retentionDays))
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"error_type": "usage_tracking_failed",
			"team_id":    teamID,
			"model":      model,
		}).Error("usage tracking failed")
	}
}

// Summarize aggregates the team's usage over the trailing days window. On
// storage failure it returns a zeroed summary for the window rather than
// an error; reporting is best-effort.
func (t *Tracker) Summarize(ctx context.Context, teamID string, days int) Summary {
	now := t.now().UTC()
	start := now.AddDate(0, 0, -days)
	s := Summary{Days: days, Start: start, End: now}

	daily, byModel, err := t.store.UsageBetween(ctx, teamID, start.Format(dateLayout), now.Format(dateLayout))
	if err != nil {
		log.WithError(err).WithField("team_id", teamID).Error("usage summary query failed")
		return s
	}

	s.Daily = daily
	s.ByModel = byModel
	for _, d := range daily {
		s.TotalRequests += d.Requests
		s.TotalInputTokens += d.InputTokens
		s.TotalOutputTokens += d.OutputTokens
		s.TotalCostUSD += d.CostUSD
	}
	s.TotalCostUSD = round6(s.TotalCostUSD)
	if days > 0 {
		s.AvgDailyCostUSD = round6(s.TotalCostUSD / float64(days))
	}
	if s.TotalRequests > 0 {
		s.AvgTokensPerRequest = float64(s.TotalInputTokens+s.TotalOutputTokens) / float64(s.TotalRequests)
	}
	return s
}

// StartRetentionSweep purges expired rollups once a day until ctx is
// canceled. The first sweep runs immediately.
func (t *Tracker) StartRetentionSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			t.sweep(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (t *Tracker) sweep(ctx context.Context) {
	purged, err := t.store.PurgeExpired(ctx, t.now().UTC())
	if err != nil {
		log.WithError(err).Error("usage retention sweep failed")
		return
	}
	if purged > 0 {
		log.WithField("rows", purged).Info("purged expired usage rows")
	}
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
