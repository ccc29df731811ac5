package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"newsmarket/internal/db"
	"newsmarket/internal/repository"
)

// Cleaner prunes expired judged pairs and news items past the retention
// window. Scheduled as a cron job.
type Cleaner struct {
	Repo      repository.Repository
	Logger    *zap.Logger
	Retention time.Duration
}

func (c *Cleaner) RunOnce(ctx context.Context) {
	if c == nil || c.Repo == nil {
		return
	}
	now := db.NowUTC()
	pairs, err := c.Repo.DeleteExpiredJudgedPairs(ctx, now)
	if err != nil {
		c.Logger.Warn("failed to prune judged pairs", zap.Error(err))
	}

	retention := c.Retention
	if retention <= 0 {
		retention = 72 * time.Hour
	}
	news, err := c.Repo.DeleteNewsItemsBefore(ctx, now.Add(-retention))
	if err != nil {
		c.Logger.Warn("failed to prune news items", zap.Error(err))
	}
	if pairs > 0 || news > 0 {
		c.Logger.Info("cleanup done",
			zap.Int64("judged_pairs", pairs),
			zap.Int64("news_items", news),
		)
	}
}
