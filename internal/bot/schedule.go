package bot

import (
	"context"
	"time"
)

// upkeepTask is a periodic maintenance job run alongside the driver
// loop.
type upkeepTask struct {
	name    string
	every   time.Duration
	nextRun time.Time
	fn      func(ctx context.Context)
}

// runUpkeep drives the maintenance tasks on a one-second tick, the
// same shape as a cron scheduler but without cron expressions: the
// three jobs are all simple intervals.
func (b *Bot) runUpkeep(ctx context.Context) {
	now := time.Now()
	tasks := []*upkeepTask{
		{
			name:  "health-check",
			every: time.Duration(b.cfg.Upkeep.HealthCheckMinutes) * time.Minute,
			fn:    b.healthCheck,
		},
		{
			name:  "journal-cleanup",
			every: time.Duration(b.cfg.Upkeep.CleanupMinutes) * time.Minute,
			fn:    b.cleanupJournal,
		},
	}
	if b.cfg.Upkeep.DailyReport {
		tasks = append(tasks, &upkeepTask{
			name:  "daily-report",
			every: 24 * time.Hour,
			fn:    b.logDailyReport,
		})
	}
	for _, t := range tasks {
		t.nextRun = now.Add(t.every)
	}

	b.logger.Info("upkeep scheduler started", "tasks", len(tasks))
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("upkeep scheduler stopping")
			return
		case now := <-ticker.C:
			for _, t := range tasks {
				if now.Before(t.nextRun) {
					continue
				}
				t.nextRun = now.Add(t.every)
				b.logger.Debug("running upkeep task", "task", t.name)
				t.fn(ctx)
			}
		}
	}
}

// healthCheck verifies the automator still answers and records the
// journal backlog. A wedged client gets one refresh attempt; the next
// check will tell whether it helped.
func (b *Bot) healthCheck(ctx context.Context) {
	pendingGauge := b.collector.Gauge("infobot_pending_messages", "Messages awaiting plan execution")
	if n, err := b.journal.PendingCount(ctx); err == nil {
		pendingGauge.Set(int64(n))
	}

	if err := b.controller.Automator().Ready(ctx); err != nil {
		b.logger.Warn("health check: chat client not ready, refreshing", "err", err)
		if err := b.controller.Automator().Refresh(ctx); err != nil {
			b.logger.Error("health check: refresh failed", "err", err)
		}
		return
	}
	b.logger.Info("health check passed")
}

func (b *Bot) cleanupJournal(ctx context.Context) {
	before := time.Now().AddDate(0, 0, -b.cfg.Journal.RetentionDays)
	if _, err := b.journal.Cleanup(ctx, before); err != nil {
		b.logger.Error("journal cleanup failed", "err", err)
	}
}
