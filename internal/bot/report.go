package bot

import (
	"context"
	"time"
)

// logDailyReport summarizes the last day of activity.
func (b *Bot) logDailyReport(ctx context.Context) {
	teacher24h, err := b.journal.TeacherCount(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		b.logger.Warn("cannot count teacher messages", "err", err)
	}
	b.logger.Info("daily report",
		"uptime", time.Since(b.startTime).Round(time.Minute).String(),
		"received", b.stats.Received.Load(),
		"auto_replies", b.stats.AutoReplies.Load(),
		"forwarded", b.stats.Forwarded.Load(),
		"send_failures", b.stats.SendFailures.Load(),
		"ignored", b.stats.Ignored.Load(),
		"teacher_messages_24h", teacher24h,
	)
}

// logFinalReport runs once on shutdown.
func (b *Bot) logFinalReport() {
	b.logger.Info("run summary",
		"uptime", time.Since(b.startTime).Round(time.Second).String(),
		"received", b.stats.Received.Load(),
		"auto_replies", b.stats.AutoReplies.Load(),
		"forwarded", b.stats.Forwarded.Load(),
		"send_failures", b.stats.SendFailures.Load(),
		"enrich_fallbacks", b.stats.EnrichFallbacks.Load(),
	)
}
