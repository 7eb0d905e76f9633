package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	eventbus "infobot/internal/bus"
	"infobot/internal/config"
	"infobot/internal/domain"
	"infobot/internal/handler"
	"infobot/internal/metrics"
	"infobot/internal/wechat"
)

// Bot is the driver loop: it consumes observed messages, asks the pure
// planner for actions, optionally enriches the forward payload, and
// executes the plan through the controller. All I/O lives here and
// below; the decision core never sees it.
type Bot struct {
	cfg        *config.Config
	logger     *slog.Logger
	bus        domain.MessageBus
	events     *eventbus.EventBus
	journal    domain.Journal
	planner    *handler.Planner
	controller *wechat.Controller
	enricher   domain.Enricher // nil when enrichment is disabled
	monitor    *wechat.Monitor // nil for push automators
	collector  *metrics.Collector
	stats      *Stats

	aiTimeout time.Duration
	startTime time.Time
}

// Config holds the bot's collaborators, constructed and wired by the
// CLI entry point.
type Config struct {
	Settings   *config.Config
	Logger     *slog.Logger
	Bus        domain.MessageBus
	Events     *eventbus.EventBus
	Journal    domain.Journal
	Planner    *handler.Planner
	Controller *wechat.Controller
	Enricher   domain.Enricher
	Monitor    *wechat.Monitor
	Collector  *metrics.Collector
}

func New(cfg Config) *Bot {
	if cfg.Collector == nil {
		cfg.Collector = metrics.NewCollector()
	}
	b := &Bot{
		cfg:        cfg.Settings,
		logger:     cfg.Logger,
		bus:        cfg.Bus,
		events:     cfg.Events,
		journal:    cfg.Journal,
		planner:    cfg.Planner,
		controller: cfg.Controller,
		enricher:   cfg.Enricher,
		monitor:    cfg.Monitor,
		collector:  cfg.Collector,
		stats:      &Stats{},
		aiTimeout:  time.Duration(cfg.Settings.SiliconFlow.TimeoutSeconds) * time.Second,
	}
	b.stats.wire(b.events, b.collector)
	return b
}

// Run blocks until the context is cancelled. It is the only goroutine
// that executes plans; monitors and push adapters only produce.
func (b *Bot) Run(ctx context.Context) error {
	b.startTime = time.Now()

	if err := b.controller.Automator().Ready(ctx); err != nil {
		return fmt.Errorf("chat client not ready: %w", err)
	}

	// Push-capable automators feed the bus directly; everything else
	// gets the polling monitor.
	if pusher, ok := b.controller.Automator().(wechat.Pusher); ok {
		pusher.SetSink(func(contact string, entry domain.LatestEntry) {
			sender := b.cfg.Resolve(contact)
			b.bus.Publish(domain.NewIncomingMessage(sender, entry.Content, entry.Kind, entry.ObservedAt))
		})
		b.logger.Info("using push delivery", "automator", b.controller.Automator().Name())
	} else if b.monitor != nil {
		go b.monitor.Run(ctx)
	}

	go b.runUpkeep(ctx)

	if b.cfg.Metrics.Enabled {
		go b.serveMetrics(ctx)
	}

	b.logger.Info("infobot started",
		"teachers", len(b.cfg.Teachers),
		"students", len(b.cfg.Students),
		"automator", b.controller.Automator().Name(),
		"enrichment", b.enricher != nil,
	)

	inbound := b.bus.Subscribe()
	sweep := time.NewTicker(time.Duration(b.cfg.General.PollIntervalSeconds) * time.Second)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logFinalReport()
			return nil
		case msg, ok := <-inbound:
			if !ok {
				b.logFinalReport()
				return nil
			}
			b.process(ctx, msg, false)
		case <-sweep.C:
			b.retryPending(ctx)
		}
	}
}

// process handles one message end to end. On a send failure the
// message is left pending in the journal and the whole plan is re-run
// next sweep (at-least-once).
func (b *Bot) process(ctx context.Context, msg domain.IncomingMessage, redelivery bool) {
	if !redelivery {
		seen, err := b.journal.Record(ctx, msg)
		if err != nil {
			b.logger.Error("cannot journal message", "id", msg.ID, "err", err)
		}
		if seen {
			b.logger.Debug("duplicate observation skipped", "id", msg.ID)
			return
		}
		b.events.Emit(eventbus.Event{Type: eventbus.EventMessageReceived, Payload: map[string]any{
			"sender": msg.Sender.DisplayName,
			"role":   string(msg.Sender.Role),
		}})
	}

	plan := b.planner.Plan(msg)
	if len(plan) == 0 {
		b.logger.Warn("message from unrecognized sender ignored", "sender", msg.Sender.DisplayName)
		b.events.Emit(eventbus.Event{Type: eventbus.EventMessageIgnored})
		b.markProcessed(ctx, msg.ID)
		return
	}

	plan = b.enrich(ctx, msg, plan)

	if err := b.controller.ExecutePlan(ctx, plan); err != nil {
		b.logger.Error("plan execution failed, message stays pending",
			"sender", msg.Sender.DisplayName, "err", err)
		b.events.Emit(eventbus.Event{Type: eventbus.EventSendFailed})
		return
	}

	b.markProcessed(ctx, msg.ID)
	b.events.Emit(eventbus.Event{Type: eventbus.EventReplySent, Payload: map[string]any{
		"to": msg.Sender.DisplayName,
	}})
	if n := countForwards(plan); n > 0 {
		b.events.Emit(eventbus.Event{Type: eventbus.EventMessageForwarded, Payload: map[string]any{
			"count": n,
		}})
		b.logger.Info("teacher message forwarded",
			"teacher", msg.Sender.DisplayName, "students", n)
	}
}

// enrich applies the optional AI steps to a plan. Every failure is
// fail-open: the plan keeps its reply and forwards, falling back to
// the raw payload or the keyword verdict.
func (b *Bot) enrich(ctx context.Context, msg domain.IncomingMessage, plan []domain.Action) []domain.Action {
	if b.enricher == nil || !handler.HasForwards(plan) {
		return plan
	}
	ctx, cancel := context.WithTimeout(ctx, b.aiTimeout)
	defer cancel()

	if b.cfg.Forward.UseAIAnalysis {
		forward, err := b.enricher.ShouldForward(ctx, msg.Sender.DisplayName, msg.Content)
		if err != nil {
			b.logger.Warn("relevance analysis failed, using keyword verdict", "err", err)
			b.events.Emit(eventbus.Event{Type: eventbus.EventEnrichFallback})
			forward = b.planner.KeywordVerdict(msg.Content)
		}
		if !forward {
			b.logger.Info("message judged not worth forwarding", "sender", msg.Sender.DisplayName)
			return handler.DropForwards(plan)
		}
	}

	if b.cfg.Forward.UseAISummary {
		summary, err := b.enricher.Summarize(ctx, msg.Sender.DisplayName, msg.Content)
		if err != nil {
			b.logger.Warn("summarize failed, forwarding raw text", "err", err)
			b.events.Emit(eventbus.Event{Type: eventbus.EventEnrichFallback})
			return plan
		}
		return handler.WithForwardPayload(plan, summary)
	}
	return plan
}

// retryPending re-runs messages whose plans did not complete.
func (b *Bot) retryPending(ctx context.Context) {
	pending, err := b.journal.Pending(ctx)
	if err != nil {
		b.logger.Error("cannot read pending messages", "err", err)
		return
	}
	if len(pending) == 0 {
		return
	}
	b.logger.Info("redelivering pending messages", "count", len(pending))
	for _, msg := range pending {
		if ctx.Err() != nil {
			return
		}
		b.process(ctx, msg, true)
	}
}

func (b *Bot) markProcessed(ctx context.Context, id string) {
	if err := b.journal.MarkProcessed(ctx, id); err != nil {
		b.logger.Error("cannot mark message processed", "id", id, "err", err)
	}
}

func (b *Bot) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", b.collector.Handler())
	srv := &http.Server{Addr: b.cfg.Metrics.Listen, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	b.logger.Info("metrics endpoint listening", "addr", b.cfg.Metrics.Listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		b.logger.Error("metrics endpoint failed", "err", err)
	}
}

func countForwards(actions []domain.Action) int {
	n := 0
	for _, a := range actions {
		if a.Kind == domain.ActionForward {
			n++
		}
	}
	return n
}
