package wechat

import (
	"context"
	"log/slog"
	"time"

	"infobot/internal/domain"
)

// Monitor cycles through the configured chat windows at a fixed
// interval and publishes anything new onto the bus. Windows are read
// sequentially; parallel UI scripting against one desktop client is
// not stable.
type Monitor struct {
	auto     domain.Automator
	bus      domain.MessageBus
	contacts []domain.Contact
	interval time.Duration
	logger   *slog.Logger
	lastSeen map[string]string // contact ID -> last observed content
}

type MonitorConfig struct {
	Automator domain.Automator
	Bus       domain.MessageBus
	Contacts  []domain.Contact
	Interval  time.Duration
	Logger    *slog.Logger
}

func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	return &Monitor{
		auto:     cfg.Automator,
		bus:      cfg.Bus,
		contacts: cfg.Contacts,
		interval: cfg.Interval,
		logger:   cfg.Logger,
		lastSeen: make(map[string]string),
	}
}

// Run polls until the context is cancelled. lastSeen is only touched
// here; the monitor is the sole producer for its contacts.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("monitor started", "contacts", len(m.contacts), "interval", m.interval)
	m.prime(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping")
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// prime records each window's current latest entry without publishing
// it. Whatever sits in a chat at startup was handled by a previous run;
// only entries appearing after this baseline are new.
func (m *Monitor) prime(ctx context.Context) {
	for _, c := range m.contacts {
		if ctx.Err() != nil {
			return
		}
		entry, err := m.auto.ReadLatest(ctx, c.ID())
		if err != nil {
			m.logger.Warn("cannot prime chat window", "contact", c.DisplayName, "err", err)
			continue
		}
		if entry.Content != "" {
			m.lastSeen[c.ID()] = entry.Content
		}
	}
}

func (m *Monitor) sweep(ctx context.Context) {
	for _, c := range m.contacts {
		if ctx.Err() != nil {
			return
		}
		entry, err := m.auto.ReadLatest(ctx, c.ID())
		if err != nil {
			m.logger.Warn("cannot read chat window", "contact", c.DisplayName, "err", err)
			continue
		}
		if entry.Content == "" || entry.Content == m.lastSeen[c.ID()] {
			continue
		}
		m.lastSeen[c.ID()] = entry.Content

		ts := entry.ObservedAt
		if ts.IsZero() {
			ts = time.Now()
		}
		msg := domain.NewIncomingMessage(c, entry.Content, entry.Kind, ts)
		m.logger.Info("new message observed",
			"contact", c.DisplayName,
			"kind", string(entry.Kind),
			"content_len", len(entry.Content),
		)
		m.bus.Publish(msg)
	}
}
