package bot

import (
	"sync/atomic"

	eventbus "infobot/internal/bus"
	"infobot/internal/metrics"
)

// Stats tracks run counters for the periodic and final reports. The
// bot never reads them on the hot path; they are fed from the event
// bus so the driver loop stays decoupled from reporting.
type Stats struct {
	Received        atomic.Int64
	AutoReplies     atomic.Int64
	Forwarded       atomic.Int64
	SendFailures    atomic.Int64
	Ignored         atomic.Int64
	EnrichFallbacks atomic.Int64
}

// wire subscribes the stats and the Prometheus collector to the event
// bus.
func (s *Stats) wire(events *eventbus.EventBus, coll *metrics.Collector) {
	received := coll.Counter("infobot_messages_received_total", "Messages observed in chat windows")
	replies := coll.Counter("infobot_auto_replies_total", "Acknowledgement replies sent")
	forwards := coll.Counter("infobot_messages_forwarded_total", "Forward deliveries to students")
	failures := coll.Counter("infobot_send_failures_total", "Failed automation deliveries")
	ignored := coll.Counter("infobot_messages_ignored_total", "Messages from unrecognized senders")
	fallbacks := coll.Counter("infobot_enrich_fallbacks_total", "AI enrichment calls that fell back to raw text")

	events.On(eventbus.EventMessageReceived, func(eventbus.Event) {
		s.Received.Add(1)
		received.Inc()
	})
	events.On(eventbus.EventReplySent, func(eventbus.Event) {
		s.AutoReplies.Add(1)
		replies.Inc()
	})
	events.On(eventbus.EventMessageForwarded, func(e eventbus.Event) {
		n := int64(1)
		if v, ok := e.Payload["count"].(int); ok {
			n = int64(v)
		}
		s.Forwarded.Add(n)
		forwards.Add(n)
	})
	events.On(eventbus.EventSendFailed, func(eventbus.Event) {
		s.SendFailures.Add(1)
		failures.Inc()
	})
	events.On(eventbus.EventMessageIgnored, func(eventbus.Event) {
		s.Ignored.Add(1)
		ignored.Inc()
	})
	events.On(eventbus.EventEnrichFallback, func(eventbus.Event) {
		s.EnrichFallbacks.Add(1)
		fallbacks.Inc()
	})
}
