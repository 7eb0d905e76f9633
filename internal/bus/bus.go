package bus

import (
	"log/slog"
	"sync"
	"time"

	"infobot/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based queue between the window monitors
// and the single driver loop.
type InMemoryBus struct {
	inbound chan domain.IncomingMessage
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound: make(chan domain.IncomingMessage, bufferSize),
		logger:  logger,
	}
}

// Publish enqueues a message. Blocks up to 10 seconds if the bus is
// full instead of dropping; a message lost here would otherwise only
// resurface through the journal's pending sweep.
func (b *InMemoryBus) Publish(msg domain.IncomingMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.inbound <- msg:
	default:
		b.logger.Warn("inbound bus full, waiting...", "sender", msg.Sender.DisplayName)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- msg:
			b.logger.Info("message delivered after wait", "sender", msg.Sender.DisplayName)
		case <-timer.C:
			b.logger.Error("message dropped: bus full for 10s",
				"sender", msg.Sender.DisplayName,
				"id", msg.ID,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.IncomingMessage {
	return b.inbound
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
