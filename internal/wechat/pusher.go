package wechat

import "infobot/internal/domain"

// Pusher is implemented by automators that deliver observations by
// push instead of polling. When the configured automator is a Pusher,
// the bot attaches a sink and skips the window monitor.
type Pusher interface {
	SetSink(sink func(contact string, entry domain.LatestEntry))
}
