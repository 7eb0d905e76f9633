package domain

// MessageBus decouples the monitors that observe chat windows from the
// single driver loop that processes their observations.
type MessageBus interface {
	Publish(msg IncomingMessage)
	Subscribe() <-chan IncomingMessage
	Close()
}
