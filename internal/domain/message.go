package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// MessageKind classifies an observed chat entry. Anything that is not
// plain text is opaque to the bot and only triggers the generic reply.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindOther MessageKind = "other"
)

// IncomingMessage is one chat entry observed by an automator. It is
// created by the monitor, consumed once by the planner, and journaled
// for redelivery until every resulting action has been executed.
type IncomingMessage struct {
	ID        string
	Sender    Contact
	Content   string
	Kind      MessageKind
	Timestamp time.Time
}

// NewIncomingMessage builds a message with a deterministic ID derived
// from sender, content and observation time. The same chat entry
// observed twice within the same second maps to the same ID, which is
// what the journal uses to deduplicate redeliveries.
func NewIncomingMessage(sender Contact, content string, kind MessageKind, ts time.Time) IncomingMessage {
	h := sha1.New()
	h.Write([]byte(sender.ID()))
	h.Write([]byte{0})
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write([]byte(ts.UTC().Format(time.DateTime)))
	return IncomingMessage{
		ID:        hex.EncodeToString(h.Sum(nil)),
		Sender:    sender,
		Content:   content,
		Kind:      kind,
		Timestamp: ts,
	}
}
