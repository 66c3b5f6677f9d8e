// Package notify implements the audience fan-out and multi-channel delivery
// of spec §4.6: in-app notifications plus push/SMS/email for subscribed
// citizens.
package notify

import (
	"context"
)

// Message is a channel-agnostic outbound notification.
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// Sender delivers a Message to one recipient over one channel. Every
// concrete sender treats delivery failure as non-fatal to the caller: a
// bad token or unreachable vendor should never roll back the incident
// mutation that triggered it.
type Sender interface {
	Name() string
	Send(ctx context.Context, recipient string, msg Message) error
}
