// Package session owns the WhatsApp connection: lifecycle, reconnect
// policy, outbound sends and the message-history cache.
package session

import (
	"context"

	"photodrop/internal/domain"
)

// EventKind discriminates transport events.
type EventKind int

const (
	EventConnected EventKind = iota
	EventClosed
	EventMessage
)

// ReasonLoggedOut marks a close caused by the account being logged out
// on the phone. It is terminal: the session must not reconnect.
const ReasonLoggedOut = "logged-out"

// Event is one lifecycle or message event from the transport.
type Event struct {
	Kind    EventKind
	Reason  string // set for EventClosed
	Message domain.InboundMessage
}

// Transport abstracts the messaging SDK so the manager's policy can be
// tested without a live connection.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	SendText(ctx context.Context, chatID, text string) error
	SendImage(ctx context.Context, chatID, url string, viewOnce bool) error
	// Events delivers connection and message events. Closed when the
	// transport shuts down for good.
	Events() <-chan Event
}
