package domain

import "time"

// InboundMessage is one chat event received from the messaging transport.
type InboundMessage struct {
	ChatID    string // conversation JID, also the reply destination
	SenderID  string
	Content   string
	FromMe    bool
	Timestamp time.Time
}

// OutboundMessage is one send request toward a chat destination.
// When ImageURL is empty the message is plain text; otherwise the image
// at that URL is delivered and Content is ignored.
type OutboundMessage struct {
	Channel  string
	ChatID   string
	Content  string
	ImageURL string
	ViewOnce bool
}
