package domain

// MessageBus routes messages between the session transport and the
// components that react to them. Inbound messages fan in to a single
// subscriber; outbound messages are dispatched to the handler registered
// for their channel.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	SendOutbound(msg OutboundMessage)
	OnOutbound(channelName string, handler func(OutboundMessage))
	Close()
}
