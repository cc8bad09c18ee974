package session

import (
	"testing"
	"time"

	"photodrop/internal/domain"
)

func TestEmit_NeverDropsLifecycleEvents(t *testing.T) {
	tr := &WhatsmeowTransport{events: make(chan Event, 1), logger: testLogger()}

	tr.emit(Event{Kind: EventMessage, Message: domain.InboundMessage{ChatID: "c", Content: "fills the buffer"}})
	tr.emit(Event{Kind: EventMessage, Message: domain.InboundMessage{ChatID: "c", Content: "dropped"}})

	done := make(chan struct{})
	go func() {
		tr.emit(Event{Kind: EventClosed, Reason: "stream error"})
		close(done)
	}()

	// The close event waits for buffer space instead of being dropped.
	first := <-tr.events
	if first.Kind != EventMessage || first.Message.Content != "fills the buffer" {
		t.Fatalf("unexpected first event %+v", first)
	}

	select {
	case evt := <-tr.events:
		if evt.Kind != EventClosed || evt.Reason != "stream error" {
			t.Errorf("expected close event, got %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close event never delivered")
	}
	<-done
}

func TestEmit_DropsMessagesWhenFull(t *testing.T) {
	tr := &WhatsmeowTransport{events: make(chan Event, 1), logger: testLogger()}

	tr.emit(Event{Kind: EventMessage, Message: domain.InboundMessage{ChatID: "c", Content: "kept"}})
	tr.emit(Event{Kind: EventMessage, Message: domain.InboundMessage{ChatID: "c", Content: "dropped"}})

	evt := <-tr.events
	if evt.Message.Content != "kept" {
		t.Errorf("unexpected buffered event %+v", evt)
	}
	select {
	case evt := <-tr.events:
		t.Errorf("expected overflow message dropped, got %+v", evt)
	default:
	}
}
