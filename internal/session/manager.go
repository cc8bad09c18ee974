package session

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"photodrop/internal/domain"
	"photodrop/internal/metrics"
)

// ErrNotConnected is returned by Send before the session reaches the
// open state. Callers sending through the bus never see it; the bus
// handler logs and drops the message.
var ErrNotConnected = errors.New("session not connected")

// State is the session connection state.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 60 * time.Second
)

// Manager owns the single WhatsApp session. It is the only writer of
// transport state; every other component sends through the bus, whose
// "whatsapp" handler the manager registers.
type Manager struct {
	transport Transport
	bus       domain.MessageBus
	history   *History
	logger    *slog.Logger

	state   atomic.Int32
	backoff time.Duration
}

type ManagerConfig struct {
	Transport Transport
	Bus       domain.MessageBus
	History   *History
	Logger    *slog.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		transport: cfg.Transport,
		bus:       cfg.Bus,
		history:   cfg.History,
		logger:    cfg.Logger,
		backoff:   initialBackoff,
	}
	m.bus.OnOutbound("whatsapp", m.handleOutbound)
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Start initiates the connection and launches the event loop. It returns
// once the connection attempt is underway; "open" arrives as an event.
func (m *Manager) Start(ctx context.Context) error {
	m.setState(StateConnecting)
	if err := m.transport.Connect(ctx); err != nil {
		m.setState(StateClosed)
		return err
	}

	go m.run(ctx)
	return nil
}

func (m *Manager) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.transport.Disconnect()
			m.setState(StateClosed)
			m.logger.Info("session stopped")
			return

		case evt, ok := <-m.transport.Events():
			if !ok {
				m.setState(StateClosed)
				return
			}

			switch evt.Kind {
			case EventConnected:
				m.setState(StateOpen)
				m.backoff = initialBackoff
				m.logger.Info("session open")

			case EventMessage:
				if evt.Message.FromMe || evt.Message.Content == "" {
					continue
				}
				metrics.MessagesTotal.Inc()
				m.history.Record(HistoryEntry{
					ChatID:    evt.Message.ChatID,
					Direction: "in",
					Content:   evt.Message.Content,
					Timestamp: evt.Message.Timestamp,
				})
				m.bus.Publish(evt.Message)

			case EventClosed:
				m.setState(StateClosed)
				if evt.Reason == ReasonLoggedOut {
					m.logger.Error("session logged out, not reconnecting")
					return
				}
				if !m.reconnect(ctx, evt.Reason) {
					return
				}
			}
		}
	}
}

// reconnect waits out the backoff and retries the connection until one
// attempt is accepted or the context ends. No attempt ceiling.
func (m *Manager) reconnect(ctx context.Context, reason string) bool {
	for {
		m.logger.Warn("session closed, reconnecting", "reason", reason, "backoff", m.backoff)

		timer := time.NewTimer(m.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}

		if m.backoff < maxBackoff {
			m.backoff *= 2
			if m.backoff > maxBackoff {
				m.backoff = maxBackoff
			}
		}

		metrics.ReconnectsTotal.Inc()
		m.setState(StateConnecting)
		if err := m.transport.Connect(ctx); err != nil {
			m.setState(StateClosed)
			m.logger.Error("reconnect failed", "error", err)
			reason = err.Error()
			continue
		}
		return true
	}
}

// Send delivers a text or image message to a chat. Calling before the
// session is open is a caller error and returns ErrNotConnected.
func (m *Manager) Send(ctx context.Context, msg domain.OutboundMessage) error {
	if m.State() != StateOpen {
		return ErrNotConnected
	}

	var err error
	if msg.ImageURL != "" {
		err = m.transport.SendImage(ctx, msg.ChatID, msg.ImageURL, msg.ViewOnce)
	} else {
		err = m.transport.SendText(ctx, msg.ChatID, msg.Content)
	}
	if err != nil {
		return err
	}

	content := msg.Content
	if msg.ImageURL != "" {
		content = msg.ImageURL
	}
	m.history.Record(HistoryEntry{ChatID: msg.ChatID, Direction: "out", Content: content})
	return nil
}

func (m *Manager) handleOutbound(msg domain.OutboundMessage) {
	if err := m.Send(context.Background(), msg); err != nil {
		metrics.SendErrorsTotal.Inc()
		m.logger.Error("outbound send failed", "chat", msg.ChatID, "error", err)
	}
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
	metrics.ConnectionState.Set(int64(s))
}
