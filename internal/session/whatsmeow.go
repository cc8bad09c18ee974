package session

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"photodrop/internal/domain"
)

// WhatsmeowTransport adapts a whatsmeow client to the Transport
// interface. Credentials persist in a sqlite store under the state dir,
// so a restarted process resumes the session without pairing again.
type WhatsmeowTransport struct {
	client *whatsmeow.Client
	events chan Event
	logger *slog.Logger
}

// NewWhatsmeowTransport opens the credential store and builds the client.
// The connection itself starts in Connect.
func NewWhatsmeowTransport(ctx context.Context, stateDir string, logger *slog.Logger) (*WhatsmeowTransport, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)",
		filepath.Join(stateDir, "whatsapp.db"))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	container := sqlstore.NewWithDB(db, "sqlite3", waLog.Noop)
	if err := container.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("upgrade session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}

	client := whatsmeow.NewClient(device, waLog.Noop)
	// The manager owns the reconnect policy.
	client.EnableAutoReconnect = false

	t := &WhatsmeowTransport{
		client: client,
		events: make(chan Event, 64),
		logger: logger,
	}
	client.AddEventHandler(t.handleEvent)
	return t, nil
}

func (t *WhatsmeowTransport) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		t.emit(Event{Kind: EventConnected})

	case *events.Disconnected:
		t.emit(Event{Kind: EventClosed, Reason: "disconnected"})

	case *events.LoggedOut:
		t.emit(Event{Kind: EventClosed, Reason: ReasonLoggedOut})

	case *events.Message:
		text := extractText(e.Message)
		t.emit(Event{Kind: EventMessage, Message: domain.InboundMessage{
			ChatID:    e.Info.Chat.String(),
			SenderID:  e.Info.Sender.String(),
			Content:   text,
			FromMe:    e.Info.IsFromMe,
			Timestamp: e.Info.Timestamp,
		}})
	}
}

func (t *WhatsmeowTransport) emit(evt Event) {
	if evt.Kind == EventMessage {
		select {
		case t.events <- evt:
		default:
			t.logger.Warn("transport event buffer full, dropping message", "chat", evt.Message.ChatID)
		}
		return
	}

	// Lifecycle events must reach the manager: a lost close would leave
	// the session marked open with no reconnect scheduled.
	t.events <- evt
}

func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

// Connect starts the connection. Without stored credentials it drives
// the QR pairing flow, logging each code for the operator to scan.
func (t *WhatsmeowTransport) Connect(ctx context.Context) error {
	if t.client.Store.ID == nil {
		qrChan, err := t.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("qr channel: %w", err)
		}
		go func() {
			for item := range qrChan {
				switch item.Event {
				case "code":
					t.logger.Info("scan this QR code with the WhatsApp app", "code", item.Code)
				case "success":
					t.logger.Info("pairing complete")
				default:
					t.logger.Warn("qr pairing event", "event", item.Event)
				}
			}
		}()
	}

	if err := t.client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (t *WhatsmeowTransport) Disconnect() {
	t.client.Disconnect()
}

func (t *WhatsmeowTransport) IsConnected() bool {
	return t.client.IsConnected()
}

func (t *WhatsmeowTransport) Events() <-chan Event {
	return t.events
}

// SendText delivers a plain text message.
func (t *WhatsmeowTransport) SendText(ctx context.Context, chatID, text string) error {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("parse jid %s: %w", chatID, err)
	}

	_, err = t.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

// SendImage downloads the image at url, uploads it to WhatsApp media
// storage and delivers it, optionally as view-once.
func (t *WhatsmeowTransport) SendImage(ctx context.Context, chatID, url string, viewOnce bool) error {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("parse jid %s: %w", chatID, err)
	}

	data, mimeType, err := fetchImage(ctx, url)
	if err != nil {
		return err
	}

	uploaded, err := t.client.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("upload image: %w", err)
	}

	img := &waE2E.ImageMessage{
		URL:           proto.String(uploaded.URL),
		DirectPath:    proto.String(uploaded.DirectPath),
		MediaKey:      uploaded.MediaKey,
		FileEncSHA256: uploaded.FileEncSHA256,
		FileSHA256:    uploaded.FileSHA256,
		FileLength:    proto.Uint64(uploaded.FileLength),
		Mimetype:      proto.String(mimeType),
	}
	if viewOnce {
		img.ViewOnce = proto.Bool(true)
	}

	_, err = t.client.SendMessage(ctx, jid, &waE2E.Message{ImageMessage: img})
	if err != nil {
		return fmt.Errorf("send image: %w", err)
	}
	return nil
}

func fetchImage(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build image request: %w", err)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch image %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read image %s: %w", url, err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}
