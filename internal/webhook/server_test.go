package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"photodrop/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type captureBus struct {
	mu   sync.Mutex
	sent []domain.OutboundMessage
}

func (b *captureBus) Publish(msg domain.InboundMessage)       {}
func (b *captureBus) Subscribe() <-chan domain.InboundMessage { return nil }
func (b *captureBus) SendOutbound(msg domain.OutboundMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, msg)
}
func (b *captureBus) OnOutbound(string, func(domain.OutboundMessage)) {}
func (b *captureBus) Close()                                          {}

func (b *captureBus) messages() []domain.OutboundMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.OutboundMessage(nil), b.sent...)
}

type fakeFetcher struct {
	mu      sync.Mutex
	payment domain.PaymentDetails
	err     error
	calls   int
	block   chan struct{} // when set, Payment blocks until closed
}

func (f *fakeFetcher) Payment(ctx context.Context, id string) (domain.PaymentDetails, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.payment, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeContent struct {
	photos map[string][]string
}

func (f *fakeContent) Lookup(ctx context.Context, folderKey string) []string {
	return f.photos[folderKey]
}

func newTestServer(fetcher *fakeFetcher, content *fakeContent, bus *captureBus) *Server {
	return New(Config{
		Path:     "/webhook",
		Payments: fetcher,
		Content:  content,
		Bus:      bus,
		Logger:   testLogger(),
	})
}

func post(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestNotification_AcksBeforeProcessing(t *testing.T) {
	fetcher := &fakeFetcher{block: make(chan struct{})}
	bus := &captureBus{}
	srv := newTestServer(fetcher, &fakeContent{}, bus)

	rec := post(t, srv, `{"action":"payment.updated","data":{"id":123}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != `{"status":"success"}` {
		t.Errorf("unexpected ack body %q", got)
	}

	// Response already returned while the fetch is still in flight.
	close(fetcher.block)
	waitFor(t, func() bool { return fetcher.callCount() == 1 })
}

func TestNotification_MalformedBodyStillAcked(t *testing.T) {
	fetcher := &fakeFetcher{}
	srv := newTestServer(fetcher, &fakeContent{}, &captureBus{})

	rec := post(t, srv, `{"action": not-json`)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for malformed body, got %d", rec.Code)
	}
	time.Sleep(20 * time.Millisecond)
	if fetcher.callCount() != 0 {
		t.Error("malformed body must not trigger processing")
	}
}

func TestNotification_IgnoresOtherActions(t *testing.T) {
	fetcher := &fakeFetcher{}
	srv := newTestServer(fetcher, &fakeContent{}, &captureBus{})

	post(t, srv, `{"action":"payment.created","data":{"id":123}}`)
	post(t, srv, `{"action":"payment.updated","data":{}}`)

	time.Sleep(20 * time.Millisecond)
	if fetcher.callCount() != 0 {
		t.Errorf("expected no fetches, got %d", fetcher.callCount())
	}
}

func TestProcessPayment_ApprovedDeliversBundle(t *testing.T) {
	fetcher := &fakeFetcher{payment: domain.PaymentDetails{
		ID:        "123",
		Status:    domain.StatusApproved,
		FolderKey: "abc",
		Recipient: "5511999@s.whatsapp.net",
	}}
	content := &fakeContent{photos: map[string][]string{"abc": {"https://x/1.JPG"}}}
	bus := &captureBus{}
	srv := newTestServer(fetcher, content, bus)

	post(t, srv, `{"action":"payment.updated","data":{"id":123}}`)

	waitFor(t, func() bool { return len(bus.messages()) == 3 })
	sent := bus.messages()
	if sent[0].Content != msgApprovedIntro {
		t.Errorf("expected intro first, got %q", sent[0].Content)
	}
	if sent[1].ImageURL != "https://x/1.JPG" {
		t.Errorf("expected photo second, got %+v", sent[1])
	}
	if sent[2].Content != msgApprovedClosing {
		t.Errorf("expected closing last, got %q", sent[2].Content)
	}
	for _, m := range sent {
		if m.ChatID != "5511999@s.whatsapp.net" {
			t.Errorf("message sent to wrong recipient: %+v", m)
		}
	}
}

func TestProcessPayment_RejectedSendsSingleNotice(t *testing.T) {
	fetcher := &fakeFetcher{payment: domain.PaymentDetails{
		ID:        "123",
		Status:    "rejected",
		FolderKey: "abc",
		Recipient: "5511999@s.whatsapp.net",
	}}
	content := &fakeContent{photos: map[string][]string{"abc": {"https://x/1.JPG"}}}
	bus := &captureBus{}
	srv := newTestServer(fetcher, content, bus)

	post(t, srv, `{"action":"payment.updated","data":{"id":123}}`)

	waitFor(t, func() bool { return len(bus.messages()) == 1 })
	time.Sleep(20 * time.Millisecond)
	sent := bus.messages()
	if len(sent) != 1 || sent[0].Content != msgNotApproved {
		t.Errorf("expected single not-approved notice, got %v", sent)
	}
}

func TestProcessPayment_ApprovedEmptyBundleSendsNothing(t *testing.T) {
	fetcher := &fakeFetcher{payment: domain.PaymentDetails{
		ID:        "123",
		Status:    domain.StatusApproved,
		FolderKey: "empty",
		Recipient: "5511999@s.whatsapp.net",
	}}
	bus := &captureBus{}
	srv := newTestServer(fetcher, &fakeContent{}, bus)

	post(t, srv, `{"action":"payment.updated","data":{"id":123}}`)

	waitFor(t, func() bool { return fetcher.callCount() == 1 })
	time.Sleep(20 * time.Millisecond)
	if got := bus.messages(); len(got) != 0 {
		t.Errorf("expected no sends for empty bundle, got %v", got)
	}
}

func TestProcessPayment_FetchErrorSwallowed(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("api down")}
	bus := &captureBus{}
	srv := newTestServer(fetcher, &fakeContent{}, bus)

	rec := post(t, srv, `{"action":"payment.updated","data":{"id":"abc-id"}}`)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	waitFor(t, func() bool { return fetcher.callCount() == 1 })
	time.Sleep(20 * time.Millisecond)
	if got := bus.messages(); len(got) != 0 {
		t.Errorf("expected no sends on fetch error, got %v", got)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeFetcher{}, &fakeContent{}, &captureBus{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
