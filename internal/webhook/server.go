// Package webhook receives MercadoPago payment notifications and runs
// the payment-triggered delivery flow.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"photodrop/internal/domain"
	"photodrop/internal/metrics"
)

// Customer-facing reply scripts for the payment flow.
const (
	msgApprovedIntro   = "Olá! Muito obrigado pela sua contribuição. Aqui estão todas as suas fotos!"
	msgApprovedClosing = "Esperamos que você goste das fotos! Muito obrigado pela preferência."
	msgNotApproved     = "Desculpe-nos, infelizmente, o pagamento não foi aprovado."
)

// PaymentFetcher resolves a notification's payment ID to the
// authoritative payment record.
type PaymentFetcher interface {
	Payment(ctx context.Context, id string) (domain.PaymentDetails, error)
}

// ContentLookup resolves a folder key to photo URLs.
type ContentLookup interface {
	Lookup(ctx context.Context, folderKey string) []string
}

type Config struct {
	Path           string
	Port           int
	Payments       PaymentFetcher
	Content        ContentLookup
	Bus            domain.MessageBus
	Logger         *slog.Logger
	MetricsEnabled bool
	MetricsPath    string
}

// Server is the notification HTTP server. Notifications are acknowledged
// before any processing so the provider never retries on our slowness.
type Server struct {
	cfg      Config
	payments PaymentFetcher
	content  ContentLookup
	bus      domain.MessageBus
	logger   *slog.Logger
	router   chi.Router
}

func New(cfg Config) *Server {
	s := &Server{
		cfg:      cfg,
		payments: cfg.Payments,
		content:  cfg.Content,
		bus:      cfg.Bus,
		logger:   cfg.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post(cfg.Path, s.handleNotification)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if cfg.MetricsEnabled {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Get(path, metrics.Collector.Handler())
	}
	s.router = r
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the context ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("webhook server listening", "addr", srv.Addr, "path", s.cfg.Path)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type notification struct {
	Action string `json:"action"`
	Data   struct {
		ID flexID `json:"id"`
	} `json:"data"`
}

// flexID is a payment ID that unmarshals from both JSON strings and
// numbers; the provider uses either depending on the notification type.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	metrics.WebhookEventsTotal.Inc()

	// Acknowledge first. The provider only needs to know we received the
	// notification; whether we can act on it is our problem.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"success"}`))

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.logger.Error("cannot read notification body", "error", err)
		return
	}

	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		s.logger.Warn("malformed notification body", "error", err)
		return
	}

	id := string(n.Data.ID)
	if n.Action != "payment.updated" || id == "" {
		s.logger.Debug("notification ignored", "action", n.Action)
		return
	}

	correlation := uuid.NewString()
	s.logger.Info("payment notification accepted", "payment_id", id, "correlation", correlation)
	go s.processPayment(context.Background(), id, correlation)
}

// processPayment runs the payment-triggered delivery. Fire-and-forget:
// every failure is logged and swallowed, nothing propagates back to the
// provider.
func (s *Server) processPayment(ctx context.Context, id, correlation string) {
	logger := s.logger.With("payment_id", id, "correlation", correlation)

	p, err := s.payments.Payment(ctx, id)
	if err != nil {
		logger.Error("cannot fetch payment", "error", err)
		return
	}
	if p.Recipient == "" {
		logger.Warn("payment has no recipient, skipping", "status", p.Status)
		return
	}

	if p.Status != domain.StatusApproved {
		logger.Info("payment not approved", "status", p.Status)
		s.sendText(p.Recipient, msgNotApproved)
		return
	}

	photos := s.content.Lookup(ctx, p.FolderKey)
	if len(photos) == 0 {
		logger.Warn("approved payment with empty bundle, nothing sent", "folder_key", p.FolderKey)
		return
	}

	logger.Info("delivering paid bundle", "folder_key", p.FolderKey, "photos", len(photos))
	s.sendText(p.Recipient, msgApprovedIntro)
	for _, url := range photos {
		s.sendImage(p.Recipient, url)
		metrics.PhotosSentTotal.Inc()
	}
	s.sendText(p.Recipient, msgApprovedClosing)
	metrics.DeliveriesTotal.Inc()
}

func (s *Server) sendText(chatID, text string) {
	s.bus.SendOutbound(domain.OutboundMessage{Channel: "whatsapp", ChatID: chatID, Content: text})
}

func (s *Server) sendImage(chatID, url string) {
	s.bus.SendOutbound(domain.OutboundMessage{Channel: "whatsapp", ChatID: chatID, ImageURL: url})
}
