// Package router consumes inbound chat messages and drives the
// chat-triggered delivery flow.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"photodrop/internal/domain"
	"photodrop/internal/metrics"
	"photodrop/internal/pix"
)

// intentPattern extracts the folder key from a message. First match wins.
var intentPattern = regexp.MustCompile(`fid=([\w-]+)`)

// Customer-facing reply scripts.
const (
	msgIntro      = "Claro! Aqui estão as fotos que você pediu. Esperamos que você goste delas. Não esqueça de apoiar nosso trabalho."
	msgNoContent  = "Não encontramos fotos para o cupom: %s"
	msgHug        = "Um abraço para você. Não deixe de nos apoiar."
	msgPixExplain = "Aqui nosso PIX. Você pode copiar e colar no seu aplicativo do banco. Você escolhe o valor. Muito obrigado"
	msgAmountAsk  = "Por favor, nos informe o valor que contribuiu para que possamos registrar. Não tem valor certo, você é quem escolhe o valor de acordo com sua avaliação. Pode ser 10, 20, 100, 200... no máximo R$ 5.000 ! 😊🤣🫣.. Quanto você quiser e puder.  😊🙏💙"
	msgDemoIntro  = "Claro! Aqui você tem uma foto de demonstração. Esperamos que goste. Para receber todas as fotos, incluindo as originais e as processadas com o fundo trocado, clique no link abaixo e escolha um valor para sua contribuição. O valor que você achar que merecemos pelo nosso trabalho. Muito obrigado!"
)

// ContentLookup resolves a folder key to photo URLs.
type ContentLookup interface {
	Lookup(ctx context.Context, folderKey string) []string
}

// Assistant produces a conversational reply for messages without intent.
type Assistant interface {
	Reply(ctx context.Context, prompt string) (string, error)
}

// FallbackMode selects what happens to messages without a folder key.
const (
	FallbackNone    = "none"
	FallbackEchoLLM = "echo-llm"
)

type Config struct {
	IncludePaymentStep bool
	FallbackMode       string
	DemoMode           bool
	PaymentLinkBase    string
}

// Router turns inbound messages into delivery flows. It is the single
// bus consumer; messages are handled sequentially so the replies of one
// delivery stay in order.
type Router struct {
	bus       domain.MessageBus
	content   ContentLookup
	assistant Assistant // nil unless FallbackMode is echo-llm
	encoder   *pix.Encoder
	cfg       Config
	logger    *slog.Logger
}

func New(bus domain.MessageBus, content ContentLookup, assistant Assistant, encoder *pix.Encoder, cfg Config, logger *slog.Logger) *Router {
	return &Router{
		bus:       bus,
		content:   content,
		assistant: assistant,
		encoder:   encoder,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run consumes the bus until the context ends or the bus closes.
func (r *Router) Run(ctx context.Context) {
	inbound := r.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			r.Handle(ctx, msg)
		}
	}
}

// Handle processes one inbound message.
func (r *Router) Handle(ctx context.Context, msg domain.InboundMessage) {
	if msg.FromMe || msg.Content == "" {
		return
	}

	match := intentPattern.FindStringSubmatch(msg.Content)
	if match == nil {
		r.fallback(ctx, msg)
		return
	}
	folderKey := match[1]

	r.logger.Info("delivery requested", "chat", msg.ChatID, "folder_key", folderKey)

	photos := r.content.Lookup(ctx, folderKey)
	if len(photos) == 0 {
		r.sendText(msg.ChatID, fmt.Sprintf(msgNoContent, folderKey))
		return
	}

	if r.cfg.DemoMode {
		r.deliverDemo(msg, photos, folderKey)
		return
	}
	r.deliverBundle(msg.ChatID, photos)
}

func (r *Router) deliverBundle(chatID string, photos []string) {
	r.sendText(chatID, msgIntro)
	for _, url := range photos {
		r.sendImage(chatID, url, false)
		metrics.PhotosSentTotal.Inc()
	}

	if r.cfg.IncludePaymentStep {
		r.sendText(chatID, msgHug)
		r.sendText(chatID, msgPixExplain)
		r.sendText(chatID, r.encoder.Payload("***", nil))
		r.sendText(chatID, msgAmountAsk)
	}
	metrics.DeliveriesTotal.Inc()
}

// deliverDemo sends only the first photo as view-once plus a payment
// link, instead of the full bundle and PIX step.
func (r *Router) deliverDemo(msg domain.InboundMessage, photos []string, folderKey string) {
	r.sendText(msg.ChatID, msgDemoIntro)
	r.sendImage(msg.ChatID, photos[0], true)
	metrics.PhotosSentTotal.Inc()

	link := fmt.Sprintf("%s?folderKey=%s&wn=%s", r.cfg.PaymentLinkBase, folderKey, msg.ChatID)
	r.sendText(msg.ChatID, link)
	metrics.DeliveriesTotal.Inc()
}

func (r *Router) fallback(ctx context.Context, msg domain.InboundMessage) {
	if r.cfg.FallbackMode != FallbackEchoLLM || r.assistant == nil {
		return
	}

	reply, err := r.assistant.Reply(ctx, msg.Content)
	if err != nil {
		r.logger.Error("assistant reply failed", "chat", msg.ChatID, "error", err)
		return
	}
	r.sendText(msg.ChatID, reply)
}

func (r *Router) sendText(chatID, text string) {
	r.bus.SendOutbound(domain.OutboundMessage{Channel: "whatsapp", ChatID: chatID, Content: text})
}

func (r *Router) sendImage(chatID, url string, viewOnce bool) {
	r.bus.SendOutbound(domain.OutboundMessage{Channel: "whatsapp", ChatID: chatID, ImageURL: url, ViewOnce: viewOnce})
}
