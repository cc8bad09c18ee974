// Package payment fetches authoritative payment records from MercadoPago.
// Webhook notifications only carry a payment ID; fulfillment decisions are
// always made against the record fetched here, never the webhook body.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"photodrop/internal/domain"
)

const defaultAPIBase = "https://api.mercadopago.com"

// Client is a minimal MercadoPago payments client.
type Client struct {
	accessToken string
	apiBase     string
	client      *http.Client
	logger      *slog.Logger
}

type ClientConfig struct {
	AccessToken string
	APIBase     string // override for tests
	Logger      *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	return &Client{
		accessToken: cfg.AccessToken,
		apiBase:     cfg.APIBase,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      cfg.Logger,
	}
}

type paymentResponse struct {
	ID       json.Number `json:"id"`
	Status   string      `json:"status"`
	Metadata struct {
		FolderKey string `json:"folder_key"`
		WN        string `json:"wn"`
	} `json:"metadata"`
}

// Payment fetches a payment by ID and flattens the fields fulfillment needs.
func (c *Client) Payment(ctx context.Context, id string) (domain.PaymentDetails, error) {
	url := fmt.Sprintf("%s/v1/payments/%s", c.apiBase, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.PaymentDetails{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.PaymentDetails{}, fmt.Errorf("fetch payment %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.PaymentDetails{}, fmt.Errorf("mercadopago API %d: %s", resp.StatusCode, string(body))
	}

	var pr paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return domain.PaymentDetails{}, fmt.Errorf("decode payment %s: %w", id, err)
	}

	return domain.PaymentDetails{
		ID:        pr.ID.String(),
		Status:    pr.Status,
		FolderKey: pr.Metadata.FolderKey,
		Recipient: pr.Metadata.WN,
	}, nil
}
