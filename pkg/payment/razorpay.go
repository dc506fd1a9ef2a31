package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
)

// ErrNotConfigured is returned when no gateway keys have been stored.
var ErrNotConfigured = errors.New("payment gateway keys not configured")

// GatewayOrder is the gateway's record of a pending payment. Amount is in
// minor units.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status,omitempty"`
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("payment gateway returned %d", e.StatusCode)
	}
	return fmt.Sprintf("payment gateway returned %d: %s", e.StatusCode, e.Description)
}

// Client creates orders on the payment gateway's REST API.
type Client struct {
	baseURL    string
	currency   string
	httpClient *http.Client
}

func NewClient(cfg config.PaymentConfig) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.APIURL, "/"),
		currency: cfg.Currency,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (c *Client) Currency() string {
	return c.currency
}

// CreateOrder registers a payment of total whole currency units with the
// gateway, authenticating with the stored key pair.
func (c *Client) CreateOrder(ctx context.Context, creds models.Credentials, total int64) (*GatewayOrder, error) {
	if !creds.Configured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(map[string]interface{}{
		"amount":          total * 100,
		"currency":        c.currency,
		"payment_capture": 1,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("payment: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(creds.KeyID, creds.KeySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment: create order request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("payment: failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Description = envelope.Error.Description
		}
		return nil, apiErr
	}

	var order GatewayOrder
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("payment: failed to decode order: %w", err)
	}
	return &order, nil
}
