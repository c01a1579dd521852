// Package paystack is the payment gateway adapter. It issues checkout
// references and verifies settlement status against the Paystack API.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/madakixo/jayy-bot/internal/types"
)

// Client talks to the Paystack transaction API.
type Client struct {
	secretKey   string
	baseURL     string
	callbackURL string
	client      *http.Client
}

// New creates a Paystack client. baseURL is normally
// "https://api.paystack.co"; tests point it at a local server.
func New(secretKey, baseURL, callbackURL string) *Client {
	return &Client{
		secretKey:   secretKey,
		baseURL:     baseURL,
		callbackURL: callbackURL,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

type initializeRequest struct {
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"`
	Reference   string         `json:"reference"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    map[string]any `json:"metadata"`
}

type initializeResponse struct {
	Status bool `json:"status"`
	Data   struct {
		AuthorizationURL string `json:"authorization_url"`
	} `json:"data"`
	Message string `json:"message"`
}

// InitializeCheckout mints a fresh reference and asks Paystack for a
// checkout authorization URL. The requester has no real email on the chat
// platform, so a synthetic one keyed by identity is used.
func (c *Client) InitializeCheckout(ctx context.Context, requester types.RequesterID, resource types.ResourceID, amount int64) (types.Reference, string, error) {
	ref := types.NewReference()
	body := initializeRequest{
		Email:       fmt.Sprintf("%s@telegram.user", requester),
		Amount:      amount,
		Reference:   string(ref),
		CallbackURL: c.callbackURL,
		Metadata: map[string]any{
			"user_id":  string(requester),
			"image_id": string(resource),
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", "", fmt.Errorf("marshal initialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(payload))
	if err != nil {
		return "", "", fmt.Errorf("create initialize request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: initialize: %v", types.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", "", fmt.Errorf("%w: initialize status %d: %s", types.ErrGatewayUnavailable, resp.StatusCode, data)
	}

	var result initializeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", fmt.Errorf("decode initialize response: %w", err)
	}
	if !result.Status {
		return "", "", fmt.Errorf("%w: initialize rejected: %s", types.ErrGatewayUnavailable, result.Message)
	}
	return ref, result.Data.AuthorizationURL, nil
}

type verifyResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Status string `json:"status"`
	} `json:"data"`
}

// Verify returns the provider-side settlement status of a reference.
func (c *Client) Verify(ctx context.Context, ref types.Reference) (types.SettlementStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transaction/verify/"+string(ref), nil)
	if err != nil {
		return "", fmt.Errorf("create verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: verify: %v", types.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: verify status %d", types.ErrGatewayUnavailable, resp.StatusCode)
	}

	var result verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode verify response: %w", err)
	}

	switch result.Data.Status {
	case "success":
		return types.StatusSettled, nil
	case "failed", "abandoned", "reversed":
		return types.StatusFailed, nil
	default:
		return types.StatusPending, nil
	}
}

// CancelCheckout is the best-effort compensation for a checkout whose ledger
// entry could not be written. Paystack has no cancellation endpoint for an
// initialized transaction; unpaid initializations expire on the provider
// side, so this only records the abandonment for audit.
func (c *Client) CancelCheckout(_ context.Context, ref types.Reference) error {
	slog.Warn("abandoning checkout without ledger entry", "reference", ref)
	return nil
}
