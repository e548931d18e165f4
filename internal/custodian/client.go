// Package custodian talks to the external escrow provider that actually
// holds and releases funds. The gateway only registers splits and requests
// per-recipient releases; settlement is the provider's problem.
package custodian

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"escrowgate/internal/config"
)

// ErrUnavailable wraps every custodian-side failure, transport or
// application level. Callers decide whether it is fatal: it is not at
// creation time, it is at release time.
var ErrUnavailable = errors.New("custodian unavailable")

// Recipient is one line item of a fund split.
type Recipient struct {
	RecipientID string
	Amount      decimal.Decimal
	Description string
}

// SplitRequest registers a held split for an approved payment.
type SplitRequest struct {
	EscrowCode    string
	TransactionID string
	TotalAmount   decimal.Decimal
	Recipients    []Recipient
}

// Client is the custody contract the ledger consumes.
type Client interface {
	// CreateSplit registers the split and returns the escrow code the
	// custodian filed it under, which may differ from the proposed one.
	CreateSplit(ctx context.Context, req SplitRequest) (string, error)
	// Release moves one recipient's held amount to its final account.
	Release(ctx context.Context, escrowCode, recipientID string) error
}

// HTTPClient implements Client against the provider's REST API.
type HTTPClient struct {
	cfg    config.CustodianConfig
	client *http.Client
}

func NewHTTPClient(cfg config.CustodianConfig) *HTTPClient {
	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type splitLineItem struct {
	RecipientID string `json:"recipient_id"`
	Amount      string `json:"amount"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

type createSplitPayload struct {
	EscrowCode    string          `json:"escrow_code"`
	TransactionID string          `json:"transaction_id"`
	TotalAmount   string          `json:"total_amount"`
	Splits        []splitLineItem `json:"splits"`
	Metadata      splitMetadata   `json:"metadata"`
}

type splitMetadata struct {
	CreatedAt      string `json:"created_at"`
	ReleaseTrigger string `json:"release_trigger"`
}

func (c *HTTPClient) CreateSplit(ctx context.Context, req SplitRequest) (string, error) {
	payload := createSplitPayload{
		EscrowCode:    req.EscrowCode,
		TransactionID: req.TransactionID,
		TotalAmount:   req.TotalAmount.StringFixed(2),
		Metadata: splitMetadata{
			CreatedAt:      time.Now().UTC().Format(time.RFC3339),
			ReleaseTrigger: "manual",
		},
	}
	for _, r := range req.Recipients {
		payload.Splits = append(payload.Splits, splitLineItem{
			RecipientID: r.RecipientID,
			Amount:      r.Amount.StringFixed(2),
			Status:      "held",
			Description: r.Description,
		})
	}

	raw, err := c.post(ctx, "/escrow/create", payload)
	if err != nil {
		return "", err
	}

	if code := gjson.ParseBytes(raw).Get("escrow_code").String(); code != "" {
		return code, nil
	}
	return req.EscrowCode, nil
}

type releasePayload struct {
	RecipientID string `json:"recipient_id"`
	Action      string `json:"action"`
}

func (c *HTTPClient) Release(ctx context.Context, escrowCode, recipientID string) error {
	payload := releasePayload{
		RecipientID: recipientID,
		Action:      "release_to_final_account",
	}
	_, err := c.post(ctx, "/escrow/"+escrowCode+"/release", payload)
	return err
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("custodian: marshal payload: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.Endpoint, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("custodian: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(raw))
	}
	return raw, nil
}
