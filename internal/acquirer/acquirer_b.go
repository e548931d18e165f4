package acquirer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"escrowgate/internal/config"
)

// AcquirerB charges through a flat-payload charges API. Same normalized
// outcome as AcquirerA, different wire shape.
type AcquirerB struct {
	cfg    config.AcquirerConfig
	client *http.Client
}

func NewAcquirerB(cfg config.AcquirerConfig) *AcquirerB {
	return &AcquirerB{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (b *AcquirerB) Name() string { return b.cfg.Name }

type acquirerBPayload struct {
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Description   string `json:"description"`
	PaymentToken  string `json:"payment_token"`
	Method        string `json:"method"`
	PayerEmail    string `json:"payer_email"`
	PayerDocument string `json:"payer_document"`
	Capture       bool   `json:"capture"`
}

func (b *AcquirerB) Charge(ctx context.Context, req ChargeRequest) (Authorization, error) {
	payload := acquirerBPayload{
		Amount:        req.Amount.StringFixed(2),
		Currency:      "BRL",
		Description:   req.Description,
		PaymentToken:  req.CardToken,
		Method:        req.PaymentMethodID,
		PayerEmail:    req.PayerEmail,
		PayerDocument: req.PayerDocNumber,
		Capture:       true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Authorization{}, fmt.Errorf("%s: marshal payload: %w", b.Name(), err)
	}

	endpoint := strings.TrimRight(b.cfg.Endpoint, "/") + "/v1/charges"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Authorization{}, fmt.Errorf("%s: build request: %w", b.Name(), err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Idempotency-Key", uuid.NewString())

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return Authorization{}, &AttemptError{
			Acquirer:   b.Name(),
			StatusCode: http.StatusInternalServerError,
			Body:       err.Error(),
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Authorization{}, &AttemptError{
			Acquirer:   b.Name(),
			StatusCode: http.StatusInternalServerError,
			Body:       err.Error(),
		}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Authorization{}, &AttemptError{
			Acquirer:   b.Name(),
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	parsed := gjson.ParseBytes(raw)
	txID := parsed.Get("charge.id").String()
	if txID == "" {
		txID = parsed.Get("id").String()
	}
	status := parsed.Get("charge.status").String()
	if status == "" {
		status = "approved"
	}

	return Authorization{
		Approved:      true,
		TransactionID: txID,
		Status:        status,
		RawBody:       raw,
	}, nil
}
