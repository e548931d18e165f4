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

// AcquirerA charges through a Mercado-Pago-shaped payments API.
type AcquirerA struct {
	cfg    config.AcquirerConfig
	client *http.Client
}

func NewAcquirerA(cfg config.AcquirerConfig) *AcquirerA {
	return &AcquirerA{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (a *AcquirerA) Name() string { return a.cfg.Name }

type acquirerAPayload struct {
	TransactionAmount float64        `json:"transaction_amount"`
	Description       string         `json:"description"`
	Token             string         `json:"token"`
	Installments      int            `json:"installments"`
	PaymentMethodID   string         `json:"payment_method_id"`
	Payer             acquirerAPayer `json:"payer"`
}

type acquirerAPayer struct {
	Email          string            `json:"email"`
	Identification acquirerAIdentity `json:"identification"`
}

type acquirerAIdentity struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

func (a *AcquirerA) Charge(ctx context.Context, req ChargeRequest) (Authorization, error) {
	amount, _ := req.Amount.Float64()
	payload := acquirerAPayload{
		TransactionAmount: amount,
		Description:       req.Description,
		Token:             req.CardToken,
		Installments:      1,
		PaymentMethodID:   req.PaymentMethodID,
		Payer: acquirerAPayer{
			Email: req.PayerEmail,
			Identification: acquirerAIdentity{
				Type:   req.PayerDocType,
				Number: req.PayerDocNumber,
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Authorization{}, fmt.Errorf("%s: marshal payload: %w", a.Name(), err)
	}

	endpoint := strings.TrimRight(a.cfg.Endpoint, "/") + "/v1/payments"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Authorization{}, fmt.Errorf("%s: build request: %w", a.Name(), err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	// Fresh idempotency token per call: a routed retry on another acquirer
	// must never replay this one.
	httpReq.Header.Set("X-Idempotency-Key", uuid.NewString())

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return Authorization{}, &AttemptError{
			Acquirer:   a.Name(),
			StatusCode: http.StatusInternalServerError,
			Body:       err.Error(),
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Authorization{}, &AttemptError{
			Acquirer:   a.Name(),
			StatusCode: http.StatusInternalServerError,
			Body:       err.Error(),
		}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Authorization{}, &AttemptError{
			Acquirer:   a.Name(),
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	parsed := gjson.ParseBytes(raw)
	status := parsed.Get("status").String()
	if status == "" {
		status = "approved"
	}

	return Authorization{
		Approved:      true,
		TransactionID: parsed.Get("id").String(),
		Status:        status,
		RawBody:       raw,
	}, nil
}
