package acquirer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"escrowgate/internal/config"
)

func adapterConfig(name, endpoint string) config.AcquirerConfig {
	return config.AcquirerConfig{
		Name:     name,
		Endpoint: endpoint,
		APIKey:   "test-key",
		Timeout:  2 * time.Second,
	}
}

func TestAcquirerAChargeApproved(t *testing.T) {
	var gotPath, gotIdemKey string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotIdemKey = r.Header.Get("X-Idempotency-Key")
		gotBody = readAll(t, r)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 91827364, "status": "approved"})
	}))
	defer srv.Close()

	adapter := NewAcquirerA(adapterConfig("acquirer_a", srv.URL))
	auth, err := adapter.Charge(context.Background(), ChargeRequest{
		Amount:          decimal.RequireFromString("102.00"),
		Description:     "group purchase",
		CardToken:       "tok_abc",
		PaymentMethodID: "visa",
		PayerEmail:      "buyer@example.com",
		PayerDocType:    "CPF",
		PayerDocNumber:  "12345678900",
	})
	require.NoError(t, err)

	assert.True(t, auth.Approved)
	assert.Equal(t, "91827364", auth.TransactionID)
	assert.Equal(t, "/v1/payments", gotPath)
	assert.NotEmpty(t, gotIdemKey)

	payload := gjson.ParseBytes(gotBody)
	assert.Equal(t, "tok_abc", payload.Get("token").String())
	assert.Equal(t, "CPF", payload.Get("payer.identification.type").String())
	assert.Equal(t, 102.0, payload.Get("transaction_amount").Float())
}

func TestAcquirerAChargeDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"rejected","status_detail":"cc_rejected_insufficient_amount"}`))
	}))
	defer srv.Close()

	adapter := NewAcquirerA(adapterConfig("acquirer_a", srv.URL))
	_, err := adapter.Charge(context.Background(), ChargeRequest{Amount: decimal.NewFromInt(10)})

	var attErr *AttemptError
	require.ErrorAs(t, err, &attErr)
	assert.Equal(t, http.StatusBadRequest, attErr.StatusCode)
	assert.Contains(t, attErr.Body, "cc_rejected")
}

func TestAcquirerATransportFailureTagged500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // refuse connections

	adapter := NewAcquirerA(adapterConfig("acquirer_a", srv.URL))
	_, err := adapter.Charge(context.Background(), ChargeRequest{Amount: decimal.NewFromInt(10)})

	var attErr *AttemptError
	require.ErrorAs(t, err, &attErr)
	assert.Equal(t, http.StatusInternalServerError, attErr.StatusCode)
}

func TestAcquirerBChargeShape(t *testing.T) {
	var gotPath string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody = readAll(t, r)
		_, _ = w.Write([]byte(`{"charge":{"id":"ch_555","status":"paid"}}`))
	}))
	defer srv.Close()

	adapter := NewAcquirerB(adapterConfig("acquirer_b", srv.URL))
	auth, err := adapter.Charge(context.Background(), ChargeRequest{
		Amount:          decimal.RequireFromString("105.00"),
		CardToken:       "tok_b",
		PaymentMethodID: "master",
		PayerDocNumber:  "98765432100",
	})
	require.NoError(t, err)

	assert.Equal(t, "ch_555", auth.TransactionID)
	assert.Equal(t, "paid", auth.Status)
	assert.Equal(t, "/v1/charges", gotPath)

	payload := gjson.ParseBytes(gotBody)
	assert.Equal(t, "105.00", payload.Get("amount").String())
	assert.Equal(t, "tok_b", payload.Get("payment_token").String())
	assert.True(t, payload.Get("capture").Bool())
}

func readAll(t *testing.T, r *http.Request) []byte {
	t.Helper()
	defer r.Body.Close()
	buf, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	return buf
}
