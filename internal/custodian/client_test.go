package custodian

import (
	"context"
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

func custodianConfig(endpoint string) config.CustodianConfig {
	return config.CustodianConfig{
		Endpoint:      endpoint,
		Environment:   "sandbox",
		SandboxAPIKey: "sandbox-key",
		Timeout:       2 * time.Second,
	}
}

func splitRequest() SplitRequest {
	return SplitRequest{
		EscrowCode:    "ESC_LOCAL01",
		TransactionID: "tx-1",
		TotalAmount:   decimal.RequireFromString("105.00"),
		Recipients: []Recipient{
			{RecipientID: "APP_PLATFORM", Amount: decimal.RequireFromString("5.00"), Description: "platform fee"},
			{RecipientID: "SUP_1", Amount: decimal.RequireFromString("100.00"), Description: "product value"},
		},
	}
}

func TestCreateSplitUsesCustodianCode(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"escrow_code":"ESC_REMOTE99"}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(custodianConfig(srv.URL))
	code, err := client.CreateSplit(context.Background(), splitRequest())
	require.NoError(t, err)

	assert.Equal(t, "ESC_REMOTE99", code)
	assert.Equal(t, "/escrow/create", gotPath)
	assert.Equal(t, "Bearer sandbox-key", gotAuth)

	payload := gjson.ParseBytes(gotBody)
	assert.Equal(t, "105.00", payload.Get("total_amount").String())
	require.Equal(t, int64(2), payload.Get("splits.#").Int())
	assert.Equal(t, "held", payload.Get("splits.0.status").String())
	assert.Equal(t, "SUP_1", payload.Get("splits.1.recipient_id").String())
}

func TestCreateSplitKeepsLocalCodeWhenOmitted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accepted":true}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(custodianConfig(srv.URL))
	code, err := client.CreateSplit(context.Background(), splitRequest())
	require.NoError(t, err)
	assert.Equal(t, "ESC_LOCAL01", code)
}

func TestCreateSplitFailureWrapsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewHTTPClient(custodianConfig(srv.URL))
	_, err := client.CreateSplit(context.Background(), splitRequest())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestReleasePostsRecipient(t *testing.T) {
	var gotPath string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"released":true}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(custodianConfig(srv.URL))
	require.NoError(t, client.Release(context.Background(), "ESC_LOCAL01", "APP_PLATFORM"))

	assert.Equal(t, "/escrow/ESC_LOCAL01/release", gotPath)
	payload := gjson.ParseBytes(gotBody)
	assert.Equal(t, "APP_PLATFORM", payload.Get("recipient_id").String())
	assert.Equal(t, "release_to_final_account", payload.Get("action").String())
}

func TestReleaseTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client := NewHTTPClient(custodianConfig(srv.URL))
	err := client.Release(context.Background(), "ESC_LOCAL01", "APP_PLATFORM")
	assert.ErrorIs(t, err, ErrUnavailable)
}
