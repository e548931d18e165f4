package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"escrowgate/internal/acquirer"
	"escrowgate/internal/custodian"
	"escrowgate/internal/escrow"
	"escrowgate/internal/fees"
	"escrowgate/internal/tokengate"
)

type stubAdapter struct {
	name    string
	approve bool
	charges int
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Charge(context.Context, acquirer.ChargeRequest) (acquirer.Authorization, error) {
	s.charges++
	if !s.approve {
		return acquirer.Authorization{}, &acquirer.AttemptError{
			Acquirer: s.name, StatusCode: 400, Body: "cc_rejected",
		}
	}
	return acquirer.Authorization{Approved: true, TransactionID: "tx-ok", Status: "approved"}, nil
}

type fixture struct {
	orch  *Orchestrator
	store *escrow.MemoryStore
	cust  *custodian.FakeClient
}

func newFixture(t *testing.T, oracle tokengate.Oracle, adapters ...acquirer.Adapter) fixture {
	t.Helper()
	store := escrow.NewMemoryStore()
	cust := &custodian.FakeClient{}
	ledger := escrow.NewLedger(store, cust, escrow.LedgerOptions{PlatformRecipient: "APP_PLATFORM"}, zap.NewNop())
	policy := fees.Policy{
		HolderPercent:   decimal.RequireFromString("2.0"),
		StandardPercent: decimal.RequireFromString("5.0"),
	}
	router := acquirer.NewRouter(adapters, zap.NewNop())
	return fixture{
		orch:  NewOrchestrator(oracle, policy, router, ledger, zap.NewNop()),
		store: store,
		cust:  cust,
	}
}

func checkout(product string) CheckoutRequest {
	return CheckoutRequest{
		CardToken:     "tok_1",
		PayerEmail:    "buyer@example.com",
		ProductAmount: decimal.RequireFromString(product),
		SupplierID:    "SUP_1",
	}
}

func TestProcessPaymentHolderFee(t *testing.T) {
	f := newFixture(t, tokengate.StaticOracle{Holder: true}, &stubAdapter{name: "acquirer_a", approve: true})

	req := checkout("100.00")
	req.WalletAddress = "0x00000000000000000000000000000000000000aa"
	res, err := f.orch.ProcessPayment(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, StatusHeld, res.Status)
	assert.True(t, res.Fee.FeeAmount.Equal(decimal.RequireFromString("2.00")), "fee: %s", res.Fee.FeeAmount)
	assert.True(t, res.Fee.TotalAmount.Equal(decimal.RequireFromString("102.00")))
	assert.True(t, res.Holder.Verified)
	assert.True(t, res.Holder.IsHolder)
	assert.NotEmpty(t, res.EscrowCode)
	assert.Equal(t, "tx-ok", res.TransactionID)

	rec, err := f.store.Get(context.Background(), res.EscrowCode)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusPending, rec.Status)
}

func TestProcessPaymentStandardFee(t *testing.T) {
	f := newFixture(t, tokengate.StaticOracle{Holder: false}, &stubAdapter{name: "acquirer_a", approve: true})

	res, err := f.orch.ProcessPayment(context.Background(), checkout("100.00"))
	require.NoError(t, err)

	assert.True(t, res.Fee.FeeAmount.Equal(decimal.RequireFromString("5.00")))
	assert.True(t, res.Fee.TotalAmount.Equal(decimal.RequireFromString("105.00")))
	assert.False(t, res.Holder.Verified, "no wallet given, no verification")
}

func TestProcessPaymentOracleFailureFailsClosed(t *testing.T) {
	oracle := tokengate.StaticOracle{Err: errors.New("rpc unreachable")}
	f := newFixture(t, oracle, &stubAdapter{name: "acquirer_a", approve: true})

	req := checkout("100.00")
	req.WalletAddress = "0x00000000000000000000000000000000000000aa"
	res, err := f.orch.ProcessPayment(context.Background(), req)
	require.NoError(t, err, "oracle failure must never fail the checkout")

	assert.True(t, res.Success)
	assert.False(t, res.Holder.IsHolder)
	assert.True(t, res.Fee.FeeAmount.Equal(decimal.RequireFromString("5.00")), "standard fee applies")
}

func TestProcessPaymentDenial(t *testing.T) {
	f := newFixture(t, tokengate.StaticOracle{},
		&stubAdapter{name: "acquirer_a"}, &stubAdapter{name: "acquirer_b"})

	res, err := f.orch.ProcessPayment(context.Background(), checkout("100.00"))
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, StatusDenied, res.Status)
	assert.Empty(t, res.EscrowCode)
	assert.Zero(t, f.store.Len(), "failed payment attempts never produce a record")
	assert.Empty(t, f.cust.Splits)
}

func TestProcessPaymentValidation(t *testing.T) {
	f := newFixture(t, tokengate.StaticOracle{}, &stubAdapter{name: "acquirer_a", approve: true})
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CheckoutRequest)
	}{
		{"missing card token", func(r *CheckoutRequest) { r.CardToken = "" }},
		{"zero product amount", func(r *CheckoutRequest) { r.ProductAmount = decimal.Zero }},
		{"negative product amount", func(r *CheckoutRequest) { r.ProductAmount = decimal.RequireFromString("-1") }},
		{"missing supplier", func(r *CheckoutRequest) { r.SupplierID = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := checkout("100.00")
			tc.mutate(&req)
			_, err := f.orch.ProcessPayment(ctx, req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	assert.Zero(t, f.store.Len(), "validation failures happen before any external call")
}

func TestProcessPaymentFallsOverBeforeCreating(t *testing.T) {
	first := &stubAdapter{name: "acquirer_a"}
	second := &stubAdapter{name: "acquirer_b", approve: true}
	f := newFixture(t, tokengate.StaticOracle{}, first, second)

	res, err := f.orch.ProcessPayment(context.Background(), checkout("50.00"))
	require.NoError(t, err)

	assert.Equal(t, "acquirer_b", res.AcquirerName)
	assert.Equal(t, 1, first.charges)
	assert.Equal(t, 1, second.charges)
	assert.Equal(t, 1, f.store.Len(), "exactly one record per approved payment")
}
