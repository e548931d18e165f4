package escrow

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(code string) Record {
	now := time.Now()
	return Record{
		ID:                 "id-" + code,
		EscrowCode:         code,
		TransactionID:      "tx-1",
		SupplierID:         "SUP_1",
		FeeAmount:          decimal.RequireFromString("2.00"),
		ProductAmount:      decimal.RequireFromString("100.00"),
		Status:             StatusPending,
		CustodianConfirmed: true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sampleRecord("ESC_A")))

	got, err := store.Get(ctx, "ESC_A")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	_, err = store.Get(ctx, "ESC_MISSING")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRejectsDuplicateCodes(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sampleRecord("ESC_A")))
	assert.ErrorIs(t, store.Create(ctx, sampleRecord("ESC_A")), ErrDuplicateCode)
}

func TestMemoryStoreConditionalUpdate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, sampleRecord("ESC_A")))

	updated, err := store.UpdateStatus(ctx, "ESC_A", []Status{StatusPending}, StatusFeeReleased)
	require.NoError(t, err)
	assert.Equal(t, StatusFeeReleased, updated.Status)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt) || updated.UpdatedAt.Equal(updated.CreatedAt))

	// Guard mismatch: current status is no longer PENDING.
	_, err = store.UpdateStatus(ctx, "ESC_A", []Status{StatusPending}, StatusFinalized)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := store.Get(ctx, "ESC_A")
	require.NoError(t, err)
	assert.Equal(t, StatusFeeReleased, got.Status, "failed guard must not mutate")

	_, err = store.UpdateStatus(ctx, "ESC_MISSING", []Status{StatusPending}, StatusFeeReleased)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusFeeReleased.Terminal())
	assert.True(t, StatusFinalized.Terminal())
	assert.True(t, StatusCanceled.Terminal())
}
