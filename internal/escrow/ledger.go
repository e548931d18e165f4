package escrow

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"escrowgate/internal/custodian"
)

// Ledger owns record creation and the release state machine, reconciling
// the local store with the external custodian.
type Ledger struct {
	store             Store
	custodian         custodian.Client
	platformRecipient string
	strictOrder       bool
	logger            *zap.Logger
}

type LedgerOptions struct {
	PlatformRecipient string
	// StrictReleaseOrder hard-blocks ReleaseProduct on records whose fee
	// has not been released yet. Off by default: the release proceeds and
	// the result is flagged out-of-order instead.
	StrictReleaseOrder bool
}

func NewLedger(store Store, cust custodian.Client, opts LedgerOptions, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:             store,
		custodian:         cust,
		platformRecipient: opts.PlatformRecipient,
		strictOrder:       opts.StrictReleaseOrder,
		logger:            logger,
	}
}

// CreateParams carries the amounts fixed at creation. ProductAmount must be
// strictly positive; the orchestrator validates that before any external
// call.
type CreateParams struct {
	TransactionID string
	SupplierID    string
	FeeAmount     decimal.Decimal
	ProductAmount decimal.Decimal
}

// ReleaseResult reports a completed release operation.
type ReleaseResult struct {
	EscrowCode     string
	Recipient      string
	ReleasedAmount decimal.Decimal
	NewStatus      Status
	// OutOfOrder marks a product release that ran before the fee release
	// while strict ordering is disabled.
	OutOfOrder bool
}

// Create registers the fund split with the custodian and persists the
// record. The custodian may supersede the locally generated escrow code;
// the final code is resolved before the record is ever persisted, so the
// store never sees a record under two identifiers. Custodian failure is
// non-fatal here: the record is persisted locally and flagged unconfirmed.
// Not idempotent: every call produces a distinct record.
func (l *Ledger) Create(ctx context.Context, p CreateParams) (*Record, error) {
	code := newEscrowCode()
	confirmed := true

	custodianCode, err := l.custodian.CreateSplit(ctx, custodian.SplitRequest{
		EscrowCode:    code,
		TransactionID: p.TransactionID,
		TotalAmount:   p.FeeAmount.Add(p.ProductAmount),
		Recipients: []custodian.Recipient{
			{RecipientID: l.platformRecipient, Amount: p.FeeAmount, Description: "platform fee"},
			{RecipientID: p.SupplierID, Amount: p.ProductAmount, Description: "product value"},
		},
	})
	if err != nil {
		confirmed = false
		l.logger.Warn("custodian registration failed, persisting record locally only",
			zap.String("escrow_code", code),
			zap.Error(err))
	} else if custodianCode != "" {
		code = custodianCode
	}

	now := time.Now()
	rec := Record{
		ID:                 uuid.NewString(),
		EscrowCode:         code,
		TransactionID:      p.TransactionID,
		SupplierID:         p.SupplierID,
		FeeAmount:          p.FeeAmount,
		ProductAmount:      p.ProductAmount,
		Status:             StatusPending,
		CustodianConfirmed: confirmed,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	// A store failure is logged, not surfaced: the payment is already
	// approved and cannot be unwound from here.
	if err := l.store.Create(ctx, rec); err != nil {
		l.logger.Error("failed to persist escrow record",
			zap.String("escrow_code", code),
			zap.Error(err))
	} else {
		l.logger.Info("escrow record created",
			zap.String("escrow_code", code),
			zap.String("transaction_id", p.TransactionID),
			zap.Bool("custodian_confirmed", confirmed))
	}

	return &rec, nil
}

// ReleaseFee releases the platform-fee portion. Only a custodian success
// mutates the record; a custodian failure surfaces as-is and leaves the
// record truthful about actual custody state.
func (l *Ledger) ReleaseFee(ctx context.Context, escrowCode string) (*ReleaseResult, error) {
	rec, err := l.guardedLookup(ctx, escrowCode)
	if err != nil {
		return nil, err
	}

	if err := l.custodian.Release(ctx, escrowCode, l.platformRecipient); err != nil {
		return nil, fmt.Errorf("release fee for %s: %w", escrowCode, err)
	}

	updated, err := l.store.UpdateStatus(ctx, escrowCode,
		[]Status{StatusPending, StatusFeeReleased}, StatusFeeReleased)
	if err != nil {
		return nil, err
	}

	l.logger.Info("fee released",
		zap.String("escrow_code", escrowCode),
		zap.String("amount", rec.FeeAmount.StringFixed(2)))

	return &ReleaseResult{
		EscrowCode:     escrowCode,
		Recipient:      l.platformRecipient,
		ReleasedAmount: rec.FeeAmount,
		NewStatus:      updated.Status,
	}, nil
}

// ReleaseProduct releases the supplier portion and finalizes the record.
func (l *Ledger) ReleaseProduct(ctx context.Context, escrowCode string) (*ReleaseResult, error) {
	rec, err := l.guardedLookup(ctx, escrowCode)
	if err != nil {
		return nil, err
	}

	outOfOrder := rec.Status != StatusFeeReleased
	if outOfOrder {
		if l.strictOrder {
			return nil, fmt.Errorf("%w: %s is %s", ErrReleaseOrder, escrowCode, rec.Status)
		}
		l.logger.Warn("releasing product before fee",
			zap.String("escrow_code", escrowCode),
			zap.String("status", string(rec.Status)))
	}

	if err := l.custodian.Release(ctx, escrowCode, rec.SupplierID); err != nil {
		return nil, fmt.Errorf("release product for %s: %w", escrowCode, err)
	}

	updated, err := l.store.UpdateStatus(ctx, escrowCode,
		[]Status{StatusPending, StatusFeeReleased}, StatusFinalized)
	if err != nil {
		return nil, err
	}

	l.logger.Info("product released, escrow finalized",
		zap.String("escrow_code", escrowCode),
		zap.String("amount", rec.ProductAmount.StringFixed(2)))

	return &ReleaseResult{
		EscrowCode:     escrowCode,
		Recipient:      rec.SupplierID,
		ReleasedAmount: rec.ProductAmount,
		NewStatus:      updated.Status,
		OutOfOrder:     outOfOrder,
	}, nil
}

// Get returns the record for the code, or ErrNotFound.
func (l *Ledger) Get(ctx context.Context, escrowCode string) (*Record, error) {
	return l.store.Get(ctx, escrowCode)
}

func (l *Ledger) guardedLookup(ctx context.Context, escrowCode string) (*Record, error) {
	rec, err := l.store.Get(ctx, escrowCode)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, escrowCode, rec.Status)
	}
	if !rec.CustodianConfirmed {
		l.logger.Warn("releasing against a record without custodian confirmation",
			zap.String("escrow_code", escrowCode))
	}
	return rec, nil
}

func newEscrowCode() string {
	id := uuid.New()
	return "ESC_" + strings.ToUpper(hex.EncodeToString(id[:8]))
}
