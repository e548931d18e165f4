// Package escrow owns the lifecycle of custody records: creation after an
// approved payment, guarded status transitions, and the durable store
// backing them.
package escrow

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status of a custody record. Transitions only advance forward along
// PENDING -> FEE_RELEASED -> FINALIZED; CANCELED is terminal and reachable
// from any non-terminal state.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusFeeReleased Status = "FEE_RELEASED"
	StatusFinalized   Status = "FINALIZED"
	StatusCanceled    Status = "CANCELED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusFinalized || s == StatusCanceled
}

var (
	// ErrNotFound means no record exists for the escrow code.
	ErrNotFound = errors.New("escrow: record not found")
	// ErrInvalidTransition means a release was attempted on a terminal
	// record, or the record's status changed underneath the caller.
	ErrInvalidTransition = errors.New("escrow: invalid status transition")
	// ErrReleaseOrder means the product release ran before the fee release
	// while strict ordering is enabled.
	ErrReleaseOrder = errors.New("escrow: fee must be released before product")
	// ErrDuplicateCode means the escrow code is already taken.
	ErrDuplicateCode = errors.New("escrow: duplicate escrow code")
)

// Record is the unit of custody tracking. Amounts are fixed at creation;
// the only post-creation mutations are status changes (plus the matching
// UpdatedAt refresh). Records are never deleted.
type Record struct {
	ID            string
	EscrowCode    string
	TransactionID string
	SupplierID    string
	FeeAmount     decimal.Decimal
	ProductAmount decimal.Decimal
	Status        Status
	// CustodianConfirmed is false when the record was persisted locally
	// after a failed custodian registration. Releases against such records
	// are allowed but flagged.
	CustodianConfirmed bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
