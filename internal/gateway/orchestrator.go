// Package gateway composes fee evaluation, acquirer routing, and escrow
// creation into the checkout flow.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"escrowgate/internal/acquirer"
	"escrowgate/internal/escrow"
	"escrowgate/internal/fees"
	"escrowgate/internal/tokengate"
)

// ErrValidation rejects a checkout before any external call is made.
var ErrValidation = errors.New("invalid checkout request")

const (
	defaultDescription   = "Group purchase"
	defaultPaymentMethod = "visa"
	defaultDocType       = "CPF"

	StatusHeld   = "held"
	StatusDenied = "denied"
)

// CheckoutRequest carries everything needed to authorize and hold one
// payment. WalletAddress is optional; when present the token oracle decides
// the fee tier.
type CheckoutRequest struct {
	CardToken       string
	PaymentMethodID string
	PayerEmail      string
	PayerDocType    string
	PayerDocNumber  string
	ProductAmount   decimal.Decimal
	SupplierID      string
	Description     string
	WalletAddress   string
}

// FeeBreakdown reports how the total was computed.
type FeeBreakdown struct {
	ProductAmount decimal.Decimal
	FeeAmount     decimal.Decimal
	TotalAmount   decimal.Decimal
	Percent       decimal.Decimal
	Reason        string
}

// HolderInfo reports the token verification that drove fee selection.
type HolderInfo struct {
	Verified bool
	IsHolder bool
	Detail   *tokengate.HolderCheck
}

// CheckoutResult is the composed outcome returned to the request layer.
type CheckoutResult struct {
	Success            bool
	Status             string
	AcquirerName       string
	TransactionID      string
	EscrowCode         string
	CustodianConfirmed bool
	Fee                FeeBreakdown
	Holder             HolderInfo
	DenialReason       string
}

// Orchestrator holds the collaborators, constructed once at startup and
// injected by reference.
type Orchestrator struct {
	oracle tokengate.Oracle
	policy fees.Policy
	router *acquirer.Router
	ledger *escrow.Ledger
	logger *zap.Logger
}

func NewOrchestrator(oracle tokengate.Oracle, policy fees.Policy, router *acquirer.Router, ledger *escrow.Ledger, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		oracle: oracle,
		policy: policy,
		router: router,
		ledger: ledger,
		logger: logger,
	}
}

// ProcessPayment runs the checkout flow: validate, resolve the fee tier,
// route the charge, and on approval create the escrow record and register
// the split. A denial returns a result with Success=false and no escrow
// code; no record exists for a failed payment attempt.
func (o *Orchestrator) ProcessPayment(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	req = withDefaults(req)

	holder := o.checkHolder(ctx, req.WalletAddress)

	quote := o.policy.Evaluate(holder.IsHolder, req.ProductAmount)
	breakdown := FeeBreakdown{
		ProductAmount: req.ProductAmount,
		FeeAmount:     quote.FeeAmount,
		TotalAmount:   quote.TotalAmount,
		Percent:       quote.Percent,
		Reason:        quote.Reason,
	}

	routed, err := o.router.Attempt(ctx, acquirer.ChargeRequest{
		Amount:          quote.TotalAmount,
		Description:     req.Description,
		CardToken:       req.CardToken,
		PaymentMethodID: req.PaymentMethodID,
		PayerEmail:      req.PayerEmail,
		PayerDocType:    req.PayerDocType,
		PayerDocNumber:  req.PayerDocNumber,
	})
	if err != nil {
		if errors.Is(err, acquirer.ErrAllAcquirersFailed) {
			o.logger.Warn("payment denied by all acquirers",
				zap.String("supplier_id", req.SupplierID))
			return &CheckoutResult{
				Success:      false,
				Status:       StatusDenied,
				Fee:          breakdown,
				Holder:       holder,
				DenialReason: "all acquirers failed to process the payment",
			}, nil
		}
		return nil, err
	}

	rec, err := o.ledger.Create(ctx, escrow.CreateParams{
		TransactionID: routed.TransactionID,
		SupplierID:    req.SupplierID,
		FeeAmount:     quote.FeeAmount,
		ProductAmount: req.ProductAmount,
	})
	if err != nil {
		return nil, fmt.Errorf("create escrow record: %w", err)
	}

	return &CheckoutResult{
		Success:            true,
		Status:             StatusHeld,
		AcquirerName:       routed.AcquirerName,
		TransactionID:      routed.TransactionID,
		EscrowCode:         rec.EscrowCode,
		CustodianConfirmed: rec.CustodianConfirmed,
		Fee:                breakdown,
		Holder:             holder,
	}, nil
}

// checkHolder resolves the fee tier signal. Any oracle failure degrades to
// the standard fee: an unreachable chain must not fail the checkout.
func (o *Orchestrator) checkHolder(ctx context.Context, walletAddress string) HolderInfo {
	if walletAddress == "" {
		return HolderInfo{}
	}

	check, err := o.oracle.CheckHolder(ctx, walletAddress)
	if err != nil {
		o.logger.Warn("token oracle unavailable, applying standard fee",
			zap.String("wallet", walletAddress),
			zap.Error(err))
		return HolderInfo{Verified: true}
	}
	return HolderInfo{Verified: true, IsHolder: check.IsHolder, Detail: &check}
}

func validate(req CheckoutRequest) error {
	if req.CardToken == "" {
		return fmt.Errorf("%w: card token is required", ErrValidation)
	}
	if req.ProductAmount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: product amount must be positive", ErrValidation)
	}
	if req.SupplierID == "" {
		return fmt.Errorf("%w: supplier id is required", ErrValidation)
	}
	return nil
}

func withDefaults(req CheckoutRequest) CheckoutRequest {
	if req.Description == "" {
		req.Description = defaultDescription
	}
	if req.PaymentMethodID == "" {
		req.PaymentMethodID = defaultPaymentMethod
	}
	if req.PayerDocType == "" {
		req.PayerDocType = defaultDocType
	}
	return req
}
