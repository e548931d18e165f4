package fees

import "github.com/shopspring/decimal"

const (
	reasonHolder   = "reduced fee for token holders"
	reasonStandard = "standard fee"
)

// Policy maps the token-holder signal to a fee percentage. The holder rate
// is expected to be at or below the standard rate; that is a configuration
// convention, not something the evaluator enforces.
type Policy struct {
	HolderPercent   decimal.Decimal
	StandardPercent decimal.Decimal
}

// Quote is the outcome of evaluating the policy for one product amount.
type Quote struct {
	Percent     decimal.Decimal
	FeeAmount   decimal.Decimal
	TotalAmount decimal.Decimal
	Reason      string
}

// Evaluate computes fee and total for a validated positive product amount.
// Pure function, no error conditions: non-positive amounts are rejected
// before this layer.
func (p Policy) Evaluate(isTokenHolder bool, productAmount decimal.Decimal) Quote {
	percent := p.StandardPercent
	reason := reasonStandard
	if isTokenHolder {
		percent = p.HolderPercent
		reason = reasonHolder
	}

	fee := productAmount.Mul(percent).Div(decimal.NewFromInt(100))
	return Quote{
		Percent:     percent,
		FeeAmount:   fee,
		TotalAmount: productAmount.Add(fee),
		Reason:      reason,
	}
}
