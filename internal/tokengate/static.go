package tokengate

import (
	"context"

	"github.com/shopspring/decimal"
)

// StaticOracle returns a fixed answer. Used in tests and when no chain is
// configured, in which case every caller pays the standard fee.
type StaticOracle struct {
	Holder  bool
	Balance decimal.Decimal
	Minimum decimal.Decimal
	Err     error
}

func (s StaticOracle) CheckHolder(_ context.Context, address string) (HolderCheck, error) {
	if s.Err != nil {
		return HolderCheck{}, s.Err
	}
	return HolderCheck{
		IsHolder:        s.Holder,
		Balance:         s.Balance,
		MinimumRequired: s.Minimum,
		Address:         address,
	}, nil
}
