package acquirer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrAllAcquirersFailed is the terminal payment failure: every configured
// adapter declined or errored.
var ErrAllAcquirersFailed = errors.New("all acquirers failed to process the payment")

// ChargeRequest is the common input every adapter shapes into its own
// wire format.
type ChargeRequest struct {
	Amount          decimal.Decimal
	Description     string
	CardToken       string
	PaymentMethodID string
	PayerEmail      string
	PayerDocType    string
	PayerDocNumber  string
}

// Authorization is the normalized successful outcome of a charge.
type Authorization struct {
	Approved      bool
	TransactionID string
	Status        string
	RawBody       []byte
}

// AttemptError captures a single failed attempt. Declines keep the
// acquirer-native status code and body; transport failures and timeouts are
// tagged with status 500 and the transport message.
type AttemptError struct {
	Acquirer   string
	StatusCode int
	Body       string
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Acquirer, e.StatusCode, e.Body)
}

// AggregateError is returned when every adapter in the priority list failed.
type AggregateError struct {
	Attempts []*AttemptError
}

func (e *AggregateError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Error())
	}
	return "all acquirers failed: " + strings.Join(parts, "; ")
}

func (e *AggregateError) Is(target error) bool {
	return target == ErrAllAcquirersFailed
}

// Adapter authorizes a charge against one acquirer. Implementations own
// their request shape and credentials.
type Adapter interface {
	Name() string
	Charge(ctx context.Context, req ChargeRequest) (Authorization, error)
}
