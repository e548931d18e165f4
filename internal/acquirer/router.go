package acquirer

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Result is the routed outcome of a successful authorization.
type Result struct {
	AcquirerName  string
	TransactionID string
	RawBody       []byte
}

// Router walks an ordered list of adapters and returns on the first
// approval. Failover, not retry: an adapter is attempted at most once per
// call, and a decline or outage on one acquirer never blocks the next.
type Router struct {
	adapters []Adapter
	logger   *zap.Logger
}

func NewRouter(adapters []Adapter, logger *zap.Logger) *Router {
	return &Router{adapters: adapters, logger: logger}
}

// Attempt authorizes the charge against each adapter in priority order.
// Adapters after the first success are never invoked. If every adapter
// fails, the returned error matches ErrAllAcquirersFailed and carries the
// per-acquirer attempt errors.
func (r *Router) Attempt(ctx context.Context, req ChargeRequest) (*Result, error) {
	attempts := make([]*AttemptError, 0, len(r.adapters))

	for _, adapter := range r.adapters {
		auth, err := adapter.Charge(ctx, req)
		if err != nil {
			var attErr *AttemptError
			if !errors.As(err, &attErr) {
				attErr = &AttemptError{
					Acquirer:   adapter.Name(),
					StatusCode: http.StatusInternalServerError,
					Body:       err.Error(),
				}
			}
			attempts = append(attempts, attErr)
			r.logger.Warn("acquirer attempt failed",
				zap.String("acquirer", adapter.Name()),
				zap.Int("status_code", attErr.StatusCode))
			continue
		}

		r.logger.Info("payment approved",
			zap.String("acquirer", adapter.Name()),
			zap.String("transaction_id", auth.TransactionID))
		return &Result{
			AcquirerName:  adapter.Name(),
			TransactionID: auth.TransactionID,
			RawBody:       auth.RawBody,
		}, nil
	}

	return nil, &AggregateError{Attempts: attempts}
}
