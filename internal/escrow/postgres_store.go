package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists records in a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS escrows (
    id UUID PRIMARY KEY,
    escrow_code TEXT NOT NULL UNIQUE,
    transaction_id TEXT NOT NULL,
    supplier_id TEXT NOT NULL,
    fee_amount NUMERIC(18,2) NOT NULL,
    product_amount NUMERIC(18,2) NOT NULL,
    status TEXT NOT NULL,
    custodian_confirmed BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
`

// NewPostgresStore connects using the DSN and ensures the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Create(ctx context.Context, rec Record) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO escrows (id, escrow_code, transaction_id, supplier_id, fee_amount, product_amount, status, custodian_confirmed, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`, rec.ID, rec.EscrowCode, rec.TransactionID, rec.SupplierID,
		rec.FeeAmount.StringFixed(2), rec.ProductAmount.StringFixed(2),
		string(rec.Status), rec.CustodianConfirmed, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return fmt.Errorf("escrow: insert record: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, escrowCode string) (*Record, error) {
	row := p.pool.QueryRow(ctx, `
SELECT id, escrow_code, transaction_id, supplier_id, fee_amount::text, product_amount::text, status, custodian_confirmed, created_at, updated_at
FROM escrows
WHERE escrow_code = $1
`, escrowCode)
	return scanRecord(row)
}

// UpdateStatus runs the transition as a single conditional UPDATE so two
// concurrent releases cannot both pass the status guard.
func (p *PostgresStore) UpdateStatus(ctx context.Context, escrowCode string, expected []Status, next Status) (*Record, error) {
	allowed := make([]string, 0, len(expected))
	for _, s := range expected {
		allowed = append(allowed, string(s))
	}

	row := p.pool.QueryRow(ctx, `
UPDATE escrows
SET status = $2, updated_at = now()
WHERE escrow_code = $1 AND status = ANY($3)
RETURNING id, escrow_code, transaction_id, supplier_id, fee_amount::text, product_amount::text, status, custodian_confirmed, created_at, updated_at
`, escrowCode, string(next), allowed)

	rec, err := scanRecord(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// No row updated: distinguish an unknown code from a guarded status.
	var current string
	if scanErr := p.pool.QueryRow(ctx, `SELECT status FROM escrows WHERE escrow_code = $1`, escrowCode).Scan(&current); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("escrow: fetch status: %w", scanErr)
	}
	return nil, ErrInvalidTransition
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec       Record
		fee, prod string
		rawStatus string
	)
	err := row.Scan(&rec.ID, &rec.EscrowCode, &rec.TransactionID, &rec.SupplierID,
		&fee, &prod, &rawStatus, &rec.CustodianConfirmed, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("escrow: scan record: %w", err)
	}

	if rec.FeeAmount, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("escrow: parse fee amount: %w", err)
	}
	if rec.ProductAmount, err = decimal.NewFromString(prod); err != nil {
		return nil, fmt.Errorf("escrow: parse product amount: %w", err)
	}
	rec.Status = Status(rawStatus)
	return &rec, nil
}
