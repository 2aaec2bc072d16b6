package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists payments in PostgreSQL. The unique index on
// (provider_name, provider_payment_id) backs the idempotency guarantee.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed payment store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, p *Payment) (*Payment, bool, error) {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return nil, false, err
	}
	provData, err := json.Marshal(p.ProviderData)
	if err != nil {
		return nil, false, err
	}

	tag, err := s.db.Exec(ctx, `INSERT INTO payments
        (id, provider_name, provider_payment_id, amount, currency, status, metadata, provider_data, customer_id, redirect_url, created_at, updated_at)
        VALUES ($1, $2, $3, $4::numeric, $5, $6, $7::jsonb, $8::jsonb, $9, $10, $11, $12)
        ON CONFLICT (provider_name, provider_payment_id) DO NOTHING`,
		p.ID, p.ProviderName, p.ProviderPaymentID, p.Amount.String(), p.Currency, string(p.Status),
		meta, provData, p.CustomerID, p.RedirectURL, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		return nil, false, err
	}
	if tag.RowsAffected() == 0 {
		existing, err := s.FindByProviderRef(ctx, p.ProviderName, p.ProviderPaymentID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return p, true, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Payment, error) {
	row := s.db.QueryRow(ctx, selectPayment+` WHERE id = $1`, id)
	return scanPayment(row)
}

func (s *PostgresStore) FindByProviderRef(ctx context.Context, providerName, providerPaymentID string) (*Payment, error) {
	row := s.db.QueryRow(ctx, selectPayment+` WHERE provider_name = $1 AND provider_payment_id = $2`,
		providerName, providerPaymentID)
	return scanPayment(row)
}

// UpdateStatus applies a forward-only status transition under a row lock.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, to Status, providerData map[string]string) (*Payment, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	row := tx.QueryRow(ctx, selectPayment+` WHERE id = $1 FOR UPDATE`, id)
	p, err := scanPayment(row)
	if err != nil {
		return nil, err
	}

	if p.Status != to {
		if !CanTransition(p.Status, to) {
			return p, ErrAnomalousStatus
		}
		p.Status = to
	}
	if p.ProviderData == nil {
		p.ProviderData = make(map[string]string, len(providerData))
	}
	for k, v := range providerData {
		p.ProviderData[k] = v
	}
	p.UpdatedAt = time.Now().UTC()

	provData, err := json.Marshal(p.ProviderData)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE payments SET status = $1, provider_data = $2::jsonb, updated_at = $3 WHERE id = $4`,
		string(p.Status), provData, p.UpdatedAt, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

const selectPayment = `SELECT id, provider_name, provider_payment_id, amount::text, currency, status,
    metadata, provider_data, customer_id, redirect_url, created_at, updated_at FROM payments`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var amt, status string
	var meta, provData []byte
	err := row.Scan(&p.ID, &p.ProviderName, &p.ProviderPaymentID, &amt, &p.Currency, &status,
		&meta, &provData, &p.CustomerID, &p.RedirectURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if p.Amount, err = decimal.NewFromString(amt); err != nil {
		return nil, fmt.Errorf("corrupt amount for payment %s: %w", p.ID, err)
	}
	p.Status = Status(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.Metadata); err != nil {
			return nil, err
		}
	}
	if len(provData) > 0 {
		if err := json.Unmarshal(provData, &p.ProviderData); err != nil {
			return nil, err
		}
	}
	return &p, nil
}
