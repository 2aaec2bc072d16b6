package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists escrow contracts in PostgreSQL. The conditional
// UPDATE in ClaimTerminal is what guarantees at most one terminal
// transition under concurrent release/cancel/sweep attempts.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed escrow store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, c Contract) error {
	var expires *time.Time
	if c.ExpiresAt != nil {
		utc := c.ExpiresAt.UTC()
		expires = &utc
	}
	_, err := s.db.Exec(ctx, `INSERT INTO escrow_contracts
        (id, source_account, destination_account, amount, asset, release_conditions, escrow_account,
         funding_transfer_ref, release_transfer_ref, memo, expires_at, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, c.SourceAccount, c.DestinationAccount, c.Amount.String(), c.Asset, c.ReleaseConditions,
		c.EscrowAccount, c.FundingTransferRef, c.ReleaseTransferRef, c.Memo, expires, string(c.Status),
		c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Contract, error) {
	row := s.db.QueryRow(ctx, selectContract+` WHERE id = $1`, id)
	return scanContract(row)
}

func (s *PostgresStore) ListByAccount(ctx context.Context, publicKey string) ([]Contract, error) {
	rows, err := s.db.Query(ctx, selectContract+` WHERE source_account = $1 OR destination_account = $1
        ORDER BY created_at DESC`, publicKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContracts(rows)
}

// ListExpired selects pending contracts whose expiry has passed. The
// predicate is a genuine closed-range filter on expires_at.
func (s *PostgresStore) ListExpired(ctx context.Context, asOf time.Time) ([]Contract, error) {
	rows, err := s.db.Query(ctx, selectContract+` WHERE status = $1 AND expires_at IS NOT NULL AND expires_at <= $2
        ORDER BY expires_at ASC`, string(StatusPending), asOf.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContracts(rows)
}

// ClaimTerminal atomically transitions pending -> to. Zero rows affected
// means another caller already claimed a terminal state.
func (s *PostgresStore) ClaimTerminal(ctx context.Context, id string, to Status) (Contract, error) {
	if !to.Terminal() {
		return Contract{}, fmt.Errorf("%s is not a terminal status", to)
	}
	row := s.db.QueryRow(ctx, `UPDATE escrow_contracts SET status = $1, updated_at = $2
        WHERE id = $3 AND status = $4
        RETURNING `+contractColumns, string(to), time.Now().UTC(), id, string(StatusPending))
	c, err := scanContract(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Distinguish a missing contract from a lost claim race.
			if _, getErr := s.Get(ctx, id); getErr != nil {
				return Contract{}, getErr
			}
			return Contract{}, ErrInvalidState
		}
		return Contract{}, err
	}
	return c, nil
}

func (s *PostgresStore) Reopen(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `UPDATE escrow_contracts SET status = $1, updated_at = $2 WHERE id = $3`,
		string(StatusPending), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetReleaseRef(ctx context.Context, id, ref string) error {
	tag, err := s.db.Exec(ctx, `UPDATE escrow_contracts SET release_transfer_ref = $1, updated_at = $2 WHERE id = $3`,
		ref, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const contractColumns = `id, source_account, destination_account, amount::text, asset, release_conditions,
    escrow_account, funding_transfer_ref, release_transfer_ref, memo, expires_at, status, created_at, updated_at`

const selectContract = `SELECT ` + contractColumns + ` FROM escrow_contracts`

func scanContract(row pgx.Row) (Contract, error) {
	var c Contract
	var amt, status string
	var expires *time.Time
	if err := row.Scan(&c.ID, &c.SourceAccount, &c.DestinationAccount, &amt, &c.Asset, &c.ReleaseConditions,
		&c.EscrowAccount, &c.FundingTransferRef, &c.ReleaseTransferRef, &c.Memo, &expires, &status,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, ErrNotFound
		}
		return Contract{}, err
	}
	var err error
	if c.Amount, err = decimal.NewFromString(amt); err != nil {
		return Contract{}, fmt.Errorf("corrupt amount for escrow %s: %w", c.ID, err)
	}
	c.ExpiresAt = expires
	c.Status = Status(status)
	return c, nil
}

func collectContracts(rows pgx.Rows) ([]Contract, error) {
	var out []Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
