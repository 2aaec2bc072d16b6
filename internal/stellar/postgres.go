package stellar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists settlement accounts and transfers in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed settlement store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a Account) error {
	_, err := s.db.Exec(ctx, `INSERT INTO settlement_accounts
        (public_key, secret_sealed, owner_ref, sequence, balance_snapshot, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)`,
		a.PublicKey, a.SecretSealed, a.OwnerRef, a.Sequence, a.BalanceSnapshot.String(), a.IsActive,
		a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	return err
}

func (s *PostgresStore) GetAccount(ctx context.Context, publicKey string) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT public_key, secret_sealed, owner_ref, sequence, balance_snapshot::text, is_active, created_at, updated_at
        FROM settlement_accounts WHERE public_key = $1`, publicKey)
	var a Account
	var bal string
	if err := row.Scan(&a.PublicKey, &a.SecretSealed, &a.OwnerRef, &a.Sequence, &bal, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	var err error
	if a.BalanceSnapshot, err = decimal.NewFromString(bal); err != nil {
		return Account{}, fmt.Errorf("corrupt balance snapshot for %s: %w", publicKey, err)
	}
	return a, nil
}

func (s *PostgresStore) UpdateAccountSnapshot(ctx context.Context, publicKey string, sequence int64, balance decimal.Decimal) error {
	tag, err := s.db.Exec(ctx, `UPDATE settlement_accounts SET sequence = $1, balance_snapshot = $2::numeric, updated_at = $3
        WHERE public_key = $4`, sequence, balance.String(), time.Now().UTC(), publicKey)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *PostgresStore) CreateTransfer(ctx context.Context, t Transfer) error {
	tag, err := s.db.Exec(ctx, `INSERT INTO settlement_transfers
        (ref, source_account, destination_account, amount, asset, status, hash, ledger, error_detail, created_at, updated_at)
        VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (ref) DO NOTHING`,
		t.Ref, t.SourceAccount, t.DestinationAccount, t.Amount.String(), t.Asset, string(t.Status),
		t.Hash, t.Ledger, t.ErrorDetail, t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateTransfer
	}
	return nil
}

func (s *PostgresStore) GetTransfer(ctx context.Context, ref string) (Transfer, error) {
	row := s.db.QueryRow(ctx, selectTransfer+` WHERE ref = $1`, ref)
	return scanTransfer(row)
}

func (s *PostgresStore) UpdateTransferStatus(ctx context.Context, ref string, status TransferStatus, hash string, ledger int64, errorDetail string) error {
	tag, err := s.db.Exec(ctx, `UPDATE settlement_transfers
        SET status = $1, hash = $2, ledger = $3, error_detail = $4, updated_at = $5
        WHERE ref = $6 AND status = $7`,
		string(status), hash, ledger, errorDetail, time.Now().UTC(), ref, string(TransferPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either unknown ref or the record already reached a terminal state.
		if _, getErr := s.GetTransfer(ctx, ref); getErr != nil {
			return getErr
		}
		return nil
	}
	return nil
}

func (s *PostgresStore) ListTransfersByAccount(ctx context.Context, publicKey string) ([]Transfer, error) {
	rows, err := s.db.Query(ctx, selectTransfer+` WHERE source_account = $1 OR destination_account = $1
        ORDER BY created_at DESC`, publicKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const selectTransfer = `SELECT ref, source_account, destination_account, amount::text, asset, status, hash, ledger, error_detail, created_at, updated_at
    FROM settlement_transfers`

func scanTransfer(row pgx.Row) (Transfer, error) {
	var t Transfer
	var amt, status string
	if err := row.Scan(&t.Ref, &t.SourceAccount, &t.DestinationAccount, &amt, &t.Asset, &status,
		&t.Hash, &t.Ledger, &t.ErrorDetail, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrTransferNotFound
		}
		return Transfer{}, err
	}
	var err error
	if t.Amount, err = decimal.NewFromString(amt); err != nil {
		return Transfer{}, fmt.Errorf("corrupt amount for transfer %s: %w", t.Ref, err)
	}
	t.Status = TransferStatus(status)
	return t, nil
}
