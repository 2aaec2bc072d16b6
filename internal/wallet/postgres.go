package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists wallets and their transaction log in PostgreSQL.
// Mutations serialize through SELECT ... FOR UPDATE on the wallet row so
// concurrent operations on one wallet queue while different wallets
// proceed in parallel.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed wallet store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateWallet inserts a zero-balance wallet record.
func (s *PostgresStore) CreateWallet(ctx context.Context, w Wallet) error {
	_, err := s.db.Exec(ctx, `INSERT INTO wallets (id, owner_id, balance, currency, created_at, updated_at)
        VALUES ($1, $2, $3::numeric, $4, $5, $6)`,
		w.ID, w.OwnerID, w.Balance.String(), w.Currency, w.CreatedAt.UTC(), w.UpdatedAt.UTC())
	return err
}

// GetWallet fetches a wallet by identifier.
func (s *PostgresStore) GetWallet(ctx context.Context, id string) (Wallet, error) {
	row := s.db.QueryRow(ctx, `SELECT id, owner_id, balance::text, currency, created_at, updated_at
        FROM wallets WHERE id = $1`, id)
	return scanWallet(row)
}

// FindByOwnerCurrency looks up a wallet for an owner/currency pair.
func (s *PostgresStore) FindByOwnerCurrency(ctx context.Context, ownerID, currency string) (Wallet, error) {
	row := s.db.QueryRow(ctx, `SELECT id, owner_id, balance::text, currency, created_at, updated_at
        FROM wallets WHERE owner_id = $1 AND currency = $2`, ownerID, currency)
	return scanWallet(row)
}

// Deposit credits the wallet inside one database transaction.
func (s *PostgresStore) Deposit(ctx context.Context, walletID string, amount decimal.Decimal) (Transaction, error) {
	return s.mutate(ctx, walletID, amount, KindDeposit)
}

// Withdraw debits the wallet inside one database transaction, failing with
// ErrInsufficientFunds while the row lock is held if the balance cannot
// cover the amount.
func (s *PostgresStore) Withdraw(ctx context.Context, walletID string, amount decimal.Decimal) (Transaction, error) {
	return s.mutate(ctx, walletID, amount, KindWithdrawal)
}

func (s *PostgresStore) mutate(ctx context.Context, walletID string, amount decimal.Decimal, kind Kind) (Transaction, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var balText string
	err = tx.QueryRow(ctx, `SELECT balance::text FROM wallets WHERE id = $1 FOR UPDATE`, walletID).Scan(&balText)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	balance, err := decimal.NewFromString(balText)
	if err != nil {
		return Transaction{}, fmt.Errorf("corrupt balance for wallet %s: %w", walletID, err)
	}

	signed := amount
	if kind == KindWithdrawal {
		if balance.LessThan(amount) {
			return Transaction{}, ErrInsufficientFunds
		}
		signed = amount.Neg()
	}

	now := time.Now().UTC()
	txn := Transaction{
		ID:        uuid.NewString(),
		WalletID:  walletID,
		Amount:    signed,
		Kind:      kind,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := tx.Exec(ctx, `INSERT INTO ledger_transactions (id, wallet_id, amount, kind, status, created_at, updated_at)
        VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)`,
		txn.ID, txn.WalletID, txn.Amount.String(), string(txn.Kind), string(txn.Status), now, now); err != nil {
		return Transaction{}, err
	}

	newBalance := balance.Add(signed)
	if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = $1::numeric, updated_at = $2 WHERE id = $3`,
		newBalance.String(), now, walletID); err != nil {
		return Transaction{}, err
	}

	if _, err := tx.Exec(ctx, `UPDATE ledger_transactions SET status = $1, updated_at = $2 WHERE id = $3`,
		string(StatusCompleted), now, txn.ID); err != nil {
		return Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, err
	}

	txn.Status = StatusCompleted
	return txn, nil
}

// ListTransactions returns the wallet's transaction log, newest first.
func (s *PostgresStore) ListTransactions(ctx context.Context, walletID string) ([]Transaction, error) {
	if _, err := s.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `SELECT id, wallet_id, amount::text, kind, status, created_at, updated_at
        FROM ledger_transactions WHERE wallet_id = $1 ORDER BY created_at DESC, id DESC`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var amt, kind, status string
		if err := rows.Scan(&t.ID, &t.WalletID, &amt, &kind, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if t.Amount, err = decimal.NewFromString(amt); err != nil {
			return nil, err
		}
		t.Kind = Kind(kind)
		t.Status = Status(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	var balText string
	if err := row.Scan(&w.ID, &w.OwnerID, &balText, &w.Currency, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	balance, err := decimal.NewFromString(balText)
	if err != nil {
		return Wallet{}, fmt.Errorf("corrupt balance for wallet %s: %w", w.ID, err)
	}
	w.Balance = balance
	return w, nil
}
