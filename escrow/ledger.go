package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrInvalidAmount signals a zero or negative transfer amount.
	ErrInvalidAmount = errors.New("escrow: amount must be positive")
	// ErrInsufficientFunds signals the debited account cannot cover the amount.
	ErrInsufficientFunds = errors.New("escrow: insufficient funds")
)

// Ledger owns the escrow_accounts and escrow_transfers tables. The Tx-suffixed
// methods run inside a caller-provided transaction so the engine can compose
// value movement with its own state writes atomically.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// CreditTx adds amount to the account, creating it on first use.
func (l *Ledger) CreditTx(ctx context.Context, tx pgx.Tx, account string, amount int64) error {
	if account == "" {
		return fmt.Errorf("escrow: credit missing account")
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}

	const q = `
		INSERT INTO escrow_accounts (principal, balance)
		VALUES ($1, $2)
		ON CONFLICT (principal) DO UPDATE
		SET balance = escrow_accounts.balance + EXCLUDED.balance,
		    updated_at = get_tx_timestamp()
	`
	if _, err := tx.Exec(ctx, q, account, amount); err != nil {
		return fmt.Errorf("escrow: credit %s: %w", account, err)
	}
	return nil
}

// DebitTx subtracts amount from the account. It fails with
// ErrInsufficientFunds when the balance cannot cover the amount, which aborts
// the surrounding transaction.
func (l *Ledger) DebitTx(ctx context.Context, tx pgx.Tx, account string, amount int64) error {
	if account == "" {
		return fmt.Errorf("escrow: debit missing account")
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}

	const q = `
		UPDATE escrow_accounts
		SET balance = balance - $2,
		    updated_at = get_tx_timestamp()
		WHERE principal = $1 AND balance >= $2
	`
	tag, err := tx.Exec(ctx, q, account, amount)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			return ErrInsufficientFunds
		}
		return fmt.Errorf("escrow: debit %s: %w", account, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// TransferTx moves amount from one account to another and records the
// movement in the audit trail. disputeID may be zero for movements not tied
// to a dispute.
func (l *Ledger) TransferTx(ctx context.Context, tx pgx.Tx, from, to string, amount int64, disputeID int64, kind string) error {
	if err := l.DebitTx(ctx, tx, from, amount); err != nil {
		return err
	}
	if err := l.CreditTx(ctx, tx, to, amount); err != nil {
		return err
	}

	var dispute any
	if disputeID > 0 {
		dispute = disputeID
	}
	const q = `
		INSERT INTO escrow_transfers (from_account, to_account, amount, dispute_id, kind)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.Exec(ctx, q, from, to, amount, dispute, kind); err != nil {
		return fmt.Errorf("escrow: record transfer: %w", err)
	}
	return nil
}

// Deposit funds an account outside any dispute flow, in its own transaction.
func (l *Ledger) Deposit(ctx context.Context, account string, amount int64) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("escrow: begin deposit: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := l.CreditTx(ctx, tx, account, amount); err != nil {
		return err
	}

	const q = `
		INSERT INTO escrow_transfers (from_account, to_account, amount, kind)
		VALUES ('', $1, $2, $3)
	`
	if _, err := tx.Exec(ctx, q, account, amount, KindDeposit); err != nil {
		return fmt.Errorf("escrow: record deposit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("escrow: commit deposit: %w", err)
	}
	return nil
}

// Account returns the full account row for a principal. Principals that
// never held value get a zero-balance account stamped with the zero time.
func (l *Ledger) Account(ctx context.Context, principal string) (Account, error) {
	const q = `SELECT principal, balance, updated_at FROM escrow_accounts WHERE principal = $1`
	var a Account
	err := l.pool.QueryRow(ctx, q, principal).Scan(&a.Principal, &a.Balance, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{Principal: principal}, nil
		}
		return Account{}, fmt.Errorf("escrow: account %s: %w", principal, err)
	}
	return a, nil
}

// Balance returns the current balance of the account, zero if it has no row.
func (l *Ledger) Balance(ctx context.Context, account string) (int64, error) {
	var balance int64
	err := l.pool.QueryRow(ctx, `SELECT balance FROM escrow_accounts WHERE principal = $1`, account).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("escrow: balance %s: %w", account, err)
	}
	return balance, nil
}

// Transfers lists the audit trail rows for one dispute in insertion order.
func (l *Ledger) Transfers(ctx context.Context, disputeID int64) ([]Transfer, error) {
	const q = `
		SELECT id, from_account, to_account, amount, dispute_id, kind, created_at
		FROM escrow_transfers
		WHERE dispute_id = $1
		ORDER BY id
	`
	rows, err := l.pool.Query(ctx, q, disputeID)
	if err != nil {
		return nil, fmt.Errorf("escrow: list transfers: %w", err)
	}
	defer rows.Close()

	out := make([]Transfer, 0, 4)
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(&t.ID, &t.From, &t.To, &t.Amount, &t.DisputeID, &t.Kind, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("escrow: scan transfer: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escrow: iterate transfers: %w", err)
	}
	return out, nil
}
