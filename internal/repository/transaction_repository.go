package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/visagelab/visagebot/internal/models"
)

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, t *models.Transaction) error {
	const query = `
INSERT INTO transactions (user_id, provider, payment_id, package_code, currency, amount, credits, status, raw_payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, t.UserID, t.Provider, t.PaymentID, t.PackageCode, t.Currency, t.Amount, t.Credits, t.Status, t.RawPayload)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	t.ID = id
	return nil
}

func (r *TransactionRepository) FindByProviderPayment(ctx context.Context, provider, paymentID string) (*models.Transaction, error) {
	const query = `
SELECT id, user_id, provider, payment_id, package_code, currency, amount, credits, status, COALESCE(raw_payload, ''), created_at, completed_at, COALESCE(updated_at, created_at)
FROM transactions WHERE provider = ? AND payment_id = ? LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, provider, paymentID)
	var t models.Transaction
	var completedAt sql.NullTime
	if err := row.Scan(&t.ID, &t.UserID, &t.Provider, &t.PaymentID, &t.PackageCode, &t.Currency, &t.Amount, &t.Credits, &t.Status, &t.RawPayload, &t.CreatedAt, &completedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}

func (r *TransactionRepository) ListPendingByUser(ctx context.Context, userID int64) ([]models.Transaction, error) {
	const query = `
SELECT id, user_id, provider, payment_id, package_code, currency, amount, credits, status, COALESCE(raw_payload, ''), created_at, completed_at, COALESCE(updated_at, created_at)
FROM transactions WHERE user_id = ? AND status = 'pending' ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var completedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.UserID, &t.Provider, &t.PaymentID, &t.PackageCode, &t.Currency, &t.Amount, &t.Credits, &t.Status, &t.RawPayload, &t.CreatedAt, &completedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if completedAt.Valid {
			t.CompletedAt = &completedAt.Time
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkTerminal moves a pending transaction to canceled or expired. It reports
// whether the row actually transitioned; an already terminal transaction is
// left untouched.
func (r *TransactionRepository) MarkTerminal(ctx context.Context, provider, paymentID string, status models.TxStatus, payload string) (bool, error) {
	if !status.Terminal() || status == models.TxCompleted {
		return false, fmt.Errorf("invalid terminal status %q", status)
	}
	const query = `
UPDATE transactions SET status = ?, raw_payload = ?, updated_at = NOW()
WHERE provider = ? AND payment_id = ? AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, status, payload, provider, paymentID)
	if err != nil {
		return false, fmt.Errorf("mark transaction %s: %w", status, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("terminal rows affected: %w", err)
	}
	return affected > 0, nil
}

// CompleteAndGrant flips a pending transaction to completed and grants its
// credits in one database transaction. The guarded status UPDATE is the
// exactly-once gate: replays and concurrent reconcile attempts see zero rows
// affected and grant nothing. Returns whether this call performed the grant
// and the resulting balance.
func (r *TransactionRepository) CompleteAndGrant(ctx context.Context, provider, paymentID string, payload string) (bool, int, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var userID int64
	var credits int
	row := tx.QueryRowContext(ctx,
		`SELECT user_id, credits FROM transactions WHERE provider = ? AND payment_id = ? FOR UPDATE`,
		provider, paymentID)
	if err := row.Scan(&userID, &credits); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, 0, fmt.Errorf("transaction %s/%s not found", provider, paymentID)
		}
		return false, 0, fmt.Errorf("lock transaction: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE transactions SET status = 'completed', completed_at = NOW(), raw_payload = ?, updated_at = NOW()
WHERE provider = ? AND payment_id = ? AND status = 'pending'`,
		payload, provider, paymentID)
	if err != nil {
		return false, 0, fmt.Errorf("complete transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("complete rows affected: %w", err)
	}
	if affected == 0 {
		// Already terminal; nothing to grant.
		return false, 0, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET credits = credits + ?, updated_at = NOW() WHERE id = ?`,
		credits, userID); err != nil {
		return false, 0, fmt.Errorf("grant credits: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credit_entries (user_id, delta, reason, ref) VALUES (?, ?, 'purchase', ?)`,
		userID, credits, provider+":"+paymentID); err != nil {
		return false, 0, fmt.Errorf("log grant: %w", err)
	}

	var balance int
	if err := tx.QueryRowContext(ctx, `SELECT credits FROM users WHERE id = ?`, userID).Scan(&balance); err != nil {
		return false, 0, fmt.Errorf("select new balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit grant: %w", err)
	}
	return true, balance, nil
}
