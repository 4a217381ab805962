package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// LedgerRepository owns the credit balance column and the append-only
// credit_entries log. Balance changes and their log rows always commit
// together.
type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Balance(ctx context.Context, userID int64) (int, error) {
	const query = `SELECT credits FROM users WHERE id = ?`
	var balance int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("user %d not found", userID)
		}
		return 0, fmt.Errorf("select balance: %w", err)
	}
	return balance, nil
}

// Charge atomically deducts amount from the balance if and only if the balance
// covers it. The guarded UPDATE serializes concurrent charges for one user: at
// most one of two racing charges against a barely sufficient balance succeeds.
func (r *LedgerRepository) Charge(ctx context.Context, userID int64, amount int, reason, ref string) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("charge amount must be positive, got %d", amount)
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET credits = credits - ?, updated_at = NOW() WHERE id = ? AND credits >= ?`,
		amount, userID, amount)
	if err != nil {
		return false, fmt.Errorf("charge credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("charge rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credit_entries (user_id, delta, reason, ref) VALUES (?, ?, ?, ?)`,
		userID, -amount, reason, ref); err != nil {
		return false, fmt.Errorf("log charge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit charge: %w", err)
	}
	return true, nil
}

// Credit adds amount to the balance and returns the new total.
func (r *LedgerRepository) Credit(ctx context.Context, userID int64, amount int, reason, ref string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET credits = credits + ?, updated_at = NOW() WHERE id = ?`,
		amount, userID); err != nil {
		return 0, fmt.Errorf("credit credits: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credit_entries (user_id, delta, reason, ref) VALUES (?, ?, ?, ?)`,
		userID, amount, reason, ref); err != nil {
		return 0, fmt.Errorf("log credit: %w", err)
	}

	var balance int
	if err := tx.QueryRowContext(ctx, `SELECT credits FROM users WHERE id = ?`, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("select new balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit credit: %w", err)
	}
	return balance, nil
}
