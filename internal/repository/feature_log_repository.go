package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type FeatureLogRepository struct {
	db *sql.DB
}

func NewFeatureLogRepository(db *sql.DB) *FeatureLogRepository {
	return &FeatureLogRepository{db: db}
}

func (r *FeatureLogRepository) Log(ctx context.Context, userID int64, feature, detail string, charged int) error {
	const query = `
INSERT INTO feature_logs (user_id, feature, detail, charged)
VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, userID, feature, detail, charged); err != nil {
		return fmt.Errorf("insert feature log: %w", err)
	}
	return nil
}

func (r *FeatureLogRepository) CountForDay(ctx context.Context, userID int64, day time.Time) (int, error) {
	const query = `
SELECT COUNT(*) FROM feature_logs
WHERE user_id = ? AND created_at >= ? AND created_at < ?`
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("count feature logs: %w", err)
	}
	return count, nil
}
