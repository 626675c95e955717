package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"quiz-api/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// AttemptLogRepository keeps one JSONB attempt array per user. Appends lock
// the user's row so the cap check and the write happen in one transaction.
type AttemptLogRepository struct {
	pool *pgxpool.Pool
}

func NewAttemptLogRepository(pool *pgxpool.Pool) *AttemptLogRepository {
	return &AttemptLogRepository{pool: pool}
}

const attemptLogColumns = `id::text, user_id, attempts, version, created_at, updated_at`

func (r *AttemptLogRepository) Append(ctx context.Context, userID string, a domain.Attempt, window domain.Window, limit int) (domain.AttemptLog, error) {
	entry, err := json.Marshal([]domain.Attempt{a})
	if err != nil {
		return domain.AttemptLog{}, fmt.Errorf("marshal attempt: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.AttemptLog{}, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO attempt_logs (user_id, created_at, updated_at) VALUES ($1, $2, $2)
		 ON CONFLICT (user_id) DO NOTHING`, userID, a.CreatedAt); err != nil {
		return domain.AttemptLog{}, fmt.Errorf("ensure attempt log: %w", err)
	}

	current, err := scanAttemptLog(tx.QueryRow(ctx,
		`SELECT `+attemptLogColumns+` FROM attempt_logs WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return domain.AttemptLog{}, fmt.Errorf("lock attempt log: %w", err)
	}
	if current.CountIn(window) >= limit {
		return domain.AttemptLog{}, domain.ErrDailyLimitReached
	}

	updated, err := scanAttemptLog(tx.QueryRow(ctx,
		`UPDATE attempt_logs SET attempts = attempts || $2::jsonb, version = version + 1, updated_at = $3
		 WHERE id = $1 RETURNING `+attemptLogColumns,
		current.ID, entry, a.CreatedAt))
	if err != nil {
		return domain.AttemptLog{}, fmt.Errorf("append attempt: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.AttemptLog{}, fmt.Errorf("commit append: %w", err)
	}
	return updated, nil
}

func (r *AttemptLogRepository) FindByUser(ctx context.Context, userID string) (domain.AttemptLog, error) {
	l, err := scanAttemptLog(r.pool.QueryRow(ctx, `SELECT `+attemptLogColumns+` FROM attempt_logs WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AttemptLog{}, domain.ErrResultsNotFound
	}
	if err != nil {
		return domain.AttemptLog{}, fmt.Errorf("load attempt log: %w", err)
	}
	return l, nil
}

func (r *AttemptLogRepository) List(ctx context.Context, page domain.Page) ([]domain.AttemptLog, int64, error) {
	page = page.Normalize()
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM attempt_logs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count attempt logs: %w", err)
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptLogColumns+` FROM attempt_logs ORDER BY updated_at DESC, id LIMIT $1 OFFSET $2`,
		page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("query attempt logs: %w", err)
	}
	defer rows.Close()
	var out []domain.AttemptLog
	for rows.Next() {
		l, err := scanAttemptLog(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan attempt log: %w", err)
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

func (r *AttemptLogRepository) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM attempt_logs`)
	if err != nil {
		return 0, fmt.Errorf("delete attempt logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanAttemptLog(row pgx.Row) (domain.AttemptLog, error) {
	var (
		l   domain.AttemptLog
		raw []byte
	)
	if err := row.Scan(&l.ID, &l.UserID, &raw, &l.Version, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return domain.AttemptLog{}, err
	}
	if err := json.Unmarshal(raw, &l.Attempts); err != nil {
		return domain.AttemptLog{}, fmt.Errorf("unmarshal attempts: %w", err)
	}
	return l, nil
}
