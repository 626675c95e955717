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

// ResultRepository stores one attempt per (user, quiz type) as JSONB and
// relies on the table's unique constraint for insert-if-absent.
type ResultRepository struct {
	pool *pgxpool.Pool
}

func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

const resultColumns = `id::text, user_id, data, updated_at`

func (r *ResultRepository) Insert(ctx context.Context, res domain.Result) (domain.Result, error) {
	raw, err := json.Marshal(res.Attempt)
	if err != nil {
		return domain.Result{}, fmt.Errorf("marshal attempt: %w", err)
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO results (user_id, quiz_type, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id::text`,
		res.UserID, string(res.QuizType), raw, res.CreatedAt, res.UpdatedAt,
	).Scan(&res.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Result{}, domain.ErrAlreadyAttempted
		}
		return domain.Result{}, fmt.Errorf("insert result: %w", err)
	}
	return res, nil
}

func (r *ResultRepository) Upsert(ctx context.Context, res domain.Result) (domain.Result, error) {
	raw, err := json.Marshal(res.Attempt)
	if err != nil {
		return domain.Result{}, fmt.Errorf("marshal attempt: %w", err)
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO results (user_id, quiz_type, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, quiz_type) DO UPDATE
		 SET data = EXCLUDED.data, created_at = EXCLUDED.created_at, updated_at = EXCLUDED.updated_at
		 RETURNING id::text`,
		res.UserID, string(res.QuizType), raw, res.CreatedAt, res.UpdatedAt,
	).Scan(&res.ID)
	if err != nil {
		return domain.Result{}, fmt.Errorf("upsert result: %w", err)
	}
	return res, nil
}

func (r *ResultRepository) Find(ctx context.Context, userID string, quizType domain.QuizType) (domain.Result, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+resultColumns+` FROM results WHERE user_id = $1 AND quiz_type = $2`, userID, string(quizType))
	res, err := scanResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Result{}, domain.ErrResultsNotFound
	}
	if err != nil {
		return domain.Result{}, fmt.Errorf("load result: %w", err)
	}
	return res, nil
}

func (r *ResultRepository) FindByUser(ctx context.Context, userID string) ([]domain.Result, error) {
	return r.query(ctx, `SELECT `+resultColumns+` FROM results WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
}

func (r *ResultRepository) List(ctx context.Context, page domain.Page) ([]domain.Result, int64, error) {
	page = page.Normalize()
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM results`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}
	out, err := r.query(ctx, `SELECT `+resultColumns+` FROM results ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *ResultRepository) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM results`)
	if err != nil {
		return 0, fmt.Errorf("delete results: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ResultRepository) query(ctx context.Context, sql string, args ...any) ([]domain.Result, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()
	var out []domain.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanResult(row pgx.Row) (domain.Result, error) {
	var (
		res domain.Result
		raw []byte
	)
	if err := row.Scan(&res.ID, &res.UserID, &raw, &res.UpdatedAt); err != nil {
		return domain.Result{}, err
	}
	if err := json.Unmarshal(raw, &res.Attempt); err != nil {
		return domain.Result{}, fmt.Errorf("unmarshal attempt: %w", err)
	}
	return res, nil
}
