package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"quiz-api/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionRepository stores questions with their options as a JSONB array.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const questionColumns = `id::text, question, answers, correct_answer_index, course, topic, created_by, created_at, updated_at`

func (r *QuestionRepository) Create(ctx context.Context, q domain.Question) (domain.Question, error) {
	raw, err := json.Marshal(q.Options)
	if err != nil {
		return domain.Question{}, fmt.Errorf("marshal answers: %w", err)
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO questions (question, answers, correct_answer_index, course, topic, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id::text`,
		q.Text, raw, q.CorrectIndex, q.Course, q.Topic, q.CreatedBy, q.CreatedAt, q.UpdatedAt,
	).Scan(&q.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Question{}, domain.ErrQuestionExists
		}
		return domain.Question{}, fmt.Errorf("insert question: %w", err)
	}
	return q, nil
}

func (r *QuestionRepository) Update(ctx context.Context, q domain.Question) (domain.Question, error) {
	if !validID(q.ID) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	raw, err := json.Marshal(q.Options)
	if err != nil {
		return domain.Question{}, fmt.Errorf("marshal answers: %w", err)
	}
	rows, err := r.pool.Query(ctx,
		`UPDATE questions SET question = $2, answers = $3, correct_answer_index = $4, course = $5, topic = $6, updated_at = $7
		 WHERE id = $1 RETURNING `+questionColumns,
		q.ID, q.Text, raw, q.CorrectIndex, q.Course, q.Topic, q.UpdatedAt,
	)
	if err != nil {
		return domain.Question{}, fmt.Errorf("update question: %w", err)
	}
	updated, err := scanQuestions(rows)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Question{}, domain.ErrQuestionExists
		}
		return domain.Question{}, fmt.Errorf("update question: %w", err)
	}
	if len(updated) == 0 {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return updated[0], nil
}

func (r *QuestionRepository) FindByID(ctx context.Context, id string) (domain.Question, error) {
	if !validID(id) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	qs, err := r.query(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	if err != nil {
		return domain.Question{}, err
	}
	if len(qs) == 0 {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return qs[0], nil
}

func (r *QuestionRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.Question, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}
	return r.query(ctx, `SELECT `+questionColumns+` FROM questions WHERE id::text = ANY($1)`, valid)
}

func (r *QuestionRepository) List(ctx context.Context, topics []string) ([]domain.Question, error) {
	if len(topics) == 0 {
		return r.query(ctx, `SELECT `+questionColumns+` FROM questions ORDER BY created_at, id`)
	}
	return r.query(ctx, `SELECT `+questionColumns+` FROM questions WHERE topic = ANY($1) ORDER BY created_at, id`, topics)
}

func (r *QuestionRepository) Count(ctx context.Context, filter domain.QuestionFilter) (int, error) {
	where, args := filterClause(filter)
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM questions`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return n, nil
}

func (r *QuestionRepository) Search(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	where, args := filterClause(filter)
	return r.query(ctx, `SELECT `+questionColumns+` FROM questions`+where+` ORDER BY created_at, id`, args...)
}

func (r *QuestionRepository) Sample(ctx context.Context, n int) ([]domain.Question, error) {
	if n <= 0 {
		return nil, nil
	}
	return r.query(ctx, `SELECT `+questionColumns+` FROM questions ORDER BY random() LIMIT $1`, n)
}

func (r *QuestionRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.ErrQuestionNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func (r *QuestionRepository) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM questions`)
	if err != nil {
		return 0, fmt.Errorf("delete questions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *QuestionRepository) query(ctx context.Context, sql string, args ...any) ([]domain.Question, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	qs, err := scanQuestions(rows)
	if err != nil {
		return nil, fmt.Errorf("scan questions: %w", err)
	}
	return qs, nil
}

func scanQuestions(rows pgx.Rows) ([]domain.Question, error) {
	defer rows.Close()
	var out []domain.Question
	for rows.Next() {
		var (
			q   domain.Question
			raw []byte
		)
		if err := rows.Scan(&q.ID, &q.Text, &raw, &q.CorrectIndex, &q.Course, &q.Topic, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// filterClause renders a case-insensitive substring match on course and topic.
func filterClause(f domain.QuestionFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if c := strings.TrimSpace(f.Course); c != "" {
		args = append(args, likePattern(c))
		conds = append(conds, "course ILIKE $"+strconv.Itoa(len(args)))
	}
	if t := strings.TrimSpace(f.Topic); t != "" {
		args = append(args, likePattern(t))
		conds = append(conds, "topic ILIKE $"+strconv.Itoa(len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
