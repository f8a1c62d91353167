package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/secassist/ai-backend/internal/entity"
)

// EvaluationRepository defines the interface for evaluation data persistence.
// Each session owns at most one document, replaced wholesale on every write.
type EvaluationRepository interface {
	GetEvaluation(ctx context.Context, sessionID string) (*entity.EvaluationData, error)
	SaveEvaluation(ctx context.Context, sessionID string, data *entity.EvaluationData) error
	DeleteEvaluation(ctx context.Context, sessionID string) error
}

var _ EvaluationRepository = &EvaluationPostgres{}

// EvaluationPostgres implements EvaluationRepository using PostgreSQL
type EvaluationPostgres struct {
	db *pgxpool.Pool
}

func NewEvaluationPostgres(db *pgxpool.Pool) *EvaluationPostgres {
	return &EvaluationPostgres{db: db}
}

// GetEvaluation returns the stored evaluation data, or an empty accumulator
// when the session has none yet.
func (r *EvaluationPostgres) GetEvaluation(ctx context.Context, sessionID string) (*entity.EvaluationData, error) {
	var raw []byte

	row := r.db.QueryRow(ctx, `SELECT data FROM session_evaluations WHERE session_id = $1`, sessionID)
	err := row.Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.NewEvaluationData(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get evaluation data: %w", err)
	}

	data := entity.NewEvaluationData()
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("decode evaluation data: %w", err)
	}

	return data, nil
}

func (r *EvaluationPostgres) SaveEvaluation(ctx context.Context, sessionID string, data *entity.EvaluationData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode evaluation data: %w", err)
	}

	const query = `
		INSERT INTO session_evaluations (session_id, data)
		VALUES ($1, $2)
		ON CONFLICT (session_id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = now()`

	if _, err := r.db.Exec(ctx, query, sessionID, raw); err != nil {
		return fmt.Errorf("save evaluation data: %w", err)
	}

	return nil
}

func (r *EvaluationPostgres) DeleteEvaluation(ctx context.Context, sessionID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM session_evaluations WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete evaluation data: %w", err)
	}
	return nil
}
