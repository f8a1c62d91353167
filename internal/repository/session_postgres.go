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

// SessionRepository defines the interface for session configuration persistence
type SessionRepository interface {
	GetConfig(ctx context.Context, sessionID string) (*entity.SessionConfig, error)
	SaveConfig(ctx context.Context, config *entity.SessionConfig) error
	DeleteConfig(ctx context.Context, sessionID string) error
	ListIDs(ctx context.Context) ([]string, error)
}

var _ SessionRepository = &SessionPostgres{}

// SessionPostgres implements SessionRepository using PostgreSQL
type SessionPostgres struct {
	db *pgxpool.Pool
}

func NewSessionPostgres(db *pgxpool.Pool) *SessionPostgres {
	return &SessionPostgres{db: db}
}

func (r *SessionPostgres) GetConfig(ctx context.Context, sessionID string) (*entity.SessionConfig, error) {
	const query = `
		SELECT id, display_name, session_type, llm_name, retriever_name, algorithm_type, algorithm_params
		FROM session_configs
		WHERE id = $1`

	var (
		cfg       entity.SessionConfig
		rawParams []byte
	)

	row := r.db.QueryRow(ctx, query, sessionID)
	err := row.Scan(&cfg.ID, &cfg.DisplayName, &cfg.SessionType, &cfg.LLMName,
		&cfg.RetrieverName, &cfg.AlgorithmType, &rawParams)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: '%s'", entity.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session config: %w", err)
	}

	params, err := entity.UnmarshalAlgorithmParams(cfg.AlgorithmType, rawParams)
	if err != nil {
		return nil, fmt.Errorf("decode algorithm params: %w", err)
	}
	cfg.AlgorithmParams = params

	return &cfg, nil
}

func (r *SessionPostgres) SaveConfig(ctx context.Context, config *entity.SessionConfig) error {
	rawParams, err := json.Marshal(config.AlgorithmParams)
	if err != nil {
		return fmt.Errorf("encode algorithm params: %w", err)
	}

	const query = `
		INSERT INTO session_configs (id, display_name, session_type, llm_name, retriever_name, algorithm_type, algorithm_params)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			session_type = EXCLUDED.session_type,
			llm_name = EXCLUDED.llm_name,
			retriever_name = EXCLUDED.retriever_name,
			algorithm_type = EXCLUDED.algorithm_type,
			algorithm_params = EXCLUDED.algorithm_params,
			updated_at = now()`

	_, err = r.db.Exec(ctx, query, config.ID, config.DisplayName, string(config.SessionType),
		config.LLMName, config.RetrieverName, string(config.AlgorithmType), rawParams)
	if err != nil {
		return fmt.Errorf("save session config: %w", err)
	}

	return nil
}

func (r *SessionPostgres) DeleteConfig(ctx context.Context, sessionID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM session_configs WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session config: %w", err)
	}
	return nil
}

func (r *SessionPostgres) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM session_configs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list session ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list session ids: %w", err)
	}

	return ids, nil
}
