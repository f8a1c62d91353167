package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/secassist/ai-backend/internal/entity"
)

// HistoryRepository defines the interface for conversation transcript
// persistence. Writes replace the whole transcript of a session.
type HistoryRepository interface {
	GetHistory(ctx context.Context, sessionID string) ([]entity.HistoryEntry, error)
	ReplaceHistory(ctx context.Context, sessionID string, entries []entity.HistoryEntry) error
	DeleteHistory(ctx context.Context, sessionID string) error
}

var _ HistoryRepository = &HistoryPostgres{}

// HistoryPostgres implements HistoryRepository using PostgreSQL
type HistoryPostgres struct {
	db *pgxpool.Pool
}

func NewHistoryPostgres(db *pgxpool.Pool) *HistoryPostgres {
	return &HistoryPostgres{db: db}
}

func (r *HistoryPostgres) GetHistory(ctx context.Context, sessionID string) ([]entity.HistoryEntry, error) {
	const query = `
		SELECT role, content, ts, llm_name, sources
		FROM session_history
		WHERE session_id = $1
		ORDER BY position`

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	entries := []entity.HistoryEntry{}
	for rows.Next() {
		var (
			entry      entity.HistoryEntry
			llmName    *string
			rawSources []byte
		)

		if err := rows.Scan(&entry.Role, &entry.Content, &entry.Timestamp, &llmName, &rawSources); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}

		if llmName != nil {
			entry.LLM = *llmName
		}
		if rawSources != nil {
			if err := json.Unmarshal(rawSources, &entry.Sources); err != nil {
				return nil, fmt.Errorf("decode history sources: %w", err)
			}
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}

	return entries, nil
}

// ReplaceHistory drops the persisted transcript and writes the given entries
// in order.
func (r *HistoryPostgres) ReplaceHistory(ctx context.Context, sessionID string, entries []entity.HistoryEntry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace history: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM session_history WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("drop history: %w", err)
	}

	const insert = `
		INSERT INTO session_history (session_id, position, role, content, ts, llm_name, sources)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for i, entry := range entries {
		var llmName *string
		if entry.LLM != "" {
			llmName = &entry.LLM
		}

		var rawSources []byte
		if entry.Sources != nil {
			rawSources, err = json.Marshal(entry.Sources)
			if err != nil {
				return fmt.Errorf("encode history sources: %w", err)
			}
		}

		if _, err := tx.Exec(ctx, insert, sessionID, i, string(entry.Role), entry.Content,
			entry.Timestamp, llmName, rawSources); err != nil {
			return fmt.Errorf("insert history entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace history: %w", err)
	}

	return nil
}

func (r *HistoryPostgres) DeleteHistory(ctx context.Context, sessionID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM session_history WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return nil
}
