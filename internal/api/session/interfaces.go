package session

import (
	"context"

	"github.com/secassist/ai-backend/internal/entity"
	"github.com/secassist/ai-backend/internal/usecase/pipeline"
)

type Orchestrator interface {
	UseSession(ctx context.Context, sessionID string) error
	CreateAndUseSession(ctx context.Context, config entity.SessionConfig) (string, error)
	DeleteSession(ctx context.Context, sessionID string) error
	UseLLM(ctx context.Context, name string) error
	UseRetriever(ctx context.Context, name string) error
	UseAlgorithm(ctx context.Context, params entity.AlgorithmParams) error
	UseName(ctx context.Context, name string) error
	UseCriteria(ctx context.Context, criteria []string) error
	UseScenario(ctx context.Context, scenario string) error
	Ask(ctx context.Context, question string) (string, entity.Sources, error)
	Evaluate(ctx context.Context, criterion, answer string) (*entity.EvaluationResult, error)
	GetSession(ctx context.Context, sessionID string) (*pipeline.SessionView, error)
	GetSessions(ctx context.Context) (map[string]*pipeline.SessionView, error)
}
