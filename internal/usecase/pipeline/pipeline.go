package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/secassist/ai-backend/internal/entity"
	"github.com/secassist/ai-backend/internal/integration/llm"
	"github.com/secassist/ai-backend/internal/integration/retriever"
	"github.com/secassist/ai-backend/internal/repository"
	"go.uber.org/zap"
)

// sessionContext is the runtime state of one session: its configuration, the
// bound backends and the chain built from them. The mutex serializes every
// operation against the session, including mutators.
type sessionContext struct {
	mu        sync.Mutex
	config    *entity.SessionConfig
	generator llm.Generator
	backend   retriever.Backend
	chat      *chatChain
	eval      *evalChain
}

// SessionView is a session's full externally visible state. History is set for
// chat sessions, Data for evaluation sessions.
type SessionView struct {
	Config  *entity.SessionConfig
	History []entity.HistoryEntry
	Data    *entity.EvaluationData
}

// Pipeline orchestrates sessions. It keeps a table of initialized session
// contexts plus a pointer to the active one; every operation except session
// management targets the active session.
type Pipeline struct {
	sessions   repository.SessionRepository
	generators llm.Factory
	retrievers retriever.Factory
	history    *HistoryCache
	tracker    *EvaluationTracker

	mu           sync.RWMutex
	contexts     map[string]*sessionContext
	activeID     string
	systemPrompt string
}

func NewPipeline(
	sessions repository.SessionRepository,
	generators llm.Factory,
	retrievers retriever.Factory,
	history *HistoryCache,
	tracker *EvaluationTracker,
) *Pipeline {
	return &Pipeline{
		sessions:     sessions,
		generators:   generators,
		retrievers:   retrievers,
		history:      history,
		tracker:      tracker,
		contexts:     map[string]*sessionContext{},
		systemPrompt: DefaultSystemPrompt,
	}
}

// Hydrate loads every known session's transcript into the history cache.
func (p *Pipeline) Hydrate(ctx context.Context) error {
	ids, err := p.sessions.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	return p.history.Hydrate(ctx, ids)
}

// UseSession activates a session. The context is built completely before the
// active pointer moves, so a failing backend leaves the prior session usable.
func (p *Pipeline) UseSession(ctx context.Context, sessionID string) error {
	p.mu.RLock()
	if p.activeID == sessionID {
		p.mu.RUnlock()
		return nil
	}
	_, ok := p.contexts[sessionID]
	p.mu.RUnlock()

	if ok {
		p.mu.Lock()
		p.activeID = sessionID
		p.mu.Unlock()

		ctxzap.Info(ctx, "session activated", zap.String("session_id", sessionID))
		return nil
	}

	sc, err := p.buildContext(ctx, sessionID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.contexts[sessionID] = sc
	p.activeID = sessionID
	p.mu.Unlock()

	ctxzap.Info(ctx, "session activated",
		zap.String("session_id", sessionID),
		zap.String("session_type", string(sc.config.SessionType)),
	)
	return nil
}

// CreateAndUseSession persists a new session under a fresh collision-checked
// id and activates it. Returns the new id.
func (p *Pipeline) CreateAndUseSession(ctx context.Context, config entity.SessionConfig) (string, error) {
	newID, err := p.generateID(ctx)
	if err != nil {
		return "", err
	}

	config.ID = newID
	if err := p.sessions.SaveConfig(ctx, &config); err != nil {
		return "", fmt.Errorf("save new session config: %w", err)
	}

	if err := p.UseSession(ctx, newID); err != nil {
		return "", err
	}

	ctxzap.Info(ctx, "session created", zap.String("session_id", newID))
	return newID, nil
}

// UseLLM swaps the active session's inference model and rebuilds the chain.
func (p *Pipeline) UseLLM(ctx context.Context, name string) error {
	sc, err := p.activeContext()
	if err != nil {
		return err
	}

	generator, err := p.generators.Generator(name)
	if err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.config.LLMName = name
	if err := p.sessions.SaveConfig(ctx, sc.config); err != nil {
		return fmt.Errorf("save session config: %w", err)
	}

	sc.generator = generator
	p.rebuildChain(sc)

	ctxzap.Info(ctx, "llm updated", zap.String("session_id", sc.config.ID), zap.String("llm", name))
	return nil
}

// UseRetriever swaps the active session's retrieval backend and rebuilds the
// chain.
func (p *Pipeline) UseRetriever(ctx context.Context, name string) error {
	sc, err := p.activeContext()
	if err != nil {
		return err
	}

	backend, err := p.retrievers.Retriever(name)
	if err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.config.RetrieverName = name
	if err := p.sessions.SaveConfig(ctx, sc.config); err != nil {
		return fmt.Errorf("save session config: %w", err)
	}

	sc.backend = backend
	p.rebuildChain(sc)

	ctxzap.Info(ctx, "retriever updated", zap.String("session_id", sc.config.ID), zap.String("retriever", name))
	return nil
}

// UseAlgorithm replaces the active session's retrieval algorithm and its
// parameters and rebuilds the chain.
func (p *Pipeline) UseAlgorithm(ctx context.Context, params entity.AlgorithmParams) error {
	sc, err := p.activeContext()
	if err != nil {
		return err
	}

	if err := params.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.config.AlgorithmType = params.AlgorithmType()
	sc.config.AlgorithmParams = params
	if err := p.sessions.SaveConfig(ctx, sc.config); err != nil {
		return fmt.Errorf("save session config: %w", err)
	}

	p.rebuildChain(sc)

	ctxzap.Info(ctx, "algorithm updated",
		zap.String("session_id", sc.config.ID),
		zap.String("algorithm", string(params.AlgorithmType())),
	)
	return nil
}

// UseName renames the active session. The chain is unaffected.
func (p *Pipeline) UseName(ctx context.Context, name string) error {
	sc, err := p.activeContext()
	if err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.config.DisplayName = name
	if err := p.sessions.SaveConfig(ctx, sc.config); err != nil {
		return fmt.Errorf("save session config: %w", err)
	}
	return nil
}

// SetSystemPrompt replaces the master system prompt. Chat chains resolve the
// prompt on every run, so the change reaches every session immediately,
// including ones whose context was built before the call.
func (p *Pipeline) SetSystemPrompt(ctx context.Context, prompt string) error {
	sc, err := p.activeContext()
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.systemPrompt = prompt
	p.mu.Unlock()

	ctxzap.Info(ctx, "system prompt replaced", zap.String("session_id", sc.config.ID))
	return nil
}

// UseCriteria replaces the evaluation criteria of the active session.
func (p *Pipeline) UseCriteria(ctx context.Context, criteria []string) error {
	sc, err := p.activeEvaluationContext()
	if err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	return p.tracker.ReplaceCriteria(ctx, sc.config.ID, criteria)
}

// UseScenario replaces the evaluation scenario of the active session.
func (p *Pipeline) UseScenario(ctx context.Context, scenario string) error {
	sc, err := p.activeEvaluationContext()
	if err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	return p.tracker.SetScenario(ctx, sc.config.ID, scenario)
}

// DeleteSession removes a session and all of its data. Deleting the active
// session leaves the pipeline without one.
func (p *Pipeline) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := p.sessions.GetConfig(ctx, sessionID); err != nil {
		return err
	}

	// The runtime context goes first: an in-flight ask re-checks it before
	// recording and cannot resurrect the transcript after the wipe below.
	p.mu.Lock()
	delete(p.contexts, sessionID)
	if p.activeID == sessionID {
		p.activeID = ""
	}
	p.mu.Unlock()

	if err := p.sessions.DeleteConfig(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session config: %w", err)
	}
	if err := p.history.Delete(ctx, sessionID); err != nil {
		return err
	}
	if err := p.tracker.Delete(ctx, sessionID); err != nil {
		return err
	}

	ctxzap.Info(ctx, "session deleted", zap.String("session_id", sessionID))
	return nil
}

// Ask answers a question with the active chat session. Both conversation
// turns land in the history cache; persistence happens on the next flush.
func (p *Pipeline) Ask(ctx context.Context, question string) (string, entity.Sources, error) {
	sc, err := p.activeContext()
	if err != nil {
		return "", nil, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.config.SessionType != entity.SessionTypeChat {
		return "", nil, fmt.Errorf("%w: cannot ask a question using an evaluation session", entity.ErrInvalidState)
	}

	requestTime := time.Now()
	transcript := p.history.Dump(sc.config.ID)

	answer, sources, err := sc.chat.Run(ctx, question, transcript)
	if err != nil {
		return "", nil, err
	}

	if !p.contextAlive(sc.config.ID) {
		return "", nil, fmt.Errorf("%w: '%s'", entity.ErrSessionNotFound, sc.config.ID)
	}

	p.history.Append(sc.config.ID,
		entity.HistoryEntry{
			Role:      entity.RoleHuman,
			Content:   strings.TrimSpace(question),
			Timestamp: requestTime.Format(entity.TimeFormat),
		},
		entity.HistoryEntry{
			Role:      entity.RoleAI,
			Content:   answer,
			Timestamp: time.Now().Format(entity.TimeFormat),
			LLM:       sc.config.LLMName,
			Sources:   sources,
		},
	)

	ctxzap.Info(ctx, "question answered",
		zap.String("session_id", sc.config.ID),
		zap.Int("source_files", len(sources)),
	)
	return answer, sources, nil
}

// Evaluate grades an answer against a criterion with the active evaluation
// session. A malformed model verdict is still recorded, with the sentinel
// grade and the raw output as remark, before the error is reported.
func (p *Pipeline) Evaluate(ctx context.Context, criterion, answer string) (*entity.EvaluationResult, error) {
	sc, err := p.activeEvaluationContext()
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	scenario := p.tracker.Get(sc.config.ID).Scenario
	if scenario == "" {
		return nil, fmt.Errorf("%w: no scenario has been set, write a scenario before evaluating", entity.ErrPreconditionFailed)
	}

	trimmed := strings.TrimSpace(answer)

	raw, sources, err := sc.eval.Run(ctx, scenario, criterion, trimmed)
	if err != nil {
		return nil, err
	}

	if !p.contextAlive(sc.config.ID) {
		return nil, fmt.Errorf("%w: '%s'", entity.ErrSessionNotFound, sc.config.ID)
	}

	result := entity.EvaluationResult{
		ResultID:  uuid.New().String(),
		Criterion: criterion,
		Timestamp: time.Now().Format(entity.TimeFormat),
		LLM:       sc.config.LLMName,
		Sources:   sources,
	}

	grade, remark, parseErr := parseVerdict(raw)
	if parseErr != nil {
		result.Grade = entity.MalformedGrade
		result.Remark = raw

		if err := p.tracker.Record(ctx, sc.config.ID, trimmed, result); err != nil {
			return nil, err
		}

		ctxzap.Warn(ctx, "malformed verdict recorded",
			zap.String("session_id", sc.config.ID),
			zap.String("result_id", result.ResultID),
		)
		return nil, parseErr
	}

	result.Grade = grade
	result.Remark = remark

	if err := p.tracker.Record(ctx, sc.config.ID, trimmed, result); err != nil {
		return nil, err
	}

	ctxzap.Info(ctx, "answer evaluated",
		zap.String("session_id", sc.config.ID),
		zap.Float64("grade", grade),
	)
	return &result, nil
}

// GetSession returns the stored state of any session, active or not.
func (p *Pipeline) GetSession(ctx context.Context, sessionID string) (*SessionView, error) {
	config, err := p.sessions.GetConfig(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	view := &SessionView{Config: config}
	if config.SessionType == entity.SessionTypeChat {
		view.History = p.history.Dump(sessionID)
		return view, nil
	}

	if err := p.tracker.Hydrate(ctx, sessionID); err != nil {
		return nil, err
	}
	view.Data = p.tracker.Get(sessionID)
	return view, nil
}

// GetSessions returns the stored state of every session, keyed by id.
func (p *Pipeline) GetSessions(ctx context.Context) (map[string]*SessionView, error) {
	ids, err := p.sessions.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	views := make(map[string]*SessionView, len(ids))
	for _, id := range ids {
		view, err := p.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		views[id] = view
	}
	return views, nil
}

// FlushHistories writes every dirty transcript through to the repository.
func (p *Pipeline) FlushHistories(ctx context.Context) error {
	return p.history.FlushAll(ctx)
}

func (p *Pipeline) currentPrompt() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.systemPrompt
}

// contextAlive reports whether a session still has a runtime context. It goes
// false the moment DeleteSession starts tearing the session down.
func (p *Pipeline) contextAlive(sessionID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.contexts[sessionID]
	return ok
}

func (p *Pipeline) activeContext() (*sessionContext, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.activeID == "" {
		return nil, fmt.Errorf("%w: no session loaded, load a session before using the pipeline", entity.ErrInvalidState)
	}
	return p.contexts[p.activeID], nil
}

func (p *Pipeline) activeEvaluationContext() (*sessionContext, error) {
	sc, err := p.activeContext()
	if err != nil {
		return nil, err
	}
	if sc.config.SessionType != entity.SessionTypeEvaluation {
		return nil, fmt.Errorf("%w: the active session is not an evaluation session", entity.ErrInvalidState)
	}
	return sc, nil
}

// buildContext assembles a complete session context from persisted
// configuration. Nothing is mutated on failure.
func (p *Pipeline) buildContext(ctx context.Context, sessionID string) (*sessionContext, error) {
	config, err := p.sessions.GetConfig(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	generator, err := p.generators.Generator(config.LLMName)
	if err != nil {
		return nil, err
	}

	backend, err := p.retrievers.Retriever(config.RetrieverName)
	if err != nil {
		return nil, err
	}

	if config.SessionType == entity.SessionTypeEvaluation {
		if err := p.tracker.Hydrate(ctx, sessionID); err != nil {
			return nil, err
		}
	}

	sc := &sessionContext{
		config:    config,
		generator: generator,
		backend:   backend,
	}
	p.rebuildChain(sc)
	return sc, nil
}

// rebuildChain replaces the session's chain wholesale. Must be called with
// the context lock held (or before the context is published).
func (p *Pipeline) rebuildChain(sc *sessionContext) {
	sc.chat = nil
	sc.eval = nil

	if sc.config.SessionType == entity.SessionTypeChat {
		sc.chat = &chatChain{
			generator:    sc.generator,
			backend:      sc.backend,
			params:       sc.config.AlgorithmParams,
			systemPrompt: p.currentPrompt,
		}
		return
	}

	sc.eval = &evalChain{
		generator: sc.generator,
		backend:   sc.backend,
		params:    sc.config.AlgorithmParams,
	}
}

// generateID returns a uuid not currently used by any session.
func (p *Pipeline) generateID(ctx context.Context) (string, error) {
	ids, err := p.sessions.ListIDs(ctx)
	if err != nil {
		return "", fmt.Errorf("list sessions: %w", err)
	}

	existing := make(map[string]bool, len(ids))
	for _, id := range ids {
		existing[id] = true
	}

	newID := uuid.New().String()
	for existing[newID] {
		newID = uuid.New().String()
	}
	return newID, nil
}
