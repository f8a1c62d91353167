package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/secassist/ai-backend/internal/entity"
	"github.com/secassist/ai-backend/internal/integration/llm"
	"github.com/secassist/ai-backend/internal/integration/retriever"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

type memSessionRepo struct {
	mu      sync.Mutex
	configs map[string]*entity.SessionConfig
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{configs: map[string]*entity.SessionConfig{}}
}

func (r *memSessionRepo) GetConfig(ctx context.Context, sessionID string) (*entity.SessionConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	config, ok := r.configs[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", entity.ErrSessionNotFound, sessionID)
	}

	clone := *config
	return &clone, nil
}

func (r *memSessionRepo) SaveConfig(ctx context.Context, config *entity.SessionConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *config
	r.configs[config.ID] = &clone
	return nil
}

func (r *memSessionRepo) DeleteConfig(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.configs, sessionID)
	return nil
}

func (r *memSessionRepo) ListIDs(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	return ids, nil
}

type memHistoryRepo struct {
	mu       sync.Mutex
	history  map[string][]entity.HistoryEntry
	replaces int
}

func newMemHistoryRepo() *memHistoryRepo {
	return &memHistoryRepo{history: map[string][]entity.HistoryEntry{}}
}

func (r *memHistoryRepo) GetHistory(ctx context.Context, sessionID string) ([]entity.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entity.HistoryEntry{}, r.history[sessionID]...), nil
}

func (r *memHistoryRepo) ReplaceHistory(ctx context.Context, sessionID string, entries []entity.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history[sessionID] = append([]entity.HistoryEntry{}, entries...)
	r.replaces++
	return nil
}

func (r *memHistoryRepo) DeleteHistory(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.history, sessionID)
	return nil
}

type memEvaluationRepo struct {
	mu   sync.Mutex
	data map[string]*entity.EvaluationData
}

func newMemEvaluationRepo() *memEvaluationRepo {
	return &memEvaluationRepo{data: map[string]*entity.EvaluationData{}}
}

func (r *memEvaluationRepo) GetEvaluation(ctx context.Context, sessionID string) (*entity.EvaluationData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if data, ok := r.data[sessionID]; ok {
		return data, nil
	}
	return entity.NewEvaluationData(), nil
}

func (r *memEvaluationRepo) SaveEvaluation(ctx context.Context, sessionID string, data *entity.EvaluationData) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[sessionID] = data
	return nil
}

func (r *memEvaluationRepo) DeleteEvaluation(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.data, sessionID)
	return nil
}

type pipelineFixture struct {
	pipeline   *Pipeline
	sessions   *memSessionRepo
	history    *memHistoryRepo
	evals      *memEvaluationRepo
	generators *llm.MockFactory
	retrievers *retriever.MockFactory
}

func newFixture() *pipelineFixture {
	sessions := newMemSessionRepo()
	history := newMemHistoryRepo()
	evals := newMemEvaluationRepo()

	generators := llm.NewMockFactory([]string{"mistral", "phi3"}, zap.NewNop())
	retrievers := retriever.NewMockFactory([]string{"all-minilm", "bge-m3"}, zap.NewNop())

	cache := NewHistoryCache(history)
	tracker := NewEvaluationTracker(evals)

	return &pipelineFixture{
		pipeline:   NewPipeline(sessions, generators, retrievers, cache, tracker),
		sessions:   sessions,
		history:    history,
		evals:      evals,
		generators: generators,
		retrievers: retrievers,
	}
}

func (f *pipelineFixture) createSession(t *testing.T, sessionType entity.SessionType) string {
	t.Helper()

	id, err := f.pipeline.CreateAndUseSession(context.Background(), entity.SessionConfig{
		DisplayName:     "test session",
		SessionType:     sessionType,
		LLMName:         "mistral",
		RetrieverName:   "bge-m3",
		AlgorithmType:   entity.AlgorithmSimilarity,
		AlgorithmParams: entity.DefaultSimilarityParams(),
	})
	require.NoError(t, err)
	return id
}

func (f *pipelineFixture) generator(t *testing.T, name string) *llm.MockGenerator {
	t.Helper()

	g, err := f.generators.Generator(name)
	require.NoError(t, err)
	return g.(*llm.MockGenerator)
}

func (f *pipelineFixture) backend(t *testing.T, name string) *retriever.MockBackend {
	t.Helper()

	b, err := f.retrievers.Retriever(name)
	require.NoError(t, err)
	return b.(*retriever.MockBackend)
}

func TestUseSession(t *testing.T) {
	t.Run("unknown session", func(t *testing.T) {
		f := newFixture()
		err := f.pipeline.UseSession(context.Background(), "ghost")
		assert.ErrorIs(t, err, entity.ErrSessionNotFound)
	})

	t.Run("activation failure keeps the prior session", func(t *testing.T) {
		f := newFixture()
		id := f.createSession(t, entity.SessionTypeChat)

		broken := entity.SessionConfig{
			ID:              "broken",
			SessionType:     entity.SessionTypeChat,
			LLMName:         "not-a-model",
			RetrieverName:   "bge-m3",
			AlgorithmType:   entity.AlgorithmSimilarity,
			AlgorithmParams: entity.DefaultSimilarityParams(),
		}
		require.NoError(t, f.sessions.SaveConfig(context.Background(), &broken))

		err := f.pipeline.UseSession(context.Background(), "broken")
		require.ErrorIs(t, err, entity.ErrInvalidArgument)

		// The previously active session still answers.
		_, _, err = f.pipeline.Ask(context.Background(), "what is a firewall?")
		require.NoError(t, err)

		view, err := f.pipeline.GetSession(context.Background(), id)
		require.NoError(t, err)
		assert.Len(t, view.History, 2)
	})
}

func TestCreateAndUseSession(t *testing.T) {
	f := newFixture()
	id := f.createSession(t, entity.SessionTypeChat)

	require.NotEmpty(t, id)

	stored, err := f.sessions.GetConfig(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, stored.ID)
	assert.Equal(t, entity.SessionTypeChat, stored.SessionType)

	second := f.createSession(t, entity.SessionTypeChat)
	assert.NotEqual(t, id, second, "every session gets a fresh id")
}

func TestMutatorsRequireActiveSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	assert.ErrorIs(t, f.pipeline.UseLLM(ctx, "mistral"), entity.ErrInvalidState)
	assert.ErrorIs(t, f.pipeline.UseRetriever(ctx, "bge-m3"), entity.ErrInvalidState)
	assert.ErrorIs(t, f.pipeline.UseAlgorithm(ctx, entity.DefaultSimilarityParams()), entity.ErrInvalidState)
	assert.ErrorIs(t, f.pipeline.UseName(ctx, "renamed"), entity.ErrInvalidState)

	_, _, err := f.pipeline.Ask(ctx, "anyone there?")
	assert.ErrorIs(t, err, entity.ErrInvalidState)

	_, err = f.pipeline.Evaluate(ctx, "accuracy", "an answer")
	assert.ErrorIs(t, err, entity.ErrInvalidState)

	assert.ErrorIs(t, f.pipeline.SetSystemPrompt(ctx, "prompt"), entity.ErrInvalidState)
}

func TestSetSystemPrompt(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// Both contexts are built before the prompt changes.
	first := f.createSession(t, entity.SessionTypeChat)
	f.createSession(t, entity.SessionTypeChat)

	require.NoError(t, f.pipeline.SetSystemPrompt(ctx,
		"Answer as the resident network historian.\nContext: %s\n\n"))

	// Reactivating the earlier session must not bring the old prompt back.
	require.NoError(t, f.pipeline.UseSession(ctx, first))

	generator := f.generator(t, "mistral")
	_, _, err := f.pipeline.Ask(ctx, "what is dns?")
	require.NoError(t, err)

	require.NotEmpty(t, generator.Calls)
	answering := generator.Calls[len(generator.Calls)-1]
	system := answering[0].Parts[0].(llms.TextContent).Text
	assert.Contains(t, system, "resident network historian")
	assert.NotContains(t, system, "cybersecurity assistant")
}

func TestUseLLM(t *testing.T) {
	f := newFixture()
	id := f.createSession(t, entity.SessionTypeChat)
	ctx := context.Background()

	t.Run("rejects unknown model without touching config", func(t *testing.T) {
		err := f.pipeline.UseLLM(ctx, "not-a-model")
		require.ErrorIs(t, err, entity.ErrInvalidArgument)

		stored, err := f.sessions.GetConfig(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "mistral", stored.LLMName)
	})

	t.Run("swaps and persists", func(t *testing.T) {
		require.NoError(t, f.pipeline.UseLLM(ctx, "phi3"))

		stored, err := f.sessions.GetConfig(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "phi3", stored.LLMName)
	})
}

func TestUseAlgorithm(t *testing.T) {
	f := newFixture()
	id := f.createSession(t, entity.SessionTypeChat)
	ctx := context.Background()

	t.Run("rejects out-of-bounds params", func(t *testing.T) {
		err := f.pipeline.UseAlgorithm(ctx, &entity.SimilarityParams{K: 2})
		assert.ErrorIs(t, err, entity.ErrInvalidArgument)
	})

	t.Run("replaces variant and persists", func(t *testing.T) {
		require.NoError(t, f.pipeline.UseAlgorithm(ctx, &entity.MMRParams{FetchK: 30, LambdaMult: 0.7}))

		stored, err := f.sessions.GetConfig(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entity.AlgorithmMMR, stored.AlgorithmType)

		// The chain searches with the fresh params.
		backend := f.backend(t, "bge-m3")
		_, _, err = f.pipeline.Ask(ctx, "what is phishing?")
		require.NoError(t, err)

		mmr, ok := backend.LastParams.(*entity.MMRParams)
		require.True(t, ok)
		assert.Equal(t, 30, mmr.FetchK)
	})
}

func TestDeleteSession(t *testing.T) {
	t.Run("unknown session", func(t *testing.T) {
		f := newFixture()
		err := f.pipeline.DeleteSession(context.Background(), "ghost")
		assert.ErrorIs(t, err, entity.ErrSessionNotFound)
	})

	t.Run("deletion while answering leaves no transcript behind", func(t *testing.T) {
		f := newFixture()
		id := f.createSession(t, entity.SessionTypeChat)
		ctx := context.Background()

		generator := f.generator(t, "mistral")
		generator.Respond = func(messages []llms.MessageContent) (string, error) {
			require.NoError(t, f.pipeline.DeleteSession(ctx, id))
			return "too late", nil
		}

		_, _, err := f.pipeline.Ask(ctx, "what is a rootkit?")
		assert.ErrorIs(t, err, entity.ErrSessionNotFound)

		require.NoError(t, f.pipeline.FlushHistories(ctx))
		stored, err := f.history.GetHistory(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, stored, "the answered turn must not be recorded for a deleted session")
	})

	t.Run("deleting the active session unloads it", func(t *testing.T) {
		f := newFixture()
		id := f.createSession(t, entity.SessionTypeChat)
		ctx := context.Background()

		require.NoError(t, f.pipeline.DeleteSession(ctx, id))

		_, _, err := f.pipeline.Ask(ctx, "still there?")
		assert.ErrorIs(t, err, entity.ErrInvalidState)

		_, err = f.pipeline.GetSession(ctx, id)
		assert.ErrorIs(t, err, entity.ErrSessionNotFound)
	})
}

func TestAsk(t *testing.T) {
	f := newFixture()
	id := f.createSession(t, entity.SessionTypeChat)
	ctx := context.Background()

	backend := f.backend(t, "bge-m3")
	backend.Documents = []schema.Document{
		{PageContent: "firewalls filter traffic", Metadata: map[string]any{"source": "resources\\net.pdf", "page": 2}},
		{PageContent: "stateful inspection", Metadata: map[string]any{"source": "resources/net.pdf", "page": float64(2)}},
		{PageContent: "osi layers", Metadata: map[string]any{"source": "resources/osi.pdf", "page": 0}},
	}

	generator := f.generator(t, "mistral")
	generator.Respond = func(messages []llms.MessageContent) (string, error) {
		return "A firewall filters traffic.", nil
	}

	answer, sources, err := f.pipeline.Ask(ctx, "  what is a firewall? ")
	require.NoError(t, err)
	assert.Equal(t, "A firewall filters traffic.", answer)

	// Citations collapse to file -> 1-based pages, backslashes normalized.
	assert.Equal(t, entity.Sources{
		"resources/net.pdf": {3},
		"resources/osi.pdf": {1},
	}, sources)

	view, err := f.pipeline.GetSession(ctx, id)
	require.NoError(t, err)
	require.Len(t, view.History, 2)

	assert.Equal(t, entity.RoleHuman, view.History[0].Role)
	assert.Equal(t, "what is a firewall?", view.History[0].Content, "question is stored trimmed")
	assert.Empty(t, view.History[0].LLM)

	assert.Equal(t, entity.RoleAI, view.History[1].Role)
	assert.Equal(t, "mistral", view.History[1].LLM)
	assert.Equal(t, sources, view.History[1].Sources)

	t.Run("history is not persisted until flush", func(t *testing.T) {
		stored, err := f.history.GetHistory(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, stored)

		require.NoError(t, f.pipeline.FlushHistories(ctx))

		stored, err = f.history.GetHistory(ctx, id)
		require.NoError(t, err)
		assert.Len(t, stored, 2)
	})

	t.Run("rejected on evaluation sessions", func(t *testing.T) {
		f := newFixture()
		f.createSession(t, entity.SessionTypeEvaluation)

		_, _, err := f.pipeline.Ask(context.Background(), "what is a firewall?")
		assert.ErrorIs(t, err, entity.ErrInvalidState)
	})
}

func TestAskReformulation(t *testing.T) {
	f := newFixture()
	f.createSession(t, entity.SessionTypeChat)
	ctx := context.Background()

	generator := f.generator(t, "mistral")

	_, _, err := f.pipeline.Ask(ctx, "what is a honeypot?")
	require.NoError(t, err)
	assert.Len(t, generator.Calls, 1, "first question goes straight to answering")

	_, _, err = f.pipeline.Ask(ctx, "how do I deploy one?")
	require.NoError(t, err)
	assert.Len(t, generator.Calls, 3, "follow-up adds a reformulation call")
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()

	t.Run("rejected on chat sessions", func(t *testing.T) {
		f := newFixture()
		f.createSession(t, entity.SessionTypeChat)

		_, err := f.pipeline.Evaluate(ctx, "accuracy", "an answer")
		assert.ErrorIs(t, err, entity.ErrInvalidState)
	})

	t.Run("requires a scenario", func(t *testing.T) {
		f := newFixture()
		f.createSession(t, entity.SessionTypeEvaluation)

		_, err := f.pipeline.Evaluate(ctx, "accuracy", "an answer")
		assert.ErrorIs(t, err, entity.ErrPreconditionFailed)
	})

	t.Run("records a graded verdict", func(t *testing.T) {
		f := newFixture()
		id := f.createSession(t, entity.SessionTypeEvaluation)
		require.NoError(t, f.pipeline.UseScenario(ctx, "a ransomware incident"))

		generator := f.generator(t, "mistral")
		generator.Respond = func(messages []llms.MessageContent) (string, error) {
			return `{"grade": 3.5, "remark": "decent but shallow"}`, nil
		}

		result, err := f.pipeline.Evaluate(ctx, "containment", "  isolate the host  ")
		require.NoError(t, err)
		require.NotNil(t, result)

		assert.Equal(t, 3.5, result.Grade)
		assert.Equal(t, "decent but shallow", result.Remark)
		assert.Equal(t, "containment", result.Criterion)
		assert.Equal(t, "mistral", result.LLM)
		assert.NotEmpty(t, result.ResultID)

		data := f.pipeline.tracker.Get(id)
		key := entity.AnswerKey("isolate the host")
		require.Contains(t, data.Answers, key)
		assert.Equal(t, "isolate the host", data.Answers[key])
		assert.Equal(t, []string{"containment"}, data.Criteria)
		require.Len(t, data.Results[key], 1)
	})

	t.Run("malformed verdict is still recorded", func(t *testing.T) {
		f := newFixture()
		id := f.createSession(t, entity.SessionTypeEvaluation)
		require.NoError(t, f.pipeline.UseScenario(ctx, "a phishing campaign"))

		generator := f.generator(t, "mistral")
		generator.Respond = func(messages []llms.MessageContent) (string, error) {
			return "I would give this a 4 out of 5.", nil
		}

		result, err := f.pipeline.Evaluate(ctx, "awareness", "train the staff")
		assert.ErrorIs(t, err, entity.ErrMalformedOutput)
		assert.Nil(t, result)

		data := f.pipeline.tracker.Get(id)
		key := entity.AnswerKey("train the staff")
		require.Len(t, data.Results[key], 1)

		recorded := data.Results[key][0]
		assert.Equal(t, float64(entity.MalformedGrade), recorded.Grade)
		assert.Equal(t, "I would give this a 4 out of 5.", recorded.Remark)

		// The write-through already landed in the repository.
		stored, err := f.evals.GetEvaluation(ctx, id)
		require.NoError(t, err)
		assert.Len(t, stored.Results[key], 1)
	})
}

func TestEvaluateConcurrentReads(t *testing.T) {
	f := newFixture()
	id := f.createSession(t, entity.SessionTypeEvaluation)
	ctx := context.Background()
	require.NoError(t, f.pipeline.UseScenario(ctx, "a credential stuffing attack"))

	generator := f.generator(t, "mistral")
	generator.Respond = func(messages []llms.MessageContent) (string, error) {
		return `{"grade": 4, "remark": "covers the basics"}`, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, err := f.pipeline.Evaluate(ctx, "defense", fmt.Sprintf("answer %d", i))
			assert.NoError(t, err)
		}
	}()

	// Session reads serialize the evaluation data while grading keeps
	// mutating it; the returned view must be a detached snapshot.
	for i := 0; i < 50; i++ {
		view, err := f.pipeline.GetSession(ctx, id)
		require.NoError(t, err)

		_, err = json.Marshal(view.Data)
		require.NoError(t, err)
	}

	wg.Wait()
}

func TestScenarioAndCriteria(t *testing.T) {
	ctx := context.Background()

	t.Run("rejected on chat sessions", func(t *testing.T) {
		f := newFixture()
		f.createSession(t, entity.SessionTypeChat)

		assert.ErrorIs(t, f.pipeline.UseScenario(ctx, "an incident"), entity.ErrInvalidState)
		assert.ErrorIs(t, f.pipeline.UseCriteria(ctx, []string{"accuracy"}), entity.ErrInvalidState)
	})

	t.Run("replace wholesale", func(t *testing.T) {
		f := newFixture()
		id := f.createSession(t, entity.SessionTypeEvaluation)

		require.NoError(t, f.pipeline.UseScenario(ctx, "an incident"))
		require.NoError(t, f.pipeline.UseCriteria(ctx, []string{"accuracy", "depth"}))
		require.NoError(t, f.pipeline.UseCriteria(ctx, []string{"clarity"}))

		data := f.pipeline.tracker.Get(id)
		assert.Equal(t, "an incident", data.Scenario)
		assert.Equal(t, []string{"clarity"}, data.Criteria)
	})
}

func TestGetSessions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	chatID := f.createSession(t, entity.SessionTypeChat)
	evalID := f.createSession(t, entity.SessionTypeEvaluation)

	views, err := f.pipeline.GetSessions(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)

	chat := views[chatID]
	require.NotNil(t, chat)
	assert.NotNil(t, chat.History)
	assert.Nil(t, chat.Data)

	eval := views[evalID]
	require.NotNil(t, eval)
	assert.Nil(t, eval.History)
	assert.NotNil(t, eval.Data)
}
