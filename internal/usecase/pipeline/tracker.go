package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/secassist/ai-backend/internal/entity"
	"github.com/secassist/ai-backend/internal/repository"
)

// EvaluationTracker keeps the grading state of evaluation sessions in memory
// and writes the whole document through on every mutation.
type EvaluationTracker struct {
	repo repository.EvaluationRepository

	mu   sync.Mutex
	data map[string]*entity.EvaluationData
}

func NewEvaluationTracker(repo repository.EvaluationRepository) *EvaluationTracker {
	return &EvaluationTracker{
		repo: repo,
		data: map[string]*entity.EvaluationData{},
	}
}

// Hydrate loads a session's evaluation data into memory. A session without
// stored data starts with an empty accumulator.
func (t *EvaluationTracker) Hydrate(ctx context.Context, sessionID string) error {
	t.mu.Lock()
	_, ok := t.data[sessionID]
	t.mu.Unlock()
	if ok {
		return nil
	}

	data, err := t.repo.GetEvaluation(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("hydrate evaluation data for session %s: %w", sessionID, err)
	}

	t.mu.Lock()
	t.data[sessionID] = data
	t.mu.Unlock()
	return nil
}

// Get returns a copy of the cached evaluation data, creating an empty
// accumulator for unknown sessions. Callers get a snapshot they can read or
// serialize without holding the tracker lock against concurrent grading.
func (t *EvaluationTracker) Get(sessionID string) *entity.EvaluationData {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.dataFor(sessionID).Clone()
}

// SetScenario replaces the session's scenario and persists.
func (t *EvaluationTracker) SetScenario(ctx context.Context, sessionID, scenario string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data := t.dataFor(sessionID)
	data.Scenario = scenario
	return t.save(ctx, sessionID, data)
}

// ReplaceCriteria replaces the session's criteria wholesale and persists.
func (t *EvaluationTracker) ReplaceCriteria(ctx context.Context, sessionID string, criteria []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data := t.dataFor(sessionID)
	data.Criteria = criteria
	return t.save(ctx, sessionID, data)
}

// Record adds a graded result into the answer's content-hash bucket, appending
// the criterion first if it is novel, and persists the whole document.
func (t *EvaluationTracker) Record(ctx context.Context, sessionID, answer string, result entity.EvaluationResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data := t.dataFor(sessionID)
	data.AddCriterion(result.Criterion)
	data.AddResult(answer, result)
	return t.save(ctx, sessionID, data)
}

// Delete drops a session's evaluation data from the cache and the repository.
func (t *EvaluationTracker) Delete(ctx context.Context, sessionID string) error {
	t.mu.Lock()
	delete(t.data, sessionID)
	t.mu.Unlock()

	if err := t.repo.DeleteEvaluation(ctx, sessionID); err != nil {
		return fmt.Errorf("delete evaluation data for session %s: %w", sessionID, err)
	}
	return nil
}

// dataFor must be called with the tracker lock held.
func (t *EvaluationTracker) dataFor(sessionID string) *entity.EvaluationData {
	data, ok := t.data[sessionID]
	if !ok {
		data = entity.NewEvaluationData()
		t.data[sessionID] = data
	}
	return data
}

func (t *EvaluationTracker) save(ctx context.Context, sessionID string, data *entity.EvaluationData) error {
	if err := t.repo.SaveEvaluation(ctx, sessionID, data); err != nil {
		return fmt.Errorf("save evaluation data for session %s: %w", sessionID, err)
	}
	return nil
}
