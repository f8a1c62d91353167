package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/secassist/ai-backend/internal/entity"
	"github.com/secassist/ai-backend/internal/repository"
	"go.uber.org/zap"
)

// transcript is the cached conversation of one session. dirty marks entries
// not yet written through to the repository.
type transcript struct {
	mu      sync.Mutex
	entries []entity.HistoryEntry
	dirty   bool
}

// HistoryCache keeps every session transcript in memory and writes them back
// to the repository on flush. Reads and appends never touch the database.
type HistoryCache struct {
	repo repository.HistoryRepository

	mu          sync.RWMutex
	transcripts map[string]*transcript
}

func NewHistoryCache(repo repository.HistoryRepository) *HistoryCache {
	return &HistoryCache{
		repo:        repo,
		transcripts: map[string]*transcript{},
	}
}

// Hydrate loads the persisted transcripts of the given sessions into memory.
// Already cached sessions are left untouched.
func (c *HistoryCache) Hydrate(ctx context.Context, sessionIDs []string) error {
	for _, id := range sessionIDs {
		c.mu.RLock()
		_, ok := c.transcripts[id]
		c.mu.RUnlock()
		if ok {
			continue
		}

		entries, err := c.repo.GetHistory(ctx, id)
		if err != nil {
			return fmt.Errorf("hydrate history for session %s: %w", id, err)
		}

		c.mu.Lock()
		c.transcripts[id] = &transcript{entries: entries}
		c.mu.Unlock()
	}

	return nil
}

// Append records entries at the end of a session's transcript and marks it
// dirty. The transcript is created on first append.
func (c *HistoryCache) Append(sessionID string, entries ...entity.HistoryEntry) {
	t := c.transcriptFor(sessionID)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, entries...)
	t.dirty = true
}

// Dump returns a copy of a session's transcript. Sessions without cached
// history yield an empty slice.
func (c *HistoryCache) Dump(sessionID string) []entity.HistoryEntry {
	c.mu.RLock()
	t, ok := c.transcripts[sessionID]
	c.mu.RUnlock()

	if !ok {
		return []entity.HistoryEntry{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]entity.HistoryEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Flush writes a session's transcript through to the repository if it has
// unsaved entries.
func (c *HistoryCache) Flush(ctx context.Context, sessionID string) error {
	c.mu.RLock()
	t, ok := c.transcripts[sessionID]
	c.mu.RUnlock()

	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.dirty {
		return nil
	}

	if err := c.repo.ReplaceHistory(ctx, sessionID, t.entries); err != nil {
		return fmt.Errorf("flush history for session %s: %w", sessionID, err)
	}

	t.dirty = false
	return nil
}

// FlushAll writes every dirty transcript through. Failures are logged and do
// not stop the remaining sessions; the first error is returned.
func (c *HistoryCache) FlushAll(ctx context.Context) error {
	c.mu.RLock()
	ids := make([]string, 0, len(c.transcripts))
	for id := range c.transcripts {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	var firstErr error
	for _, id := range ids {
		if err := c.Flush(ctx, id); err != nil {
			ctxzap.Error(ctx, "history flush failed", zap.String("session_id", id), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// Delete drops a session's transcript from the cache and the repository.
func (c *HistoryCache) Delete(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	delete(c.transcripts, sessionID)
	c.mu.Unlock()

	if err := c.repo.DeleteHistory(ctx, sessionID); err != nil {
		return fmt.Errorf("delete history for session %s: %w", sessionID, err)
	}
	return nil
}

func (c *HistoryCache) transcriptFor(sessionID string) *transcript {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.transcripts[sessionID]
	if !ok {
		t = &transcript{}
		c.transcripts[sessionID] = t
	}
	return t
}
