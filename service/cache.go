package service

import (
	"sync"

	"lawassist-backend/models"

	"github.com/google/uuid"
)

// historyWindow bounds how many recent turns feed back into prompts.
const historyWindow = 8

type cacheKey struct {
	userID uuid.UUID
	caseID uuid.UUID
}

// Cache is the process-wide mutable state shared across requests: the
// Topic Section Map, pending clarifications, and conversation history, all
// keyed by (user, case) so one case can be cleared without touching
// another user's state. It is a materialized view over the Structured Case
// Summary, never a source of truth.
type Cache struct {
	mu       sync.RWMutex
	sections map[cacheKey]map[string]string
	pending  map[cacheKey]*models.PendingClarification
	history  map[cacheKey][]models.ChatTurn
}

// NewCache creates an empty cache service.
func NewCache() *Cache {
	return &Cache{
		sections: make(map[cacheKey]map[string]string),
		pending:  make(map[cacheKey]*models.PendingClarification),
		history:  make(map[cacheKey][]models.ChatTurn),
	}
}

// Section returns the flattened text for one topic section, or "".
func (c *Cache) Section(userID, caseID uuid.UUID, section string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sections[cacheKey{userID, caseID}][section]
}

// ReplaceSections swaps in a freshly rebuilt section map for a case.
func (c *Cache) ReplaceSections(userID, caseID uuid.UUID, sections map[string]string) {
	copied := make(map[string]string, len(sections))
	for k, v := range sections {
		copied[k] = v
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sections[cacheKey{userID, caseID}] = copied
}

// AppendSection appends text to one topic section, preserving any existing
// text. Multiple clarification rounds accumulate rather than replace.
func (c *Cache) AppendSection(userID, caseID uuid.UUID, section, text string) {
	if text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey{userID, caseID}
	m := c.sections[key]
	if m == nil {
		m = make(map[string]string)
		c.sections[key] = m
	}
	if existing := m[section]; existing != "" {
		m[section] = existing + "\n" + text
	} else {
		m[section] = text
	}
}

// SetPending stores the single pending clarification slot for a case.
func (c *Cache) SetPending(userID, caseID uuid.UUID, pending *models.PendingClarification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[cacheKey{userID, caseID}] = pending
}

// TakePending removes and returns the pending clarification, if any. The
// entry is consumed regardless of whether the subsequent patch succeeds.
func (c *Cache) TakePending(userID, caseID uuid.UUID) (*models.PendingClarification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey{userID, caseID}
	pending, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	return pending, ok
}

// History returns the most recent turns for a case, up to historyWindow.
func (c *Cache) History(userID, caseID uuid.UUID) []models.ChatTurn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	turns := c.history[cacheKey{userID, caseID}]
	if len(turns) > historyWindow {
		turns = turns[len(turns)-historyWindow:]
	}
	out := make([]models.ChatTurn, len(turns))
	copy(out, turns)
	return out
}

// AppendHistory records one question/answer exchange. Only the condensed
// assistant summary is stored, bounding memory growth.
func (c *Cache) AppendHistory(userID, caseID uuid.UUID, question, cacheSummary string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey{userID, caseID}
	c.history[key] = append(c.history[key],
		models.ChatTurn{Role: "user", Content: question},
		models.ChatTurn{Role: "assistant", Content: cacheSummary},
	)
}

// ClearCase drops all cached state for one (user, case) pair.
func (c *Cache) ClearCase(userID, caseID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey{userID, caseID}
	delete(c.sections, key)
	delete(c.pending, key)
	delete(c.history, key)
}
