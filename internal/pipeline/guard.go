package pipeline

import "sync"

// Guard enforces at most one in-flight run per game across concurrent
// workers. Acquire is non-blocking: a second caller for the same game is
// rejected, not queued.
type Guard struct {
	mu     sync.Mutex
	locked map[string]struct{}
}

// NewGuard builds an empty guard.
func NewGuard() *Guard {
	return &Guard{locked: make(map[string]struct{})}
}

// Acquire claims the game's slot. Returns false when a run already holds it.
func (g *Guard) Acquire(gameID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.locked[gameID]; held {
		return false
	}
	g.locked[gameID] = struct{}{}
	return true
}

// Release frees the game's slot.
func (g *Guard) Release(gameID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.locked, gameID)
}
