package lifecycle

import "sync"

// idempotencyGuard suppresses duplicate inbound events under at-least-once
// delivery. It remembers the most recent correlation IDs up to a fixed
// capacity, evicting the oldest-inserted entry when full.
type idempotencyGuard struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string
}

func newIdempotencyGuard(capacity int) *idempotencyGuard {
	if capacity <= 0 {
		capacity = 1000
	}
	return &idempotencyGuard{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

// markIfNew records the ID and reports true, or reports false if the ID was
// already recorded. An empty ID is never deduplicated.
func (g *idempotencyGuard) markIfNew(id string) bool {
	if id == "" {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[id]; ok {
		return false
	}

	if len(g.order) >= g.capacity {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.seen, oldest)
	}
	g.seen[id] = struct{}{}
	g.order = append(g.order, id)
	return true
}
