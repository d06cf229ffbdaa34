package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory is a process-local cache bounded by user count and entry age.
type Memory struct {
	mu   sync.Mutex
	lru  *expirable.LRU[string, map[string]Entry]
	gens map[string]int64
}

// NewMemory creates a Memory cache holding at most size users.
func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = 10000
	}
	return &Memory{
		lru:  expirable.NewLRU[string, map[string]Entry](size, nil, ttl),
		gens: make(map[string]int64),
	}
}

func (m *Memory) Get(_ context.Context, username string, actionIDs []string) (map[string]Entry, error) {
	cached, ok := m.lru.Get(username)
	if !ok {
		return nil, nil
	}
	hits := make(map[string]Entry, len(actionIDs))
	for _, id := range actionIDs {
		if e, ok := cached[id]; ok {
			hits[id] = e
		}
	}
	return hits, nil
}

func (m *Memory) Generation(_ context.Context, username string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gens[username], nil
}

// Set replaces the user's map with a merged copy; stored maps are never mutated.
func (m *Memory) Set(_ context.Context, username string, gen int64, entries map[string]Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gens[username] != gen {
		return nil
	}

	old, _ := m.lru.Peek(username)
	merged := make(map[string]Entry, len(old)+len(entries))
	for k, v := range old {
		merged[k] = v
	}
	for k, v := range entries {
		merged[k] = v
	}
	m.lru.Add(username, merged)
	return nil
}

func (m *Memory) Invalidate(_ context.Context, usernames ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range usernames {
		m.lru.Remove(u)
		m.gens[u]++
	}
	return nil
}

func (m *Memory) Close() error {
	m.lru.Purge()
	return nil
}
