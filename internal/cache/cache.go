// Package cache provides read-through caches for snapshot rows on the check path.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/keyward-dev/keyward/internal/config"
)

// Entry is the cached snapshot state of one (user, action) pair.
// Found is false for pairs with no allowed snapshot row.
type Entry struct {
	Found        bool     `json:"f"`
	Instances    []string `json:"i,omitempty"`
	AllInstances bool     `json:"a,omitempty"`
}

// Cache stores snapshot entries per username, keyed by action ID.
type Cache interface {
	// Get returns the cached entries among actionIDs. Misses are absent from the map.
	Get(ctx context.Context, username string, actionIDs []string) (map[string]Entry, error)

	// Generation returns the user's invalidation counter. Read it before
	// loading the entries that are later passed to Set.
	Generation(ctx context.Context, username string) (int64, error)

	// Set stores entries for username, keeping entries for other actions.
	// It stores nothing if username was invalidated since gen was read.
	Set(ctx context.Context, username string, gen int64, entries map[string]Entry) error

	// Invalidate drops everything cached for the given users and advances
	// their generations.
	Invalidate(ctx context.Context, usernames ...string) error

	Close() error
}

// New creates a cache based on configuration. namespace separates
// installations sharing one Valkey deployment.
func New(cfg config.CacheConfig, namespace string) (Cache, error) {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	switch cfg.Type {
	case "", "none":
		return Nop{}, nil
	case "memory":
		return NewMemory(cfg.Size, ttl), nil
	case "valkey":
		if cfg.ValkeyAddr == "" {
			return nil, fmt.Errorf("valkey address is required when cache type is valkey")
		}
		return NewValkey(cfg.ValkeyAddr, namespace, ttl)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s (supported: none, memory, valkey)", cfg.Type)
	}
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string, []string) (map[string]Entry, error) { return nil, nil }
func (Nop) Generation(context.Context, string) (int64, error)               { return 0, nil }
func (Nop) Set(context.Context, string, int64, map[string]Entry) error      { return nil }
func (Nop) Invalidate(context.Context, ...string) error                     { return nil }
func (Nop) Close() error                                                    { return nil }
