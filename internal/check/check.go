// Package check answers authorization checks from the permission snapshot.
//
// The check path never reads permission records: only snapshot rows with
// status allowed count, so pending and denied requests cost nothing here.
package check

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/keyward-dev/keyward/internal/cache"
	"github.com/keyward-dev/keyward/internal/metrics"
	"github.com/keyward-dev/keyward/internal/models"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// Item is one (action, requested instances) pair of a check request.
type Item struct {
	ActionID  string   `json:"action_id"`
	Instances []string `json:"instances"`
}

// Result is the verdict for one Item.
// ApplyInstances lists what the caller would still have to apply for.
type Result struct {
	ActionID       string   `json:"action_id"`
	Instances      []string `json:"instances"`
	IsAllowed      bool     `json:"is_allowed"`
	ApplyInstances []string `json:"apply_instances"`
}

// Evaluate computes one Result per item, in order, from snapshot entries keyed
// by canonical action ID. It performs no I/O.
func Evaluate(items []Item, entries map[string]cache.Entry) []Result {
	results := make([]Result, 0, len(items))
	for _, item := range items {
		requested := canonicalInstances(item.Instances)
		result := Result{
			ActionID:       item.ActionID,
			Instances:      item.Instances,
			ApplyInstances: requested,
		}
		if result.Instances == nil {
			result.Instances = []string{}
		}

		key, ok := canonical(item.ActionID)
		if !ok {
			results = append(results, result)
			continue
		}
		entry, ok := entries[key]
		if !ok || !entry.Found {
			results = append(results, result)
			continue
		}
		if entry.AllInstances {
			result.IsAllowed = true
			result.ApplyInstances = []string{}
			results = append(results, result)
			continue
		}

		granted := make(map[string]bool, len(entry.Instances))
		for _, id := range entry.Instances {
			granted[id] = true
		}
		missing := make([]string, 0, len(requested))
		for _, id := range requested {
			if !granted[id] {
				missing = append(missing, id)
			}
		}
		result.ApplyInstances = missing
		result.IsAllowed = len(missing) == 0
		results = append(results, result)
	}
	return results
}

func canonical(actionID string) (string, bool) {
	id, err := uuid.Parse(actionID)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// canonicalInstances rewrites uuid-shaped ids to the lowercase hyphenated form
// snapshots store, then drops duplicates keeping request order. Other ids are
// kept verbatim; they can never match a snapshot.
func canonicalInstances(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if parsed, err := uuid.Parse(id); err == nil {
			id = parsed.String()
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Engine loads snapshot entries through a cache and evaluates checks.
type Engine struct {
	db    *gorm.DB
	cache cache.Cache
	group singleflight.Group
}

// NewEngine creates an Engine. A nil cache disables caching.
func NewEngine(db *gorm.DB, c cache.Cache) *Engine {
	if c == nil {
		c = cache.Nop{}
	}
	return &Engine{db: db, cache: c}
}

// Check evaluates items for username. mode labels the entry point in metrics.
func (e *Engine) Check(ctx context.Context, mode, username string, items []Item) ([]Result, error) {
	start := time.Now()
	defer func() { metrics.CheckDuration.Observe(time.Since(start).Seconds()) }()
	metrics.CheckRequests.WithLabelValues(mode).Inc()

	ids := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		key, ok := canonical(item.ActionID)
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		ids = append(ids, key)
	}

	entries, err := e.entries(ctx, username, ids)
	if err != nil {
		return nil, err
	}

	results := Evaluate(items, entries)
	for _, r := range results {
		if r.IsAllowed {
			metrics.CheckItems.WithLabelValues("allowed").Inc()
		} else {
			metrics.CheckItems.WithLabelValues("denied").Inc()
		}
	}
	return results, nil
}

func (e *Engine) entries(ctx context.Context, username string, ids []string) (map[string]cache.Entry, error) {
	entries := make(map[string]cache.Entry, len(ids))
	if len(ids) == 0 {
		return entries, nil
	}

	cached, err := e.cache.Get(ctx, username, ids)
	if err != nil {
		slog.Warn("Snapshot cache read failed", "username", username, "error", err)
		cached = nil
	}
	misses := make([]string, 0, len(ids))
	for _, id := range ids {
		if entry, ok := cached[id]; ok {
			entries[id] = entry
			continue
		}
		misses = append(misses, id)
	}
	metrics.CheckCache.WithLabelValues("hit").Add(float64(len(ids) - len(misses)))
	metrics.CheckCache.WithLabelValues("miss").Add(float64(len(misses)))
	if len(misses) == 0 {
		return entries, nil
	}

	sort.Strings(misses)
	key := username + "\x00" + strings.Join(misses, ",")
	v, err, _ := e.group.Do(key, func() (interface{}, error) {
		gen, genErr := e.cache.Generation(ctx, username)
		loaded, err := Load(ctx, e.db, username, misses)
		if err != nil {
			return nil, err
		}
		if genErr != nil {
			slog.Warn("Snapshot cache generation read failed", "username", username, "error", genErr)
			return loaded, nil
		}
		if err := e.cache.Set(ctx, username, gen, loaded); err != nil {
			slog.Warn("Snapshot cache write failed", "username", username, "error", err)
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	for id, entry := range v.(map[string]cache.Entry) {
		entries[id] = entry
	}
	return entries, nil
}

// Load reads the allowed snapshot rows of username for actionIDs in one query.
// Every requested id gets an entry; ids without a row have Found unset.
func Load(ctx context.Context, db *gorm.DB, username string, actionIDs []string) (map[string]cache.Entry, error) {
	var rows []models.UserPermissionSnapshot
	err := db.WithContext(ctx).
		Where("username = ? AND action_id IN ? AND status = ?", username, actionIDs, models.PermissionAllowed).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}

	entries := make(map[string]cache.Entry, len(actionIDs))
	for _, id := range actionIDs {
		entries[id] = cache.Entry{}
	}
	for _, row := range rows {
		entries[row.ActionID.String()] = cache.Entry{
			Found:        true,
			Instances:    []string(row.Instances),
			AllInstances: row.AllInstances,
		}
	}
	return entries, nil
}
