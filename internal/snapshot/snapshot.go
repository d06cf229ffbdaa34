// Package snapshot maintains the read-optimized mirror of allowed permissions.
//
// Every function takes the caller's transaction handle. The state machine
// invokes them in the same transaction as the status change they mirror, so a
// committed ALLOWED decision always has its snapshot row.
package snapshot

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/keyward-dev/keyward/internal/metrics"
	"github.com/keyward-dev/keyward/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrNoSnapshot is returned by Update when (user, action) was never allowed.
var ErrNoSnapshot = errors.New("snapshot not found")

type key struct {
	username string
	actionID uuid.UUID
}

// Sync mirrors the given permission records into the snapshot table and
// returns the usernames whose snapshot rows changed.
//
// A DENIED outcome writes nothing. An ALLOWED outcome replaces instances and
// all_instances of each (user, action) snapshot row with the record's current
// values, creating missing rows.
func Sync(tx *gorm.DB, permissionIDs []uuid.UUID, outcome models.PermissionStatus) ([]string, error) {
	switch outcome {
	case models.PermissionDenied:
		slog.Info("Snapshot sync skipped for denied permissions", "permission_ids", permissionIDs)
		return nil, nil
	case models.PermissionAllowed:
	default:
		return nil, fmt.Errorf("unsupported sync outcome: %s", outcome)
	}

	if len(permissionIDs) == 0 {
		return nil, nil
	}

	var records []models.UserPermission
	if err := tx.Where("id IN ?", permissionIDs).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	usernames := make([]string, 0, len(records))
	actionIDs := make([]uuid.UUID, 0, len(records))
	seenUser := make(map[string]bool)
	for _, r := range records {
		if !seenUser[r.Username] {
			seenUser[r.Username] = true
			usernames = append(usernames, r.Username)
		}
		actionIDs = append(actionIDs, r.ActionID)
	}

	var existing []models.UserPermissionSnapshot
	if err := tx.Where("username IN ? AND action_id IN ?", usernames, actionIDs).Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	byKey := make(map[key]models.UserPermissionSnapshot, len(existing))
	for _, s := range existing {
		byKey[key{s.Username, s.ActionID}] = s
	}

	now := tx.NowFunc()
	toCreate := make([]models.UserPermissionSnapshot, 0)
	updated := 0
	for _, r := range records {
		instances := copyInstances(r.Instances)
		s, ok := byKey[key{r.Username, r.ActionID}]
		if !ok {
			toCreate = append(toCreate, models.UserPermissionSnapshot{
				Username:     r.Username,
				ActionID:     r.ActionID,
				Instances:    instances,
				AllInstances: r.AllInstances,
				Status:       models.PermissionAllowed,
				UpdateAt:     now,
			})
			continue
		}

		err := tx.Model(&models.UserPermissionSnapshot{}).Where("id = ?", s.ID).Updates(map[string]interface{}{
			"instances":     instances,
			"all_instances": r.AllInstances,
			"status":        models.PermissionAllowed,
			"update_at":     now,
		}).Error
		if err != nil {
			return nil, fmt.Errorf("update snapshot: %w", err)
		}
		updated++
	}

	if len(toCreate) > 0 {
		if err := tx.CreateInBatches(&toCreate, 100).Error; err != nil {
			return nil, fmt.Errorf("create snapshots: %w", err)
		}
	}

	metrics.SnapshotWrites.WithLabelValues("create").Add(float64(len(toCreate)))
	metrics.SnapshotWrites.WithLabelValues("update").Add(float64(updated))
	slog.Debug("Snapshot sync completed", "created", len(toCreate), "updated", updated)

	return usernames, nil
}

// Update merges instances into the existing snapshot row of the permission's
// (user, action) pair. Instances become the union of old and new ids;
// allInstances replaces the stored flag. It returns the affected username.
func Update(tx *gorm.DB, permissionID uuid.UUID, instances []string, allInstances bool) (string, error) {
	var record models.UserPermission
	if err := tx.Where("id = ?", permissionID).First(&record).Error; err != nil {
		return "", fmt.Errorf("load permission: %w", err)
	}

	var s models.UserPermissionSnapshot
	err := tx.Where("username = ? AND action_id = ?", record.Username, record.ActionID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNoSnapshot
		}
		return "", fmt.Errorf("load snapshot: %w", err)
	}

	merged := Union(s.Instances, instances)
	err = tx.Model(&models.UserPermissionSnapshot{}).Where("id = ?", s.ID).Updates(map[string]interface{}{
		"instances":     datatypes.JSONSlice[string](merged),
		"all_instances": allInstances,
		"status":        models.PermissionAllowed,
		"update_at":     tx.NowFunc(),
	}).Error
	if err != nil {
		return "", fmt.Errorf("update snapshot: %w", err)
	}

	metrics.SnapshotWrites.WithLabelValues("merge").Inc()
	return record.Username, nil
}

// Union returns a followed by the ids of b not already present, without duplicates.
func Union(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func copyInstances(in []string) datatypes.JSONSlice[string] {
	out := make(datatypes.JSONSlice[string], len(in))
	copy(out, in)
	return out
}
