package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/keyward-dev/keyward/internal/audit"
	"github.com/keyward-dev/keyward/internal/metrics"
	"github.com/keyward-dev/keyward/internal/models"
	"github.com/keyward-dev/keyward/internal/snapshot"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// errRecordRaced reports that a concurrent request inserted the same
// (username, action) record first.
var errRecordRaced = errors.New("permission record created concurrently")

// PermissionService runs the apply/approve state machine.
type PermissionService struct {
	db          *gorm.DB
	managers    ManagerChecker
	invalidator SnapshotInvalidator
}

// NewPermissionService creates a new PermissionService.
func NewPermissionService(db *gorm.DB, managers ManagerChecker, invalidator SnapshotInvalidator) *PermissionService {
	return &PermissionService{db: db, managers: managers, invalidator: invalidator}
}

// filterInstances keeps the ids that resolve to live instances in the action's
// scope, in request order and without duplicates. Everything else is dropped.
func filterInstances(tx *gorm.DB, action *models.Action, requested []string) ([]string, error) {
	parsed := make([]string, 0, len(requested))
	seen := make(map[string]bool, len(requested))
	for _, raw := range requested {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		canonical := id.String()
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		parsed = append(parsed, canonical)
	}
	if len(parsed) == 0 {
		return []string{}, nil
	}

	var live []string
	err := tx.Model(&models.Instance{}).
		Where("id IN ? AND application = ? AND resource_id = ?", parsed, action.Application, action.ResourceID).
		Pluck("id", &live).Error
	if err != nil {
		return nil, fmt.Errorf("resolve instances: %w", err)
	}
	ok := make(map[string]bool, len(live))
	for _, id := range live {
		ok[id] = true
	}

	filtered := make([]string, 0, len(parsed))
	for _, id := range parsed {
		if ok[id] {
			filtered = append(filtered, id)
		}
	}
	return filtered, nil
}

func loadPermission(db *gorm.DB, id uuid.UUID) (*models.UserPermission, error) {
	var p models.UserPermission
	if err := db.Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load permission: %w", err)
	}
	return &p, nil
}

// createRecord inserts a new record. Losing the unique (username, action_id)
// race to a concurrent insert yields errRecordRaced, leaving the transaction
// usable on every driver.
func createRecord(tx *gorm.DB, record *models.UserPermission) error {
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return errRecordRaced
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errRecordRaced
	}
	return nil
}

// retryRaced runs fn a second time when it lost a create race, so the rerun
// finds the winner's record and merges into it.
func retryRaced(op string, fn func() error) error {
	err := fn()
	if errors.Is(err, errRecordRaced) {
		slog.Debug("Retrying after concurrent record creation", "operation", op)
		err = fn()
	}
	return err
}

func loadActionByID(db *gorm.DB, id uuid.UUID) (*models.Action, error) {
	var action models.Action
	if err := db.Where("id = ?", id).First(&action).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load action: %w", err)
	}
	return &action, nil
}

// Apply requests a permission, creating or overwriting the caller's record
// for the action with status dealing.
func (s *PermissionService) Apply(ctx context.Context, username string, req ApplyRequest) (*models.UserPermission, error) {
	actionID, err := parseBodyID("action_id", req.ActionID)
	if err != nil {
		return nil, err
	}

	var record models.UserPermission
	err = retryRaced("apply", func() error {
		record = models.UserPermission{}
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			action, err := loadActionByID(tx, actionID)
			if err != nil {
				return err
			}
			instances, err := filterInstances(tx, action, req.Instances)
			if err != nil {
				return err
			}

			err = tx.Where("username = ? AND action_id = ?", username, action.ID).First(&record).Error
			switch {
			case err == nil:
				record.Instances = instances
				record.AllInstances = req.AllInstances
				record.Status = models.PermissionDealing
				if err := tx.Model(&record).Updates(map[string]interface{}{
					"instances":     datatypes.JSONSlice[string](instances),
					"all_instances": req.AllInstances,
					"status":        models.PermissionDealing,
				}).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				record = models.UserPermission{
					Username:     username,
					ActionID:     action.ID,
					Instances:    instances,
					AllInstances: req.AllInstances,
					Status:       models.PermissionDealing,
				}
				if err := createRecord(tx, &record); err != nil {
					return err
				}
			default:
				return err
			}

			return audit.LogAction(tx, username, audit.ActionApplyPermission, "permission:"+record.ID.String(), map[string]interface{}{
				"action_id":     action.ID,
				"instances":     instances,
				"all_instances": req.AllInstances,
			})
		})
	})
	if err != nil {
		return nil, wrapTx("apply permission", err)
	}

	metrics.PermissionTransitions.WithLabelValues("apply").Inc()
	slog.Info("Permission applied", "username", username, "action_id", record.ActionID, "permission_id", record.ID)
	return &record, nil
}

// Update edits a pending or decided record owned by username and sends it
// back to dealing.
func (s *PermissionService) Update(ctx context.Context, username, id string, req UpdatePermissionRequest) (*models.UserPermission, error) {
	permissionID, err := parsePathID(id)
	if err != nil {
		return nil, err
	}

	var record *models.UserPermission
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err = loadPermission(tx, permissionID)
		if err != nil {
			return err
		}
		if record.Username != username {
			return &PermissionDeniedError{Message: "permission belongs to another user"}
		}

		updates := map[string]interface{}{"status": models.PermissionDealing}
		if req.Instances != nil {
			action, err := loadActionByID(tx, record.ActionID)
			if err != nil {
				return err
			}
			instances, err := filterInstances(tx, action, *req.Instances)
			if err != nil {
				return err
			}
			updates["instances"] = datatypes.JSONSlice[string](instances)
			record.Instances = instances
		}
		if req.AllInstances != nil {
			updates["all_instances"] = *req.AllInstances
			record.AllInstances = *req.AllInstances
		}
		record.Status = models.PermissionDealing

		if err := tx.Model(record).Updates(updates).Error; err != nil {
			return err
		}
		return audit.LogAction(tx, username, audit.ActionUpdatePermission, "permission:"+record.ID.String(), map[string]interface{}{
			"instances":     record.Instances,
			"all_instances": record.AllInstances,
		})
	})
	if err != nil {
		return nil, wrapTx("update permission", err)
	}

	metrics.PermissionTransitions.WithLabelValues("update").Inc()
	return record, nil
}

// Decide moves a dealing record to allowed or denied. Only one caller can win
// a decision; the rest get InvalidStateError.
func (s *PermissionService) Decide(ctx context.Context, manager, id string, decision models.PermissionStatus) error {
	permissionID, err := parsePathID(id)
	if err != nil {
		return err
	}
	if decision != models.PermissionAllowed && decision != models.PermissionDenied {
		return &ValidationError{Message: fmt.Sprintf("decision must be %q or %q", models.PermissionAllowed, models.PermissionDenied)}
	}

	record, err := loadPermission(s.db.WithContext(ctx), permissionID)
	if err != nil {
		return err
	}
	action, err := loadActionByID(s.db.WithContext(ctx), record.ActionID)
	if err != nil {
		return err
	}
	ok, err := s.managers.IsManagerOf(action.Application, manager)
	if err != nil {
		return fmt.Errorf("check manager: %w", err)
	}
	if !ok {
		return &PermissionDeniedError{Message: fmt.Sprintf("%s is not a manager of application %s", manager, action.Application)}
	}

	var affected []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var result *gorm.DB
		if decision == models.PermissionAllowed {
			result = tx.Model(&models.UserPermission{}).
				Where("id = ? AND status = ?", permissionID, models.PermissionDealing).
				Updates(map[string]interface{}{"status": models.PermissionAllowed})
		} else {
			result = tx.Where("id = ? AND status = ?", permissionID, models.PermissionDealing).
				Delete(&models.UserPermission{})
		}
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.UserPermission{}).Where("id = ?", permissionID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return &InvalidStateError{Message: "permission is not pending a decision"}
		}

		affected, err = snapshot.Sync(tx, []uuid.UUID{permissionID}, decision)
		if err != nil {
			return err
		}

		auditAction := audit.ActionAllowPermission
		if decision == models.PermissionDenied {
			auditAction = audit.ActionDenyPermission
		}
		return audit.LogAction(tx, manager, auditAction, "permission:"+permissionID.String(), map[string]interface{}{
			"username":  record.Username,
			"action_id": record.ActionID,
		})
	})
	if err != nil {
		return wrapTx("decide permission", err)
	}

	invalidate(ctx, s.invalidator, affected)
	metrics.PermissionTransitions.WithLabelValues(string(decision)).Inc()
	slog.Info("Permission decided", "permission_id", permissionID, "decision", decision, "manager", manager)
	return nil
}

// AuthGrant lets an application grant its own action directly, merging into
// any existing record and the user's snapshot.
func (s *PermissionService) AuthGrant(ctx context.Context, appCode string, req AuthGrantRequest) (*models.UserPermission, error) {
	actionID, err := parseBodyID("action_id", req.ActionID)
	if err != nil {
		return nil, err
	}
	if req.Username == "" {
		return nil, &ValidationError{Message: "username is required"}
	}

	var record models.UserPermission
	var affected []string
	err = retryRaced("grant", func() error {
		record, affected = models.UserPermission{}, nil
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			action, err := loadActionByID(tx, actionID)
			if err != nil {
				return err
			}
			if action.Application != appCode {
				return ErrNotFound
			}
			if err := tx.Where("username = ?", req.Username).First(&models.User{}).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}

			instances, err := filterInstances(tx, action, req.Instances)
			if err != nil {
				return err
			}

			err = tx.Where("username = ? AND action_id = ?", req.Username, action.ID).First(&record).Error
			switch {
			case err == nil:
				record.Instances = snapshot.Union(record.Instances, instances)
				record.AllInstances = record.AllInstances || req.AllInstances
				record.Status = models.PermissionAllowed
				if err := tx.Model(&record).Updates(map[string]interface{}{
					"instances":     record.Instances,
					"all_instances": record.AllInstances,
					"status":        models.PermissionAllowed,
				}).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				record = models.UserPermission{
					Username:     req.Username,
					ActionID:     action.ID,
					Instances:    instances,
					AllInstances: req.AllInstances,
					Status:       models.PermissionAllowed,
				}
				if err := createRecord(tx, &record); err != nil {
					return err
				}
			default:
				return err
			}

			username, err := snapshot.Update(tx, record.ID, record.Instances, record.AllInstances)
			switch {
			case err == nil:
				affected = []string{username}
			case errors.Is(err, snapshot.ErrNoSnapshot):
				if affected, err = snapshot.Sync(tx, []uuid.UUID{record.ID}, models.PermissionAllowed); err != nil {
					return err
				}
			default:
				return err
			}

			return audit.LogAction(tx, audit.AppActor(appCode), audit.ActionAuthGrant, "permission:"+record.ID.String(), map[string]interface{}{
				"username":      req.Username,
				"action_id":     action.ID,
				"instances":     instances,
				"all_instances": req.AllInstances,
			})
		})
	})
	if err != nil {
		return nil, wrapTx("grant permission", err)
	}

	invalidate(ctx, s.invalidator, affected)
	metrics.PermissionTransitions.WithLabelValues("grant").Inc()
	slog.Info("Permission granted", "application", appCode, "username", req.Username, "action_id", record.ActionID)
	return &record, nil
}

// SelfDelete removes a record owned by username. Snapshot rows stay.
func (s *PermissionService) SelfDelete(ctx context.Context, username, id string) error {
	permissionID, err := parsePathID(id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := loadPermission(tx, permissionID)
		if err != nil {
			return err
		}
		if record.Username != username {
			return &PermissionDeniedError{Message: "permission belongs to another user"}
		}
		if err := tx.Delete(record).Error; err != nil {
			return err
		}
		return audit.LogAction(tx, username, audit.ActionDeletePermission, "permission:"+record.ID.String(), map[string]interface{}{
			"action_id": record.ActionID,
			"status":    record.Status,
		})
	})
	if err != nil {
		return wrapTx("delete permission", err)
	}

	metrics.PermissionTransitions.WithLabelValues("delete").Inc()
	return nil
}

// ListMine returns the caller's records for actions of an application.
func (s *PermissionService) ListMine(ctx context.Context, username, application string, page PageRequest) (*Page[PermissionView], error) {
	db := s.db.WithContext(ctx)
	query := db.Model(&models.UserPermission{}).
		Where("username = ?", username).
		Where("action_id IN (?)", db.Model(&models.Action{}).Select("id").Where("application = ?", application))

	records, err := paginate[models.UserPermission](query, page, "action_id ASC, update_at DESC")
	if err != nil {
		return nil, err
	}
	return s.views(db, records)
}

// ListForManager returns the records for an application's actions, pending
// requests first. An empty status lists every state.
func (s *PermissionService) ListForManager(ctx context.Context, manager, application string, status models.PermissionStatus, page PageRequest) (*Page[PermissionView], error) {
	ok, err := s.managers.IsManagerOf(application, manager)
	if err != nil {
		return nil, fmt.Errorf("check manager: %w", err)
	}
	if !ok {
		return nil, &PermissionDeniedError{Message: fmt.Sprintf("%s is not a manager of application %s", manager, application)}
	}

	db := s.db.WithContext(ctx)
	query := db.Model(&models.UserPermission{}).
		Where("action_id IN (?)", db.Model(&models.Action{}).Select("id").Where("application = ?", application))
	if status != "" {
		if status != models.PermissionDealing && status != models.PermissionAllowed {
			return nil, &ValidationError{Message: fmt.Sprintf("status must be %q or %q", models.PermissionDealing, models.PermissionAllowed)}
		}
		query = query.Where("status = ?", status)
	}

	records, err := paginate[models.UserPermission](query, page, "status DESC, update_at DESC")
	if err != nil {
		return nil, err
	}
	return s.views(db, records)
}

// views joins a page of records with their actions and live instances.
func (s *PermissionService) views(db *gorm.DB, records *Page[models.UserPermission]) (*Page[PermissionView], error) {
	actionIDs := make([]uuid.UUID, 0, len(records.Results))
	instanceIDs := make([]string, 0)
	for _, r := range records.Results {
		actionIDs = append(actionIDs, r.ActionID)
		instanceIDs = append(instanceIDs, r.Instances...)
	}

	actions := make(map[uuid.UUID]*models.Action)
	if len(actionIDs) > 0 {
		var rows []models.Action
		if err := db.Where("id IN ?", actionIDs).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("load actions: %w", err)
		}
		for i := range rows {
			actions[rows[i].ID] = &rows[i]
		}
	}

	instances := make(map[string]models.Instance)
	if len(instanceIDs) > 0 {
		var rows []models.Instance
		if err := db.Where("id IN ?", instanceIDs).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("load instances: %w", err)
		}
		for _, inst := range rows {
			instances[inst.ID.String()] = inst
		}
	}

	out := &Page[PermissionView]{
		Total:    records.Total,
		Page:     records.Page,
		PageSize: records.PageSize,
		Results:  make([]PermissionView, 0, len(records.Results)),
	}
	for _, r := range records.Results {
		view := PermissionView{UserPermission: r, Action: actions[r.ActionID], InstanceDetails: make([]models.Instance, 0, len(r.Instances))}
		for _, id := range r.Instances {
			if inst, ok := instances[id]; ok {
				view.InstanceDetails = append(view.InstanceDetails, inst)
			}
		}
		out.Results = append(out.Results, view)
	}
	return out, nil
}
