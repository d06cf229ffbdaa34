package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/keyward-dev/keyward/internal/audit"
	"github.com/keyward-dev/keyward/internal/models"
	"gorm.io/gorm"
)

// CatalogService manages actions and instances registered by applications.
type CatalogService struct {
	db          *gorm.DB
	managers    ManagerChecker
	invalidator SnapshotInvalidator
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(db *gorm.DB, managers ManagerChecker, invalidator SnapshotInvalidator) *CatalogService {
	return &CatalogService{db: db, managers: managers, invalidator: invalidator}
}

func (s *CatalogService) requireManager(appCode, username string) error {
	ok, err := s.managers.IsManagerOf(appCode, username)
	if err != nil {
		return fmt.Errorf("check manager: %w", err)
	}
	if !ok {
		return &PermissionDeniedError{Message: fmt.Sprintf("%s is not a manager of application %s", username, appCode)}
	}
	return nil
}

// RegisterAction creates an action under an application the actor manages.
func (s *CatalogService) RegisterAction(ctx context.Context, actor string, req RegisterActionRequest) (*models.Action, error) {
	if !IsIdentifier(req.Application) {
		return nil, &ValidationError{Message: "application must be a valid identifier"}
	}
	if !IsIdentifier(req.ActionID) {
		return nil, &ValidationError{Message: "action_id must be a valid identifier"}
	}
	if req.ResourceID != "" && !IsIdentifier(req.ResourceID) {
		return nil, &ValidationError{Message: "resource_id must be a valid identifier"}
	}
	if req.ActionName == "" {
		return nil, &ValidationError{Message: "action_name is required"}
	}

	db := s.db.WithContext(ctx)
	if err := db.Where("code = ?", req.Application).First(&models.Application{}).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load application: %w", err)
	}
	if err := s.requireManager(req.Application, actor); err != nil {
		return nil, err
	}

	action := models.Action{
		Application:  req.Application,
		ActionID:     req.ActionID,
		ActionName:   req.ActionName,
		ResourceID:   req.ResourceID,
		ResourceName: req.ResourceName,
		Description:  req.Description,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Action{}).
			Where("application = ? AND action_id = ?", req.Application, req.ActionID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &ConflictError{Message: fmt.Sprintf("action %s already exists in application %s", req.ActionID, req.Application)}
		}

		// A soft-deleted row would still hold the unique key.
		if err := tx.Unscoped().
			Where("application = ? AND action_id = ? AND deleted_at IS NOT NULL", req.Application, req.ActionID).
			Delete(&models.Action{}).Error; err != nil {
			return err
		}

		if err := tx.Create(&action).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &ConflictError{Message: fmt.Sprintf("action %s already exists in application %s", req.ActionID, req.Application)}
			}
			return err
		}

		return audit.LogAction(tx, actor, audit.ActionRegisterAction, "action:"+action.ID.String(), map[string]interface{}{
			"application": action.Application,
			"action_id":   action.ActionID,
		})
	})
	if err != nil {
		return nil, wrapTx("register action", err)
	}

	slog.Info("Action registered", "application", action.Application, "action_id", action.ActionID, "id", action.ID)
	return &action, nil
}

// GetAction returns a live action by ID.
func (s *CatalogService) GetAction(ctx context.Context, id string) (*models.Action, error) {
	actionID, err := parsePathID(id)
	if err != nil {
		return nil, err
	}
	return loadActionByID(s.db.WithContext(ctx), actionID)
}

// FindAction returns the live action with the given action_id in an application.
func (s *CatalogService) FindAction(ctx context.Context, application, actionID string) (*models.Action, error) {
	var action models.Action
	err := s.db.WithContext(ctx).Where("application = ? AND action_id = ?", application, actionID).First(&action).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load action: %w", err)
	}
	return &action, nil
}

// UpdateAction changes the descriptive fields of an action.
func (s *CatalogService) UpdateAction(ctx context.Context, actor, id string, req UpdateActionRequest) (*models.Action, error) {
	action, err := s.GetAction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireManager(action.Application, actor); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.ActionName != nil {
		if *req.ActionName == "" {
			return nil, &ValidationError{Message: "action_name cannot be empty"}
		}
		updates["action_name"] = *req.ActionName
	}
	if req.ResourceID != nil {
		if *req.ResourceID != "" && !IsIdentifier(*req.ResourceID) {
			return nil, &ValidationError{Message: "resource_id must be a valid identifier"}
		}
		updates["resource_id"] = *req.ResourceID
	}
	if req.ResourceName != nil {
		updates["resource_name"] = *req.ResourceName
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if len(updates) == 0 {
		return action, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(action).Updates(updates).Error; err != nil {
			return err
		}
		return audit.LogAction(tx, actor, audit.ActionUpdateAction, "action:"+action.ID.String(), updates)
	})
	if err != nil {
		return nil, wrapTx("update action", err)
	}

	return loadActionByID(s.db.WithContext(ctx), action.ID)
}

// DeleteAction soft-deletes an action and removes every permission record and
// snapshot row referencing it.
func (s *CatalogService) DeleteAction(ctx context.Context, actor, id string) error {
	action, err := s.GetAction(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireManager(action.Application, actor); err != nil {
		return err
	}

	var affected []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.UserPermissionSnapshot{}).
			Where("action_id = ?", action.ID).
			Distinct().Pluck("username", &affected).Error; err != nil {
			return err
		}
		if err := tx.Where("action_id = ?", action.ID).Delete(&models.UserPermission{}).Error; err != nil {
			return err
		}
		if err := tx.Where("action_id = ?", action.ID).Delete(&models.UserPermissionSnapshot{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(action).Error; err != nil {
			return err
		}
		return audit.LogAction(tx, actor, audit.ActionDeleteAction, "action:"+action.ID.String(), map[string]interface{}{
			"application": action.Application,
			"action_id":   action.ActionID,
		})
	})
	if err != nil {
		return wrapTx("delete action", err)
	}

	invalidate(ctx, s.invalidator, affected)
	slog.Info("Action deleted", "application", action.Application, "action_id", action.ActionID, "snapshot_users", len(affected))
	return nil
}

// ListActions returns one page of an application's actions ordered by action_id.
func (s *CatalogService) ListActions(ctx context.Context, application string, page PageRequest) (*Page[models.Action], error) {
	query := s.db.WithContext(ctx).Model(&models.Action{}).Where("application = ?", application)
	return paginate[models.Action](query, page, "action_id ASC")
}

// ListAllActions returns every action of an application.
func (s *CatalogService) ListAllActions(ctx context.Context, application string) ([]models.Action, error) {
	actions := make([]models.Action, 0)
	if err := s.db.WithContext(ctx).Where("application = ?", application).Order("action_id ASC").Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	return actions, nil
}

// RegisterInstances upserts instances into the scope of an action owned by the
// calling application. The batch commits entirely or not at all.
func (s *CatalogService) RegisterInstances(ctx context.Context, appCode, actionID string, rows []InstanceInput) ([]models.Instance, error) {
	id, err := parseBodyID("action_id", actionID)
	if err != nil {
		return nil, err
	}
	action, err := loadActionByID(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if action.Application != appCode {
		return nil, &PermissionDeniedError{Message: fmt.Sprintf("action %s does not belong to application %s", action.ActionID, appCode)}
	}

	// Validate the whole batch before touching storage.
	rowIDs := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		if row.ID != "" {
			if rowIDs[i], err = parseBodyID("id", row.ID); err != nil {
				return nil, err
			}
		}
		if !IsIdentifier(row.InstanceID) {
			return nil, &ValidationError{Message: fmt.Sprintf("row %d: instance_id must be a valid identifier", i)}
		}
		if row.InstanceName == "" {
			return nil, &ValidationError{Message: fmt.Sprintf("row %d: instance_name is required", i)}
		}
	}

	results := make([]models.Instance, len(rows))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// New instances keyed by instance_id; a repeated id within one batch
		// collapses into a single row and the last name wins.
		fresh := make(map[string]*models.Instance)
		freshOrder := make([]string, 0)
		freshRows := make(map[int]string)

		for i, row := range rows {
			if row.ID != "" {
				var inst models.Instance
				err := tx.Where("id = ? AND application = ? AND resource_id = ?", rowIDs[i], action.Application, action.ResourceID).
					First(&inst).Error
				if err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return fmt.Errorf("instance %s: %w", row.ID, ErrNotFound)
					}
					return err
				}
				if err := tx.Model(&inst).Updates(map[string]interface{}{
					"instance_id":   row.InstanceID,
					"instance_name": row.InstanceName,
				}).Error; err != nil {
					if errors.Is(err, gorm.ErrDuplicatedKey) {
						return &ConflictError{Message: fmt.Sprintf("instance_id %s already registered in this scope", row.InstanceID)}
					}
					return err
				}
				inst.InstanceID, inst.InstanceName = row.InstanceID, row.InstanceName
				results[i] = inst
				continue
			}

			if inst, ok := fresh[row.InstanceID]; ok {
				inst.InstanceName = row.InstanceName
				freshRows[i] = row.InstanceID
				continue
			}

			var inst models.Instance
			err := tx.Unscoped().
				Where("application = ? AND resource_id = ? AND instance_id = ?", action.Application, action.ResourceID, row.InstanceID).
				First(&inst).Error
			switch {
			case err == nil:
				if err := tx.Unscoped().Model(&inst).Updates(map[string]interface{}{
					"instance_name": row.InstanceName,
					"deleted_at":    nil,
				}).Error; err != nil {
					return err
				}
				inst.InstanceName = row.InstanceName
				inst.DeletedAt = gorm.DeletedAt{}
				results[i] = inst
			case errors.Is(err, gorm.ErrRecordNotFound):
				fresh[row.InstanceID] = &models.Instance{
					Application:  action.Application,
					ResourceID:   action.ResourceID,
					InstanceID:   row.InstanceID,
					InstanceName: row.InstanceName,
				}
				freshOrder = append(freshOrder, row.InstanceID)
				freshRows[i] = row.InstanceID
			default:
				return err
			}
		}

		batch := make([]models.Instance, 0, len(freshOrder))
		for _, instanceID := range freshOrder {
			batch = append(batch, *fresh[instanceID])
		}
		if len(batch) > 0 {
			if err := tx.CreateInBatches(&batch, 100).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return &ConflictError{Message: "instance_id already registered in this scope"}
				}
				return err
			}
		}
		byInstanceID := make(map[string]models.Instance, len(batch))
		for _, inst := range batch {
			byInstanceID[inst.InstanceID] = inst
		}
		for i, instanceID := range freshRows {
			results[i] = byInstanceID[instanceID]
		}

		return audit.LogAction(tx, audit.AppActor(appCode), audit.ActionRegisterInstances, "action:"+action.ID.String(), map[string]interface{}{
			"rows":    len(rows),
			"created": len(batch),
		})
	})
	if err != nil {
		return nil, wrapTx("register instances", err)
	}

	slog.Info("Instances registered", "application", appCode, "action", action.ActionID, "rows", len(rows))
	return results, nil
}

// UpdateInstance renames an instance owned by the calling application.
func (s *CatalogService) UpdateInstance(ctx context.Context, appCode, id, instanceName string) (*models.Instance, error) {
	if instanceName == "" {
		return nil, &ValidationError{Message: "instance_name is required"}
	}
	inst, err := s.ownedInstance(ctx, appCode, id)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(inst).Update("instance_name", instanceName).Error; err != nil {
			return err
		}
		return audit.LogAction(tx, audit.AppActor(appCode), audit.ActionUpdateInstance, "instance:"+inst.ID.String(), map[string]interface{}{
			"instance_name": instanceName,
		})
	})
	if err != nil {
		return nil, wrapTx("update instance", err)
	}
	inst.InstanceName = instanceName
	return inst, nil
}

// DeleteInstance soft-deletes an instance owned by the calling application.
// Granted ids stay in permission records and simply stop resolving.
func (s *CatalogService) DeleteInstance(ctx context.Context, appCode, id string) error {
	inst, err := s.ownedInstance(ctx, appCode, id)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(inst).Error; err != nil {
			return err
		}
		return audit.LogAction(tx, audit.AppActor(appCode), audit.ActionDeleteInstance, "instance:"+inst.ID.String(), map[string]interface{}{
			"instance_id": inst.InstanceID,
		})
	})
	return wrapTx("delete instance", err)
}

func (s *CatalogService) ownedInstance(ctx context.Context, appCode, id string) (*models.Instance, error) {
	instID, err := parsePathID(id)
	if err != nil {
		return nil, err
	}
	var inst models.Instance
	if err := s.db.WithContext(ctx).Where("id = ?", instID).First(&inst).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load instance: %w", err)
	}
	if inst.Application != appCode {
		return nil, &PermissionDeniedError{Message: fmt.Sprintf("instance does not belong to application %s", appCode)}
	}
	return &inst, nil
}

// instanceScope returns a query over the live instances sharing the action's scope.
func (s *CatalogService) instanceScope(ctx context.Context, actionID string) (*gorm.DB, error) {
	id, err := parseBodyID("action_id", actionID)
	if err != nil {
		return nil, err
	}
	action, err := loadActionByID(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	return s.db.WithContext(ctx).Model(&models.Instance{}).
		Where("application = ? AND resource_id = ?", action.Application, action.ResourceID), nil
}

// ListInstances returns one page of the instances an action can be granted on.
func (s *CatalogService) ListInstances(ctx context.Context, actionID string, page PageRequest) (*Page[models.Instance], error) {
	query, err := s.instanceScope(ctx, actionID)
	if err != nil {
		return nil, err
	}
	return paginate[models.Instance](query, page, "instance_id ASC")
}

// ListAllInstances returns every instance an action can be granted on.
func (s *CatalogService) ListAllInstances(ctx context.Context, actionID string) ([]models.Instance, error) {
	query, err := s.instanceScope(ctx, actionID)
	if err != nil {
		return nil, err
	}
	instances := make([]models.Instance, 0)
	if err := query.Order("instance_id ASC").Find(&instances).Error; err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return instances, nil
}

// wrapTx passes service errors through untouched and wraps storage errors.
func wrapTx(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *ValidationError
		ce *ConflictError
		pe *PermissionDeniedError
		se *InvalidStateError
	)
	if errors.Is(err, ErrNotFound) || errors.As(err, &ve) || errors.As(err, &ce) || errors.As(err, &pe) || errors.As(err, &se) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// invalidate drops cached check state after a commit. Failures only log:
// cache entries also expire on their own.
func invalidate(ctx context.Context, inv SnapshotInvalidator, usernames []string) {
	if inv == nil || len(usernames) == 0 {
		return
	}
	if err := inv.Invalidate(ctx, usernames...); err != nil {
		slog.Warn("Failed to invalidate check cache", "usernames", usernames, "error", err)
	}
}
