package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/keyward-dev/keyward/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func loadSnapshot(t *testing.T, env *testEnv, username string, actionID uuid.UUID) *models.UserPermissionSnapshot {
	t.Helper()
	var s models.UserPermissionSnapshot
	err := env.db.Where("username = ? AND action_id = ?", username, actionID).First(&s).Error
	if err != nil {
		return nil
	}
	return &s
}

func TestApply_FiltersInstancesAndOverwrites(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	action, instances := env.invoiceAction(t)

	p, err := env.permissions.Apply(ctx, "alice", ApplyRequest{
		ActionID: action.ID.String(),
		Instances: []string{
			instances[1].ID.String(),
			"garbage",
			uuid.NewString(),
			instances[0].ID.String(),
			instances[1].ID.String(),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.PermissionDealing, p.Status)
	assert.Equal(t, []string{instances[1].ID.String(), instances[0].ID.String()}, []string(p.Instances))

	again, err := env.permissions.Apply(ctx, "alice", ApplyRequest{ActionID: action.ID.String(), AllInstances: true})
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
	assert.Empty(t, again.Instances)
	assert.True(t, again.AllInstances)

	var count int64
	require.NoError(t, env.db.Model(&models.UserPermission{}).Where("username = ?", "alice").Count(&count).Error)
	assert.EqualValues(t, 1, count)
	assert.Nil(t, loadSnapshot(t, env, "alice", action.ID))
}

func TestApply_Errors(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.permissions.Apply(ctx, "alice", ApplyRequest{ActionID: "nope"})
	var invalid *ValidationError
	assert.ErrorAs(t, err, &invalid)

	_, err = env.permissions.Apply(ctx, "alice", ApplyRequest{ActionID: uuid.NewString()})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecide_AllowThenRepeat(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	action, instances := env.invoiceAction(t)

	p, err := env.permissions.Apply(ctx, "alice", ApplyRequest{
		ActionID:  action.ID.String(),
		Instances: []string{instances[0].ID.String()},
	})
	require.NoError(t, err)

	require.NoError(t, env.permissions.Decide(ctx, "carol", p.ID.String(), models.PermissionAllowed))
	snap := loadSnapshot(t, env, "alice", action.ID)
	require.NotNil(t, snap)
	assert.Equal(t, []string{instances[0].ID.String()}, []string(snap.Instances))
	assert.Contains(t, env.invalidator.seen(), "alice")

	err = env.permissions.Decide(ctx, "carol", p.ID.String(), models.PermissionAllowed)
	var state *InvalidStateError
	assert.ErrorAs(t, err, &state)

	after := loadSnapshot(t, env, "alice", action.ID)
	require.NotNil(t, after)
	assert.Equal(t, snap.Instances, after.Instances)
	assert.Equal(t, snap.UpdateAt, after.UpdateAt)
}

func TestDecide_ConcurrentOnlyOneWins(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	action, _ := env.invoiceAction(t)

	p, err := env.permissions.Apply(ctx, "alice", ApplyRequest{ActionID: action.ID.String(), AllInstances: true})
	require.NoError(t, err)

	// SQLite has a single writer; queue transactions on one connection.
	sqlDB, err := env.db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	const callers = 4
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = env.permissions.Decide(ctx, "carol", p.ID.String(), models.PermissionAllowed)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		var state *InvalidStateError
		assert.ErrorAs(t, err, &state)
	}
	assert.Equal(t, 1, wins)
}

func TestDecide_DenyKeepsEarlierSnapshot(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	action, instances := env.invoiceAction(t)

	p, err := env.permissions.Apply(ctx, "alice", ApplyRequest{
		ActionID:  action.ID.String(),
		Instances: []string{instances[0].ID.String()},
	})
	require.NoError(t, err)
	require.NoError(t, env.permissions.Decide(ctx, "carol", p.ID.String(), models.PermissionAllowed))

	// Re-apply for more, then get denied.
	p, err = env.permissions.Apply(ctx, "alice", ApplyRequest{
		ActionID:  action.ID.String(),
		Instances: []string{instances[0].ID.String(), instances[1].ID.String()},
	})
	require.NoError(t, err)
	require.NoError(t, env.permissions.Decide(ctx, "carol", p.ID.String(), models.PermissionDenied))

	var count int64
	require.NoError(t, env.db.Model(&models.UserPermission{}).Where("id = ?", p.ID).Count(&count).Error)
	assert.Zero(t, count)

	snap := loadSnapshot(t, env, "alice", action.ID)
	require.NotNil(t, snap)
	assert.Equal(t, []string{instances[0].ID.String()}, []string(snap.Instances))

	var audits int64
	require.NoError(t, env.db.Model(&models.AuditLog{}).Where("action = ?", "deny_permission").Count(&audits).Error)
	assert.EqualValues(t, 1, audits)
}

func TestDecide_Errors(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	action, _ := env.invoiceAction(t)

	p, err := env.permissions.Apply(ctx, "alice", ApplyRequest{ActionID: action.ID.String()})
	require.NoError(t, err)

	err = env.permissions.Decide(ctx, "bob", p.ID.String(), models.PermissionAllowed)
	var denied *PermissionDeniedError
	assert.ErrorAs(t, err, &denied)

	err = env.permissions.Decide(ctx, "carol", p.ID.String(), models.PermissionStatus("maybe"))
	var invalid *ValidationError
	assert.ErrorAs(t, err, &invalid)

	err = env.permissions.Decide(ctx, "carol", uuid.NewString(), models.PermissionAllowed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuthGrant_UnionsSnapshot(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	action, instances := env.invoiceAction(t)
	i1, i2 := instances[0].ID.String(), instances[1].ID.String()

	_, err := env.permissions.AuthGrant(ctx, "billing", AuthGrantRequest{Username: "alice", ActionID: action.ID.String(), Instances: []string{i1}})
	require.NoError(t, err)
	p, err := env.permissions.AuthGrant(ctx, "billing", AuthGrantRequest{Username: "alice", ActionID: action.ID.String(), Instances: []string{i2}})
	require.NoError(t, err)

	assert.Equal(t, models.PermissionAllowed, p.Status)
	assert.Equal(t, []string{i1, i2}, []string(p.Instances))

	snap := loadSnapshot(t, env, "alice", action.ID)
	require.NotNil(t, snap)
	assert.Equal(t, []string{i1, i2}, []string(snap.Instances))
	assert.False(t, snap.AllInstances)
}

func TestAuthGrant_MergesIntoPendingRecord(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	action, instances := env.invoiceAction(t)

	pending, err := env.permissions.Apply(ctx, "bob", ApplyRequest{ActionID: action.ID.String(), Instances: []string{instances[0].ID.String()}})
	require.NoError(t, err)

	p, err := env.permissions.AuthGrant(ctx, "billing", AuthGrantRequest{Username: "bob", ActionID: action.ID.String(), AllInstances: true})
	require.NoError(t, err)
	assert.Equal(t, pending.ID, p.ID)
	assert.True(t, p.AllInstances)
	assert.Equal(t, []string{instances[0].ID.String()}, []string(p.Instances))

	snap := loadSnapshot(t, env, "bob", action.ID)
	require.NotNil(t, snap)
	assert.True(t, snap.AllInstances)
	assert.Equal(t, []string{instances[0].ID.String()}, []string(snap.Instances))
}

func TestAuthGrant_CarriesPendingInstancesIntoExistingSnapshot(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	action, instances := env.invoiceAction(t)
	i1, i2 := instances[0].ID.String(), instances[1].ID.String()

	_, err := env.permissions.AuthGrant(ctx, "billing", AuthGrantRequest{Username: "alice", ActionID: action.ID.String()})
	require.NoError(t, err)
	snap := loadSnapshot(t, env, "alice", action.ID)
	require.NotNil(t, snap)
	assert.Empty(t, snap.Instances)

	// The pending request for i1 is folded into the next grant.
	_, err = env.permissions.Apply(ctx, "alice", ApplyRequest{ActionID: action.ID.String(), Instances: []string{i1}})
	require.NoError(t, err)
	p, err := env.permissions.AuthGrant(ctx, "billing", AuthGrantRequest{Username: "alice", ActionID: action.ID.String(), Instances: []string{i2}})
	require.NoError(t, err)
	assert.Equal(t, models.PermissionAllowed, p.Status)
	assert.Equal(t, []string{i1, i2}, []string(p.Instances))

	snap = loadSnapshot(t, env, "alice", action.ID)
	require.NotNil(t, snap)
	assert.Equal(t, []string{i1, i2}, []string(snap.Instances))
	assert.Contains(t, env.invalidator.seen(), "alice")
}

func TestCreateRecord_LostRace(t *testing.T) {
	env := setup(t)
	action, _ := env.invoiceAction(t)

	first := models.UserPermission{Username: "alice", ActionID: action.ID, Status: models.PermissionDealing}
	require.NoError(t, createRecord(env.db, &first))

	second := models.UserPermission{Username: "alice", ActionID: action.ID, Status: models.PermissionAllowed}
	assert.ErrorIs(t, createRecord(env.db, &second), errRecordRaced)

	var count int64
	require.NoError(t, env.db.Model(&models.UserPermission{}).Where("username = ?", "alice").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRetryRaced(t *testing.T) {
	calls := 0
	err := retryRaced("test", func() error {
		calls++
		if calls == 1 {
			return errRecordRaced
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = retryRaced("test", func() error {
		calls++
		return errRecordRaced
	})
	assert.ErrorIs(t, err, errRecordRaced)
	assert.Equal(t, 2, calls, "retried only once")

	calls = 0
	boom := errors.New("boom")
	err = retryRaced("test", func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

// insertCompetingRecord makes the first record insert for username lose the
// unique index to another row for the same action.
func insertCompetingRecord(t *testing.T, env *testEnv, username string, actionID uuid.UUID) *int {
	t.Helper()
	attempts := 0
	err := env.db.Callback().Create().Before("gorm:create").Register("keyward:competing_record", func(tx *gorm.DB) {
		p, ok := tx.Statement.Dest.(*models.UserPermission)
		if !ok || p.Username != username {
			return
		}
		attempts++
		if attempts > 1 {
			return
		}
		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO user_permissions (id, username, action_id, instances, all_instances, status, update_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			uuid.NewString(), username, actionID.String(), "[]", false, string(models.PermissionDealing), time.Now().UTC(),
		)
	})
	require.NoError(t, err)
	return &attempts
}

func TestApply_RetriesLostCreateRace(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	action, instances := env.invoiceAction(t)
	attempts := insertCompetingRecord(t, env, "alice", action.ID)

	p, err := env.permissions.Apply(ctx, "alice", ApplyRequest{ActionID: action.ID.String(), Instances: []string{instances[0].ID.String()}})
	require.NoError(t, err)
	assert.Equal(t, 2, *attempts)
	assert.Equal(t, models.PermissionDealing, p.Status)

	var records []models.UserPermission
	require.NoError(t, env.db.Where("username = ? AND action_id = ?", "alice", action.ID).Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, p.ID, records[0].ID)
	assert.Equal(t, []string{instances[0].ID.String()}, []string(records[0].Instances))
}

func TestAuthGrant_RetriesLostCreateRace(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	action, instances := env.invoiceAction(t)
	attempts := insertCompetingRecord(t, env, "bob", action.ID)

	p, err := env.permissions.AuthGrant(ctx, "billing", AuthGrantRequest{Username: "bob", ActionID: action.ID.String(), Instances: []string{instances[1].ID.String()}})
	require.NoError(t, err)
	assert.Equal(t, 2, *attempts)
	assert.Equal(t, models.PermissionAllowed, p.Status)

	snap := loadSnapshot(t, env, "bob", action.ID)
	require.NotNil(t, snap)
	assert.Equal(t, []string{instances[1].ID.String()}, []string(snap.Instances))
}

func TestAuthGrant_Errors(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	action, _ := env.invoiceAction(t)

	_, err := env.permissions.AuthGrant(ctx, "shipping", AuthGrantRequest{Username: "alice", ActionID: action.ID.String()})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.permissions.AuthGrant(ctx, "billing", AuthGrantRequest{Username: "mallory", ActionID: action.ID.String()})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate_OwnerOnlyAndBackToDealing(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	action, instances := env.invoiceAction(t)

	p, err := env.permissions.Apply(ctx, "alice", ApplyRequest{ActionID: action.ID.String()})
	require.NoError(t, err)
	require.NoError(t, env.permissions.Decide(ctx, "carol", p.ID.String(), models.PermissionAllowed))

	list := []string{instances[1].ID.String()}
	_, err = env.permissions.Update(ctx, "bob", p.ID.String(), UpdatePermissionRequest{Instances: &list})
	var denied *PermissionDeniedError
	assert.ErrorAs(t, err, &denied)

	updated, err := env.permissions.Update(ctx, "alice", p.ID.String(), UpdatePermissionRequest{Instances: &list})
	require.NoError(t, err)
	assert.Equal(t, models.PermissionDealing, updated.Status)
	assert.Equal(t, list, []string(updated.Instances))

	snap := loadSnapshot(t, env, "alice", action.ID)
	require.NotNil(t, snap)
	assert.Empty(t, snap.Instances)
}

func TestSelfDelete_KeepsSnapshot(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	action, _ := env.invoiceAction(t)

	p, err := env.permissions.AuthGrant(ctx, "billing", AuthGrantRequest{Username: "alice", ActionID: action.ID.String(), AllInstances: true})
	require.NoError(t, err)

	err = env.permissions.SelfDelete(ctx, "bob", p.ID.String())
	var denied *PermissionDeniedError
	assert.ErrorAs(t, err, &denied)

	require.NoError(t, env.permissions.SelfDelete(ctx, "alice", p.ID.String()))
	assert.ErrorIs(t, env.permissions.SelfDelete(ctx, "alice", p.ID.String()), ErrNotFound)
	assert.NotNil(t, loadSnapshot(t, env, "alice", action.ID))
}

func TestListForManager_PendingFirst(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	action, instances := env.invoiceAction(t)

	_, err := env.permissions.AuthGrant(ctx, "billing", AuthGrantRequest{Username: "bob", ActionID: action.ID.String(), AllInstances: true})
	require.NoError(t, err)
	_, err = env.permissions.Apply(ctx, "alice", ApplyRequest{ActionID: action.ID.String(), Instances: []string{instances[0].ID.String()}})
	require.NoError(t, err)

	page, err := env.permissions.ListForManager(ctx, "carol", "billing", "", PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Results, 2)
	assert.Equal(t, "alice", page.Results[0].Username)
	assert.Equal(t, models.PermissionDealing, page.Results[0].Status)
	require.NotNil(t, page.Results[0].Action)
	assert.Equal(t, "view_invoice", page.Results[0].Action.ActionID)
	require.Len(t, page.Results[0].InstanceDetails, 1)
	assert.Equal(t, "invoice-42", page.Results[0].InstanceDetails[0].InstanceID)

	page, err = env.permissions.ListForManager(ctx, "carol", "billing", models.PermissionAllowed, PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "bob", page.Results[0].Username)

	_, err = env.permissions.ListForManager(ctx, "alice", "billing", "", PageRequest{})
	var denied *PermissionDeniedError
	assert.ErrorAs(t, err, &denied)
}

func TestListMine_ScopedToApplication(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	action, _ := env.invoiceAction(t)

	_, err := env.permissions.Apply(ctx, "alice", ApplyRequest{ActionID: action.ID.String(), AllInstances: true})
	require.NoError(t, err)

	page, err := env.permissions.ListMine(ctx, "alice", "billing", PageRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)

	page, err = env.permissions.ListMine(ctx, "alice", "shipping", PageRequest{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.NotNil(t, page.Results)
}
