package service

import (
	"context"
	"testing"

	"github.com/keyward-dev/keyward/internal/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplicationCreate_DuplicateAndAuthenticate(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.apps.Create(ctx, "root", CreateApplicationRequest{Code: "billing", Name: "Billing", Secret: "another-secret"})
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)

	app, err := env.apps.Authenticate(ctx, "billing", "billing-secret")
	require.NoError(t, err)
	assert.Equal(t, "billing", app.Code)

	_, err = env.apps.Authenticate(ctx, "billing", "wrong-secret")
	assert.Error(t, err)

	view, err := env.apps.Get(ctx, "billing")
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, view.Managers)
}

func TestApplicationCreate_UnknownManager(t *testing.T) {
	env := setup(t)

	_, err := env.apps.Create(context.Background(), "root", CreateApplicationRequest{
		Code:     "shipping",
		Name:     "Shipping",
		Secret:   "shipping-secret",
		Managers: []string{"mallory"},
	})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.apps.Get(context.Background(), "shipping")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplicationManagers(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	require.NoError(t, env.apps.AddManager(ctx, "root", "billing", "bob"))
	ok, err := rbac.IsManagerOf("billing", "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, env.apps.RemoveManager(ctx, "root", "billing", "bob"))
	ok, err = rbac.IsManagerOf("billing", "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, env.apps.AddManager(ctx, "root", "billing", "mallory"), ErrNotFound)
	assert.ErrorIs(t, env.apps.AddManager(ctx, "root", "shipping", "bob"), ErrNotFound)

	apps, err := env.apps.List(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, []string{"carol"}, apps[0].Managers)
}

func TestUserCreate(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.users.Create(ctx, "root", "alice", "password123", false)
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)

	_, err = env.users.Create(ctx, "root", "dave", "short", false)
	var invalid *ValidationError
	assert.ErrorAs(t, err, &invalid)

	_, err = env.users.Create(ctx, "root", "erin", "password123", true)
	require.NoError(t, err)
	admin, err := rbac.IsAdmin("erin")
	require.NoError(t, err)
	assert.True(t, admin)

	users, err := env.users.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 4)
}

func TestAuditList_NewestFirst(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	env.invoiceAction(t)

	page, err := NewAuditService(env.db).List(ctx, "", "", PageRequest{PageSize: 100})
	require.NoError(t, err)
	require.NotEmpty(t, page.Results)
	assert.Equal(t, "register_instances", page.Results[0].Action)

	page, err = NewAuditService(env.db).List(ctx, "carol", "", PageRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, "register_action", page.Results[0].Action)
}
