package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gestock/gestock-api/internal/keycloak"
	"github.com/gestock/gestock-api/internal/models"
)

func newUserService(t *testing.T, fake *fakeDirectory) *UserService {
	t.Helper()
	return NewUserService(newTestDB(t), fake, nil, zap.NewNop())
}

func TestProvisionCreatesNewUser(t *testing.T) {
	svc := newUserService(t, newFakeDirectory())
	ctx := context.Background()

	user, err := svc.Provision(ctx, "sub-1", "Alice", "Martin", "alice@example.com", models.RoleAuditor)
	require.NoError(t, err)

	assert.Equal(t, "sub-1", user.ID)
	assert.Equal(t, models.RoleAuditor, user.Role)
	assert.True(t, user.Active)

	stored, err := svc.GetUser(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", stored.Email)
}

func TestProvisionIdenticalClaimsIsNoOp(t *testing.T) {
	svc := newUserService(t, newFakeDirectory())
	ctx := context.Background()

	_, err := svc.Provision(ctx, "sub-1", "Alice", "Martin", "alice@example.com", models.RoleAuditor)
	require.NoError(t, err)

	before, err := svc.GetUser(ctx, "sub-1")
	require.NoError(t, err)

	_, err = svc.Provision(ctx, "sub-1", "Alice", "Martin", "alice@example.com", models.RoleAuditor)
	require.NoError(t, err)

	after, err := svc.GetUser(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)

	var count int64
	require.NoError(t, svc.db.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestProvisionEmailFallbackKeepsRow(t *testing.T) {
	svc := newUserService(t, newFakeDirectory())
	ctx := context.Background()

	_, err := svc.Provision(ctx, "old-sub", "Alice", "Martin", "alice@example.com", models.RoleAuditor)
	require.NoError(t, err)

	// Same mailbox behind a recreated IdP account: the row converges, the
	// original id stays.
	user, err := svc.Provision(ctx, "new-sub", "Alice", "Durand", "alice@example.com", models.RoleAuditor)
	require.NoError(t, err)

	assert.Equal(t, "old-sub", user.ID)
	assert.Equal(t, "Durand", user.LastName)

	var count int64
	require.NoError(t, svc.db.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestProvisionEmailChangeConvergesOnSubject(t *testing.T) {
	svc := newUserService(t, newFakeDirectory())
	ctx := context.Background()

	_, err := svc.Provision(ctx, "sub-1", "Alice", "Martin", "old@example.com", models.RoleAuditor)
	require.NoError(t, err)

	// Same subject behind a changed mailbox: the id fallback converges the
	// row instead of colliding on the primary key.
	user, err := svc.Provision(ctx, "sub-1", "Alice", "Martin", "new@example.com", models.RoleAuditor)
	require.NoError(t, err)

	assert.Equal(t, "sub-1", user.ID)
	assert.Equal(t, "new@example.com", user.Email)

	var count int64
	require.NoError(t, svc.db.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestProvisionUpdatesChangedRole(t *testing.T) {
	svc := newUserService(t, newFakeDirectory())
	ctx := context.Background()

	_, err := svc.Provision(ctx, "sub-1", "Alice", "Martin", "alice@example.com", models.DefaultRole)
	require.NoError(t, err)

	user, err := svc.Provision(ctx, "sub-1", "Alice", "Martin", "alice@example.com", models.RoleLogisticsManager)
	require.NoError(t, err)
	assert.Equal(t, models.RoleLogisticsManager, user.Role)
}

func TestListDirectoryAnnotatesRoles(t *testing.T) {
	fake := newFakeDirectory()
	fake.remoteUsers = []keycloak.UserRepresentation{
		{ID: "sub-1", Username: "alice", Email: "alice@example.com", Enabled: true},
		{ID: "new-sub", Username: "bob", Email: "bob@example.com", Enabled: true},
		{ID: "sub-3", Username: "carol", Email: "carol@example.com", Enabled: false},
	}

	svc := newUserService(t, fake)
	ctx := context.Background()

	_, err := svc.Provision(ctx, "sub-1", "Alice", "Martin", "alice@example.com", models.RoleAuditor)
	require.NoError(t, err)
	// Bob's local row carries a stale subject id; the email fallback still
	// annotates him.
	_, err = svc.Provision(ctx, "old-sub", "Bob", "Durand", "bob@example.com", models.RoleLogisticsManager)
	require.NoError(t, err)

	directory, err := svc.ListDirectory(ctx)
	require.NoError(t, err)
	require.Len(t, directory, 3)

	byUsername := make(map[string]models.DirectoryUser, len(directory))
	for _, d := range directory {
		byUsername[d.Username] = d
	}

	assert.Equal(t, "AUDITOR", byUsername["alice"].Role)
	assert.Equal(t, "LOGISTICS_MANAGER", byUsername["bob"].Role)
	assert.Equal(t, models.NoRole, byUsername["carol"].Role)
}

func TestCreateUserAssignsRoleAndProvisions(t *testing.T) {
	fake := newFakeDirectory()
	svc := newUserService(t, fake)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, &models.CreateUserRequest{
		Username:  "dave",
		Email:     "dave@example.com",
		FirstName: "Dave",
		LastName:  "Petit",
		Password:  "s3cretpass",
		Role:      "Magasinier",
	})
	require.NoError(t, err)

	assert.Equal(t, "kc-new-id", created.ID)
	assert.Equal(t, "WAREHOUSE_OPERATOR", created.Role)

	require.Len(t, fake.created, 1)
	assert.Equal(t, "dave", fake.created[0].Username)
	// The business role never travels in the creation payload.
	require.Len(t, fake.created[0].Credentials, 1)
	assert.Equal(t, "password", fake.created[0].Credentials[0].Type)

	assert.Equal(t, []string{"kc-new-id:Magasinier"}, fake.assigned)

	local, err := svc.GetUser(ctx, "kc-new-id")
	require.NoError(t, err)
	assert.Equal(t, models.RoleWarehouseOperator, local.Role)
	assert.True(t, local.Active)
}

func TestCreateUserUnknownRoleFallsBackToDefault(t *testing.T) {
	fake := newFakeDirectory()
	svc := newUserService(t, fake)

	created, err := svc.CreateUser(context.Background(), &models.CreateUserRequest{
		Username: "eve",
		Email:    "eve@example.com",
		Role:     "SUPER_USER",
	})
	require.NoError(t, err)
	assert.Equal(t, string(models.DefaultRole), created.Role)
	assert.Equal(t, []string{"kc-new-id:Magasinier"}, fake.assigned)
}

func TestCreateUserConflictContinuesWithExistingAccount(t *testing.T) {
	fake := newFakeDirectory()
	fake.createErr = keycloak.ErrConflict
	fake.remoteUsers = []keycloak.UserRepresentation{
		{ID: "existing-id", Username: "dave", Email: "dave@example.com", Enabled: true},
	}

	svc := newUserService(t, fake)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, &models.CreateUserRequest{
		Username: "dave",
		Email:    "dave@example.com",
		Role:     "Auditeur",
	})
	require.NoError(t, err)
	assert.Equal(t, "existing-id", created.ID)

	local, err := svc.GetUser(ctx, "existing-id")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAuditor, local.Role)
}

func TestCreateUserConflictUnresolvableFails(t *testing.T) {
	fake := newFakeDirectory()
	fake.createErr = keycloak.ErrConflict

	svc := newUserService(t, fake)

	_, err := svc.CreateUser(context.Background(), &models.CreateUserRequest{
		Username: "ghost",
		Email:    "ghost@example.com",
	})
	require.Error(t, err)
	assert.True(t, keycloak.IsConflict(err))
}

func TestCreateUserRoleAssignmentFailureIsNotFatal(t *testing.T) {
	fake := newFakeDirectory()
	fake.assignErr = keycloak.ErrRoleNotFound

	svc := newUserService(t, fake)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, &models.CreateUserRequest{
		Username: "frank",
		Email:    "frank@example.com",
		Role:     "Auditeur",
	})
	require.NoError(t, err)

	// The local record still carries the requested role.
	local, err := svc.GetUser(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAuditor, local.Role)
}

func TestSetEnabledProtectsAdministrators(t *testing.T) {
	fake := newFakeDirectory()
	svc := newUserService(t, fake)
	ctx := context.Background()

	_, err := svc.Provision(ctx, "admin-1", "Root", "Admin", "root@example.com", models.RoleAdministrator)
	require.NoError(t, err)

	err = svc.SetEnabled(ctx, "admin-1", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProtectedRole))
	assert.Empty(t, fake.enabledCalls)
}

func TestSetEnabledMirrorsLocally(t *testing.T) {
	fake := newFakeDirectory()
	svc := newUserService(t, fake)
	ctx := context.Background()

	_, err := svc.Provision(ctx, "sub-1", "Alice", "Martin", "alice@example.com", models.RoleAuditor)
	require.NoError(t, err)

	require.NoError(t, svc.SetEnabled(ctx, "sub-1", false))
	assert.Equal(t, []string{"sub-1:false"}, fake.enabledCalls)

	local, err := svc.GetUser(ctx, "sub-1")
	require.NoError(t, err)
	assert.False(t, local.Active)
}

func TestSetEnabledToleratesMissingLocalRow(t *testing.T) {
	fake := newFakeDirectory()
	svc := newUserService(t, fake)

	require.NoError(t, svc.SetEnabled(context.Background(), "remote-only", true))
	assert.Equal(t, []string{"remote-only:true"}, fake.enabledCalls)
}

func TestDeactivateKeepsRow(t *testing.T) {
	svc := newUserService(t, newFakeDirectory())
	ctx := context.Background()

	_, err := svc.Provision(ctx, "sub-1", "Alice", "Martin", "alice@example.com", models.RoleAuditor)
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, "sub-1"))

	local, err := svc.GetUser(ctx, "sub-1")
	require.NoError(t, err)
	assert.False(t, local.Active)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestDeleteRemovesBothSides(t *testing.T) {
	fake := newFakeDirectory()
	svc := newUserService(t, fake)
	ctx := context.Background()

	_, err := svc.Provision(ctx, "sub-1", "Alice", "Martin", "alice@example.com", models.RoleAuditor)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "sub-1"))
	assert.Equal(t, []string{"sub-1"}, fake.deleted)

	_, err = svc.GetUser(ctx, "sub-1")
	assert.True(t, errors.Is(err, ErrUserNotFound))
}

func TestUpdateProfileSyncsLocalRecord(t *testing.T) {
	fake := newFakeDirectory()
	svc := newUserService(t, fake)
	ctx := context.Background()

	_, err := svc.Provision(ctx, "sub-1", "Alice", "Martin", "alice@example.com", models.RoleAuditor)
	require.NoError(t, err)

	require.NoError(t, svc.UpdateProfile(ctx, "sub-1", "Alice", "Durand", "alice.durand@example.com"))
	assert.Equal(t, []string{"sub-1:alice.durand@example.com"}, fake.profileCalls)

	local, err := svc.GetUser(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "Durand", local.LastName)
	assert.Equal(t, "alice.durand@example.com", local.Email)
}

func TestUpdateProfileWithoutLocalRow(t *testing.T) {
	fake := newFakeDirectory()
	svc := newUserService(t, fake)

	require.NoError(t, svc.UpdateProfile(context.Background(), "remote-only", "Jean", "Dupont", "jean@example.com"))
	assert.Equal(t, []string{"remote-only:jean@example.com"}, fake.profileCalls)
}
