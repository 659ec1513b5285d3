package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gestock/gestock-api/internal/keycloak"
	"github.com/gestock/gestock-api/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))
	return db
}

// fakeCache records directory cache invalidations.
type fakeCache struct {
	deleted []string
}

func (f *fakeCache) Get(ctx context.Context, key string, dest interface{}) error {
	return fmt.Errorf("cache miss: %s", key)
}

func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, keys ...string) error {
	f.deleted = append(f.deleted, keys...)
	return nil
}

// fakeDirectory is a hand-written DirectoryClient double that records every
// mutating call and lets tests inject per-operation failures.
type fakeDirectory struct {
	remoteUsers []keycloak.UserRepresentation
	realmRoles  map[string][]keycloak.RoleRepresentation

	createID  string
	createErr error
	assignErr error
	removeErr error
	rolesErr  error

	created       []keycloak.UserRepresentation
	assigned      []string
	removed       []string
	deleted       []string
	enabledCalls  []string
	profileCalls  []string
	passwordCalls []string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		realmRoles: make(map[string][]keycloak.RoleRepresentation),
		createID:   "kc-new-id",
	}
}

func (f *fakeDirectory) ListUsers(ctx context.Context) ([]keycloak.UserRepresentation, error) {
	return f.remoteUsers, nil
}

func (f *fakeDirectory) CreateUser(ctx context.Context, user *keycloak.UserRepresentation) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, *user)
	return f.createID, nil
}

func (f *fakeDirectory) GetUserByEmail(ctx context.Context, email string) (*keycloak.UserRepresentation, error) {
	for i := range f.remoteUsers {
		if f.remoteUsers[i].Email == email {
			return &f.remoteUsers[i], nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, keycloak.ErrNotFound)
}

func (f *fakeDirectory) DeleteUser(ctx context.Context, userID string) error {
	f.deleted = append(f.deleted, userID)
	return nil
}

func (f *fakeDirectory) SetUserEnabled(ctx context.Context, userID string, enabled bool) error {
	f.enabledCalls = append(f.enabledCalls, fmt.Sprintf("%s:%t", userID, enabled))
	return nil
}

func (f *fakeDirectory) UpdateUserProfile(ctx context.Context, userID, firstName, lastName, email string) error {
	f.profileCalls = append(f.profileCalls, fmt.Sprintf("%s:%s", userID, email))
	return nil
}

func (f *fakeDirectory) ResetPassword(ctx context.Context, userID, newPassword string) error {
	f.passwordCalls = append(f.passwordCalls, userID)
	return nil
}

func (f *fakeDirectory) GetUserRealmRoles(ctx context.Context, userID string) ([]keycloak.RoleRepresentation, error) {
	if f.rolesErr != nil {
		return nil, f.rolesErr
	}
	return f.realmRoles[userID], nil
}

func (f *fakeDirectory) AssignRealmRole(ctx context.Context, userID, roleName string) error {
	if f.assignErr != nil {
		return f.assignErr
	}
	f.assigned = append(f.assigned, userID+":"+roleName)
	return nil
}

func (f *fakeDirectory) RemoveRealmRole(ctx context.Context, userID, roleName string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, userID+":"+roleName)
	return nil
}
