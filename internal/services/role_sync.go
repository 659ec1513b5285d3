package services

import (
	"context"
	"fmt"

	"github.com/gestock/gestock-api/internal/constants"
	"github.com/gestock/gestock-api/internal/keycloak"
	"github.com/gestock/gestock-api/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SyncResult reports the outcome of a role reconciliation. The local write
// is the durability anchor: when it succeeded but the IdP side did not fully
// follow, RemoteSynced is false and Warnings carries what went wrong, with
// nothing rolled back.
type SyncResult struct {
	UserID       string      `json:"user_id"`
	Role         models.Role `json:"role"`
	RemoteSynced bool        `json:"remote_synced"`
	Warnings     []string    `json:"warnings,omitempty"`
}

// RoleSyncService drives administrative role changes: local record first,
// then one-directional best-effort synchronization toward Keycloak.
type RoleSyncService struct {
	db       *gorm.DB
	keycloak DirectoryClient
	cache    DirectoryCache
	logger   *zap.Logger
}

func NewRoleSyncService(db *gorm.DB, kc DirectoryClient, cache DirectoryCache, logger *zap.Logger) *RoleSyncService {
	return &RoleSyncService{
		db:       db,
		keycloak: kc,
		cache:    cache,
		logger:   logger,
	}
}

// AssignRole sets the user's role to roleName. Administrators are never
// modified through this path, and an unknown role name is rejected before
// any mutation. After the local write, every currently held business role is
// removed remotely (each removal independent) and the new role's canonical
// display name is assigned.
func (s *RoleSyncService) AssignRole(ctx context.Context, userID, roleName string) (*SyncResult, error) {
	user, err := s.localUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == models.RoleAdministrator {
		return nil, fmt.Errorf("cannot change role of %s: %w", userID, ErrProtectedRole)
	}

	role, ok := models.ParseRole(roleName)
	if !ok {
		return nil, fmt.Errorf("%q: %w", roleName, ErrUnknownRole)
	}

	user.Role = role
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return nil, fmt.Errorf("failed to persist role locally: %w", err)
	}
	s.logger.Info("Updated local role",
		zap.String("user_id", userID),
		zap.String("role", string(role)))
	s.invalidateDirectoryCache(ctx)

	result := &SyncResult{UserID: userID, Role: role, RemoteSynced: true}
	s.removeStaleRemoteRoles(ctx, userID, result)

	if err := s.keycloak.AssignRealmRole(ctx, userID, role.DisplayName()); err != nil {
		result.RemoteSynced = false
		if keycloak.IsRoleNotFound(err) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("role %q does not exist in the realm catalog", role.DisplayName()))
		} else {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("failed to assign remote role %q: %v", role.DisplayName(), err))
		}
		s.logger.Warn("Remote role assignment failed",
			zap.String("user_id", userID),
			zap.String("role", role.DisplayName()),
			zap.Error(err))
	}

	return result, nil
}

// RemoveRole revokes roleName outright: the local role falls back to the
// default and the remote mapping is removed. The administrator guard applies
// here as well.
func (s *RoleSyncService) RemoveRole(ctx context.Context, userID, roleName string) (*SyncResult, error) {
	user, err := s.localUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == models.RoleAdministrator {
		return nil, fmt.Errorf("cannot change role of %s: %w", userID, ErrProtectedRole)
	}

	role, ok := models.ParseRole(roleName)
	if !ok {
		return nil, fmt.Errorf("%q: %w", roleName, ErrUnknownRole)
	}

	user.Role = models.DefaultRole
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return nil, fmt.Errorf("failed to reset role locally: %w", err)
	}
	s.logger.Info("Reset local role to default",
		zap.String("user_id", userID),
		zap.String("removed_role", string(role)))
	s.invalidateDirectoryCache(ctx)

	result := &SyncResult{UserID: userID, Role: models.DefaultRole, RemoteSynced: true}
	if err := s.keycloak.RemoveRealmRole(ctx, userID, role.DisplayName()); err != nil {
		result.RemoteSynced = false
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("failed to remove remote role %q: %v", role.DisplayName(), err))
		s.logger.Warn("Remote role removal failed",
			zap.String("user_id", userID),
			zap.String("role", role.DisplayName()),
			zap.Error(err))
	}

	return result, nil
}

// GetUserRoles returns the user's live realm role mappings.
func (s *RoleSyncService) GetUserRoles(ctx context.Context, userID string) ([]keycloak.RoleRepresentation, error) {
	return s.keycloak.GetUserRealmRoles(ctx, userID)
}

func (s *RoleSyncService) invalidateDirectoryCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, constants.DirectoryCacheKey); err != nil {
		s.logger.Warn("Failed to invalidate directory cache", zap.Error(err))
	}
}

func (s *RoleSyncService) localUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user %s: %w", userID, ErrUserNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// removeStaleRemoteRoles strips every business role the user currently holds
// in the realm. Each removal is independent; one failure does not stop the
// others or the assignment that follows.
func (s *RoleSyncService) removeStaleRemoteRoles(ctx context.Context, userID string, result *SyncResult) {
	current, err := s.keycloak.GetUserRealmRoles(ctx, userID)
	if err != nil {
		result.RemoteSynced = false
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("failed to read current remote roles: %v", err))
		return
	}

	for _, held := range current {
		if !models.IsBusinessRoleName(held.Name) {
			continue
		}
		if err := s.keycloak.RemoveRealmRole(ctx, userID, held.Name); err != nil {
			result.RemoteSynced = false
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("failed to remove stale remote role %q: %v", held.Name, err))
			continue
		}
		s.logger.Info("Removed stale remote role",
			zap.String("user_id", userID),
			zap.String("role", held.Name))
	}
}
