package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gestock/gestock-api/internal/constants"
	"github.com/gestock/gestock-api/internal/keycloak"
	"github.com/gestock/gestock-api/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DirectoryClient is the IdP administrative surface the services depend on.
// *keycloak.AdminClient satisfies it; tests substitute fakes.
type DirectoryClient interface {
	ListUsers(ctx context.Context) ([]keycloak.UserRepresentation, error)
	CreateUser(ctx context.Context, user *keycloak.UserRepresentation) (string, error)
	GetUserByEmail(ctx context.Context, email string) (*keycloak.UserRepresentation, error)
	DeleteUser(ctx context.Context, userID string) error
	SetUserEnabled(ctx context.Context, userID string, enabled bool) error
	UpdateUserProfile(ctx context.Context, userID, firstName, lastName, email string) error
	ResetPassword(ctx context.Context, userID, newPassword string) error
	GetUserRealmRoles(ctx context.Context, userID string) ([]keycloak.RoleRepresentation, error)
	AssignRealmRole(ctx context.Context, userID, roleName string) error
	RemoveRealmRole(ctx context.Context, userID, roleName string) error
}

// DirectoryCache is the slice of pkg/cache the user service needs.
type DirectoryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// UserService owns the local user directory and the operations that keep it
// aligned with the Keycloak realm.
type UserService struct {
	db       *gorm.DB
	keycloak DirectoryClient
	cache    DirectoryCache
	logger   *zap.Logger
}

func NewUserService(db *gorm.DB, kc DirectoryClient, cache DirectoryCache, logger *zap.Logger) *UserService {
	return &UserService{
		db:       db,
		keycloak: kc,
		cache:    cache,
		logger:   logger,
	}
}

// GetUser returns the local record for a subject id.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, ErrUserNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// FindByEmail looks a user up by the secondary natural key.
func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", email, ErrUserNotFound)
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return &user, nil
}

// ListActive returns local users that have not been deactivated.
func (s *UserService) ListActive(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Provision creates or refreshes the local record for an authenticated
// subject. The lookup is email-first so a recreated IdP account (new subject
// id, same mailbox) converges onto its existing row; a subject whose mailbox
// changed remotely is matched by id instead. Identical claims are a no-op;
// the row is only written when something changed.
func (s *UserService) Provision(ctx context.Context, id, firstName, lastName, email string, role models.Role) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	}
	switch {
	case err == nil:
		if user.FirstName == firstName && user.LastName == lastName && user.Email == email && user.Role == role {
			return &user, nil
		}
		user.FirstName = firstName
		user.LastName = lastName
		user.Email = email
		user.Role = role
		if err := s.db.WithContext(ctx).Save(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to update provisioned user: %w", err)
		}
		return &user, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			ID:        id,
			FirstName: firstName,
			LastName:  lastName,
			Email:     email,
			Active:    true,
			Role:      role,
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to create provisioned user: %w", err)
		}
		s.logger.Info("Provisioned new user",
			zap.String("user_id", id),
			zap.String("email", email),
			zap.String("role", string(role)))
		return &user, nil

	default:
		return nil, fmt.Errorf("failed to look up user for provisioning: %w", err)
	}
}

// ListDirectory returns the merged view of the realm's users annotated with
// the locally stored role, matched by id first and by email as the id-churn
// fallback.
func (s *UserService) ListDirectory(ctx context.Context) ([]models.DirectoryUser, error) {
	if s.cache != nil {
		var cached []models.DirectoryUser
		if err := s.cache.Get(ctx, constants.DirectoryCacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	remote, err := s.keycloak.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory users: %w", err)
	}

	var local []models.User
	if err := s.db.WithContext(ctx).Find(&local).Error; err != nil {
		return nil, fmt.Errorf("failed to list local users: %w", err)
	}

	idToRole := make(map[string]models.Role, len(local))
	emailToRole := make(map[string]models.Role, len(local))
	for _, u := range local {
		if u.ID != "" {
			idToRole[u.ID] = u.Role
		}
		if u.Email != "" {
			emailToRole[u.Email] = u.Role
		}
	}

	directory := make([]models.DirectoryUser, 0, len(remote))
	for _, rep := range remote {
		entry := models.DirectoryUser{
			ID:        rep.ID,
			Username:  rep.Username,
			Email:     rep.Email,
			FirstName: rep.FirstName,
			LastName:  rep.LastName,
			Enabled:   rep.Enabled,
			Role:      models.NoRole,
		}
		if role, ok := idToRole[rep.ID]; ok {
			entry.Role = string(role)
		} else if role, ok := emailToRole[rep.Email]; ok {
			entry.Role = string(role)
		}
		directory = append(directory, entry)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, constants.DirectoryCacheKey, directory, constants.DirectoryCacheTTL); err != nil {
			s.logger.Warn("Failed to cache directory listing", zap.Error(err))
		}
	}

	return directory, nil
}

// CreateUser creates the account in Keycloak (role stripped from the
// payload), assigns the requested business role remotely best-effort, and
// provisions the local record. A duplicate in Keycloak is not fatal: the
// existing account is resolved by email and synchronization continues.
func (s *UserService) CreateUser(ctx context.Context, req *models.CreateUserRequest) (*models.DirectoryUser, error) {
	role := models.DefaultRole
	if req.Role != "" {
		parsed, ok := models.ParseRole(req.Role)
		if ok {
			role = parsed
		} else {
			s.logger.Warn("Invalid role on user creation, using default",
				zap.String("role", req.Role),
				zap.String("email", req.Email))
		}
	}

	rep := &keycloak.UserRepresentation{
		Username:      req.Username,
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Enabled:       true,
		EmailVerified: true,
	}
	if req.Password != "" {
		rep.Credentials = []keycloak.CredentialRepresentation{
			{Type: "password", Value: req.Password, Temporary: false},
		}
	}

	userID, err := s.keycloak.CreateUser(ctx, rep)
	if keycloak.IsConflict(err) {
		existing, lookupErr := s.keycloak.GetUserByEmail(ctx, req.Email)
		if lookupErr != nil {
			return nil, fmt.Errorf("user %s already exists and could not be resolved: %w", req.Email, err)
		}
		userID = existing.ID
		s.logger.Info("User already exists in Keycloak, continuing synchronization",
			zap.String("email", req.Email),
			zap.String("user_id", userID))
	} else if err != nil {
		return nil, err
	}

	if err := s.keycloak.AssignRealmRole(ctx, userID, role.DisplayName()); err != nil {
		s.logger.Warn("Failed to assign realm role to new user",
			zap.String("user_id", userID),
			zap.String("role", role.DisplayName()),
			zap.Error(err))
	}

	if _, err := s.Provision(ctx, userID, req.FirstName, req.LastName, req.Email, role); err != nil {
		return nil, fmt.Errorf("failed to synchronize new user locally: %w", err)
	}

	s.invalidateDirectoryCache(ctx)

	return &models.DirectoryUser{
		ID:        userID,
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Enabled:   true,
		Role:      string(role),
	}, nil
}

// SetEnabled toggles the account on both sides. Administrators are
// protected: their status cannot be changed through this path.
func (s *UserService) SetEnabled(ctx context.Context, id string, enabled bool) error {
	user, err := s.GetUser(ctx, id)
	if err == nil && user.Role == models.RoleAdministrator {
		return fmt.Errorf("cannot change status of %s: %w", id, ErrProtectedRole)
	}
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return err
	}

	if err := s.keycloak.SetUserEnabled(ctx, id, enabled); err != nil {
		return err
	}

	if user != nil {
		user.Active = enabled
		if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
			return fmt.Errorf("failed to mirror status locally: %w", err)
		}
	}

	s.invalidateDirectoryCache(ctx)
	return nil
}

// Deactivate soft-deletes the local record; the row is kept with
// active=false. This is the ordinary deletion path.
func (s *UserService) Deactivate(ctx context.Context, id string) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	user.Active = false
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	s.invalidateDirectoryCache(ctx)
	return nil
}

// Delete is the explicit administrative removal: the Keycloak account and
// the local record are both removed.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := s.keycloak.DeleteUser(ctx, id); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete local user: %w", err)
	}
	s.invalidateDirectoryCache(ctx)
	return nil
}

// UpdateProfile pushes profile fields to Keycloak first, then syncs the
// local record when one exists. A duplicate email surfaces as a typed
// conflict from the directory client.
func (s *UserService) UpdateProfile(ctx context.Context, id, firstName, lastName, email string) error {
	if err := s.keycloak.UpdateUserProfile(ctx, id, firstName, lastName, email); err != nil {
		return err
	}

	user, err := s.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}

	user.FirstName = firstName
	user.LastName = lastName
	user.Email = email
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("failed to sync profile locally: %w", err)
	}

	s.invalidateDirectoryCache(ctx)
	return nil
}

// ResetPassword resets the Keycloak credential for the user.
func (s *UserService) ResetPassword(ctx context.Context, id, newPassword string) error {
	return s.keycloak.ResetPassword(ctx, id, newPassword)
}

func (s *UserService) invalidateDirectoryCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, constants.DirectoryCacheKey); err != nil {
		s.logger.Warn("Failed to invalidate directory cache", zap.Error(err))
	}
}
