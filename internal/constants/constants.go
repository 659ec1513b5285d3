package constants

import "time"

const (
	BearerTokenPrefix = "Bearer "

	HTTPClientTimeout = 30 * time.Second
	ShutdownTimeout   = 30 * time.Second

	MaxRequestSize = 1 << 20

	MinPasswordLength = 8

	DirectoryCacheTTL = 30 * time.Second
	DirectoryCacheKey = "directory:users"

	APIVersion  = "v1"
	APIBasePath = "/api/" + APIVersion

	PathHealth         = "/health"
	PathHealthKeycloak = "/health/keycloak"
	PathSwagger        = "/swagger/*any"

	PathProfile  = "/users/profile"
	PathPassword = "/users/password"

	PathAdminUsers             = "/admin/users"
	PathAdminUsersID           = "/admin/users/:id"
	PathAdminUsersToggleStatus = "/admin/users/:id/toggle-status"
	PathAdminUsersResetPass    = "/admin/users/:id/reset-password"
	PathAdminUsersRoles        = "/admin/users/:id/roles"
	PathAdminUsersRole         = "/admin/users/:id/roles/:roleName"
)
