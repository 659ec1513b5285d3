package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gestock/gestock-api/internal/constants"
	"go.uber.org/zap"
)

// AdminClient talks to the Keycloak admin REST API for a single target
// realm. The admin access token is acquired lazily with a password grant,
// cached until a request comes back 401, then dropped and re-acquired once.
type AdminClient struct {
	baseURL     string
	adminRealm  string
	targetRealm string
	clientID    string
	adminUser   string
	adminPass   string
	logger      *zap.Logger
	httpClient  *http.Client

	// mu guards only the cached token string, never the token exchange
	// itself. Concurrent refreshes race benignly; last writer wins.
	mu          sync.RWMutex
	accessToken string
}

func NewAdminClient(baseURL, adminRealm, targetRealm, clientID, adminUser, adminPass string, logger *zap.Logger) *AdminClient {
	return &AdminClient{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		adminRealm:  adminRealm,
		targetRealm: targetRealm,
		clientID:    clientID,
		adminUser:   adminUser,
		adminPass:   adminPass,
		logger:      logger,
		httpClient:  &http.Client{Timeout: constants.HTTPClientTimeout},
	}
}

type UserRepresentation struct {
	ID            string                     `json:"id,omitempty"`
	Username      string                     `json:"username"`
	Email         string                     `json:"email,omitempty"`
	FirstName     string                     `json:"firstName,omitempty"`
	LastName      string                     `json:"lastName,omitempty"`
	Enabled       bool                       `json:"enabled"`
	EmailVerified bool                       `json:"emailVerified"`
	Credentials   []CredentialRepresentation `json:"credentials,omitempty"`
}

type CredentialRepresentation struct {
	Type      string `json:"type"`
	Value     string `json:"value,omitempty"`
	Temporary bool   `json:"temporary"`
}

type RoleRepresentation struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Composite   bool   `json:"composite"`
}

func (c *AdminClient) cachedToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// InvalidateToken drops the cached admin token so the next call performs a
// fresh exchange.
func (c *AdminClient) InvalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

func (c *AdminClient) token(ctx context.Context) (string, error) {
	if tok := c.cachedToken(); tok != "" {
		return tok, nil
	}
	return c.exchangeToken(ctx)
}

func (c *AdminClient) exchangeToken(ctx context.Context) (string, error) {
	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.baseURL, c.adminRealm)

	data := url.Values{}
	data.Set("grant_type", "password")
	data.Set("client_id", c.clientID)
	data.Set("username", c.adminUser)
	data.Set("password", c.adminPass)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to exchange admin token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError("token exchange", resp)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token response carries no access_token")
	}

	c.mu.Lock()
	c.accessToken = tokenResp.AccessToken
	c.mu.Unlock()

	c.logger.Debug("Obtained Keycloak admin access token",
		zap.String("realm", c.adminRealm),
		zap.Int("expires_in", tokenResp.ExpiresIn))

	return tokenResp.AccessToken, nil
}

func (c *AdminClient) makeRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	return c.makeRequestWithRetry(ctx, method, path, body, false)
}

// makeRequestWithRetry applies the single retry rule that governs every
// administrative call: one attempt; on 401 invalidate the cached token and
// retry exactly once; anything else propagates.
func (c *AdminClient) makeRequestWithRetry(ctx context.Context, method, path string, body interface{}, isRetry bool) (*http.Response, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	reqURL := fmt.Sprintf("%s/admin/realms/%s%s", c.baseURL, c.targetRealm, path)

	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", constants.BearerTokenPrefix+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized && !isRetry {
		resp.Body.Close()
		c.logger.Debug("Received 401, invalidating admin token and retrying",
			zap.String("method", method),
			zap.String("path", path))
		c.InvalidateToken()
		return c.makeRequestWithRetry(ctx, method, path, body, true)
	}

	return resp, nil
}

// ListUsers returns every user of the target realm.
func (c *AdminClient) ListUsers(ctx context.Context) ([]UserRepresentation, error) {
	resp, err := c.makeRequest(ctx, http.MethodGet, "/users", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("list users", resp)
	}

	var users []UserRepresentation
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, fmt.Errorf("failed to decode users response: %w", err)
	}
	return users, nil
}

// CreateUser posts the user payload and returns the new identifier taken
// from the Location header's last path segment.
func (c *AdminClient) CreateUser(ctx context.Context, user *UserRepresentation) (string, error) {
	resp, err := c.makeRequest(ctx, http.MethodPost, "/users", user)
	if err != nil {
		return "", fmt.Errorf("failed to create user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", statusError("create user", resp)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("no location header in create user response")
	}
	parts := strings.Split(strings.TrimSuffix(location, "/"), "/")
	userID := parts[len(parts)-1]
	if userID == "" {
		return "", fmt.Errorf("invalid location header %q", location)
	}

	c.logger.Info("Created Keycloak user",
		zap.String("realm", c.targetRealm),
		zap.String("username", user.Username),
		zap.String("user_id", userID))

	return userID, nil
}

func (c *AdminClient) GetUser(ctx context.Context, userID string) (*UserRepresentation, error) {
	resp, err := c.makeRequest(ctx, http.MethodGet, "/users/"+userID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("get user", resp)
	}

	var user UserRepresentation
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user response: %w", err)
	}
	return &user, nil
}

// GetUserByEmail resolves a user by exact email match.
func (c *AdminClient) GetUserByEmail(ctx context.Context, email string) (*UserRepresentation, error) {
	path := fmt.Sprintf("/users?email=%s&exact=true", url.QueryEscape(email))
	resp, err := c.makeRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("search user", resp)
	}

	var users []UserRepresentation
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, fmt.Errorf("failed to decode users response: %w", err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	return &users[0], nil
}

func (c *AdminClient) DeleteUser(ctx context.Context, userID string) error {
	resp, err := c.makeRequest(ctx, http.MethodDelete, "/users/"+userID, nil)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return statusError("delete user", resp)
	}

	c.logger.Info("Deleted Keycloak user",
		zap.String("realm", c.targetRealm),
		zap.String("user_id", userID))
	return nil
}

func (c *AdminClient) SetUserEnabled(ctx context.Context, userID string, enabled bool) error {
	body := map[string]interface{}{"enabled": enabled}
	resp, err := c.makeRequest(ctx, http.MethodPut, "/users/"+userID, body)
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return statusError("update user status", resp)
	}
	return nil
}

func (c *AdminClient) UpdateUserProfile(ctx context.Context, userID, firstName, lastName, email string) error {
	body := map[string]interface{}{
		"firstName":     firstName,
		"lastName":      lastName,
		"email":         email,
		"emailVerified": true,
	}
	resp, err := c.makeRequest(ctx, http.MethodPut, "/users/"+userID, body)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return statusError("update user profile", resp)
	}
	return nil
}

func (c *AdminClient) ResetPassword(ctx context.Context, userID, newPassword string) error {
	credential := CredentialRepresentation{
		Type:      "password",
		Value:     newPassword,
		Temporary: false,
	}
	resp, err := c.makeRequest(ctx, http.MethodPut, "/users/"+userID+"/reset-password", credential)
	if err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return statusError("reset password", resp)
	}
	return nil
}

// GetUserRealmRoles returns the realm-level role mappings currently held by
// the user.
func (c *AdminClient) GetUserRealmRoles(ctx context.Context, userID string) ([]RoleRepresentation, error) {
	resp, err := c.makeRequest(ctx, http.MethodGet, "/users/"+userID+"/role-mappings/realm", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("get user roles", resp)
	}

	var roles []RoleRepresentation
	if err := json.NewDecoder(resp.Body).Decode(&roles); err != nil {
		return nil, fmt.Errorf("failed to decode roles response: %w", err)
	}
	return roles, nil
}

// GetRealmRole resolves a role name against the realm role catalog. A role
// can only be assigned or removed if it resolves here.
func (c *AdminClient) GetRealmRole(ctx context.Context, roleName string) (*RoleRepresentation, error) {
	resp, err := c.makeRequest(ctx, http.MethodGet, "/roles/"+url.PathEscape(roleName), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("role %q: %w", roleName, ErrRoleNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("get role", resp)
	}

	var role RoleRepresentation
	if err := json.NewDecoder(resp.Body).Decode(&role); err != nil {
		return nil, fmt.Errorf("failed to decode role response: %w", err)
	}
	return &role, nil
}

// AssignRealmRole binds the named realm role to the user. An unknown role
// name surfaces as ErrRoleNotFound before any mutation.
func (c *AdminClient) AssignRealmRole(ctx context.Context, userID, roleName string) error {
	role, err := c.GetRealmRole(ctx, roleName)
	if err != nil {
		return err
	}

	resp, err := c.makeRequest(ctx, http.MethodPost, "/users/"+userID+"/role-mappings/realm", []RoleRepresentation{*role})
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return statusError("assign role", resp)
	}

	c.logger.Info("Assigned realm role",
		zap.String("realm", c.targetRealm),
		zap.String("user_id", userID),
		zap.String("role", roleName))
	return nil
}

// RemoveRealmRole unbinds the named realm role from the user. Removing a
// role the user does not hold, or one missing from the catalog, is a no-op.
func (c *AdminClient) RemoveRealmRole(ctx context.Context, userID, roleName string) error {
	role, err := c.GetRealmRole(ctx, roleName)
	if err != nil {
		if IsRoleNotFound(err) {
			return nil
		}
		return err
	}

	resp, err := c.makeRequest(ctx, http.MethodDelete, "/users/"+userID+"/role-mappings/realm", []RoleRepresentation{*role})
	if err != nil {
		return fmt.Errorf("failed to remove role: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return statusError("remove role", resp)
	}
	return nil
}

// Ping verifies that the admin API is reachable with valid credentials.
func (c *AdminClient) Ping(ctx context.Context) error {
	resp, err := c.makeRequest(ctx, http.MethodGet, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("ping", resp)
	}
	return nil
}
