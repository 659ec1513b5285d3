package keycloak

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Sentinel errors so callers can branch on the failure class structurally
// instead of matching message text.
var (
	// ErrUnauthorized is returned only after the invalidate-and-retry
	// cycle has already been exhausted.
	ErrUnauthorized = errors.New("keycloak: unauthorized")

	// ErrConflict signals a duplicate user (email or username already
	// taken). Callers may continue synchronizing the existing record.
	ErrConflict = errors.New("keycloak: already exists")

	// ErrNotFound signals a missing user or resource.
	ErrNotFound = errors.New("keycloak: not found")

	// ErrRoleNotFound signals that a role name does not exist in the
	// realm role catalog, as opposed to a generic request failure.
	ErrRoleNotFound = errors.New("keycloak: role not found")
)

func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
func IsConflict(err error) bool     { return errors.Is(err, ErrConflict) }
func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsRoleNotFound(err error) bool { return errors.Is(err, ErrRoleNotFound) }

// APIError carries an unexpected Keycloak response status and body.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("keycloak: %s failed with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("keycloak: %s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
}

func statusError(op string, resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", op, ErrConflict)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
}
