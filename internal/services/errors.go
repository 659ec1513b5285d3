package services

import "errors"

var (
	// ErrProtectedRole rejects any attempt to change an administrator's
	// role or status through the ordinary reconciliation paths.
	ErrProtectedRole = errors.New("administrator accounts cannot be modified")

	// ErrUnknownRole rejects a role name outside the closed business set
	// before any state is touched.
	ErrUnknownRole = errors.New("unknown role")

	// ErrUserNotFound signals a missing local user record.
	ErrUserNotFound = errors.New("user not found")
)
