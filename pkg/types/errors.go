package types

import (
	"errors"
	"fmt"
)

// Error kinds. Callers branch on these with errors.Is; entity specific
// errors below wrap exactly one kind.
var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidCoordinate      = errors.New("invalid coordinate")
	ErrInvalidInput           = errors.New("invalid input")
)

var (
	ErrUserNotFound         = fmt.Errorf("user %w", ErrNotFound)
	ErrDonorNotFound        = fmt.Errorf("donor %w", ErrNotFound)
	ErrRequestNotFound      = fmt.Errorf("blood request %w", ErrNotFound)
	ErrNotificationNotFound = fmt.Errorf("notification %w", ErrNotFound)

	ErrDonorAlreadyRegistered = fmt.Errorf("donor already registered: %w", ErrConflict)
	ErrDonorClaimed           = fmt.Errorf("donor already committed to a request: %w", ErrConflict)
)
