package identity

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated is returned when a request does not carry a valid,
// active session. The more specific errors below all wrap it.
var ErrUnauthenticated = errors.New("identity: unauthenticated")

// Reasons a session is rejected.
var (
	ErrMissingToken    = fmt.Errorf("%w: no session token", ErrUnauthenticated)
	ErrInactiveSession = fmt.Errorf("%w: session is not active", ErrUnauthenticated)
	ErrNoIdentity      = fmt.Errorf("%w: session has no identity", ErrUnauthenticated)
	ErrInvalidIdentity = fmt.Errorf("%w: identity id is not a UUID", ErrUnauthenticated)
)

// KratosError is an unexpected response from Kratos.
type KratosError struct {
	Status  int
	Message string
}

func (e *KratosError) Error() string {
	return fmt.Sprintf("kratos: status %d: %s", e.Status, e.Message)
}
