package counter

import "errors"

var (
	// ErrInvalidIncrement is returned for an increment of zero.
	ErrInvalidIncrement = errors.New("counter: increment must be at least 1")

	// ErrInvalidCommand is returned for an MQTT command that is not exactly
	// one of set or increment.
	ErrInvalidCommand = errors.New("counter: command must contain exactly one of set or increment")

	// ErrInvalidKey is returned when a command topic does not carry a UUID key.
	ErrInvalidKey = errors.New("counter: key must be a UUID")
)
