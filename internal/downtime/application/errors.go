package application

import "errors"

var (
	// ErrInvalidUserID is returned for a user id that is not an integer.
	ErrInvalidUserID = errors.New("downtime: user id must be numeric")
	// ErrUnknownRole is returned for a role outside the configured set.
	ErrUnknownRole = errors.New("downtime: unknown role")
	// ErrLineAlreadyDown is returned when reporting a line that is already down.
	ErrLineAlreadyDown = errors.New("downtime: line already down")
	// ErrLineNotDown is returned when finishing a line that is running.
	ErrLineNotDown = errors.New("downtime: line is not down")
	// ErrUnknownReason is returned for a reason outside the registry.
	ErrUnknownReason = errors.New("downtime: unknown reason")
)
