package domain

import "errors"

var (
	// ErrInvalidShift is returned for an unknown shift selector.
	ErrInvalidShift = errors.New("downtime: invalid shift")
	// ErrNilLocation is returned when no plant timezone is configured.
	ErrNilLocation = errors.New("downtime: nil location")
	// ErrMissingColumn is returned when a required sheet column is absent.
	ErrMissingColumn = errors.New("downtime: missing column")
	// ErrShortRow is returned when a row has fewer cells than required.
	ErrShortRow = errors.New("downtime: short row")
	// ErrEmptyTimestamp is returned for a row without a timestamp cell.
	ErrEmptyTimestamp = errors.New("downtime: empty timestamp")
	// ErrInvalidTimestamp is returned for an unparsable timestamp cell.
	ErrInvalidTimestamp = errors.New("downtime: invalid timestamp")
	// ErrInvalidDuration is returned for a non-numeric duration cell.
	ErrInvalidDuration = errors.New("downtime: invalid duration")
	// ErrUnknownSite is returned when a site is absent from the registry.
	ErrUnknownSite = errors.New("downtime: unknown site")
	// ErrUnknownLine is returned when a line is absent from the site.
	ErrUnknownLine = errors.New("downtime: unknown line")
	// ErrInvalidPeriod is returned when an end time is not after the start.
	ErrInvalidPeriod = errors.New("downtime: end must be after start")
)
