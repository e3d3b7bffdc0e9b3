package domain

import (
	"strings"
	"time"
)

// Shift selects a shift relative to a reference moment.
type Shift string

const (
	ShiftCurrent  Shift = "current"
	ShiftPrevious Shift = "previous"
)

const (
	dayShiftStartHour   = 8
	nightShiftStartHour = 20

	// ShiftLength is the duration of every shift.
	ShiftLength = 12 * time.Hour
)

// ParseShift validates a shift selector.
func ParseShift(value string) (Shift, error) {
	switch Shift(strings.ToLower(strings.TrimSpace(value))) {
	case "", ShiftCurrent:
		return ShiftCurrent, nil
	case ShiftPrevious:
		return ShiftPrevious, nil
	default:
		return "", ErrInvalidShift
	}
}

// ShiftWindow is the half-open interval [Start, End) of one shift.
type ShiftWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside [Start, End).
func (w ShiftWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// ShiftWindowFor returns the shift window enclosing t, evaluated on t's own
// calendar date in loc.
func ShiftWindowFor(t time.Time, loc *time.Location) ShiftWindow {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	y, m, d := local.Date()
	hour := local.Hour()

	switch {
	case hour >= dayShiftStartHour && hour < nightShiftStartHour:
		return ShiftWindow{
			Start: time.Date(y, m, d, dayShiftStartHour, 0, 0, 0, loc),
			End:   time.Date(y, m, d, nightShiftStartHour, 0, 0, 0, loc),
		}
	case hour >= nightShiftStartHour:
		return ShiftWindow{
			Start: time.Date(y, m, d, nightShiftStartHour, 0, 0, 0, loc),
			End:   time.Date(y, m, d+1, dayShiftStartHour, 0, 0, 0, loc),
		}
	default:
		return ShiftWindow{
			Start: time.Date(y, m, d-1, nightShiftStartHour, 0, 0, 0, loc),
			End:   time.Date(y, m, d, dayShiftStartHour, 0, 0, 0, loc),
		}
	}
}

// ShiftWindowAt returns the current or previous shift relative to now.
// The previous window always ends where the current one starts.
func ShiftWindowAt(now time.Time, shift Shift, loc *time.Location) (ShiftWindow, error) {
	if loc == nil {
		return ShiftWindow{}, ErrNilLocation
	}
	current := ShiftWindowFor(now, loc)
	switch shift {
	case ShiftCurrent:
		return current, nil
	case ShiftPrevious:
		start := current.Start.In(loc)
		y, m, d := start.Date()
		if start.Hour() == dayShiftStartHour {
			return ShiftWindow{
				Start: time.Date(y, m, d-1, nightShiftStartHour, 0, 0, 0, loc),
				End:   current.Start,
			}, nil
		}
		return ShiftWindow{
			Start: time.Date(y, m, d, dayShiftStartHour, 0, 0, 0, loc),
			End:   current.Start,
		}, nil
	default:
		return ShiftWindow{}, ErrInvalidShift
	}
}
