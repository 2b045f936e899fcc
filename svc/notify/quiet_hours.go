package notify

import (
	"fmt"
	"time"
)

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid clock %q", ErrValidation, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// LoadLocation resolves an IANA zone name; empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrValidation, name)
	}
	return loc, nil
}

// Contains reports whether now, converted to loc, falls in [Start, End).
// Equal bounds describe an empty window.
func (q QuietHours) Contains(now time.Time, loc *time.Location) bool {
	start, err := ParseClock(q.Start)
	if err != nil {
		return false
	}
	end, err := ParseClock(q.End)
	if err != nil || start == end {
		return false
	}

	local := now.In(loc)
	m := local.Hour()*60 + local.Minute()
	if start < end {
		return m >= start && m < end
	}
	return m >= start || m < end
}

// EndAfter returns the first moment after now at which the window closes.
func (q QuietHours) EndAfter(now time.Time, loc *time.Location) time.Time {
	end, err := ParseClock(q.End)
	if err != nil {
		return now
	}
	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), end/60, end%60, 0, 0, loc)
	if !candidate.After(local) {
		candidate = time.Date(local.Year(), local.Month(), local.Day()+1, end/60, end%60, 0, 0, loc)
	}
	return candidate.UTC()
}
