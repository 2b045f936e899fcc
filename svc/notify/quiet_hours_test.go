package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuietHours_Contains(t *testing.T) {
	t.Parallel()

	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name string
		q    QuietHours
		now  time.Time
		loc  *time.Location
		want bool
	}{
		{"inside same-day window", QuietHours{"12:00", "14:00"}, at(13, 0), time.UTC, true},
		{"start is inclusive", QuietHours{"12:00", "14:00"}, at(12, 0), time.UTC, true},
		{"end is exclusive", QuietHours{"12:00", "14:00"}, at(14, 0), time.UTC, false},
		{"wraps midnight late", QuietHours{"22:00", "07:00"}, at(23, 30), time.UTC, true},
		{"wraps midnight early", QuietHours{"22:00", "07:00"}, at(6, 59), time.UTC, true},
		{"outside wrapped window", QuietHours{"22:00", "07:00"}, at(7, 0), time.UTC, false},
		{"equal bounds are empty", QuietHours{"09:00", "09:00"}, at(9, 0), time.UTC, false},
		{"invalid clock", QuietHours{"25:00", "07:00"}, at(1, 0), time.UTC, false},
		// 21:30 UTC is 22:30 in Berlin (CET).
		{"converted to user zone", QuietHours{"22:00", "07:00"}, at(21, 30), berlin, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.q.Contains(tt.now, tt.loc))
		})
	}
}

func TestQuietHours_EndAfter(t *testing.T) {
	t.Parallel()

	q := QuietHours{Start: "22:00", End: "07:00"}

	late := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 3, 7, 0, 0, 0, time.UTC), q.EndAfter(late, time.UTC))

	early := time.Date(2026, 3, 3, 5, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 3, 7, 0, 0, 0, time.UTC), q.EndAfter(early, time.UTC))

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// 04:00 UTC is 23:00 EST; the window closes at 07:00 EST, 12:00 UTC.
	assert.Equal(t, time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC), q.EndAfter(time.Date(2026, 3, 3, 4, 0, 0, 0, time.UTC), ny))
}

func TestParseClock(t *testing.T) {
	t.Parallel()

	m, err := ParseClock("07:30")
	require.NoError(t, err)
	assert.Equal(t, 450, m)

	for _, bad := range []string{"", "7", "24:00", "12:60", "noon"} {
		_, err := ParseClock(bad)
		assert.ErrorIs(t, err, ErrValidation, bad)
	}
}
