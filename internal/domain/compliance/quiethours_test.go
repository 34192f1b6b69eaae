package compliance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// instantAtLocalHour builds a UTC instant whose wall clock in tz reads the
// given hour on the given date.
func instantAtLocalHour(t *testing.T, tz string, year int, month time.Month, day, hour int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	require.NoError(t, err)
	return time.Date(year, month, day, hour, 30, 0, 0, loc).UTC()
}

func TestQuietHoursWraparound(t *testing.T) {
	cfg := QuietHoursConfig{
		Enforce:        true,
		QuietStartHour: 21,
		QuietEndHour:   8,
	}

	// Wednesday Mar 11 2026
	tests := []struct {
		hour    int
		blocked bool
	}{
		{22, true},
		{5, true},
		{21, true}, // boundary: start is inside the window
		{8, false}, // boundary: end is outside
		{9, false},
		{12, false},
		{20, false},
	}

	for _, tt := range tests {
		at := instantAtLocalHour(t, "America/New_York", 2026, time.March, 11, tt.hour)
		res := EvaluateQuietHours(cfg, at, "America/New_York", "America/Chicago")
		assert.Equal(t, tt.blocked, res.Blocked, "local hour %d", tt.hour)
	}
}

func TestQuietHoursNonWrappingWindow(t *testing.T) {
	cfg := QuietHoursConfig{Enforce: true, QuietStartHour: 9, QuietEndHour: 17}

	at := instantAtLocalHour(t, "America/Los_Angeles", 2026, time.March, 11, 12)
	assert.True(t, EvaluateQuietHours(cfg, at, "America/Los_Angeles", "").Blocked)

	at = instantAtLocalHour(t, "America/Los_Angeles", 2026, time.March, 11, 18)
	assert.False(t, EvaluateQuietHours(cfg, at, "America/Los_Angeles", "").Blocked)
}

func TestQuietHoursDisabled(t *testing.T) {
	cfg := QuietHoursConfig{Enforce: false, QuietStartHour: 0, QuietEndHour: 23}
	at := instantAtLocalHour(t, "America/New_York", 2026, time.March, 11, 3)
	assert.False(t, EvaluateQuietHours(cfg, at, "America/New_York", "").Blocked)
}

func TestQuietHoursWeekendWindow(t *testing.T) {
	cfg := QuietHoursConfig{
		Enforce:           true,
		QuietStartHour:    21,
		QuietEndHour:      8,
		WeekendConfigured: true,
		WeekendStartHour:  18,
		WeekendEndHour:    10,
	}

	// Saturday Mar 14 2026, 19:00 local: inside weekend window, outside weekday window.
	at := instantAtLocalHour(t, "America/New_York", 2026, time.March, 14, 19)
	assert.True(t, EvaluateQuietHours(cfg, at, "America/New_York", "").Blocked)

	// Wednesday 19:00 local: weekday window applies, not blocked.
	at = instantAtLocalHour(t, "America/New_York", 2026, time.March, 11, 19)
	assert.False(t, EvaluateQuietHours(cfg, at, "America/New_York", "").Blocked)
}

func TestQuietHoursWeekendNotConfigured(t *testing.T) {
	// Without explicit weekend hours the weekday window applies every day.
	cfg := QuietHoursConfig{Enforce: true, QuietStartHour: 21, QuietEndHour: 8}

	at := instantAtLocalHour(t, "America/New_York", 2026, time.March, 14, 22) // Saturday
	assert.True(t, EvaluateQuietHours(cfg, at, "America/New_York", "").Blocked)
}

func TestQuietHoursFederalHoliday(t *testing.T) {
	cfg := QuietHoursConfig{
		Enforce:                true,
		QuietStartHour:         21,
		QuietEndHour:           8,
		RespectFederalHolidays: true,
		HolidayQuietAllDay:     true,
	}

	// July 4, noon local: outside the hour window but blocked all day.
	at := instantAtLocalHour(t, "America/Chicago", 2026, time.July, 4, 12)
	res := EvaluateQuietHours(cfg, at, "America/Chicago", "")
	assert.True(t, res.Blocked)
	assert.Contains(t, res.Reason, "Independence Day")

	// Same config without the all-day flag: holiday noon is sendable.
	cfg.HolidayQuietAllDay = false
	res = EvaluateQuietHours(cfg, at, "America/Chicago", "")
	assert.False(t, res.Blocked)
}

func TestQuietHoursTimezoneFallback(t *testing.T) {
	cfg := QuietHoursConfig{Enforce: true, QuietStartHour: 21, QuietEndHour: 8}

	// Unknown recipient tz falls back to the platform default.
	at := instantAtLocalHour(t, "America/Denver", 2026, time.March, 11, 22)
	res := EvaluateQuietHours(cfg, at, "Not/AZone", "America/Denver")
	assert.True(t, res.Blocked)

	// Both unknown: UTC. 22:00 Denver is 04:00 UTC next day, still inside
	// the wrapped window.
	res = EvaluateQuietHours(cfg, at, "Not/AZone", "Also/Bogus")
	assert.True(t, res.Blocked)
}

func TestQuietHoursConfigValidate(t *testing.T) {
	assert.NoError(t, QuietHoursConfig{QuietStartHour: 0, QuietEndHour: 23}.Validate())
	assert.Error(t, QuietHoursConfig{QuietStartHour: 24}.Validate())
	assert.Error(t, QuietHoursConfig{QuietEndHour: -1}.Validate())
}

func TestHourInWindow(t *testing.T) {
	// Empty window when start == end.
	assert.False(t, hourInWindow(5, 9, 9))
	// Plain window is half-open.
	assert.True(t, hourInWindow(9, 9, 17))
	assert.False(t, hourInWindow(17, 9, 17))
}
