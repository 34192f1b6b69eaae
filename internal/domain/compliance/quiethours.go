package compliance

import (
	"fmt"
	"time"
)

// QuietHoursConfig is a tenant's quiet-hours policy. Hours are recipient-local
// wall-clock hours in [0,23]; a window may wrap past midnight (start > end).
// Weekend hours apply only when WeekendConfigured is set; otherwise the
// weekday window applies every day.
type QuietHoursConfig struct {
	Enforce               bool `json:"enforce" koanf:"enforce"`
	QuietStartHour        int  `json:"quiet_start_hour" koanf:"quiet_start_hour"`
	QuietEndHour          int  `json:"quiet_end_hour" koanf:"quiet_end_hour"`
	WeekendConfigured     bool `json:"weekend_configured" koanf:"weekend_configured"`
	WeekendStartHour      int  `json:"weekend_start_hour" koanf:"weekend_start_hour"`
	WeekendEndHour        int  `json:"weekend_end_hour" koanf:"weekend_end_hour"`
	RespectFederalHolidays bool `json:"respect_federal_holidays" koanf:"respect_federal_holidays"`
	HolidayQuietAllDay    bool `json:"holiday_quiet_all_day" koanf:"holiday_quiet_all_day"`
}

// Validate checks hour bounds.
func (c QuietHoursConfig) Validate() error {
	for _, h := range []int{c.QuietStartHour, c.QuietEndHour, c.WeekendStartHour, c.WeekendEndHour} {
		if h < 0 || h > 23 {
			return fmt.Errorf("quiet hour out of range: %d", h)
		}
	}
	return nil
}

// QuietHoursResult reports whether sending is disallowed right now.
type QuietHoursResult struct {
	Blocked bool
	Reason  string
}

// federalHolidays is the fixed month/day table checked when holiday quiet is
// enabled. No observed-date shifting: a holiday falling on a weekend is
// checked on its calendar date.
var federalHolidays = []struct {
	Month time.Month
	Day   int
	Name  string
}{
	{time.January, 1, "New Year's Day"},
	{time.June, 19, "Juneteenth"},
	{time.July, 4, "Independence Day"},
	{time.November, 11, "Veterans Day"},
	{time.December, 25, "Christmas Day"},
}

// EvaluateQuietHours computes whether the given instant falls inside the
// tenant's quiet window in the recipient's timezone. Pure: no I/O, no clock
// reads. Unknown or empty timezones fall back to defaultTimezone, then UTC.
func EvaluateQuietHours(cfg QuietHoursConfig, at time.Time, recipientTimezone, defaultTimezone string) QuietHoursResult {
	if !cfg.Enforce {
		return QuietHoursResult{}
	}

	loc := loadLocation(recipientTimezone, defaultTimezone)
	local := at.In(loc)
	hour := local.Hour()
	weekday := local.Weekday()

	start, end := cfg.QuietStartHour, cfg.QuietEndHour
	if cfg.WeekendConfigured && (weekday == time.Saturday || weekday == time.Sunday) {
		start, end = cfg.WeekendStartHour, cfg.WeekendEndHour
	}

	if hourInWindow(hour, start, end) {
		return QuietHoursResult{
			Blocked: true,
			Reason:  fmt.Sprintf("quiet hours %02d:00-%02d:00 in %s (local hour %d)", start, end, loc.String(), hour),
		}
	}

	if cfg.RespectFederalHolidays && cfg.HolidayQuietAllDay {
		for _, h := range federalHolidays {
			if local.Month() == h.Month && local.Day() == h.Day {
				return QuietHoursResult{
					Blocked: true,
					Reason:  fmt.Sprintf("federal holiday quiet all day: %s", h.Name),
				}
			}
		}
	}

	return QuietHoursResult{}
}

// hourInWindow handles wraparound: when start > end the blocked set is
// [start,24) plus [0,end); otherwise [start,end). start == end means an
// empty window.
func hourInWindow(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start > end {
		return hour >= start || hour < end
	}
	return hour >= start && hour < end
}

func loadLocation(tz, fallback string) *time.Location {
	if tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	if fallback != "" {
		if loc, err := time.LoadLocation(fallback); err == nil {
			return loc
		}
	}
	return time.UTC
}
