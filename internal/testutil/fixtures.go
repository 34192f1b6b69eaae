package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/compliance"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/tenant"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/values"
)

// QuietHoursOff returns a policy that never blocks.
func QuietHoursOff() compliance.QuietHoursConfig {
	return compliance.QuietHoursConfig{Enforce: false}
}

// QuietHoursCoveringNow returns a policy whose window contains the current
// wall-clock hour in UTC, so a check run right now is inside quiet hours.
func QuietHoursCoveringNow() compliance.QuietHoursConfig {
	h := time.Now().UTC().Hour()
	return compliance.QuietHoursConfig{
		Enforce:           true,
		QuietStartHour:    h,
		QuietEndHour:      (h + 2) % 24,
		WeekendConfigured: true,
		WeekendStartHour:  h,
		WeekendEndHour:    (h + 2) % 24,
	}
}

// QuietHoursExcludingNow returns an enforced policy whose window cannot
// contain the current UTC hour.
func QuietHoursExcludingNow() compliance.QuietHoursConfig {
	h := time.Now().UTC().Hour()
	return compliance.QuietHoursConfig{
		Enforce:           true,
		QuietStartHour:    (h + 2) % 24,
		QuietEndHour:      (h + 4) % 24,
		WeekendConfigured: true,
		WeekendStartHour:  (h + 2) % 24,
		WeekendEndHour:    (h + 4) % 24,
	}
}

// Tenant builds a stored-shape tenant with the given monthly cap and quiet
// policy.
func Tenant(monthlyLimit int, quietHours compliance.QuietHoursConfig) *tenant.Tenant {
	now := time.Now().UTC()
	return &tenant.Tenant{
		ID:                    uuid.New(),
		Name:                  "Test Tenant",
		FromNumber:            values.MustNewPhoneNumber("+15559990000"),
		MonthlyMessageLimit:   monthlyLimit,
		DefaultTimezone:       "UTC",
		QueueDuringQuietHours: true,
		QuietHours:            quietHours,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}
