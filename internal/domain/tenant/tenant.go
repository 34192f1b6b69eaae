package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/compliance"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/values"
)

// Tenant is the sending profile the gateway needs for one business: the
// outbound number, the monthly cap, the quiet-hours policy, and how quiet
// hours affect in-flight sends.
type Tenant struct {
	ID                    uuid.UUID                   `json:"id"`
	Name                  string                      `json:"name"`
	FromNumber            values.PhoneNumber          `json:"from_number"`
	MonthlyMessageLimit   int                         `json:"monthly_message_limit"`
	DefaultTimezone       string                      `json:"default_timezone"`
	QueueDuringQuietHours bool                        `json:"queue_during_quiet_hours"`
	QuietHours            compliance.QuietHoursConfig `json:"quiet_hours"`
	CreatedAt             time.Time                   `json:"created_at"`
	UpdatedAt             time.Time                   `json:"updated_at"`
}

// NewTenant creates a tenant profile with validation.
func NewTenant(name string, fromNumber values.PhoneNumber, monthlyLimit int, defaultTimezone string, quietHours compliance.QuietHoursConfig) (*Tenant, error) {
	if name == "" {
		return nil, errors.NewValidationError("INVALID_NAME", "tenant name is required")
	}
	if fromNumber.IsEmpty() {
		return nil, errors.NewValidationError("INVALID_FROM_NUMBER", "outbound number is required")
	}
	if monthlyLimit < 0 {
		return nil, errors.NewValidationError("INVALID_LIMIT", "monthly message limit cannot be negative")
	}
	if err := quietHours.Validate(); err != nil {
		return nil, errors.NewValidationError("INVALID_QUIET_HOURS", err.Error())
	}

	now := time.Now().UTC()
	return &Tenant{
		ID:                    uuid.New(),
		Name:                  name,
		FromNumber:            fromNumber,
		MonthlyMessageLimit:   monthlyLimit,
		DefaultTimezone:       defaultTimezone,
		QueueDuringQuietHours: true,
		QuietHours:            quietHours,
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

// AtMonthlyLimit reports whether the count has reached the cap. A zero limit
// means the tenant cannot send at all.
func (t *Tenant) AtMonthlyLimit(sentThisMonth int) bool {
	return sentThisMonth >= t.MonthlyMessageLimit
}

// MonthKey formats the usage-row month key (UTC calendar month).
func MonthKey(at time.Time) string {
	return at.UTC().Format("2006-01")
}

// Repository persists tenant profiles and monthly usage counters.
type Repository interface {
	// GetByID returns a tenant or a not-found error.
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	// Save inserts or updates a tenant profile.
	Save(ctx context.Context, t *Tenant) error
	// MonthlySentCount returns the sent counter for the tenant and month key.
	MonthlySentCount(ctx context.Context, tenantID uuid.UUID, monthKey string) (int, error)
	// IncrementMonthlySent atomically increments the counter by one and
	// returns the new value. Implementations must use a single database-level
	// increment; read-modify-write undercounts under concurrent sends.
	IncrementMonthlySent(ctx context.Context, tenantID uuid.UUID, monthKey string) (int, error)
}
