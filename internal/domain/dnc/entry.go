package dnc

import (
	"time"

	"github.com/google/uuid"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/values"
)

// Source records where a do-not-contact entry came from. A complaint entry
// is a harder stop than the rest: it blocks transactional messages too.
type Source string

const (
	SourceComplaint        Source = "complaint"
	SourceNationalRegistry Source = "national_registry"
	SourceManual           Source = "manual"
	SourceLitigation       Source = "litigation"
	SourceCarrierFeedback  Source = "carrier_feedback"
)

func (s Source) String() string {
	return string(s)
}

// ParseSource validates a DNC source string.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceComplaint, SourceNationalRegistry, SourceManual, SourceLitigation, SourceCarrierFeedback:
		return Source(s), nil
	}
	return "", errors.NewValidationError("INVALID_DNC_SOURCE", "unknown DNC source: "+s)
}

// BlocksTransactional reports whether entries from this source block
// legally-required transactional notices as well as marketing. Marketing
// opt-outs do not exempt transactional sends from a complaint.
func (s Source) BlocksTransactional() bool {
	return s == SourceComplaint
}

// Entry is a do-not-contact registration. TenantID nil means the entry is
// registry-wide (global). Entries survive independently of consent state and
// apply even to recipients who never interacted with the tenant.
type Entry struct {
	ID               uuid.UUID  `json:"id"`
	TenantID         *uuid.UUID `json:"tenant_id,omitempty"`
	PhoneHash        string     `json:"phone_hash"`
	Source           Source     `json:"source"`
	IsActive         bool       `json:"is_active"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	RemovedReason    string     `json:"removed_reason,omitempty"`
	AddedAt          time.Time  `json:"added_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewEntry creates an active DNC entry. Pass a nil tenantID for a global
// entry.
func NewEntry(tenantID *uuid.UUID, phone values.PhoneNumber, source Source) (*Entry, error) {
	if tenantID != nil && *tenantID == uuid.Nil {
		return nil, errors.NewValidationError("INVALID_TENANT", "tenant ID cannot be the nil UUID; omit it for a global entry")
	}
	if phone.IsEmpty() {
		return nil, errors.NewValidationError("INVALID_PHONE", "phone number is required")
	}
	if _, err := ParseSource(source.String()); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Entry{
		ID:        uuid.New(),
		TenantID:  tenantID,
		PhoneHash: phone.Hash(),
		Source:    source,
		IsActive:  true,
		AddedAt:   now,
		UpdatedAt: now,
	}, nil
}

// SetExpiration sets when the entry lapses.
func (e *Entry) SetExpiration(expiresAt time.Time) error {
	if expiresAt.Before(e.AddedAt) {
		return errors.NewValidationError("INVALID_EXPIRATION", "expiration cannot precede the added date")
	}
	e.ExpiresAt = &expiresAt
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// Deactivate soft-removes the entry with a reason. Rows are never deleted.
func (e *Entry) Deactivate(reason string) {
	e.IsActive = false
	e.RemovedReason = reason
	e.UpdatedAt = time.Now().UTC()
}

// IsExpired reports whether the entry has lapsed at the given instant.
func (e *Entry) IsExpired(now time.Time) bool {
	if e.ExpiresAt == nil {
		return false
	}
	return now.After(*e.ExpiresAt)
}

// Matches reports whether the entry currently suppresses sending.
func (e *Entry) Matches(now time.Time) bool {
	return e.IsActive && !e.IsExpired(now)
}

// IsGlobal reports whether the entry applies across all tenants.
func (e *Entry) IsGlobal() bool {
	return e.TenantID == nil
}
