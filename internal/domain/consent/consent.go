package consent

import (
	"time"

	"github.com/google/uuid"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/values"
)

// Type classifies how strong a consent grant is. The set is closed: every
// decision branch switches exhaustively over it.
type Type string

const (
	TypeExpressWritten Type = "express_written"
	TypeExpressOral    Type = "express_oral"
	TypeImplied        Type = "implied"
	TypeTransactional  Type = "transactional"
)

func (t Type) String() string {
	return string(t)
}

// ParseType validates a consent type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeExpressWritten, TypeExpressOral, TypeImplied, TypeTransactional:
		return Type(s), nil
	}
	return "", errors.NewValidationError("INVALID_CONSENT_TYPE", "unknown consent type: "+s)
}

// Source records how consent was obtained. Evidentiary: drives the CASL-style
// expiry window for implied consent.
type Source string

const (
	SourceWebForm          Source = "web_form"
	SourceTextOptIn        Source = "text_optin"
	SourcePaperForm        Source = "paper_form"
	SourcePhoneRecording   Source = "phone_recording"
	SourceExistingCustomer Source = "existing_customer"
	SourceManualEntry      Source = "manual_entry"
	SourceAPIImport        Source = "api_import"
)

func (s Source) String() string {
	return string(s)
}

// ParseSource validates a consent source string.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceWebForm, SourceTextOptIn, SourcePaperForm, SourcePhoneRecording,
		SourceExistingCustomer, SourceManualEntry, SourceAPIImport:
		return Source(s), nil
	}
	return "", errors.NewValidationError("INVALID_CONSENT_SOURCE", "unknown consent source: "+s)
}

// Scope is the set of message categories a consent record authorizes.
// The booleans are independent; capability is derived per category.
type Scope struct {
	Marketing     bool `json:"marketing"`
	Transactional bool `json:"transactional"`
	Promotional   bool `json:"promotional"`
	Reminders     bool `json:"reminders"`
}

// FullScope authorizes every category. Used for explicit opt-ins.
func FullScope() Scope {
	return Scope{Marketing: true, Transactional: true, Promotional: true, Reminders: true}
}

// AllowsMarketing reports whether marketing-category sends are in scope.
func (s Scope) AllowsMarketing() bool {
	return s.Marketing || s.Promotional
}

// AllowsTransactional reports whether transactional-category sends are in scope.
func (s Scope) AllowsTransactional() bool {
	return s.Transactional || s.Reminders
}

// IsEmpty reports whether the scope authorizes nothing.
func (s Scope) IsEmpty() bool {
	return !s.Marketing && !s.Transactional && !s.Promotional && !s.Reminders
}

// CASL-style expiry windows for implied consent.
const (
	impliedCustomerWindowYears  = 2 // existing-customer relationship
	impliedInquiryWindowMonths  = 6 // inquiry, the shorter window
	expiryWarningDays           = 30
	reconfirmAfterYears         = 1
)

// Record is a single consent grant for one (tenant, recipient) pair.
// At most one record per pair is active at a time; recording new consent
// appends, it never deletes history.
type Record struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	PhoneHash     string     `json:"phone_hash"`
	PhoneNumber   values.PhoneNumber `json:"phone_number"`
	Type          Type       `json:"consent_type"`
	Source        Source     `json:"consent_source"`
	Scope         Scope      `json:"scope"`
	Language      string     `json:"consent_language,omitempty"`
	ConsentedAt   time.Time  `json:"consented_at"`
	IsActive      bool       `json:"is_active"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	RevokedReason string     `json:"revoked_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewRecord creates an active consent record with validation.
func NewRecord(tenantID uuid.UUID, phone values.PhoneNumber, consentType Type, source Source, scope Scope, language string) (*Record, error) {
	if tenantID == uuid.Nil {
		return nil, errors.NewValidationError("INVALID_TENANT", "tenant ID is required")
	}
	if phone.IsEmpty() {
		return nil, errors.NewValidationError("INVALID_PHONE", "phone number is required")
	}
	if _, err := ParseType(consentType.String()); err != nil {
		return nil, err
	}
	if _, err := ParseSource(source.String()); err != nil {
		return nil, err
	}
	if scope.IsEmpty() {
		return nil, errors.NewValidationError("EMPTY_SCOPE", "consent must authorize at least one category")
	}

	now := time.Now().UTC()
	return &Record{
		ID:          uuid.New(),
		TenantID:    tenantID,
		PhoneHash:   phone.Hash(),
		PhoneNumber: phone,
		Type:        consentType,
		Source:      source,
		Scope:       scope,
		Language:    language,
		ConsentedAt: now,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Revoke deactivates the record with a reason. History stays; the row is
// never deleted.
func (r *Record) Revoke(reason string) {
	now := time.Now().UTC()
	r.IsActive = false
	r.RevokedAt = &now
	r.RevokedReason = reason
	r.UpdatedAt = now
}

// Upgrade promotes the record in place when the same interaction stream
// continues with a stronger grant (implied -> express). The consent
// timestamp is refreshed; no new row is created.
func (r *Record) Upgrade(consentType Type, source Source, scope Scope, language string) error {
	if !r.IsActive {
		return errors.NewBusinessError("CONSENT_INACTIVE", "cannot upgrade a revoked consent record")
	}
	if rank(consentType) < rank(r.Type) {
		return errors.NewBusinessError("CONSENT_DOWNGRADE", "cannot downgrade consent type in place")
	}

	now := time.Now().UTC()
	r.Type = consentType
	r.Source = source
	r.Scope = mergeScope(r.Scope, scope)
	if language != "" {
		r.Language = language
	}
	r.ConsentedAt = now
	r.UpdatedAt = now
	return nil
}

func rank(t Type) int {
	switch t {
	case TypeImplied:
		return 0
	case TypeTransactional:
		return 1
	case TypeExpressOral:
		return 2
	case TypeExpressWritten:
		return 3
	}
	return -1
}

func mergeScope(a, b Scope) Scope {
	return Scope{
		Marketing:     a.Marketing || b.Marketing,
		Transactional: a.Transactional || b.Transactional,
		Promotional:   a.Promotional || b.Promotional,
		Reminders:     a.Reminders || b.Reminders,
	}
}

// ExpiresAt returns when this consent stops being valid, or nil if it does
// not expire. Only implied consent carries a CASL-style window: two years
// for an existing-customer relationship, six months for an inquiry.
func (r *Record) ExpiresAt() *time.Time {
	if r.Type != TypeImplied {
		return nil
	}
	var exp time.Time
	if r.Source == SourceExistingCustomer {
		exp = r.ConsentedAt.AddDate(impliedCustomerWindowYears, 0, 0)
	} else {
		exp = r.ConsentedAt.AddDate(0, impliedInquiryWindowMonths, 0)
	}
	return &exp
}

// IsExpired reports whether the consent has passed its window at the given
// instant.
func (r *Record) IsExpired(now time.Time) bool {
	exp := r.ExpiresAt()
	if exp == nil {
		return false
	}
	return now.After(*exp)
}

// ExpiringSoon reports whether the consent is inside the last 30 days of
// its window (and not yet expired).
func (r *Record) ExpiringSoon(now time.Time) bool {
	exp := r.ExpiresAt()
	if exp == nil {
		return false
	}
	return !now.After(*exp) && now.After(exp.AddDate(0, 0, -expiryWarningDays))
}

// NeedsReconfirmation reports whether the grant is over a year old. This is
// informational only and never blocks a send.
func (r *Record) NeedsReconfirmation(now time.Time) bool {
	return now.After(r.ConsentedAt.AddDate(reconfirmAfterYears, 0, 0))
}

// WindowDescription names the expiry window that applies, for block reasons.
func (r *Record) WindowDescription() string {
	if r.Type != TypeImplied {
		return ""
	}
	if r.Source == SourceExistingCustomer {
		return "2-year existing-customer window"
	}
	return "6-month inquiry window"
}
