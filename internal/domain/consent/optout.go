package consent

import (
	"time"

	"github.com/google/uuid"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/values"
)

// OptOutReason records what triggered an opt-out.
type OptOutReason string

const (
	OptOutStopKeyword     OptOutReason = "stop_keyword"
	OptOutUnsubscribeLink OptOutReason = "unsubscribe_link"
	OptOutManualRequest   OptOutReason = "manual_request"
	OptOutComplaint       OptOutReason = "complaint"
	OptOutAdminRemoved    OptOutReason = "admin_removed"
	OptOutDNCMatch        OptOutReason = "dnc_match"
	OptOutBounce          OptOutReason = "bounce"
)

func (r OptOutReason) String() string {
	return string(r)
}

// ParseOptOutReason validates an opt-out reason string.
func ParseOptOutReason(s string) (OptOutReason, error) {
	switch OptOutReason(s) {
	case OptOutStopKeyword, OptOutUnsubscribeLink, OptOutManualRequest,
		OptOutComplaint, OptOutAdminRemoved, OptOutDNCMatch, OptOutBounce:
		return OptOutReason(s), nil
	}
	return "", errors.NewValidationError("INVALID_OPTOUT_REASON", "unknown opt-out reason: "+s)
}

// OptOutRecord marks a recipient as opted out for one tenant. A recipient is
// currently opted out iff a record exists with ReoptedInAt == nil. Opting
// back in stamps ReoptedInAt; the row is never deleted.
type OptOutRecord struct {
	ID               uuid.UUID    `json:"id"`
	TenantID         uuid.UUID    `json:"tenant_id"`
	PhoneHash        string       `json:"phone_hash"`
	Reason           OptOutReason `json:"reason"`
	OptedOutAt       time.Time    `json:"opted_out_at"`
	TriggerMessageID string       `json:"trigger_message_id,omitempty"`
	ReoptedInAt      *time.Time   `json:"reopted_in_at,omitempty"`
	ReoptInConsentID *uuid.UUID   `json:"reopt_in_consent_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// NewOptOutRecord creates an opt-out record with validation.
func NewOptOutRecord(tenantID uuid.UUID, phone values.PhoneNumber, reason OptOutReason, triggerMessageID string) (*OptOutRecord, error) {
	if tenantID == uuid.Nil {
		return nil, errors.NewValidationError("INVALID_TENANT", "tenant ID is required")
	}
	if phone.IsEmpty() {
		return nil, errors.NewValidationError("INVALID_PHONE", "phone number is required")
	}
	if _, err := ParseOptOutReason(reason.String()); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &OptOutRecord{
		ID:               uuid.New(),
		TenantID:         tenantID,
		PhoneHash:        phone.Hash(),
		Reason:           reason,
		OptedOutAt:       now,
		TriggerMessageID: triggerMessageID,
		CreatedAt:        now,
	}, nil
}

// IsCurrent reports whether this record still blocks sending.
func (o *OptOutRecord) IsCurrent() bool {
	return o.ReoptedInAt == nil
}

// ReoptIn stamps the record with the consent that re-enabled sending.
// The record survives for the audit trail.
func (o *OptOutRecord) ReoptIn(consentID uuid.UUID) error {
	if o.ReoptedInAt != nil {
		return errors.NewConflictError("opt-out record already re-opted in")
	}
	if consentID == uuid.Nil {
		return errors.NewValidationError("INVALID_CONSENT_ID", "re-opt-in requires the enabling consent record")
	}
	now := time.Now().UTC()
	o.ReoptedInAt = &now
	o.ReoptInConsentID = &consentID
	return nil
}
