package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType classifies an audit entry. The log is append-only: entries are
// never updated or deleted.
type EventType string

const (
	EventMessageBlocked  EventType = "message_blocked"
	EventMessageQueued   EventType = "message_queued"
	EventMessageSent     EventType = "message_sent"
	EventSendFailed      EventType = "send_failed"
	EventConsentRecorded EventType = "consent_recorded"
	EventConsentRevoked  EventType = "consent_revoked"
	EventConsentExpired  EventType = "consent_expired"
	EventOptOutRecorded  EventType = "optout_recorded"
	EventOptInRecorded   EventType = "optin_recorded"
	EventDNCAdded        EventType = "dnc_added"
	EventDNCRemoved      EventType = "dnc_removed"
)

// Entry is one append-only audit record of a compliance decision or state
// change. Context carries arbitrary structured detail (block reason, message
// id, consent window, transport error).
type Entry struct {
	ID         uuid.UUID              `json:"id"`
	TenantID   uuid.UUID              `json:"tenant_id"`
	PhoneHash  string                 `json:"phone_hash,omitempty"`
	EventType  EventType              `json:"event_type"`
	Actor      string                 `json:"actor"`
	Context    map[string]interface{} `json:"context,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// NewEntry builds an audit entry stamped now.
func NewEntry(tenantID uuid.UUID, phoneHash string, eventType EventType, actor string, eventContext map[string]interface{}) *Entry {
	return &Entry{
		ID:         uuid.New(),
		TenantID:   tenantID,
		PhoneHash:  phoneHash,
		EventType:  eventType,
		Actor:      actor,
		Context:    eventContext,
		OccurredAt: time.Now().UTC(),
	}
}

// Repository appends audit entries. There is deliberately no update or
// delete surface.
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
}

// Logger is the write-side port services use. A Logger implementation must
// never let an audit failure change an already-decided outcome; failures are
// surfaced to observability instead.
type Logger interface {
	Record(ctx context.Context, entry *Entry)
}
