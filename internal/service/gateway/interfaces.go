package gateway

import (
	"context"

	"github.com/google/uuid"

	domainconsent "github.com/servicelane/sms-compliance-gateway/internal/domain/consent"
	consentsvc "github.com/servicelane/sms-compliance-gateway/internal/service/consent"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/compliance"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/values"
)

// Service is the single entry point for outbound messages. Nothing sends
// around it.
type Service interface {
	// SendCompliantMessage runs the full pipeline: monthly cap, consent
	// auto-recording, compliance check, quiet-hour queueing, rate limiting,
	// delivery, and usage accounting. Exactly one of the result statuses is
	// returned; policy blocks are results, not errors.
	SendCompliantMessage(ctx context.Context, req SendRequest) (*SendResult, error)
}

// Transport delivers one raw message through the upstream SMS provider and
// returns the provider's message identifier.
type Transport interface {
	SendRawMessage(ctx context.Context, to, from, body string, mediaURLs []string) (string, error)
}

// ConsentRecorder is the slice of the consent service the gateway needs for
// auto-recording a basis supplied with a send.
type ConsentRecorder interface {
	RecordConsent(ctx context.Context, req consentsvc.RecordConsentRequest) (*domainconsent.Record, error)
}

// SendRequest carries one outbound message through the gateway.
type SendRequest struct {
	TenantID          uuid.UUID
	Phone             values.PhoneNumber
	Body              string
	MediaURLs         []string
	Category          compliance.MessageCategory
	RecipientTimezone string
	// DisableQueueing turns a quiet-hours hold into a hard block for this
	// message even when the tenant queues by default. Used for time-bound
	// content that is useless after the window ends.
	DisableQueueing bool
	// ConsentBasis, when present, is recorded before the compliance check.
	// First-contact flows (a missed call, a form submission) arrive with the
	// basis and the message in the same request.
	ConsentBasis *ConsentBasis
}

// Status is the terminal state of a gateway invocation.
type Status string

const (
	StatusSent    Status = "sent"
	StatusQueued  Status = "queued"
	StatusBlocked Status = "blocked"
)

// SendResult reports what the gateway did with the message.
type SendResult struct {
	Status      Status                   `json:"status"`
	MessageID   string                   `json:"message_id,omitempty"`
	BlockReason compliance.BlockReason   `json:"block_reason,omitempty"`
	BlockDetail string                   `json:"block_detail,omitempty"`
	ConsentID   *uuid.UUID               `json:"consent_id,omitempty"`
	MonthlySent int                      `json:"monthly_sent,omitempty"`
	Warnings    []string                 `json:"warnings,omitempty"`
}
