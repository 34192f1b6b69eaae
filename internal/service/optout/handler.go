package optout

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/consent"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/values"
	consentsvc "github.com/servicelane/sms-compliance-gateway/internal/service/consent"
)

// Classification is what an inbound message turned out to be.
type Classification string

const (
	ClassificationOptOut Classification = "opt_out"
	ClassificationOptIn  Classification = "opt_in"
	ClassificationNone   Classification = "none"
)

// Carrier-mandated keyword sets. Matching is deliberately narrow: the
// normalized message must equal a keyword or start with one followed by a
// space. "Please stop calling me at work" is a conversation, not an opt-out.
var (
	optOutKeywords = []string{
		"stop", "stopall", "stop all", "unsubscribe", "cancel", "end",
		"quit", "opt out", "optout", "remove",
	}
	optInKeywords = []string{
		"start", "yes", "unstop", "subscribe", "optin", "opt in",
	}
)

// Result reports how an inbound message was handled.
type Result struct {
	Classification Classification `json:"classification"`
	Keyword        string         `json:"keyword,omitempty"`
	// Reply is the confirmation the tenant should send back. Carriers exempt
	// these confirmations from the opt-out they confirm.
	Reply     string     `json:"reply,omitempty"`
	ConsentID *uuid.UUID `json:"consent_id,omitempty"`
}

// Recorder is the slice of the consent service the handler drives.
type Recorder interface {
	RecordOptOut(ctx context.Context, tenantID uuid.UUID, phone values.PhoneNumber, reason consent.OptOutReason, triggerMessageID string) error
	RecordConsent(ctx context.Context, req consentsvc.RecordConsentRequest) (*consent.Record, error)
}

// Handler classifies inbound messages and applies the resulting opt-out or
// opt-in state change.
type Handler struct {
	logger   *zap.Logger
	recorder Recorder
}

// NewHandler creates the inbound keyword handler.
func NewHandler(logger *zap.Logger, recorder Recorder) *Handler {
	return &Handler{logger: logger, recorder: recorder}
}

// Classify reports which keyword set, if any, the message body matches. Pure
// and side-effect free.
func Classify(body string) (Classification, string) {
	normalized := strings.ToLower(strings.TrimSpace(body))
	if kw, ok := matchKeyword(normalized, optOutKeywords); ok {
		return ClassificationOptOut, kw
	}
	if kw, ok := matchKeyword(normalized, optInKeywords); ok {
		return ClassificationOptIn, kw
	}
	return ClassificationNone, ""
}

func matchKeyword(normalized string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if normalized == kw || strings.HasPrefix(normalized, kw+" ") {
			return kw, true
		}
	}
	return "", false
}

// HandleInbound classifies the message and records the transition it
// requests. Non-keyword messages pass through untouched.
func (h *Handler) HandleInbound(ctx context.Context, tenantID uuid.UUID, phone values.PhoneNumber, body, messageID string) (*Result, error) {
	classification, keyword := Classify(body)

	switch classification {
	case ClassificationOptOut:
		if err := h.recorder.RecordOptOut(ctx, tenantID, phone, consent.OptOutStopKeyword, messageID); err != nil {
			return nil, err
		}
		h.logger.Info("inbound opt-out recorded",
			zap.String("tenant_id", tenantID.String()),
			zap.String("keyword", keyword),
		)
		return &Result{
			Classification: ClassificationOptOut,
			Keyword:        keyword,
			Reply:          "You have been unsubscribed and will receive no further messages. Reply START to resubscribe.",
		}, nil

	case ClassificationOptIn:
		rec, err := h.recorder.RecordConsent(ctx, consentsvc.RecordConsentRequest{
			TenantID: tenantID,
			Phone:    phone,
			Type:     consent.TypeExpressWritten,
			Source:   consent.SourceTextOptIn,
			Scope:    consent.FullScope(),
			Actor:    "inbound:" + messageID,
		})
		if err != nil {
			return nil, err
		}
		h.logger.Info("inbound opt-in recorded",
			zap.String("tenant_id", tenantID.String()),
			zap.String("keyword", keyword),
		)
		return &Result{
			Classification: ClassificationOptIn,
			Keyword:        keyword,
			Reply:          "You are resubscribed and will receive messages again. Reply STOP to unsubscribe.",
			ConsentID:      &rec.ID,
		}, nil
	}

	return &Result{Classification: ClassificationNone}, nil
}
