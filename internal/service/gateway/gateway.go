package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/audit"
	domaincompliance "github.com/servicelane/sms-compliance-gateway/internal/domain/compliance"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/consent"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/tenant"
	"github.com/servicelane/sms-compliance-gateway/internal/infrastructure/metrics"
	"github.com/servicelane/sms-compliance-gateway/internal/infrastructure/telemetry"
	compliancesvc "github.com/servicelane/sms-compliance-gateway/internal/service/compliance"
	consentsvc "github.com/servicelane/sms-compliance-gateway/internal/service/consent"
)

const gatewayActor = "gateway"

var _ Service = (*service)(nil)

type service struct {
	logger     *zap.Logger
	tenantRepo tenant.Repository
	compliance compliancesvc.Service
	recorder   ConsentRecorder
	transport  Transport
	auditLog   audit.Logger
	metrics    *metrics.Registry

	limiterRate  rate.Limit
	limiterBurst int
	mu           sync.Mutex
	limiters     map[uuid.UUID]*rate.Limiter
}

// NewService creates the gateway. ratePerSecond and burst bound each tenant's
// outbound throughput toward the provider.
func NewService(
	logger *zap.Logger,
	tenantRepo tenant.Repository,
	complianceSvc compliancesvc.Service,
	recorder ConsentRecorder,
	transport Transport,
	auditLog audit.Logger,
	registry *metrics.Registry,
	ratePerSecond float64,
	burst int,
) Service {
	return &service{
		logger:       logger,
		tenantRepo:   tenantRepo,
		compliance:   complianceSvc,
		recorder:     recorder,
		transport:    transport,
		auditLog:     auditLog,
		metrics:      registry,
		limiterRate:  rate.Limit(ratePerSecond),
		limiterBurst: burst,
		limiters:     make(map[uuid.UUID]*rate.Limiter),
	}
}

// SendCompliantMessage runs the pipeline in order: monthly cap, consent
// basis recording, compliance check, quiet-hour disposition, rate limit,
// delivery, accounting. The first blocking stage wins.
func (s *service) SendCompliantMessage(ctx context.Context, req SendRequest) (*SendResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.send",
		attribute.String("tenant_id", req.TenantID.String()),
		attribute.String("category", req.Category.String()),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.SendDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}()

	if req.Body == "" {
		return nil, errors.NewValidationError("EMPTY_BODY", "message body is required")
	}
	if req.Phone.IsEmpty() {
		return nil, errors.NewValidationError("INVALID_PHONE", "phone number is required")
	}
	if _, err := domaincompliance.ParseMessageCategory(req.Category.String()); err != nil {
		return nil, err
	}

	phoneHash := req.Phone.Hash()

	tn, err := s.tenantRepo.GetByID(ctx, req.TenantID)
	if err != nil {
		if errors.IsNotFound(err) {
			return s.blocked(ctx, req, phoneHash, domaincompliance.BlockTenantNotFound, "tenant has no sending profile", nil), nil
		}
		return nil, errors.Wrap(err, "loading tenant")
	}

	// Monthly cap comes before everything else, including consent recording.
	// A tenant at its limit must not keep accumulating consent side effects
	// off failed sends.
	monthKey := tenant.MonthKey(time.Now().UTC())
	sent, err := s.tenantRepo.MonthlySentCount(ctx, req.TenantID, monthKey)
	if err != nil {
		return nil, errors.Wrap(err, "reading monthly usage")
	}
	if tn.AtMonthlyLimit(sent) {
		detail := fmt.Sprintf("monthly message limit of %d reached", tn.MonthlyMessageLimit)
		return s.blocked(ctx, req, phoneHash, domaincompliance.BlockMonthlyLimit, detail, nil), nil
	}

	// Record the consent basis, if one rode in with the send. The check that
	// follows skips the decision cache so it observes this write.
	var consentID *uuid.UUID
	var basisWarnings []string
	if req.ConsentBasis != nil {
		rec, err := s.recordBasis(ctx, req)
		if err != nil {
			return nil, err
		}
		consentID = &rec.ID
	}

	checkReq := compliancesvc.CheckRequest{
		TenantID:          req.TenantID,
		Phone:             req.Phone,
		Category:          req.Category,
		RecipientTimezone: req.RecipientTimezone,
		SkipCache:         req.ConsentBasis != nil,
	}
	result, err := s.compliance.CheckCompliance(ctx, checkReq)
	if err != nil {
		return nil, err
	}

	if !result.CanSend {
		// A consent write in this request can race a read replica and come
		// back "no consent". We hold the write in hand, so proceed and flag
		// the send rather than refusing a recipient who just opted in.
		if result.BlockReason == domaincompliance.BlockNoConsent && consentID != nil {
			basisWarnings = append(basisWarnings, "consent recorded in this request; compliance check had not observed it yet")
			s.logger.Warn("proceeding past stale no-consent result for first-contact send",
				zap.String("tenant_id", req.TenantID.String()),
				zap.String("consent_id", consentID.String()),
			)
		} else if result.BlockReason == domaincompliance.BlockQuietHours && tn.QueueDuringQuietHours && !req.DisableQueueing {
			return s.queued(ctx, req, phoneHash, result.BlockDetail, consentID, result.Warnings), nil
		} else {
			res := s.blocked(ctx, req, phoneHash, result.BlockReason, result.BlockDetail, consentID)
			res.Warnings = result.Warnings
			return res, nil
		}
	}

	if !s.limiter(req.TenantID).Allow() {
		return s.blocked(ctx, req, phoneHash, domaincompliance.BlockRateLimited,
			"tenant outbound rate limit exceeded", consentID), nil
	}

	messageID, err := s.transport.SendRawMessage(ctx, req.Phone.String(), tn.FromNumber.String(), req.Body, req.MediaURLs)
	if err != nil {
		s.metrics.RecordSendOutcome(ctx, "failed")
		s.auditLog.Record(ctx, audit.NewEntry(req.TenantID, phoneHash, audit.EventSendFailed, gatewayActor, map[string]interface{}{
			"category": req.Category.String(),
			"error":    err.Error(),
		}))
		return nil, errors.NewExternalError("sms_provider", "message delivery failed").WithCause(err)
	}

	newCount, err := s.tenantRepo.IncrementMonthlySent(ctx, req.TenantID, monthKey)
	if err != nil {
		// The message is already out; accounting failure cannot unsend it.
		s.logger.Error("monthly usage increment failed after successful send",
			zap.String("tenant_id", req.TenantID.String()), zap.Error(err))
		newCount = sent + 1
	}

	s.metrics.RecordSendOutcome(ctx, "sent")
	s.auditLog.Record(ctx, audit.NewEntry(req.TenantID, phoneHash, audit.EventMessageSent, gatewayActor, map[string]interface{}{
		"message_id":   messageID,
		"category":     req.Category.String(),
		"monthly_sent": newCount,
	}))

	return &SendResult{
		Status:      StatusSent,
		MessageID:   messageID,
		ConsentID:   consentID,
		MonthlySent: newCount,
		Warnings:    append(basisWarnings, result.Warnings...),
	}, nil
}

func (s *service) recordBasis(ctx context.Context, req SendRequest) (*consent.Record, error) {
	if _, err := ParseBasisKind(string(req.ConsentBasis.Kind)); err != nil {
		return nil, err
	}
	consentType, source := req.ConsentBasis.consentGrant()
	return s.recorder.RecordConsent(ctx, consentsvc.RecordConsentRequest{
		TenantID: req.TenantID,
		Phone:    req.Phone,
		Type:     consentType,
		Source:   source,
		Scope:    consent.FullScope(),
		Language: req.ConsentBasis.Language,
		Actor:    "gateway:" + req.ConsentBasis.Reference,
	})
}

func (s *service) queued(ctx context.Context, req SendRequest, phoneHash, detail string, consentID *uuid.UUID, warnings []string) *SendResult {
	s.metrics.RecordSendOutcome(ctx, "queued")
	s.auditLog.Record(ctx, audit.NewEntry(req.TenantID, phoneHash, audit.EventMessageQueued, gatewayActor, map[string]interface{}{
		"category": req.Category.String(),
		"detail":   detail,
	}))
	return &SendResult{
		Status:      StatusQueued,
		BlockReason: domaincompliance.BlockQuietHours,
		BlockDetail: detail,
		ConsentID:   consentID,
		Warnings:    warnings,
	}
}

// blocked builds the terminal blocked result. Stages inside the compliance
// engine audit their own blocks; gateway-level stages (cap, rate limit,
// tenant lookup) audit here.
func (s *service) blocked(ctx context.Context, req SendRequest, phoneHash string, reason domaincompliance.BlockReason, detail string, consentID *uuid.UUID) *SendResult {
	s.metrics.RecordSendOutcome(ctx, "blocked")
	switch reason {
	case domaincompliance.BlockMonthlyLimit, domaincompliance.BlockRateLimited, domaincompliance.BlockTenantNotFound:
		s.auditLog.Record(ctx, audit.NewEntry(req.TenantID, phoneHash, audit.EventMessageBlocked, gatewayActor, map[string]interface{}{
			"reason":   reason.String(),
			"detail":   detail,
			"category": req.Category.String(),
		}))
	}
	return &SendResult{
		Status:      StatusBlocked,
		BlockReason: reason,
		BlockDetail: detail,
		ConsentID:   consentID,
	}
}

func (s *service) limiter(tenantID uuid.UUID) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[tenantID]
	if !ok {
		l = rate.NewLimiter(s.limiterRate, s.limiterBurst)
		s.limiters[tenantID] = l
	}
	return l
}
