package compliance

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/audit"
	domaincompliance "github.com/servicelane/sms-compliance-gateway/internal/domain/compliance"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/consent"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/dnc"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/tenant"
	"github.com/servicelane/sms-compliance-gateway/internal/infrastructure/cache"
	"github.com/servicelane/sms-compliance-gateway/internal/infrastructure/metrics"
	"github.com/servicelane/sms-compliance-gateway/internal/infrastructure/telemetry"
)

const engineActor = "compliance_engine"

var _ Service = (*service)(nil)

type service struct {
	logger          *zap.Logger
	tenantRepo      tenant.Repository
	consentRepo     consent.Repository
	optOutRepo      consent.OptOutRepository
	dncRepo         dnc.Repository
	decisionCache   DecisionCache
	auditLog        audit.Logger
	metrics         *metrics.Registry
	defaultTimezone string
}

// NewService creates the decision engine. All dependencies are injected;
// there is no ambient store access.
func NewService(
	logger *zap.Logger,
	tenantRepo tenant.Repository,
	consentRepo consent.Repository,
	optOutRepo consent.OptOutRepository,
	dncRepo dnc.Repository,
	decisionCache DecisionCache,
	auditLog audit.Logger,
	registry *metrics.Registry,
	defaultTimezone string,
) Service {
	return &service{
		logger:          logger,
		tenantRepo:      tenantRepo,
		consentRepo:     consentRepo,
		optOutRepo:      optOutRepo,
		dncRepo:         dncRepo,
		decisionCache:   decisionCache,
		auditLog:        auditLog,
		metrics:         registry,
		defaultTimezone: defaultTimezone,
	}
}

// CheckCompliance evaluates the ordered policy checks. First match wins;
// every blocking branch writes its audit entry synchronously before
// returning, so no caller can skip logging.
func (s *service) CheckCompliance(ctx context.Context, req CheckRequest) (*domaincompliance.CheckResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "compliance.check",
		attribute.String("tenant_id", req.TenantID.String()),
		attribute.String("category", req.Category.String()),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.ComplianceCheckDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}()

	if _, err := domaincompliance.ParseMessageCategory(req.Category.String()); err != nil {
		return nil, err
	}
	if req.Phone.IsEmpty() {
		return nil, errors.NewValidationError("INVALID_PHONE", "phone number is required")
	}

	phoneHash := req.Phone.Hash()
	now := time.Now().UTC()

	// Tenant lookup first: quiet hours and timezone defaults come from the
	// profile. A misconfigured tenant must never bypass the gate by causing
	// an engine failure, so lookup problems are blocks, not crashes.
	tn, err := s.tenantRepo.GetByID(ctx, req.TenantID)
	if err != nil {
		if errors.IsNotFound(err) {
			return s.block(ctx, req, phoneHash, domaincompliance.BlockTenantNotFound, "tenant has no sending profile"), nil
		}
		return s.failClosed(ctx, req, phoneHash, "tenant lookup", err), nil
	}

	// Cache hit: consent/opt-out/DNC fields are reused, quiet hours are
	// always re-evaluated live. Cache errors behave exactly like a miss.
	if !req.SkipCache {
		snap, cacheErr := s.decisionCache.Get(ctx, req.TenantID, phoneHash)
		if cacheErr != nil {
			s.logger.Warn("decision cache read failed, falling through to store",
				zap.String("tenant_id", req.TenantID.String()), zap.Error(cacheErr))
		}
		s.metrics.RecordCache(ctx, snap != nil)
		if snap != nil {
			return s.resultFromSnapshot(ctx, req, tn, phoneHash, snap, now), nil
		}
	} else {
		s.metrics.RecordCache(ctx, false)
	}

	// Opt-out: the hardest block. Any current record stops everything.
	optOut, err := s.optOutRepo.GetCurrent(ctx, req.TenantID, phoneHash)
	if err != nil && !errors.IsNotFound(err) {
		return s.failClosed(ctx, req, phoneHash, "opt-out lookup", err), nil
	}
	if optOut != nil && optOut.IsCurrent() {
		res := s.block(ctx, req, phoneHash, domaincompliance.BlockOptedOut,
			fmt.Sprintf("recipient opted out (%s)", optOut.Reason))
		res.IsOptedOut = true
		return res, nil
	}

	// DNC: global or tenant-scoped, active and unexpired. Complaint entries
	// block transactional too; every other source still permits
	// legally-required transactional notices.
	entries, err := s.dncRepo.FindMatches(ctx, req.TenantID, phoneHash)
	if err != nil {
		return s.failClosed(ctx, req, phoneHash, "DNC lookup", err), nil
	}
	onDNC, complaintDNC := false, false
	for _, entry := range entries {
		if entry.Matches(now) {
			onDNC = true
			if entry.Source.BlocksTransactional() {
				complaintDNC = true
			}
		}
	}
	if onDNC && (req.Category == domaincompliance.CategoryMarketing || complaintDNC) {
		detail := "recipient on do-not-contact list"
		if complaintDNC {
			detail = "complaint-sourced DNC entry blocks all categories"
		}
		res := s.block(ctx, req, phoneHash, domaincompliance.BlockDNC, detail)
		res.IsOnDNC = true
		return res, nil
	}

	// Consent: no active record means no send of any category.
	rec, err := s.consentRepo.GetActive(ctx, req.TenantID, phoneHash)
	if err != nil {
		if errors.IsNotFound(err) {
			return s.block(ctx, req, phoneHash, domaincompliance.BlockNoConsent, "no active consent record"), nil
		}
		return s.failClosed(ctx, req, phoneHash, "consent lookup", err), nil
	}

	result := &domaincompliance.CheckResult{
		HasConsent:           true,
		IsOnDNC:              onDNC,
		CanSendMarketing:     rec.Scope.AllowsMarketing() && !onDNC,
		CanSendTransactional: rec.Scope.AllowsTransactional() && !complaintDNC,
		CheckedAt:            now,
	}

	// Quiet hours, always live. When blocked it overrides every capability.
	quiet := domaincompliance.EvaluateQuietHours(tn.QuietHours, now, req.RecipientTimezone, s.firstTimezone(tn))
	if quiet.Blocked {
		result.IsQuietHours = true
		result.CanSendMarketing = false
		result.CanSendTransactional = false
		result.BlockReason = domaincompliance.BlockQuietHours
		result.BlockDetail = quiet.Reason
		s.auditBlock(ctx, req, phoneHash, domaincompliance.BlockQuietHours, quiet.Reason)
		s.metrics.RecordDecision(ctx, "blocked")
		return result, nil
	}

	// CASL-style expiry applies to implied consent only. Expired consent is
	// a block and the cache must not be populated with it.
	if rec.IsExpired(now) {
		detail := fmt.Sprintf("implied consent expired: %s elapsed", rec.WindowDescription())
		s.auditLog.Record(ctx, audit.NewEntry(req.TenantID, phoneHash, audit.EventConsentExpired, engineActor, map[string]interface{}{
			"consent_id": rec.ID.String(),
			"window":     rec.WindowDescription(),
			"category":   req.Category.String(),
		}))
		s.metrics.RecordDecision(ctx, "blocked")
		s.metrics.RecordBlock(ctx, domaincompliance.BlockConsentExpired.String())
		blocked := domaincompliance.Blocked(domaincompliance.BlockConsentExpired, detail)
		blocked.HasConsent = true
		blocked.IsOnDNC = onDNC
		return blocked, nil
	}
	if rec.ExpiringSoon(now) {
		result.AddWarning(fmt.Sprintf("implied consent expires soon (%s)", rec.WindowDescription()))
	}
	if rec.NeedsReconfirmation(now) {
		result.AddWarning("consent is over a year old; consider re-confirming")
	}

	// Valid standing consent: snapshot the consent-derived fields. Quiet
	// hours never enter the cache.
	if err := s.decisionCache.Set(ctx, req.TenantID, phoneHash, &cache.DecisionSnapshot{
		HasConsent:           true,
		IsOnDNC:              onDNC,
		CanSendMarketing:     result.CanSendMarketing,
		CanSendTransactional: result.CanSendTransactional,
		Warnings:             result.Warnings,
	}); err != nil {
		s.logger.Warn("decision cache write failed",
			zap.String("tenant_id", req.TenantID.String()), zap.Error(err))
	}

	return s.finishCategory(ctx, req, phoneHash, result), nil
}

// resultFromSnapshot rebuilds a decision from cached consent-derived fields,
// layering a live quiet-hours evaluation on top.
func (s *service) resultFromSnapshot(ctx context.Context, req CheckRequest, tn *tenant.Tenant, phoneHash string, snap *cache.DecisionSnapshot, now time.Time) *domaincompliance.CheckResult {
	result := &domaincompliance.CheckResult{
		HasConsent:           snap.HasConsent,
		IsOptedOut:           snap.IsOptedOut,
		IsOnDNC:              snap.IsOnDNC,
		CanSendMarketing:     snap.CanSendMarketing,
		CanSendTransactional: snap.CanSendTransactional,
		Warnings:             snap.Warnings,
		CheckedAt:            now,
		FromCache:            true,
	}

	quiet := domaincompliance.EvaluateQuietHours(tn.QuietHours, now, req.RecipientTimezone, s.firstTimezone(tn))
	if quiet.Blocked {
		result.IsQuietHours = true
		result.CanSendMarketing = false
		result.CanSendTransactional = false
		result.BlockReason = domaincompliance.BlockQuietHours
		result.BlockDetail = quiet.Reason
		s.auditBlock(ctx, req, phoneHash, domaincompliance.BlockQuietHours, quiet.Reason)
		s.metrics.RecordDecision(ctx, "blocked")
		return result
	}

	return s.finishCategory(ctx, req, phoneHash, result)
}

// finishCategory resolves CanSend for the requested category on a result
// whose capabilities are already settled.
func (s *service) finishCategory(ctx context.Context, req CheckRequest, phoneHash string, result *domaincompliance.CheckResult) *domaincompliance.CheckResult {
	if !result.AllowsCategory(req.Category) {
		result.CanSend = false
		result.BlockReason = domaincompliance.BlockCategoryNotConsented
		result.BlockDetail = fmt.Sprintf("consent scope does not cover %s messages", req.Category)
		s.auditBlock(ctx, req, phoneHash, domaincompliance.BlockCategoryNotConsented, result.BlockDetail)
		s.metrics.RecordDecision(ctx, "blocked")
		return result
	}

	result.CanSend = true
	s.metrics.RecordDecision(ctx, "allowed")
	return result
}

// block builds a blocked result and writes its audit entry.
func (s *service) block(ctx context.Context, req CheckRequest, phoneHash string, reason domaincompliance.BlockReason, detail string) *domaincompliance.CheckResult {
	s.auditBlock(ctx, req, phoneHash, reason, detail)
	s.metrics.RecordDecision(ctx, "blocked")
	return domaincompliance.Blocked(reason, detail)
}

// failClosed converts a store failure into a block. Lookup errors must never
// fail open: a broken store cannot become a license to send.
func (s *service) failClosed(ctx context.Context, req CheckRequest, phoneHash, stage string, err error) *domaincompliance.CheckResult {
	s.logger.Error("compliance check store failure, failing closed",
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("stage", stage),
		zap.Error(err),
	)
	return s.block(ctx, req, phoneHash, domaincompliance.BlockCheckFailed,
		fmt.Sprintf("%s failed; denying by default", stage))
}

func (s *service) auditBlock(ctx context.Context, req CheckRequest, phoneHash string, reason domaincompliance.BlockReason, detail string) {
	s.metrics.RecordBlock(ctx, reason.String())
	s.auditLog.Record(ctx, audit.NewEntry(req.TenantID, phoneHash, audit.EventMessageBlocked, engineActor, map[string]interface{}{
		"reason":   reason.String(),
		"detail":   detail,
		"category": req.Category.String(),
	}))
}

func (s *service) firstTimezone(tn *tenant.Tenant) string {
	if tn.DefaultTimezone != "" {
		return tn.DefaultTimezone
	}
	return s.defaultTimezone
}
