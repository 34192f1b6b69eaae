package consent

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/audit"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/consent"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/values"
)

// CacheInvalidator is the slice of the decision cache the recorder needs.
// Every consent or opt-out mutation deletes the pair's cached decision
// before returning; the mutation owns both writes, not the caller.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, tenantID uuid.UUID, phoneHash string) error
}

// Recorder records and upgrades consent, records opt-outs, and handles
// re-opt-in. It is the single write path for consent state.
type Recorder struct {
	logger      *zap.Logger
	consentRepo consent.Repository
	optOutRepo  consent.OptOutRepository
	cache       CacheInvalidator
	auditLog    audit.Logger
}

// NewRecorder creates the consent recorder.
func NewRecorder(
	logger *zap.Logger,
	consentRepo consent.Repository,
	optOutRepo consent.OptOutRepository,
	cache CacheInvalidator,
	auditLog audit.Logger,
) *Recorder {
	return &Recorder{
		logger:      logger,
		consentRepo: consentRepo,
		optOutRepo:  optOutRepo,
		cache:       cache,
		auditLog:    auditLog,
	}
}

// RecordConsentRequest carries one consent grant.
type RecordConsentRequest struct {
	TenantID uuid.UUID
	Phone    values.PhoneNumber
	Type     consent.Type
	Source   consent.Source
	Scope    consent.Scope
	Language string
	Actor    string
}

// RecordConsent appends or upgrades consent for the pair and re-links any
// standing opt-out. Recording never deletes history. Recipients may text in
// from two channels nearly simultaneously, so a duplicate-insert race is
// absorbed as a no-op upgrade rather than surfaced as a constraint violation.
func (r *Recorder) RecordConsent(ctx context.Context, req RecordConsentRequest) (*consent.Record, error) {
	if req.Actor == "" {
		req.Actor = "system"
	}
	phoneHash := req.Phone.Hash()

	rec, err := r.upsertConsent(ctx, req, phoneHash)
	if err != nil {
		return nil, err
	}

	// A fresh grant re-enables a recipient who had opted out: stamp the
	// standing opt-out record with the consent that reversed it.
	if err := r.reoptIn(ctx, req.TenantID, phoneHash, rec.ID); err != nil {
		return nil, err
	}

	// Grants only widen what a cached decision would allow, so a failed
	// invalidation here is stale-conservative; log and continue.
	if err := r.cache.Invalidate(ctx, req.TenantID, phoneHash); err != nil {
		r.logger.Warn("decision cache invalidation failed after consent grant",
			zap.String("tenant_id", req.TenantID.String()), zap.Error(err))
	}

	r.auditLog.Record(ctx, audit.NewEntry(req.TenantID, phoneHash, audit.EventConsentRecorded, req.Actor, map[string]interface{}{
		"consent_id":     rec.ID.String(),
		"consent_type":   rec.Type.String(),
		"consent_source": rec.Source.String(),
	}))

	r.logger.Info("consent recorded",
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("consent_id", rec.ID.String()),
		zap.String("consent_type", rec.Type.String()),
	)
	return rec, nil
}

func (r *Recorder) upsertConsent(ctx context.Context, req RecordConsentRequest, phoneHash string) (*consent.Record, error) {
	existing, err := r.consentRepo.GetActive(ctx, req.TenantID, phoneHash)
	if err != nil && !errors.IsNotFound(err) {
		return nil, errors.Wrap(err, "looking up active consent")
	}

	if existing != nil {
		return r.upgradeExisting(ctx, existing, req)
	}

	rec, err := consent.NewRecord(req.TenantID, req.Phone, req.Type, req.Source, req.Scope, req.Language)
	if err != nil {
		return nil, err
	}
	if err := r.consentRepo.Save(ctx, rec); err != nil {
		if errors.IsType(err, errors.ErrorTypeConflict) {
			// Lost the insert race: another channel recorded first. Fold
			// this grant into theirs.
			winner, getErr := r.consentRepo.GetActive(ctx, req.TenantID, phoneHash)
			if getErr != nil {
				return nil, errors.Wrap(getErr, "resolving consent insert race")
			}
			return r.upgradeExisting(ctx, winner, req)
		}
		return nil, err
	}
	return rec, nil
}

// upgradeExisting folds a grant into the active record. A weaker grant than
// the standing one is a no-op, not an error.
func (r *Recorder) upgradeExisting(ctx context.Context, existing *consent.Record, req RecordConsentRequest) (*consent.Record, error) {
	err := existing.Upgrade(req.Type, req.Source, req.Scope, req.Language)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeBusiness) {
			return existing, nil
		}
		return nil, err
	}
	if err := r.consentRepo.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (r *Recorder) reoptIn(ctx context.Context, tenantID uuid.UUID, phoneHash string, consentID uuid.UUID) error {
	optOut, err := r.optOutRepo.GetCurrent(ctx, tenantID, phoneHash)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "looking up standing opt-out")
	}

	if err := optOut.ReoptIn(consentID); err != nil {
		return err
	}
	if err := r.optOutRepo.Update(ctx, optOut); err != nil {
		return err
	}

	r.auditLog.Record(ctx, audit.NewEntry(tenantID, phoneHash, audit.EventOptInRecorded, "system", map[string]interface{}{
		"optout_id":  optOut.ID.String(),
		"consent_id": consentID.String(),
	}))
	return nil
}

// RecordOptOut records an opt-out, revokes any active consent, and deletes
// the pair's cached decision. The invalidation must succeed: a stale
// "can send" must never mask a revocation, so a cache failure here is
// returned to the caller even though the opt-out itself was persisted.
func (r *Recorder) RecordOptOut(ctx context.Context, tenantID uuid.UUID, phone values.PhoneNumber, reason consent.OptOutReason, triggerMessageID string) error {
	phoneHash := phone.Hash()

	// Idempotent: a standing opt-out stays in force.
	if existing, err := r.optOutRepo.GetCurrent(ctx, tenantID, phoneHash); err == nil && existing != nil {
		return nil
	} else if err != nil && !errors.IsNotFound(err) {
		return errors.Wrap(err, "looking up standing opt-out")
	}

	rec, err := consent.NewOptOutRecord(tenantID, phone, reason, triggerMessageID)
	if err != nil {
		return err
	}
	if err := r.optOutRepo.Save(ctx, rec); err != nil {
		return err
	}

	if active, err := r.consentRepo.GetActive(ctx, tenantID, phoneHash); err == nil && active != nil {
		active.Revoke("opt-out: " + reason.String())
		if err := r.consentRepo.Update(ctx, active); err != nil {
			return err
		}
		r.auditLog.Record(ctx, audit.NewEntry(tenantID, phoneHash, audit.EventConsentRevoked, "system", map[string]interface{}{
			"consent_id": active.ID.String(),
			"reason":     reason.String(),
		}))
	} else if err != nil && !errors.IsNotFound(err) {
		return errors.Wrap(err, "looking up active consent")
	}

	r.auditLog.Record(ctx, audit.NewEntry(tenantID, phoneHash, audit.EventOptOutRecorded, "system", map[string]interface{}{
		"optout_id":          rec.ID.String(),
		"reason":             reason.String(),
		"trigger_message_id": triggerMessageID,
	}))

	if err := r.cache.Invalidate(ctx, tenantID, phoneHash); err != nil {
		r.logger.Error("decision cache invalidation failed after opt-out",
			zap.String("tenant_id", tenantID.String()), zap.Error(err))
		return errors.Wrap(err, "opt-out recorded but cache invalidation failed")
	}
	return nil
}
