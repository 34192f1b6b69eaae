package dnc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/audit"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/dnc"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/values"
)

// importBatchSize bounds one insert round trip during bulk imports.
const importBatchSize = 1000

// CacheInvalidator deletes the cached decision for a pair after a registry
// mutation.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, tenantID uuid.UUID, phoneHash string) error
}

// Registry manages do-not-contact entries: single adds and removals plus
// bulk imports from national registry dumps.
type Registry struct {
	logger   *zap.Logger
	repo     dnc.Repository
	cache    CacheInvalidator
	auditLog audit.Logger
}

// NewRegistry creates the DNC registry service.
func NewRegistry(logger *zap.Logger, repo dnc.Repository, cache CacheInvalidator, auditLog audit.Logger) *Registry {
	return &Registry{logger: logger, repo: repo, cache: cache, auditLog: auditLog}
}

// AddToDnc registers a number. Pass a nil tenantID for a registry-wide entry.
// Adding a number that already has an active entry in the same scope is a
// no-op; the standing entry is returned.
func (r *Registry) AddToDnc(ctx context.Context, tenantID *uuid.UUID, phone values.PhoneNumber, source dnc.Source) (*dnc.Entry, error) {
	entry, err := dnc.NewEntry(tenantID, phone, source)
	if err != nil {
		return nil, err
	}

	existing, err := r.repo.ActiveHashes(ctx, tenantID, []string{entry.PhoneHash})
	if err != nil {
		return nil, errors.Wrap(err, "checking for standing DNC entry")
	}
	if existing[entry.PhoneHash] {
		matches, err := r.repo.FindMatches(ctx, scopeTenant(tenantID), entry.PhoneHash)
		if err != nil {
			return nil, errors.Wrap(err, "loading standing DNC entry")
		}
		for _, m := range matches {
			if m.IsActive && sameScope(m.TenantID, tenantID) {
				return m, nil
			}
		}
	}

	if err := r.repo.Save(ctx, entry); err != nil {
		return nil, err
	}
	r.invalidateScope(ctx, tenantID, entry.PhoneHash)
	r.auditLog.Record(ctx, audit.NewEntry(scopeTenant(tenantID), entry.PhoneHash, audit.EventDNCAdded, "dnc_registry", map[string]interface{}{
		"entry_id": entry.ID.String(),
		"source":   source.String(),
		"global":   entry.IsGlobal(),
	}))
	return entry, nil
}

// RemoveFromDnc deactivates the matching entries in the given scope. Rows
// stay behind with the removal reason; the registry is append-only history.
func (r *Registry) RemoveFromDnc(ctx context.Context, tenantID *uuid.UUID, phone values.PhoneNumber, reason string) error {
	if reason == "" {
		return errors.NewValidationError("MISSING_REASON", "a removal reason is required")
	}
	phoneHash := phone.Hash()

	matches, err := r.repo.FindMatches(ctx, scopeTenant(tenantID), phoneHash)
	if err != nil {
		return errors.Wrap(err, "loading DNC entries")
	}

	removed := 0
	for _, entry := range matches {
		if !entry.IsActive || !sameScope(entry.TenantID, tenantID) {
			continue
		}
		entry.Deactivate(reason)
		if err := r.repo.Update(ctx, entry); err != nil {
			return err
		}
		removed++
		r.auditLog.Record(ctx, audit.NewEntry(scopeTenant(tenantID), phoneHash, audit.EventDNCRemoved, "dnc_registry", map[string]interface{}{
			"entry_id": entry.ID.String(),
			"reason":   reason,
		}))
	}
	if removed == 0 {
		return errors.NewNotFoundError("DNC entry")
	}

	r.invalidateScope(ctx, tenantID, phoneHash)
	return nil
}

// ImportResult summarizes one bulk import run.
type ImportResult struct {
	Total      int `json:"total"`
	Added      int `json:"added"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

// BulkImport loads a list of raw phone numbers into the registry in batches.
// Numbers already listed in the scope count as duplicates, malformed numbers
// count as errors, and neither aborts the run. Re-running the same file is
// safe: the second pass adds nothing.
func (r *Registry) BulkImport(ctx context.Context, tenantID *uuid.UUID, rawNumbers []string, source dnc.Source) (*ImportResult, error) {
	if _, err := dnc.ParseSource(source.String()); err != nil {
		return nil, err
	}

	result := &ImportResult{Total: len(rawNumbers)}
	start := time.Now()

	for offset := 0; offset < len(rawNumbers); offset += importBatchSize {
		end := offset + importBatchSize
		if end > len(rawNumbers) {
			end = len(rawNumbers)
		}
		if err := r.importBatch(ctx, tenantID, rawNumbers[offset:end], source, result); err != nil {
			return nil, err
		}
	}

	r.logger.Info("DNC bulk import complete",
		zap.Int("total", result.Total),
		zap.Int("added", result.Added),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("errors", result.Errors),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (r *Registry) importBatch(ctx context.Context, tenantID *uuid.UUID, rawNumbers []string, source dnc.Source, result *ImportResult) error {
	entries := make([]*dnc.Entry, 0, len(rawNumbers))
	seen := make(map[string]bool, len(rawNumbers))
	hashes := make([]string, 0, len(rawNumbers))

	for _, raw := range rawNumbers {
		phone, err := values.NewPhoneNumber(raw)
		if err != nil {
			result.Errors++
			continue
		}
		entry, err := dnc.NewEntry(tenantID, phone, source)
		if err != nil {
			result.Errors++
			continue
		}
		if seen[entry.PhoneHash] {
			result.Duplicates++
			continue
		}
		seen[entry.PhoneHash] = true
		entries = append(entries, entry)
		hashes = append(hashes, entry.PhoneHash)
	}
	if len(entries) == 0 {
		return nil
	}

	active, err := r.repo.ActiveHashes(ctx, tenantID, hashes)
	if err != nil {
		return errors.Wrap(err, "deduplicating import batch")
	}

	fresh := entries[:0]
	for _, entry := range entries {
		if active[entry.PhoneHash] {
			result.Duplicates++
			continue
		}
		fresh = append(fresh, entry)
	}
	if len(fresh) == 0 {
		return nil
	}

	if err := r.repo.SaveBatch(ctx, fresh); err != nil {
		return errors.Wrap(err, "inserting import batch")
	}
	result.Added += len(fresh)

	for _, entry := range fresh {
		r.invalidateScope(ctx, tenantID, entry.PhoneHash)
	}
	return nil
}

// invalidateScope drops the cached decision for the pair. Global entries
// affect every tenant; those cached decisions expire on their own TTL, which
// is the accepted staleness bound for registry-wide imports.
func (r *Registry) invalidateScope(ctx context.Context, tenantID *uuid.UUID, phoneHash string) {
	if tenantID == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, *tenantID, phoneHash); err != nil {
		r.logger.Warn("decision cache invalidation failed after DNC change",
			zap.String("tenant_id", tenantID.String()), zap.Error(err))
	}
}

// scopeTenant maps a nil (global) scope onto the zero UUID used by lookups
// and audit rows.
func scopeTenant(tenantID *uuid.UUID) uuid.UUID {
	if tenantID == nil {
		return uuid.Nil
	}
	return *tenantID
}

func sameScope(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
