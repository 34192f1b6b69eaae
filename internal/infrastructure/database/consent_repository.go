package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/consent"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
)

// ConsentRepository implements consent.Repository on PostgreSQL.
//
// Expected schema:
//
//	consent_records (
//	    id uuid primary key,
//	    tenant_id uuid not null,
//	    phone_hash text not null,
//	    phone_number text not null,
//	    consent_type text not null,
//	    consent_source text not null,
//	    scope_marketing boolean not null,
//	    scope_transactional boolean not null,
//	    scope_promotional boolean not null,
//	    scope_reminders boolean not null,
//	    consent_language text,
//	    consented_at timestamptz not null,
//	    is_active boolean not null,
//	    revoked_at timestamptz,
//	    revoked_reason text,
//	    created_at timestamptz not null,
//	    updated_at timestamptz not null
//	)
//	unique partial index on (tenant_id, phone_hash) where is_active
type ConsentRepository struct {
	db *pgxpool.Pool
}

// NewConsentRepository creates a PostgreSQL consent repository.
func NewConsentRepository(db *pgxpool.Pool) *ConsentRepository {
	return &ConsentRepository{db: db}
}

const consentColumns = `
	id, tenant_id, phone_hash, phone_number, consent_type, consent_source,
	scope_marketing, scope_transactional, scope_promotional, scope_reminders,
	consent_language, consented_at, is_active, revoked_at, revoked_reason,
	created_at, updated_at`

// Save inserts a new consent record. A unique-violation on the active-pair
// index is mapped to a conflict error so callers can treat the duplicate
// race as a no-op upgrade.
func (r *ConsentRepository) Save(ctx context.Context, rec *consent.Record) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO consent_records (`+consentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, rec.ID, rec.TenantID, rec.PhoneHash, rec.PhoneNumber, rec.Type, rec.Source,
		rec.Scope.Marketing, rec.Scope.Transactional, rec.Scope.Promotional, rec.Scope.Reminders,
		rec.Language, rec.ConsentedAt, rec.IsActive, rec.RevokedAt, rec.RevokedReason,
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.NewConflictError("active consent already exists for recipient").WithCause(err)
		}
		return errors.NewInternalError("failed to insert consent record").WithCause(err)
	}
	return nil
}

// Update persists revocation or in-place upgrade of an existing record.
func (r *ConsentRepository) Update(ctx context.Context, rec *consent.Record) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE consent_records
		SET consent_type = $2, consent_source = $3,
		    scope_marketing = $4, scope_transactional = $5,
		    scope_promotional = $6, scope_reminders = $7,
		    consent_language = $8, consented_at = $9, is_active = $10,
		    revoked_at = $11, revoked_reason = $12, updated_at = $13
		WHERE id = $1
	`, rec.ID, rec.Type, rec.Source,
		rec.Scope.Marketing, rec.Scope.Transactional, rec.Scope.Promotional, rec.Scope.Reminders,
		rec.Language, rec.ConsentedAt, rec.IsActive, rec.RevokedAt, rec.RevokedReason, rec.UpdatedAt)
	if err != nil {
		return errors.NewInternalError("failed to update consent record").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("consent record")
	}
	return nil
}

// GetActive returns the single active record for the pair.
func (r *ConsentRepository) GetActive(ctx context.Context, tenantID uuid.UUID, phoneHash string) (*consent.Record, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+consentColumns+`
		FROM consent_records
		WHERE tenant_id = $1 AND phone_hash = $2 AND is_active
	`, tenantID, phoneHash)
	return scanConsent(row)
}

// GetByID returns a record by primary key.
func (r *ConsentRepository) GetByID(ctx context.Context, id uuid.UUID) (*consent.Record, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+consentColumns+`
		FROM consent_records
		WHERE id = $1
	`, id)
	return scanConsent(row)
}

// ListByRecipient returns all records for the pair, newest first.
func (r *ConsentRepository) ListByRecipient(ctx context.Context, tenantID uuid.UUID, phoneHash string) ([]*consent.Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+consentColumns+`
		FROM consent_records
		WHERE tenant_id = $1 AND phone_hash = $2
		ORDER BY created_at DESC
	`, tenantID, phoneHash)
	if err != nil {
		return nil, errors.NewInternalError("failed to list consent records").WithCause(err)
	}
	defer rows.Close()

	var records []*consent.Record
	for rows.Next() {
		rec, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanConsent(row pgx.Row) (*consent.Record, error) {
	var rec consent.Record
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.PhoneHash, &rec.PhoneNumber, &rec.Type, &rec.Source,
		&rec.Scope.Marketing, &rec.Scope.Transactional, &rec.Scope.Promotional, &rec.Scope.Reminders,
		&rec.Language, &rec.ConsentedAt, &rec.IsActive, &rec.RevokedAt, &rec.RevokedReason,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NewNotFoundError("consent record")
		}
		return nil, errors.NewInternalError("failed to scan consent record").WithCause(err)
	}
	return &rec, nil
}
