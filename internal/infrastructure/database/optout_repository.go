package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/consent"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
)

// OptOutRepository implements consent.OptOutRepository on PostgreSQL.
//
// Expected schema:
//
//	optout_records (
//	    id uuid primary key,
//	    tenant_id uuid not null,
//	    phone_hash text not null,
//	    reason text not null,
//	    opted_out_at timestamptz not null,
//	    trigger_message_id text,
//	    reopted_in_at timestamptz,
//	    reopt_in_consent_id uuid,
//	    created_at timestamptz not null
//	)
//	index on (tenant_id, phone_hash) where reopted_in_at is null
type OptOutRepository struct {
	db *pgxpool.Pool
}

// NewOptOutRepository creates a PostgreSQL opt-out repository.
func NewOptOutRepository(db *pgxpool.Pool) *OptOutRepository {
	return &OptOutRepository{db: db}
}

const optOutColumns = `
	id, tenant_id, phone_hash, reason, opted_out_at, trigger_message_id,
	reopted_in_at, reopt_in_consent_id, created_at`

// Save inserts a new opt-out record.
func (r *OptOutRepository) Save(ctx context.Context, rec *consent.OptOutRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO optout_records (`+optOutColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.TenantID, rec.PhoneHash, rec.Reason, rec.OptedOutAt,
		rec.TriggerMessageID, rec.ReoptedInAt, rec.ReoptInConsentID, rec.CreatedAt)
	if err != nil {
		return errors.NewInternalError("failed to insert opt-out record").WithCause(err)
	}
	return nil
}

// Update persists a re-opt-in stamp. Records are never deleted.
func (r *OptOutRepository) Update(ctx context.Context, rec *consent.OptOutRecord) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE optout_records
		SET reopted_in_at = $2, reopt_in_consent_id = $3
		WHERE id = $1
	`, rec.ID, rec.ReoptedInAt, rec.ReoptInConsentID)
	if err != nil {
		return errors.NewInternalError("failed to update opt-out record").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("opt-out record")
	}
	return nil
}

// GetCurrent returns the opt-out record still in force for the pair.
func (r *OptOutRepository) GetCurrent(ctx context.Context, tenantID uuid.UUID, phoneHash string) (*consent.OptOutRecord, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+optOutColumns+`
		FROM optout_records
		WHERE tenant_id = $1 AND phone_hash = $2 AND reopted_in_at IS NULL
		ORDER BY opted_out_at DESC
		LIMIT 1
	`, tenantID, phoneHash)

	var rec consent.OptOutRecord
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.PhoneHash, &rec.Reason, &rec.OptedOutAt,
		&rec.TriggerMessageID, &rec.ReoptedInAt, &rec.ReoptInConsentID, &rec.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NewNotFoundError("opt-out record")
		}
		return nil, errors.NewInternalError("failed to scan opt-out record").WithCause(err)
	}
	return &rec, nil
}
