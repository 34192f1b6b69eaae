package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/dnc"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
)

// DNCRepository implements dnc.Repository on PostgreSQL.
//
// Expected schema:
//
//	dnc_entries (
//	    id uuid primary key,
//	    tenant_id uuid,            -- null means global/registry-wide
//	    phone_hash text not null,
//	    source text not null,
//	    is_active boolean not null,
//	    expires_at timestamptz,
//	    removed_reason text,
//	    added_at timestamptz not null,
//	    updated_at timestamptz not null
//	)
//	index on (phone_hash) where is_active
type DNCRepository struct {
	db *pgxpool.Pool
}

// NewDNCRepository creates a PostgreSQL DNC repository.
func NewDNCRepository(db *pgxpool.Pool) *DNCRepository {
	return &DNCRepository{db: db}
}

const dncColumns = `
	id, tenant_id, phone_hash, source, is_active, expires_at, removed_reason,
	added_at, updated_at`

// Save inserts a new entry.
func (r *DNCRepository) Save(ctx context.Context, entry *dnc.Entry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO dnc_entries (`+dncColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.TenantID, entry.PhoneHash, entry.Source, entry.IsActive,
		entry.ExpiresAt, entry.RemovedReason, entry.AddedAt, entry.UpdatedAt)
	if err != nil {
		return errors.NewInternalError("failed to insert DNC entry").WithCause(err)
	}
	return nil
}

// Update persists deactivation or expiry changes.
func (r *DNCRepository) Update(ctx context.Context, entry *dnc.Entry) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE dnc_entries
		SET is_active = $2, expires_at = $3, removed_reason = $4, updated_at = $5
		WHERE id = $1
	`, entry.ID, entry.IsActive, entry.ExpiresAt, entry.RemovedReason, entry.UpdatedAt)
	if err != nil {
		return errors.NewInternalError("failed to update DNC entry").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("DNC entry")
	}
	return nil
}

// FindMatches returns active entries applying to the pair: global entries
// plus entries scoped to the tenant.
func (r *DNCRepository) FindMatches(ctx context.Context, tenantID uuid.UUID, phoneHash string) ([]*dnc.Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+dncColumns+`
		FROM dnc_entries
		WHERE phone_hash = $1 AND is_active
		  AND (tenant_id IS NULL OR tenant_id = $2)
	`, phoneHash, tenantID)
	if err != nil {
		return nil, errors.NewInternalError("failed to query DNC entries").WithCause(err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ActiveHashes returns the subset of hashes that already have an active
// entry in the same scope.
func (r *DNCRepository) ActiveHashes(ctx context.Context, tenantID *uuid.UUID, phoneHashes []string) (map[string]bool, error) {
	if len(phoneHashes) == 0 {
		return map[string]bool{}, nil
	}

	var rows pgx.Rows
	var err error
	if tenantID == nil {
		rows, err = r.db.Query(ctx, `
			SELECT DISTINCT phone_hash FROM dnc_entries
			WHERE is_active AND tenant_id IS NULL AND phone_hash = ANY($1)
		`, pq.Array(phoneHashes))
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT DISTINCT phone_hash FROM dnc_entries
			WHERE is_active AND tenant_id = $1 AND phone_hash = ANY($2)
		`, *tenantID, pq.Array(phoneHashes))
	}
	if err != nil {
		return nil, errors.NewInternalError("failed to query active DNC hashes").WithCause(err)
	}
	defer rows.Close()

	active := make(map[string]bool, len(phoneHashes))
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, errors.NewInternalError("failed to scan DNC hash").WithCause(err)
		}
		active[hash] = true
	}
	return active, rows.Err()
}

// SaveBatch inserts entries in one round trip.
func (r *DNCRepository) SaveBatch(ctx context.Context, entries []*dnc.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, entry := range entries {
		batch.Queue(`
			INSERT INTO dnc_entries (`+dncColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, entry.ID, entry.TenantID, entry.PhoneHash, entry.Source, entry.IsActive,
			entry.ExpiresAt, entry.RemovedReason, entry.AddedAt, entry.UpdatedAt)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range entries {
		if _, err := results.Exec(); err != nil {
			return errors.NewInternalError("failed to insert DNC batch").WithCause(err)
		}
	}
	return nil
}

func scanEntries(rows pgx.Rows) ([]*dnc.Entry, error) {
	var entries []*dnc.Entry
	for rows.Next() {
		var entry dnc.Entry
		err := rows.Scan(
			&entry.ID, &entry.TenantID, &entry.PhoneHash, &entry.Source, &entry.IsActive,
			&entry.ExpiresAt, &entry.RemovedReason, &entry.AddedAt, &entry.UpdatedAt,
		)
		if err != nil {
			return nil, errors.NewInternalError("failed to scan DNC entry").WithCause(err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
