package database

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/audit"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
)

// AuditRepository implements audit.Repository on PostgreSQL. The table is
// append-only; no update or delete statements exist in this package.
//
// Expected schema:
//
//	compliance_audit_log (
//	    id uuid primary key,
//	    tenant_id uuid not null,
//	    phone_hash text,
//	    event_type text not null,
//	    actor text not null,
//	    context jsonb,
//	    occurred_at timestamptz not null
//	)
type AuditRepository struct {
	db *pgxpool.Pool
}

// NewAuditRepository creates a PostgreSQL audit repository.
func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry.
func (r *AuditRepository) Append(ctx context.Context, entry *audit.Entry) error {
	var contextJSON []byte
	if entry.Context != nil {
		var err error
		contextJSON, err = json.Marshal(entry.Context)
		if err != nil {
			return errors.NewInternalError("failed to marshal audit context").WithCause(err)
		}
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO compliance_audit_log (id, tenant_id, phone_hash, event_type, actor, context, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.TenantID, entry.PhoneHash, entry.EventType, entry.Actor, contextJSON, entry.OccurredAt)
	if err != nil {
		return errors.NewInternalError("failed to append audit entry").WithCause(err)
	}
	return nil
}
