package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/tenant"
)

// TenantRepository implements tenant.Repository on PostgreSQL.
//
// Expected schema:
//
//	tenants (
//	    id uuid primary key,
//	    name text not null,
//	    from_number text not null,
//	    monthly_message_limit int not null,
//	    default_timezone text not null,
//	    queue_during_quiet_hours boolean not null,
//	    quiet_hours jsonb not null,
//	    created_at timestamptz not null,
//	    updated_at timestamptz not null
//	)
//
//	tenant_monthly_usage (
//	    tenant_id uuid not null,
//	    month text not null,          -- YYYY-MM, UTC
//	    sent_count int not null default 0,
//	    primary key (tenant_id, month)
//	)
type TenantRepository struct {
	db *pgxpool.Pool
}

// NewTenantRepository creates a PostgreSQL tenant repository.
func NewTenantRepository(db *pgxpool.Pool) *TenantRepository {
	return &TenantRepository{db: db}
}

// GetByID returns the tenant profile.
func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, from_number, monthly_message_limit, default_timezone,
		       queue_during_quiet_hours, quiet_hours, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`, id)

	var t tenant.Tenant
	err := row.Scan(
		&t.ID, &t.Name, &t.FromNumber, &t.MonthlyMessageLimit, &t.DefaultTimezone,
		&t.QueueDuringQuietHours, &t.QuietHours, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NewNotFoundError("tenant")
		}
		return nil, errors.NewInternalError("failed to scan tenant").WithCause(err)
	}
	return &t, nil
}

// Save upserts a tenant profile.
func (r *TenantRepository) Save(ctx context.Context, t *tenant.Tenant) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO tenants (id, name, from_number, monthly_message_limit, default_timezone,
		                     queue_during_quiet_hours, quiet_hours, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    from_number = EXCLUDED.from_number,
		    monthly_message_limit = EXCLUDED.monthly_message_limit,
		    default_timezone = EXCLUDED.default_timezone,
		    queue_during_quiet_hours = EXCLUDED.queue_during_quiet_hours,
		    quiet_hours = EXCLUDED.quiet_hours,
		    updated_at = EXCLUDED.updated_at
	`, t.ID, t.Name, t.FromNumber, t.MonthlyMessageLimit, t.DefaultTimezone,
		t.QueueDuringQuietHours, t.QuietHours, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return errors.NewInternalError("failed to save tenant").WithCause(err)
	}
	return nil
}

// MonthlySentCount returns the sent counter for the month, zero when no row
// exists yet.
func (r *TenantRepository) MonthlySentCount(ctx context.Context, tenantID uuid.UUID, monthKey string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT sent_count FROM tenant_monthly_usage
		WHERE tenant_id = $1 AND month = $2
	`, tenantID, monthKey).Scan(&count)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, errors.NewInternalError("failed to read monthly usage").WithCause(err)
	}
	return count, nil
}

// IncrementMonthlySent bumps the counter in a single atomic statement.
// Concurrent gateway invocations for one tenant are expected; read-then-write
// would undercount and let the cap be exceeded.
func (r *TenantRepository) IncrementMonthlySent(ctx context.Context, tenantID uuid.UUID, monthKey string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		INSERT INTO tenant_monthly_usage (tenant_id, month, sent_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, month) DO UPDATE
		SET sent_count = tenant_monthly_usage.sent_count + 1
		RETURNING sent_count
	`, tenantID, monthKey).Scan(&count)
	if err != nil {
		return 0, errors.NewInternalError("failed to increment monthly usage").WithCause(err)
	}
	return count, nil
}
