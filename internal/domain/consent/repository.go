package consent

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists consent records.
type Repository interface {
	// Save inserts a new consent record.
	Save(ctx context.Context, record *Record) error
	// Update persists changes to an existing record (revoke, in-place upgrade).
	Update(ctx context.Context, record *Record) error
	// GetActive returns the active record for the pair, or a not-found error.
	GetActive(ctx context.Context, tenantID uuid.UUID, phoneHash string) (*Record, error)
	// GetByID returns a record by its ID.
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	// ListByRecipient returns all records for the pair, newest first.
	ListByRecipient(ctx context.Context, tenantID uuid.UUID, phoneHash string) ([]*Record, error)
}

// OptOutRepository persists opt-out records.
type OptOutRepository interface {
	// Save inserts a new opt-out record.
	Save(ctx context.Context, record *OptOutRecord) error
	// Update persists a re-opt-in stamp.
	Update(ctx context.Context, record *OptOutRecord) error
	// GetCurrent returns the opt-out record with ReoptedInAt == nil for the
	// pair, or a not-found error.
	GetCurrent(ctx context.Context, tenantID uuid.UUID, phoneHash string) (*OptOutRecord, error)
}
