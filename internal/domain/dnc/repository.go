package dnc

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists do-not-contact entries.
type Repository interface {
	// Save inserts a new entry.
	Save(ctx context.Context, entry *Entry) error
	// Update persists deactivation or expiry changes.
	Update(ctx context.Context, entry *Entry) error
	// FindMatches returns all active entries that apply to the pair: global
	// entries plus entries scoped to the tenant. Expiry is evaluated by the
	// caller against its notion of now.
	FindMatches(ctx context.Context, tenantID uuid.UUID, phoneHash string) ([]*Entry, error)
	// ActiveHashes returns the subset of the given hashes that already have
	// an active entry in the same scope. Used to deduplicate bulk imports.
	ActiveHashes(ctx context.Context, tenantID *uuid.UUID, phoneHashes []string) (map[string]bool, error)
	// SaveBatch inserts entries in one round trip.
	SaveBatch(ctx context.Context, entries []*Entry) error
}
