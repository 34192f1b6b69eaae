package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
)

// DecisionSnapshot is the cacheable portion of a compliance decision: the
// consent/opt-out/DNC-derived fields only. Quiet hours are time-volatile and
// are never part of a snapshot.
type DecisionSnapshot struct {
	HasConsent           bool      `json:"has_consent"`
	IsOptedOut           bool      `json:"is_opted_out"`
	IsOnDNC              bool      `json:"is_on_dnc"`
	CanSendMarketing     bool      `json:"can_send_marketing"`
	CanSendTransactional bool      `json:"can_send_transactional"`
	Warnings             []string  `json:"warnings,omitempty"`
	CachedAt             time.Time `json:"cached_at"`
}

// DecisionCache is a read-through accelerator over the authoritative stores.
// It is never a source of truth: every consent/opt-out mutation deletes the
// entry for its pair before returning.
type DecisionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDecisionCache creates a decision cache with the given TTL.
func NewDecisionCache(client *redis.Client, ttl time.Duration) *DecisionCache {
	return &DecisionCache{client: client, ttl: ttl}
}

// Get returns the snapshot for the pair, or nil on a miss. Backend errors
// are reported so the caller can count them, but a caller must treat them
// exactly like a miss and fall through to the store.
func (c *DecisionCache) Get(ctx context.Context, tenantID uuid.UUID, phoneHash string) (*DecisionSnapshot, error) {
	data, err := c.client.Get(ctx, c.key(tenantID, phoneHash)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, errors.NewInternalError("decision cache read failed").WithCause(err)
	}

	var snap DecisionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.NewInternalError("decision cache entry corrupt").WithCause(err)
	}
	return &snap, nil
}

// Set stores a snapshot under the fixed TTL.
func (c *DecisionCache) Set(ctx context.Context, tenantID uuid.UUID, phoneHash string, snap *DecisionSnapshot) error {
	snap.CachedAt = time.Now().UTC()
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.NewInternalError("failed to marshal decision snapshot").WithCause(err)
	}
	if err := c.client.Set(ctx, c.key(tenantID, phoneHash), data, c.ttl).Err(); err != nil {
		return errors.NewInternalError("decision cache write failed").WithCause(err)
	}
	return nil
}

// Invalidate deletes the entry for the pair. Deletion, not update: a stale
// "can send" must never outlive a revocation beyond the TTL.
func (c *DecisionCache) Invalidate(ctx context.Context, tenantID uuid.UUID, phoneHash string) error {
	if err := c.client.Del(ctx, c.key(tenantID, phoneHash)).Err(); err != nil {
		return errors.NewInternalError("decision cache invalidation failed").WithCause(err)
	}
	return nil
}

func (c *DecisionCache) key(tenantID uuid.UUID, phoneHash string) string {
	return fmt.Sprintf("compliance:decision:%s:%s", tenantID, phoneHash)
}
