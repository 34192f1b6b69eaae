// Package testutil provides in-memory doubles for the persistence and
// transport ports, used across service tests.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/audit"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/consent"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/dnc"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/tenant"
	"github.com/servicelane/sms-compliance-gateway/internal/infrastructure/cache"
)

// ConsentRepo is an in-memory consent.Repository.
type ConsentRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*consent.Record
	// FailWith, when set, is returned from every call.
	FailWith error
}

func NewConsentRepo() *ConsentRepo {
	return &ConsentRepo{records: make(map[uuid.UUID]*consent.Record)}
}

func (r *ConsentRepo) Save(ctx context.Context, rec *consent.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	for _, existing := range r.records {
		if existing.TenantID == rec.TenantID && existing.PhoneHash == rec.PhoneHash && existing.IsActive {
			return errors.NewConflictError("active consent already exists")
		}
	}
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

func (r *ConsentRepo) Update(ctx context.Context, rec *consent.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	if _, ok := r.records[rec.ID]; !ok {
		return errors.NewNotFoundError("consent record")
	}
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

func (r *ConsentRepo) GetActive(ctx context.Context, tenantID uuid.UUID, phoneHash string) (*consent.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	for _, rec := range r.records {
		if rec.TenantID == tenantID && rec.PhoneHash == phoneHash && rec.IsActive {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, errors.NewNotFoundError("consent record")
}

func (r *ConsentRepo) GetByID(ctx context.Context, id uuid.UUID) (*consent.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	rec, ok := r.records[id]
	if !ok {
		return nil, errors.NewNotFoundError("consent record")
	}
	cp := *rec
	return &cp, nil
}

func (r *ConsentRepo) ListByRecipient(ctx context.Context, tenantID uuid.UUID, phoneHash string) ([]*consent.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	var out []*consent.Record
	for _, rec := range r.records {
		if rec.TenantID == tenantID && rec.PhoneHash == phoneHash {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Seed stores a record directly, bypassing the active-uniqueness check.
func (r *ConsentRepo) Seed(rec *consent.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records[rec.ID] = &cp
}

// OptOutRepo is an in-memory consent.OptOutRepository.
type OptOutRepo struct {
	mu       sync.Mutex
	records  map[uuid.UUID]*consent.OptOutRecord
	FailWith error
}

func NewOptOutRepo() *OptOutRepo {
	return &OptOutRepo{records: make(map[uuid.UUID]*consent.OptOutRecord)}
}

func (r *OptOutRepo) Save(ctx context.Context, rec *consent.OptOutRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

func (r *OptOutRepo) Update(ctx context.Context, rec *consent.OptOutRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	if _, ok := r.records[rec.ID]; !ok {
		return errors.NewNotFoundError("opt-out record")
	}
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

func (r *OptOutRepo) GetCurrent(ctx context.Context, tenantID uuid.UUID, phoneHash string) (*consent.OptOutRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	for _, rec := range r.records {
		if rec.TenantID == tenantID && rec.PhoneHash == phoneHash && rec.IsCurrent() {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, errors.NewNotFoundError("opt-out record")
}

// Get returns a stored record by ID for assertions.
func (r *OptOutRepo) Get(id uuid.UUID) *consent.OptOutRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// All returns every stored opt-out record.
func (r *OptOutRepo) All() []*consent.OptOutRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*consent.OptOutRecord
	for _, rec := range r.records {
		cp := *rec
		out = append(out, &cp)
	}
	return out
}

// DNCRepo is an in-memory dnc.Repository.
type DNCRepo struct {
	mu       sync.Mutex
	entries  map[uuid.UUID]*dnc.Entry
	FailWith error
}

func NewDNCRepo() *DNCRepo {
	return &DNCRepo{entries: make(map[uuid.UUID]*dnc.Entry)}
}

func (r *DNCRepo) Save(ctx context.Context, entry *dnc.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	cp := *entry
	r.entries[entry.ID] = &cp
	return nil
}

func (r *DNCRepo) Update(ctx context.Context, entry *dnc.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	if _, ok := r.entries[entry.ID]; !ok {
		return errors.NewNotFoundError("DNC entry")
	}
	cp := *entry
	r.entries[entry.ID] = &cp
	return nil
}

func (r *DNCRepo) FindMatches(ctx context.Context, tenantID uuid.UUID, phoneHash string) ([]*dnc.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	var out []*dnc.Entry
	for _, entry := range r.entries {
		if entry.PhoneHash != phoneHash {
			continue
		}
		if entry.TenantID == nil || *entry.TenantID == tenantID {
			cp := *entry
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *DNCRepo) ActiveHashes(ctx context.Context, tenantID *uuid.UUID, phoneHashes []string) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	wanted := make(map[string]bool, len(phoneHashes))
	for _, h := range phoneHashes {
		wanted[h] = true
	}
	out := make(map[string]bool)
	for _, entry := range r.entries {
		if !entry.IsActive || !wanted[entry.PhoneHash] {
			continue
		}
		if sameScope(entry.TenantID, tenantID) {
			out[entry.PhoneHash] = true
		}
	}
	return out, nil
}

func (r *DNCRepo) SaveBatch(ctx context.Context, entries []*dnc.Entry) error {
	for _, entry := range entries {
		if err := r.Save(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of stored entries.
func (r *DNCRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func sameScope(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// TenantRepo is an in-memory tenant.Repository.
type TenantRepo struct {
	mu       sync.Mutex
	tenants  map[uuid.UUID]*tenant.Tenant
	usage    map[string]int
	FailWith error
}

func NewTenantRepo() *TenantRepo {
	return &TenantRepo{
		tenants: make(map[uuid.UUID]*tenant.Tenant),
		usage:   make(map[string]int),
	}
}

func usageKey(tenantID uuid.UUID, monthKey string) string {
	return tenantID.String() + "/" + monthKey
}

func (r *TenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	t, ok := r.tenants[id]
	if !ok {
		return nil, errors.NewNotFoundError("tenant")
	}
	cp := *t
	return &cp, nil
}

func (r *TenantRepo) Save(ctx context.Context, t *tenant.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	cp := *t
	r.tenants[t.ID] = &cp
	return nil
}

func (r *TenantRepo) MonthlySentCount(ctx context.Context, tenantID uuid.UUID, monthKey string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return 0, r.FailWith
	}
	return r.usage[usageKey(tenantID, monthKey)], nil
}

func (r *TenantRepo) IncrementMonthlySent(ctx context.Context, tenantID uuid.UUID, monthKey string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return 0, r.FailWith
	}
	key := usageKey(tenantID, monthKey)
	r.usage[key]++
	return r.usage[key], nil
}

// SetUsage seeds the monthly counter.
func (r *TenantRepo) SetUsage(tenantID uuid.UUID, monthKey string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage[usageKey(tenantID, monthKey)] = count
}

// AuditRepo is an in-memory audit.Repository recording every entry.
type AuditRepo struct {
	mu       sync.Mutex
	entries  []*audit.Entry
	FailWith error
}

func NewAuditRepo() *AuditRepo {
	return &AuditRepo{}
}

func (r *AuditRepo) Append(ctx context.Context, entry *audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	cp := *entry
	r.entries = append(r.entries, &cp)
	return nil
}

// Entries returns a copy of everything appended so far.
func (r *AuditRepo) Entries() []*audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*audit.Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// CountByType returns how many entries carry the given event type.
func (r *AuditRepo) CountByType(eventType audit.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

// DecisionCache is an in-memory stand-in for the Redis decision cache.
type DecisionCache struct {
	mu          sync.Mutex
	snapshots   map[string]*cache.DecisionSnapshot
	GetFailWith error
	SetFailWith error
	InvFailWith error
	Gets        int
	Hits        int
	Sets        int
	Invalidates int
}

func NewDecisionCache() *DecisionCache {
	return &DecisionCache{snapshots: make(map[string]*cache.DecisionSnapshot)}
}

func cacheKey(tenantID uuid.UUID, phoneHash string) string {
	return fmt.Sprintf("%s:%s", tenantID, phoneHash)
}

func (c *DecisionCache) Get(ctx context.Context, tenantID uuid.UUID, phoneHash string) (*cache.DecisionSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gets++
	if c.GetFailWith != nil {
		return nil, c.GetFailWith
	}
	snap, ok := c.snapshots[cacheKey(tenantID, phoneHash)]
	if !ok {
		return nil, nil
	}
	c.Hits++
	cp := *snap
	return &cp, nil
}

func (c *DecisionCache) Set(ctx context.Context, tenantID uuid.UUID, phoneHash string, snap *cache.DecisionSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SetFailWith != nil {
		return c.SetFailWith
	}
	c.Sets++
	cp := *snap
	c.snapshots[cacheKey(tenantID, phoneHash)] = &cp
	return nil
}

func (c *DecisionCache) Invalidate(ctx context.Context, tenantID uuid.UUID, phoneHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.InvFailWith != nil {
		return c.InvFailWith
	}
	c.Invalidates++
	delete(c.snapshots, cacheKey(tenantID, phoneHash))
	return nil
}

// Contains reports whether a snapshot is cached for the pair.
func (c *DecisionCache) Contains(tenantID uuid.UUID, phoneHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.snapshots[cacheKey(tenantID, phoneHash)]
	return ok
}

// Transport is an in-memory message transport.
type Transport struct {
	mu       sync.Mutex
	sent     []SentMessage
	FailWith error
}

// SentMessage is one message the fake transport accepted.
type SentMessage struct {
	To        string
	From      string
	Body      string
	MediaURLs []string
}

func NewTransport() *Transport {
	return &Transport{}
}

func (t *Transport) SendRawMessage(ctx context.Context, to, from, body string, mediaURLs []string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailWith != nil {
		return "", t.FailWith
	}
	t.sent = append(t.sent, SentMessage{To: to, From: from, Body: body, MediaURLs: mediaURLs})
	return fmt.Sprintf("SM%032d", len(t.sent)), nil
}

// Sent returns a copy of the accepted messages.
func (t *Transport) Sent() []SentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SentMessage, len(t.sent))
	copy(out, t.sent)
	return out
}
