package dnc

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/audit"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/dnc"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/values"
	auditsvc "github.com/servicelane/sms-compliance-gateway/internal/service/audit"
	"github.com/servicelane/sms-compliance-gateway/internal/testutil"
)

type registryFixture struct {
	repo      *testutil.DNCRepo
	cache     *testutil.DecisionCache
	auditRepo *testutil.AuditRepo
	tenantID  uuid.UUID
	registry  *Registry
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	f := &registryFixture{
		repo:      testutil.NewDNCRepo(),
		cache:     testutil.NewDecisionCache(),
		auditRepo: testutil.NewAuditRepo(),
		tenantID:  uuid.New(),
	}
	f.registry = NewRegistry(
		zap.NewNop(), f.repo, f.cache,
		auditsvc.NewLog(f.auditRepo, zap.NewNop(), nil),
	)
	return f
}

func TestAddToDnc(t *testing.T) {
	f := newRegistryFixture(t)
	phone := values.MustNewPhoneNumber("+15551234567")

	entry, err := f.registry.AddToDnc(context.Background(), &f.tenantID, phone, dnc.SourceManual)
	require.NoError(t, err)
	require.True(t, entry.IsActive)
	require.False(t, entry.IsGlobal())
	require.Equal(t, 1, f.auditRepo.CountByType(audit.EventDNCAdded))
	require.Equal(t, 1, f.cache.Invalidates)

	// Adding the same number again keeps the standing entry.
	again, err := f.registry.AddToDnc(context.Background(), &f.tenantID, phone, dnc.SourceManual)
	require.NoError(t, err)
	require.Equal(t, entry.ID, again.ID)
	require.Equal(t, 1, f.repo.Count())
}

func TestAddToDnc_Global(t *testing.T) {
	f := newRegistryFixture(t)
	phone := values.MustNewPhoneNumber("+15551234567")

	entry, err := f.registry.AddToDnc(context.Background(), nil, phone, dnc.SourceComplaint)
	require.NoError(t, err)
	require.True(t, entry.IsGlobal())

	// Global entries match lookups from any tenant.
	matches, err := f.repo.FindMatches(context.Background(), uuid.New(), phone.Hash())
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestRemoveFromDnc(t *testing.T) {
	f := newRegistryFixture(t)
	phone := values.MustNewPhoneNumber("+15551234567")

	_, err := f.registry.AddToDnc(context.Background(), &f.tenantID, phone, dnc.SourceManual)
	require.NoError(t, err)

	require.NoError(t, f.registry.RemoveFromDnc(context.Background(), &f.tenantID, phone, "customer requested reinstatement"))

	matches, err := f.repo.FindMatches(context.Background(), f.tenantID, phone.Hash())
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.False(t, matches[0].IsActive)
	require.Equal(t, "customer requested reinstatement", matches[0].RemovedReason)
	require.Equal(t, 1, f.auditRepo.CountByType(audit.EventDNCRemoved))
}

func TestRemoveFromDnc_RequiresReason(t *testing.T) {
	f := newRegistryFixture(t)
	phone := values.MustNewPhoneNumber("+15551234567")

	err := f.registry.RemoveFromDnc(context.Background(), &f.tenantID, phone, "")
	require.Error(t, err)
	require.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestRemoveFromDnc_NotListed(t *testing.T) {
	f := newRegistryFixture(t)
	phone := values.MustNewPhoneNumber("+15551234567")

	err := f.registry.RemoveFromDnc(context.Background(), &f.tenantID, phone, "typo")
	require.True(t, errors.IsNotFound(err))
}

func TestBulkImport(t *testing.T) {
	f := newRegistryFixture(t)

	numbers := make([]string, 0, 2500)
	for i := 0; i < 2500; i++ {
		numbers = append(numbers, fmt.Sprintf("+1555%07d", i))
	}
	numbers = append(numbers, "not-a-number", "also bad")

	result, err := f.registry.BulkImport(context.Background(), nil, numbers, dnc.SourceNationalRegistry)
	require.NoError(t, err)
	require.Equal(t, 2502, result.Total)
	require.Equal(t, 2500, result.Added)
	require.Equal(t, 0, result.Duplicates)
	require.Equal(t, 2, result.Errors)
	require.Equal(t, 2500, f.repo.Count())
}

func TestBulkImport_Idempotent(t *testing.T) {
	f := newRegistryFixture(t)

	numbers := []string{"+15551230001", "+15551230002", "+15551230003"}
	first, err := f.registry.BulkImport(context.Background(), &f.tenantID, numbers, dnc.SourceNationalRegistry)
	require.NoError(t, err)
	require.Equal(t, 3, first.Added)

	// Re-running the same file adds nothing.
	second, err := f.registry.BulkImport(context.Background(), &f.tenantID, numbers, dnc.SourceNationalRegistry)
	require.NoError(t, err)
	require.Equal(t, 0, second.Added)
	require.Equal(t, 3, second.Duplicates)
	require.Equal(t, 3, f.repo.Count())
}

func TestBulkImport_DeduplicatesWithinFile(t *testing.T) {
	f := newRegistryFixture(t)

	// Same number in two formats hashes identically.
	numbers := []string{"+15551230001", "(555) 123-0001"}
	result, err := f.registry.BulkImport(context.Background(), &f.tenantID, numbers, dnc.SourceManual)
	require.NoError(t, err)
	require.Equal(t, 1, result.Added)
	require.Equal(t, 1, result.Duplicates)
}

func TestBulkImport_InvalidSource(t *testing.T) {
	f := newRegistryFixture(t)

	_, err := f.registry.BulkImport(context.Background(), nil, []string{"+15551230001"}, dnc.Source("spreadsheet"))
	require.Error(t, err)
	require.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}
