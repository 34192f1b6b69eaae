package consent

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/audit"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/consent"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/values"
	auditsvc "github.com/servicelane/sms-compliance-gateway/internal/service/audit"
	"github.com/servicelane/sms-compliance-gateway/internal/testutil"
)

type recorderFixture struct {
	consentRepo *testutil.ConsentRepo
	optOutRepo  *testutil.OptOutRepo
	cache       *testutil.DecisionCache
	auditRepo   *testutil.AuditRepo
	tenantID    uuid.UUID
	phone       values.PhoneNumber
	recorder    *Recorder
}

func newRecorderFixture(t *testing.T) *recorderFixture {
	t.Helper()
	f := &recorderFixture{
		consentRepo: testutil.NewConsentRepo(),
		optOutRepo:  testutil.NewOptOutRepo(),
		cache:       testutil.NewDecisionCache(),
		auditRepo:   testutil.NewAuditRepo(),
		tenantID:    uuid.New(),
		phone:       values.MustNewPhoneNumber("+15551234567"),
	}
	f.recorder = NewRecorder(
		zap.NewNop(),
		f.consentRepo,
		f.optOutRepo,
		f.cache,
		auditsvc.NewLog(f.auditRepo, zap.NewNop(), nil),
	)
	return f
}

func (f *recorderFixture) grant(t *testing.T, consentType consent.Type, source consent.Source, scope consent.Scope) *consent.Record {
	t.Helper()
	rec, err := f.recorder.RecordConsent(context.Background(), RecordConsentRequest{
		TenantID: f.tenantID,
		Phone:    f.phone,
		Type:     consentType,
		Source:   source,
		Scope:    scope,
	})
	require.NoError(t, err)
	return rec
}

func TestRecordConsent_NewGrant(t *testing.T) {
	f := newRecorderFixture(t)

	rec := f.grant(t, consent.TypeExpressWritten, consent.SourceWebForm, consent.FullScope())

	require.True(t, rec.IsActive)
	require.Equal(t, f.phone.Hash(), rec.PhoneHash)
	require.Equal(t, 1, f.auditRepo.CountByType(audit.EventConsentRecorded))
	require.Equal(t, 1, f.cache.Invalidates)

	stored, err := f.consentRepo.GetActive(context.Background(), f.tenantID, f.phone.Hash())
	require.NoError(t, err)
	require.Equal(t, rec.ID, stored.ID)
}

func TestRecordConsent_UpgradesInPlace(t *testing.T) {
	f := newRecorderFixture(t)

	implied := f.grant(t, consent.TypeImplied, consent.SourcePhoneRecording, consent.Scope{Transactional: true})
	express := f.grant(t, consent.TypeExpressWritten, consent.SourceWebForm, consent.Scope{Marketing: true})

	// Same row, promoted; scope is the union of both grants.
	require.Equal(t, implied.ID, express.ID)
	require.Equal(t, consent.TypeExpressWritten, express.Type)
	require.True(t, express.Scope.Marketing)
	require.True(t, express.Scope.Transactional)
}

func TestRecordConsent_WeakerGrantIsNoOp(t *testing.T) {
	f := newRecorderFixture(t)

	express := f.grant(t, consent.TypeExpressWritten, consent.SourceWebForm, consent.FullScope())
	after := f.grant(t, consent.TypeImplied, consent.SourcePhoneRecording, consent.Scope{Transactional: true})

	require.Equal(t, express.ID, after.ID)
	require.Equal(t, consent.TypeExpressWritten, after.Type)
}

func TestRecordConsent_ReversesOptOut(t *testing.T) {
	f := newRecorderFixture(t)

	require.NoError(t, f.recorder.RecordOptOut(context.Background(), f.tenantID, f.phone, consent.OptOutStopKeyword, "SM1"))
	_, err := f.optOutRepo.GetCurrent(context.Background(), f.tenantID, f.phone.Hash())
	require.NoError(t, err)

	rec := f.grant(t, consent.TypeExpressWritten, consent.SourceTextOptIn, consent.FullScope())

	// The opt-out row keeps its history but is no longer current.
	_, err = f.optOutRepo.GetCurrent(context.Background(), f.tenantID, f.phone.Hash())
	require.True(t, errors.IsNotFound(err))

	all := f.optOutRepo.All()
	require.Len(t, all, 1)
	require.NotNil(t, all[0].ReoptedInAt)
	require.NotNil(t, all[0].ReoptInConsentID)
	require.Equal(t, rec.ID, *all[0].ReoptInConsentID)
	require.Equal(t, 1, f.auditRepo.CountByType(audit.EventOptInRecorded))
}

func TestRecordOptOut_RevokesActiveConsent(t *testing.T) {
	f := newRecorderFixture(t)

	rec := f.grant(t, consent.TypeExpressWritten, consent.SourceWebForm, consent.FullScope())
	require.NoError(t, f.recorder.RecordOptOut(context.Background(), f.tenantID, f.phone, consent.OptOutStopKeyword, "SM9"))

	_, err := f.consentRepo.GetActive(context.Background(), f.tenantID, f.phone.Hash())
	require.True(t, errors.IsNotFound(err))

	revoked, err := f.consentRepo.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	require.False(t, revoked.IsActive)
	require.NotNil(t, revoked.RevokedAt)

	require.Equal(t, 1, f.auditRepo.CountByType(audit.EventOptOutRecorded))
	require.Equal(t, 1, f.auditRepo.CountByType(audit.EventConsentRevoked))
}

func TestRecordOptOut_Idempotent(t *testing.T) {
	f := newRecorderFixture(t)

	require.NoError(t, f.recorder.RecordOptOut(context.Background(), f.tenantID, f.phone, consent.OptOutStopKeyword, "SM1"))
	require.NoError(t, f.recorder.RecordOptOut(context.Background(), f.tenantID, f.phone, consent.OptOutStopKeyword, "SM2"))

	require.Len(t, f.optOutRepo.All(), 1)
	require.Equal(t, 1, f.auditRepo.CountByType(audit.EventOptOutRecorded))
}

func TestRecordOptOut_CacheInvalidationFailureSurfaces(t *testing.T) {
	f := newRecorderFixture(t)
	f.cache.InvFailWith = errors.NewInternalError("redis down")

	err := f.recorder.RecordOptOut(context.Background(), f.tenantID, f.phone, consent.OptOutStopKeyword, "SM1")
	require.Error(t, err)

	// The opt-out itself was persisted before the cache failure.
	_, getErr := f.optOutRepo.GetCurrent(context.Background(), f.tenantID, f.phone.Hash())
	require.NoError(t, getErr)
}

func TestRecordConsent_InvalidInput(t *testing.T) {
	f := newRecorderFixture(t)

	_, err := f.recorder.RecordConsent(context.Background(), RecordConsentRequest{
		TenantID: f.tenantID,
		Phone:    f.phone,
		Type:     consent.Type("verbal_nod"),
		Source:   consent.SourceWebForm,
		Scope:    consent.FullScope(),
	})
	require.Error(t, err)
	require.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}
