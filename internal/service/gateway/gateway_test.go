package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/audit"
	domaincompliance "github.com/servicelane/sms-compliance-gateway/internal/domain/compliance"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/consent"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/errors"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/tenant"
	"github.com/servicelane/sms-compliance-gateway/internal/domain/values"
	"github.com/servicelane/sms-compliance-gateway/internal/infrastructure/metrics"
	auditsvc "github.com/servicelane/sms-compliance-gateway/internal/service/audit"
	compliancesvc "github.com/servicelane/sms-compliance-gateway/internal/service/compliance"
	consentsvc "github.com/servicelane/sms-compliance-gateway/internal/service/consent"
	"github.com/servicelane/sms-compliance-gateway/internal/testutil"
)

type gatewayFixture struct {
	tenantRepo  *testutil.TenantRepo
	consentRepo *testutil.ConsentRepo
	optOutRepo  *testutil.OptOutRepo
	dncRepo     *testutil.DNCRepo
	cache       *testutil.DecisionCache
	auditRepo   *testutil.AuditRepo
	transport   *testutil.Transport
	tenant      *tenant.Tenant
	phone       values.PhoneNumber
	recorder    *consentsvc.Recorder
	svc         Service
}

type fixtureOpts struct {
	quietHours    domaincompliance.QuietHoursConfig
	monthlyLimit  int
	ratePerSecond float64
	burst         int
}

func newGatewayFixture(t *testing.T, opts fixtureOpts) *gatewayFixture {
	t.Helper()

	if opts.monthlyLimit == 0 {
		opts.monthlyLimit = 1000
	}
	if opts.ratePerSecond == 0 {
		opts.ratePerSecond = 100
		opts.burst = 100
	}

	f := &gatewayFixture{
		tenantRepo:  testutil.NewTenantRepo(),
		consentRepo: testutil.NewConsentRepo(),
		optOutRepo:  testutil.NewOptOutRepo(),
		dncRepo:     testutil.NewDNCRepo(),
		cache:       testutil.NewDecisionCache(),
		auditRepo:   testutil.NewAuditRepo(),
		transport:   testutil.NewTransport(),
		tenant:      testutil.Tenant(opts.monthlyLimit, opts.quietHours),
		phone:       values.MustNewPhoneNumber("+15551234567"),
	}
	require.NoError(t, f.tenantRepo.Save(context.Background(), f.tenant))

	registry, err := metrics.NewRegistry()
	require.NoError(t, err)
	auditLog := auditsvc.NewLog(f.auditRepo, zap.NewNop(), registry)

	engine := compliancesvc.NewService(
		zap.NewNop(), f.tenantRepo, f.consentRepo, f.optOutRepo, f.dncRepo,
		f.cache, auditLog, registry, "UTC",
	)
	f.recorder = consentsvc.NewRecorder(zap.NewNop(), f.consentRepo, f.optOutRepo, f.cache, auditLog)
	f.svc = NewService(
		zap.NewNop(), f.tenantRepo, engine, f.recorder, f.transport,
		auditLog, registry, opts.ratePerSecond, opts.burst,
	)
	return f
}

func (f *gatewayFixture) send(t *testing.T, req SendRequest) *SendResult {
	t.Helper()
	req.TenantID = f.tenant.ID
	if req.Phone.IsEmpty() {
		req.Phone = f.phone
	}
	if req.Body == "" {
		req.Body = "Thanks for reaching out! How can we help?"
	}
	if req.Category == "" {
		req.Category = domaincompliance.CategoryTransactional
	}
	result, err := f.svc.SendCompliantMessage(context.Background(), req)
	require.NoError(t, err)
	return result
}

func (f *gatewayFixture) grantConsent(t *testing.T) {
	t.Helper()
	_, err := f.recorder.RecordConsent(context.Background(), consentsvc.RecordConsentRequest{
		TenantID: f.tenant.ID,
		Phone:    f.phone,
		Type:     consent.TypeExpressWritten,
		Source:   consent.SourceWebForm,
		Scope:    consent.FullScope(),
	})
	require.NoError(t, err)
}

func TestSendCompliantMessage_FirstContactMissedCall(t *testing.T) {
	f := newGatewayFixture(t, fixtureOpts{quietHours: testutil.QuietHoursOff(), monthlyLimit: 2})
	monthKey := tenant.MonthKey(time.Now().UTC())
	f.tenantRepo.SetUsage(f.tenant.ID, monthKey, 1)

	result := f.send(t, SendRequest{
		ConsentBasis: &ConsentBasis{Kind: BasisMissedCall, Reference: "CA123"},
	})

	require.Equal(t, StatusSent, result.Status)
	require.NotEmpty(t, result.MessageID)
	require.NotNil(t, result.ConsentID)
	require.Equal(t, 2, result.MonthlySent)

	// The basis became an implied consent grant from the call recording.
	rec, err := f.consentRepo.GetActive(context.Background(), f.tenant.ID, f.phone.Hash())
	require.NoError(t, err)
	require.Equal(t, consent.TypeImplied, rec.Type)
	require.Equal(t, consent.SourcePhoneRecording, rec.Source)

	require.Len(t, f.transport.Sent(), 1)
	require.Equal(t, 1, f.auditRepo.CountByType(audit.EventMessageSent))

	// The cap is now reached; the next send is refused before any checks.
	blocked := f.send(t, SendRequest{})
	require.Equal(t, StatusBlocked, blocked.Status)
	require.Equal(t, domaincompliance.BlockMonthlyLimit, blocked.BlockReason)
	require.Contains(t, blocked.BlockDetail, "2")
	require.Len(t, f.transport.Sent(), 1)
}

func TestSendCompliantMessage_NoConsentBlocks(t *testing.T) {
	f := newGatewayFixture(t, fixtureOpts{quietHours: testutil.QuietHoursOff()})

	result := f.send(t, SendRequest{Category: domaincompliance.CategoryMarketing})

	require.Equal(t, StatusBlocked, result.Status)
	require.Equal(t, domaincompliance.BlockNoConsent, result.BlockReason)
	require.Empty(t, f.transport.Sent())
}

func TestSendCompliantMessage_OptedOutRecipientBlocks(t *testing.T) {
	f := newGatewayFixture(t, fixtureOpts{quietHours: testutil.QuietHoursOff()})
	f.grantConsent(t)
	require.NoError(t, f.recorder.RecordOptOut(context.Background(), f.tenant.ID, f.phone, consent.OptOutStopKeyword, "SM1"))

	result := f.send(t, SendRequest{})

	require.Equal(t, StatusBlocked, result.Status)
	require.Equal(t, domaincompliance.BlockOptedOut, result.BlockReason)
	require.Empty(t, f.transport.Sent())
}

func TestSendCompliantMessage_QuietHoursQueues(t *testing.T) {
	f := newGatewayFixture(t, fixtureOpts{quietHours: testutil.QuietHoursCoveringNow()})
	f.grantConsent(t)

	result := f.send(t, SendRequest{})

	require.Equal(t, StatusQueued, result.Status)
	require.Equal(t, domaincompliance.BlockQuietHours, result.BlockReason)
	require.Empty(t, f.transport.Sent())
	require.Equal(t, 1, f.auditRepo.CountByType(audit.EventMessageQueued))
}

func TestSendCompliantMessage_QuietHoursBlocksWhenQueueingDisabled(t *testing.T) {
	f := newGatewayFixture(t, fixtureOpts{quietHours: testutil.QuietHoursCoveringNow()})
	f.tenant.QueueDuringQuietHours = false
	require.NoError(t, f.tenantRepo.Save(context.Background(), f.tenant))
	f.grantConsent(t)

	result := f.send(t, SendRequest{})

	require.Equal(t, StatusBlocked, result.Status)
	require.Equal(t, domaincompliance.BlockQuietHours, result.BlockReason)
	require.Empty(t, f.transport.Sent())
}

func TestSendCompliantMessage_RequestCanDisableQueueing(t *testing.T) {
	f := newGatewayFixture(t, fixtureOpts{quietHours: testutil.QuietHoursCoveringNow()})
	f.grantConsent(t)

	result := f.send(t, SendRequest{DisableQueueing: true})

	require.Equal(t, StatusBlocked, result.Status)
	require.Equal(t, domaincompliance.BlockQuietHours, result.BlockReason)
}

func TestSendCompliantMessage_RateLimited(t *testing.T) {
	f := newGatewayFixture(t, fixtureOpts{
		quietHours:    testutil.QuietHoursOff(),
		ratePerSecond: 0.001,
		burst:         1,
	})
	f.grantConsent(t)

	first := f.send(t, SendRequest{})
	require.Equal(t, StatusSent, first.Status)

	second := f.send(t, SendRequest{})
	require.Equal(t, StatusBlocked, second.Status)
	require.Equal(t, domaincompliance.BlockRateLimited, second.BlockReason)
	require.Len(t, f.transport.Sent(), 1)
}

func TestSendCompliantMessage_TransportFailure(t *testing.T) {
	f := newGatewayFixture(t, fixtureOpts{quietHours: testutil.QuietHoursOff()})
	f.grantConsent(t)
	f.transport.FailWith = errors.NewInternalError("carrier timeout")

	_, err := f.svc.SendCompliantMessage(context.Background(), SendRequest{
		TenantID: f.tenant.ID,
		Phone:    f.phone,
		Body:     "hello",
		Category: domaincompliance.CategoryTransactional,
	})
	require.Error(t, err)
	require.Equal(t, 1, f.auditRepo.CountByType(audit.EventSendFailed))

	// A failed delivery must not consume the monthly cap.
	count, countErr := f.tenantRepo.MonthlySentCount(context.Background(), f.tenant.ID, tenant.MonthKey(time.Now().UTC()))
	require.NoError(t, countErr)
	require.Zero(t, count)
}

func TestSendCompliantMessage_ValidatesInput(t *testing.T) {
	f := newGatewayFixture(t, fixtureOpts{quietHours: testutil.QuietHoursOff()})

	_, err := f.svc.SendCompliantMessage(context.Background(), SendRequest{
		TenantID: f.tenant.ID,
		Phone:    f.phone,
		Category: domaincompliance.CategoryMarketing,
	})
	require.Error(t, err)
	require.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestSendCompliantMessage_UsesTenantFromNumber(t *testing.T) {
	f := newGatewayFixture(t, fixtureOpts{quietHours: testutil.QuietHoursOff()})
	f.grantConsent(t)

	result := f.send(t, SendRequest{})

	require.Equal(t, StatusSent, result.Status)
	sent := f.transport.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, f.tenant.FromNumber.String(), sent[0].From)
	require.Equal(t, f.phone.String(), sent[0].To)
}
