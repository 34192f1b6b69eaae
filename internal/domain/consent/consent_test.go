package consent

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicelane/sms-compliance-gateway/internal/domain/values"
)

func TestNewRecord(t *testing.T) {
	phone := values.MustNewPhoneNumber("+15551234567")

	tests := []struct {
		name        string
		tenantID    uuid.UUID
		phone       values.PhoneNumber
		consentType Type
		source      Source
		scope       Scope
		wantErr     bool
		errCode     string
	}{
		{
			name:        "valid implied consent",
			tenantID:    uuid.New(),
			phone:       phone,
			consentType: TypeImplied,
			source:      SourcePhoneRecording,
			scope:       Scope{Transactional: true},
		},
		{
			name:        "valid express full scope",
			tenantID:    uuid.New(),
			phone:       phone,
			consentType: TypeExpressWritten,
			source:      SourceWebForm,
			scope:       FullScope(),
		},
		{
			name:        "missing tenant",
			tenantID:    uuid.Nil,
			phone:       phone,
			consentType: TypeImplied,
			source:      SourceWebForm,
			scope:       FullScope(),
			wantErr:     true,
			errCode:     "INVALID_TENANT",
		},
		{
			name:        "empty phone",
			tenantID:    uuid.New(),
			phone:       values.PhoneNumber{},
			consentType: TypeImplied,
			source:      SourceWebForm,
			scope:       FullScope(),
			wantErr:     true,
			errCode:     "INVALID_PHONE",
		},
		{
			name:        "unknown type",
			tenantID:    uuid.New(),
			phone:       phone,
			consentType: Type("verbal_maybe"),
			source:      SourceWebForm,
			scope:       FullScope(),
			wantErr:     true,
			errCode:     "INVALID_CONSENT_TYPE",
		},
		{
			name:        "empty scope",
			tenantID:    uuid.New(),
			phone:       phone,
			consentType: TypeExpressWritten,
			source:      SourceWebForm,
			scope:       Scope{},
			wantErr:     true,
			errCode:     "EMPTY_SCOPE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NewRecord(tt.tenantID, tt.phone, tt.consentType, tt.source, tt.scope, "")
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errCode)
				return
			}
			require.NoError(t, err)
			assert.True(t, rec.IsActive)
			assert.Equal(t, tt.phone.Hash(), rec.PhoneHash)
			assert.NotEqual(t, uuid.Nil, rec.ID)
		})
	}
}

func TestScopeCapabilities(t *testing.T) {
	assert.True(t, Scope{Marketing: true}.AllowsMarketing())
	assert.True(t, Scope{Promotional: true}.AllowsMarketing())
	assert.False(t, Scope{Transactional: true}.AllowsMarketing())

	assert.True(t, Scope{Transactional: true}.AllowsTransactional())
	assert.True(t, Scope{Reminders: true}.AllowsTransactional())
	assert.False(t, Scope{Marketing: true}.AllowsTransactional())
}

func TestImpliedConsentExpiryBoundaries(t *testing.T) {
	mkRecord := func(source Source, age time.Duration) *Record {
		rec, err := NewRecord(uuid.New(), values.MustNewPhoneNumber("+15551234567"), TypeImplied, source, FullScope(), "")
		require.NoError(t, err)
		rec.ConsentedAt = time.Now().UTC().Add(-age)
		return rec
	}
	now := time.Now().UTC()

	t.Run("inquiry window 6 months", func(t *testing.T) {
		rec := mkRecord(SourceTextOptIn, 0)
		sixMonths := rec.ExpiresAt().Sub(rec.ConsentedAt)

		// one second past the window: expired
		rec.ConsentedAt = now.Add(-sixMonths - time.Second)
		assert.True(t, rec.IsExpired(now))

		// one day inside the window: valid and inside the 30-day warning band
		rec.ConsentedAt = now.Add(-sixMonths + 24*time.Hour)
		assert.False(t, rec.IsExpired(now))
		assert.True(t, rec.ExpiringSoon(now))

		// two months in: valid, no warning
		rec.ConsentedAt = now.AddDate(0, -2, 0)
		assert.False(t, rec.IsExpired(now))
		assert.False(t, rec.ExpiringSoon(now))
	})

	t.Run("existing customer window 2 years", func(t *testing.T) {
		rec := mkRecord(SourceExistingCustomer, 0)
		twoYears := rec.ExpiresAt().Sub(rec.ConsentedAt)

		rec.ConsentedAt = now.Add(-twoYears - time.Second)
		assert.True(t, rec.IsExpired(now))
		assert.Equal(t, "2-year existing-customer window", rec.WindowDescription())

		rec.ConsentedAt = now.Add(-twoYears + 24*time.Hour)
		assert.False(t, rec.IsExpired(now))
		assert.True(t, rec.ExpiringSoon(now))
	})

	t.Run("express consent never expires", func(t *testing.T) {
		rec, err := NewRecord(uuid.New(), values.MustNewPhoneNumber("+15551234567"), TypeExpressWritten, SourceWebForm, FullScope(), "")
		require.NoError(t, err)
		rec.ConsentedAt = now.AddDate(-5, 0, 0)
		assert.Nil(t, rec.ExpiresAt())
		assert.False(t, rec.IsExpired(now))
		// but it does trip the soft re-confirm warning
		assert.True(t, rec.NeedsReconfirmation(now))
	})
}

func TestUpgrade(t *testing.T) {
	phone := values.MustNewPhoneNumber("+15551234567")
	rec, err := NewRecord(uuid.New(), phone, TypeImplied, SourcePhoneRecording, Scope{Transactional: true}, "")
	require.NoError(t, err)
	originalID := rec.ID

	err = rec.Upgrade(TypeExpressWritten, SourceTextOptIn, Scope{Marketing: true}, "Reply YES to confirm")
	require.NoError(t, err)

	// Upgraded in place: same row, merged scope, refreshed grant.
	assert.Equal(t, originalID, rec.ID)
	assert.Equal(t, TypeExpressWritten, rec.Type)
	assert.True(t, rec.Scope.AllowsMarketing())
	assert.True(t, rec.Scope.AllowsTransactional())

	// Downgrade refused.
	err = rec.Upgrade(TypeImplied, SourcePhoneRecording, FullScope(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONSENT_DOWNGRADE")

	// Revoked records cannot be upgraded.
	rec.Revoke("opted out")
	err = rec.Upgrade(TypeExpressWritten, SourceWebForm, FullScope(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONSENT_INACTIVE")
}

func TestOptOutRecordLifecycle(t *testing.T) {
	phone := values.MustNewPhoneNumber("+15551234567")
	rec, err := NewOptOutRecord(uuid.New(), phone, OptOutStopKeyword, "SM123")
	require.NoError(t, err)
	assert.True(t, rec.IsCurrent())
	assert.Equal(t, phone.Hash(), rec.PhoneHash)

	consentID := uuid.New()
	require.NoError(t, rec.ReoptIn(consentID))
	assert.False(t, rec.IsCurrent())
	require.NotNil(t, rec.ReoptedInAt)
	assert.Equal(t, consentID, *rec.ReoptInConsentID)

	// Re-opt-in is one-shot per record.
	err = rec.ReoptIn(uuid.New())
	require.Error(t, err)
}

func TestParseOptOutReason(t *testing.T) {
	for _, valid := range []string{"stop_keyword", "unsubscribe_link", "manual_request", "complaint", "admin_removed", "dnc_match", "bounce"} {
		_, err := ParseOptOutReason(valid)
		assert.NoError(t, err, valid)
	}
	_, err := ParseOptOutReason("ghosted")
	assert.Error(t, err)
}
