package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPhoneNumber(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "e164 passthrough", input: "+15551234567", want: "+15551234567"},
		{name: "us local with dashes", input: "555-123-4567", want: "+15551234567"},
		{name: "us with parens", input: "(555) 123-4567", want: "+15551234567"},
		{name: "us with country prefix", input: "1-555-123-4567", want: "+15551234567"},
		{name: "international e164", input: "+447911123456", want: "+447911123456"},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "not-a-number", wantErr: true},
		{name: "too short", input: "+1", wantErr: true},
		{name: "leading zero country code", input: "+05551234567", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phone, err := NewPhoneNumber(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, phone.E164())
		})
	}
}

func TestNewPhoneNumberE164Strict(t *testing.T) {
	_, err := NewPhoneNumberE164("555-123-4567")
	require.Error(t, err)

	phone, err := NewPhoneNumberE164("+15551234567")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", phone.String())
}

func TestPhoneNumberHash(t *testing.T) {
	a := MustNewPhoneNumber("+15551234567")
	b := MustNewPhoneNumber("(555) 123-4567")

	// Same normalized number yields the same key regardless of input format.
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Len(t, a.Hash(), 64)
	assert.Equal(t, a.Hash(), HashPhone("+15551234567"))

	c := MustNewPhoneNumber("+15551234568")
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestPhoneNumberScanValue(t *testing.T) {
	var p PhoneNumber
	require.NoError(t, p.Scan("+15551234567"))
	assert.Equal(t, "+15551234567", p.E164())

	v, err := p.Value()
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", v)

	var empty PhoneNumber
	require.NoError(t, empty.Scan(nil))
	assert.True(t, empty.IsEmpty())
}
