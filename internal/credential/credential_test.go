package credential_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securelock/securelock/internal/credential"
	"github.com/securelock/securelock/pkg/errclass"
)

func TestHash_KnownVector(t *testing.T) {
	// sha256("1234")
	assert.Equal(t, "03ac674216f3e15c761ee1a5e255f067953623c8b388b4459e13f978d7c846f4", string(credential.Hash("1234")))
}

func TestHash_FixedLength(t *testing.T) {
	for _, in := range []string{"", "1", "1234", "a much longer input than any PIN"} {
		assert.Len(t, string(credential.Hash(in)), 64, in)
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	for _, pin := range []string{"0000", "1234", "9876"} {
		assert.True(t, credential.Verify(pin, credential.Hash(pin)), pin)
	}
}

func TestVerify_Mismatch(t *testing.T) {
	stored := credential.Hash("1234")
	for _, in := range []string{"1235", "", "123", "12345", "abcd"} {
		assert.False(t, credential.Verify(in, stored), in)
	}
	assert.False(t, credential.Verify("1234", ""), "empty stored credential never matches")
}

func TestVerify_NormalizesInput(t *testing.T) {
	normalized, err := credential.ValidatePIN("１２３４")
	require.NoError(t, err)
	stored := credential.Hash(normalized)

	assert.True(t, credential.Verify("１２３４", stored), "full-width entry matches its own setup")
	assert.True(t, credential.Verify("1234", stored))
	assert.False(t, credential.Verify("１２３５", stored))
}

func TestValidatePIN(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "1234", want: "1234"},
		{in: "0000", want: "0000"},
		{in: "１２３４", want: "1234"}, // full-width digits
		{in: "123", wantErr: true},
		{in: "12345", wantErr: true},
		{in: "12a4", wantErr: true},
		{in: "", wantErr: true},
		{in: "12 4", wantErr: true},
		{in: "١٢٣٤", wantErr: true}, // Arabic-Indic digits are not ASCII after NFKC
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := credential.ValidatePIN(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, errclass.ErrPINInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
