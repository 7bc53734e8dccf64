// Package credential hashes and checks lock screen PINs.
package credential

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"

	"github.com/securelock/securelock/pkg/errclass"
	"github.com/securelock/securelock/pkg/model"
)

// Hash returns the SHA-256 digest of pin as lowercase hex. The same input
// always yields the same 64-character digest.
func Hash(pin string) model.Credential {
	sum := sha256.Sum256([]byte(pin))
	return model.Credential(hex.EncodeToString(sum[:]))
}

// Normalize applies NFKC so full-width digits compare equal to ASCII ones.
// Stored credentials are always hashes of normalized PINs.
func Normalize(pin string) string {
	return norm.NFKC.String(pin)
}

// Verify reports whether the normalized pin hashes to stored. Malformed
// input simply does not match.
func Verify(pin string, stored model.Credential) bool {
	got := Hash(Normalize(pin))
	return subtle.ConstantTimeCompare([]byte(got), []byte(stored)) == 1
}

// ValidatePIN normalizes pin with NFKC and checks it is exactly
// model.PINLength ASCII digits. The normalized PIN is returned.
func ValidatePIN(pin string) (string, error) {
	normalized := Normalize(pin)
	if len(normalized) != model.PINLength {
		return "", errclass.ErrPINInvalid.WithMessagef("PIN must be %d digits", model.PINLength)
	}
	for i := 0; i < len(normalized); i++ {
		if normalized[i] < '0' || normalized[i] > '9' {
			return "", errclass.ErrPINInvalid.WithMessagef("PIN must be %d digits", model.PINLength)
		}
	}
	return normalized, nil
}
