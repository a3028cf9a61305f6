package common

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
)

// MakeRandDigits returns a string of n uniformly random decimal digits.
// Leading zeros are kept, so "004211" is a valid 6-digit result.
func MakeRandDigits(n int) (string, error) {
	var sb strings.Builder
	sb.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		sb.WriteByte(byte('0' + d.Int64()))
	}
	return sb.String(), nil
}

// HashToken returns the hex SHA-256 digest of s. Used for every secret that
// is stored by reference (refresh tokens, verification codes).
func HashToken(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
