package service

import (
	"crypto/rand"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Extract codes are read aloud and typed by hand, so the alphabet leaves out
// 0/O and 1/I/L.
const extractCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// newShareCode returns a 26 character base32 token carrying 128 random bits.
func newShareCode() string {
	return rand.Text()
}

func newExtractCode(length int) (string, error) {
	size := big.NewInt(int64(len(extractCodeAlphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b.WriteByte(extractCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func normalizeExtractCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func hashExtractCode(code string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(normalizeExtractCode(code)), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// matchExtractCode compares in constant time with respect to the stored code.
func matchExtractCode(hash, supplied string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(normalizeExtractCode(supplied))) == nil
}
