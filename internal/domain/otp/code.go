package otp

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

const (
	// CodeMin and CodeMax bound the six-digit code space, inclusive.
	CodeMin = 100000
	CodeMax = 999999

	// DefaultHashCost is the bcrypt cost used for codes.
	DefaultHashCost = 10
)

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// GenerateCode draws a uniformly random code in [CodeMin, CodeMax] from r
// (crypto/rand.Reader when r is nil) and formats it as six digits.
func GenerateCode(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	n, err := rand.Int(r, big.NewInt(CodeMax-CodeMin+1))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+CodeMin), nil
}

// IsWellFormed reports whether candidate looks like a code.
func IsWellFormed(candidate string) bool {
	return codePattern.MatchString(candidate)
}

// Hasher hashes codes for storage and compares candidates against hashes.
type Hasher interface {
	Hash(code string) (string, error)
	Compare(hash, candidate string) bool
}

// BcryptHasher implements Hasher with bcrypt.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a bcrypt hasher; cost below bcrypt.MinCost uses DefaultHashCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost {
		cost = DefaultHashCost
	}
	return &BcryptHasher{Cost: cost}
}

func (h *BcryptHasher) Hash(code string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(code), h.Cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash code: %w", err)
	}
	return string(b), nil
}

// Compare is constant-time with respect to the candidate.
func (h *BcryptHasher) Compare(hash, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}
