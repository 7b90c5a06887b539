package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// minPasswordLength is the shortest password accepted at registration and
// reset.
const minPasswordLength = 8

// maxPasswordBytes is bcrypt's input limit. Longer passwords are rejected
// instead of being silently truncated.
const maxPasswordBytes = 72

// opaqueTokenBytes is the randomness in a password reset token. 32 bytes =
// 256 bits, hex-encoded to 64 characters.
const opaqueTokenBytes = 32

// passwordSymbols is the punctuation set that satisfies the symbol rule.
const passwordSymbols = "!@#$%^&*(),.?\":{}|<>_-[]\\/;'+=~`"

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// --- Password Hashing (bcrypt) ---

// HashPassword creates a bcrypt hash of raw at the given cost. The salt and
// cost are encoded in the returned string.
func HashPassword(raw string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks raw against a bcrypt hash. Malformed hashes never
// verify.
func VerifyPassword(raw, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}

// --- Validators ---

// PasswordProblems lists every strength rule raw fails, in a stable order.
// An empty result means the password is acceptable.
func PasswordProblems(raw string) []string {
	var problems []string
	if len(raw) < minPasswordLength {
		problems = append(problems, fmt.Sprintf("at least %d characters", minPasswordLength))
	}
	if len(raw) > maxPasswordBytes {
		problems = append(problems, fmt.Sprintf("at most %d bytes", maxPasswordBytes))
	}

	var upper, lower, digit, symbol bool
	for _, r := range raw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}
	if !upper {
		problems = append(problems, "an uppercase letter")
	}
	if !lower {
		problems = append(problems, "a lowercase letter")
	}
	if !digit {
		problems = append(problems, "a number")
	}
	if !symbol {
		problems = append(problems, "a symbol")
	}
	return problems
}

// IsStrongPassword reports whether raw passes every strength rule.
func IsStrongPassword(raw string) bool {
	return len(PasswordProblems(raw)) == 0
}

// IsValidEmail is a syntactic local@domain.tld check. It says nothing about
// deliverability.
func IsValidEmail(value string) bool {
	return emailPattern.MatchString(value)
}

// NormalizeEmail trims and lowercases an address so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// --- One-time secrets ---

// GenerateNumericCode returns a cryptographically random, zero-padded
// decimal code of the given length.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 || length > 18 {
		return "", fmt.Errorf("invalid code length %d", length)
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n.Int64()), nil
}

// GenerateOpaqueToken returns a hex-encoded 256-bit random token.
func GenerateOpaqueToken() (string, error) {
	b := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashOneTimeSecret returns the SHA-256 hex digest of a verification code or
// reset token. Only this digest is persisted.
func HashOneTimeSecret(value string) string {
	h := sha256.Sum256([]byte(value))
	return hex.EncodeToString(h[:])
}

// secretsEqual compares two digests in constant time.
func secretsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
