package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/carelinkhealth/portal/internal/rbac"
)

// sessionIssuerName is the iss claim on every credential this service mints.
const sessionIssuerName = "portal-api"

// sessionClaims is the signed payload of a session credential.
type sessionClaims struct {
	jwt.RegisteredClaims
	Role  rbac.Role `json:"role"`
	Epoch int64     `json:"epoch"`
}

// ErrInvalidSessionToken is returned by Parse for malformed, unsigned,
// tampered or expired credentials.
var ErrInvalidSessionToken = errors.New("invalid session token")

// SessionIssuer mints and verifies HS256 session credentials.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionIssuer creates an issuer signing with secret. now may be nil to
// use the wall clock.
func NewSessionIssuer(secret string, ttl time.Duration, now func() time.Time) (*SessionIssuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret is empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	if now == nil {
		now = time.Now
	}
	return &SessionIssuer{secret: []byte(secret), ttl: ttl, now: now}, nil
}

// TTL returns the credential lifetime.
func (s *SessionIssuer) TTL() time.Duration {
	return s.ttl
}

// Issue mints a credential embedding the user's id, current role and
// current session epoch.
func (s *SessionIssuer) Issue(u *User) (IssuedSession, error) {
	// JWT NumericDate has second precision; truncate so the cookie expiry
	// matches the exp claim exactly.
	now := s.now().UTC().Truncate(time.Second)
	expires := now.Add(s.ttl)

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuerName,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Role:  u.Role,
		Epoch: u.SessionEpoch,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return IssuedSession{}, fmt.Errorf("signing session token: %w", err)
	}

	return IssuedSession{Token: token, ExpiresAt: expires}, nil
}

// Parse verifies the signature, algorithm, issuer and expiry of a credential
// and returns the embedded identity. It does not consult the account store;
// epoch freshness is checked by the service.
func (s *SessionIssuer) Parse(token string) (*Session, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(sessionIssuerName),
		jwt.WithTimeFunc(s.now),
	)

	claims := &sessionClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if !parsed.Valid || claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidSessionToken
	}

	return &Session{
		UserID:    claims.Subject,
		Role:      claims.Role,
		Epoch:     claims.Epoch,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
