package access

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("access: invalid token")

// MinSecretLen is the minimum HMAC secret length accepted by NewTokens.
const MinSecretLen = 32

// Claims are the JWT claims of a principal token. The principal is the
// registered subject.
type Claims struct {
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 bearer tokens binding a principal.
type Tokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokens returns a token service for issuer signed with secret.
func NewTokens(secret []byte, issuer string) (*Tokens, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("access: token secret must be at least %d bytes", MinSecretLen)
	}
	return &Tokens{secret: append([]byte(nil), secret...), issuer: issuer, now: time.Now}, nil
}

// Issue returns a signed token for p valid for ttl.
func (t *Tokens) Issue(p Principal, ttl time.Duration) (string, error) {
	if p == Anonymous {
		return "", errors.New("access: cannot issue a token for the anonymous principal")
	}
	now := t.now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    t.issuer,
		Subject:   string(p),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("access: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry and returns the bound
// principal.
func (t *Tokens) Verify(token string) (Principal, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Anonymous, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return Anonymous, ErrInvalidToken
	}
	return Principal(claims.Subject), nil
}
