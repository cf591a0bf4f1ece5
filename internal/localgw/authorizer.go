package localgw

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for malformed, expired or forged bearer tokens
var ErrInvalidToken = errors.New("invalid or expired token")

const defaultIssuer = "lambda-proxy-bridge-local"

// Claims represents JWT claims issued by the development authorizer
type Claims struct {
	Username string `json:"username,omitempty"`
	Scope    string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Scopes returns the space separated scope claim as a list
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// Authorizer plays the part of an upstream JWT authorizer for local runs
type Authorizer struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewAuthorizer creates an HS256 authorizer; ttl defaults to 24 hours
func NewAuthorizer(secret string, ttl time.Duration) *Authorizer {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Authorizer{secret: []byte(secret), ttl: ttl, issuer: defaultIssuer}
}

// GenerateToken generates a JWT token for subject
func (a *Authorizer) GenerateToken(subject string, scopes []string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: subject,
		Scope:    strings.Join(scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    a.issuer,
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates a JWT token and returns the claims
func (a *Authorizer) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(a.issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authorize checks an Authorization header value. An empty header is
// anonymous and yields nil claims without error.
func (a *Authorizer) Authorize(header string) (*Claims, error) {
	if header == "" {
		return nil, nil
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return nil, fmt.Errorf("%w: expected 'Bearer <token>'", ErrInvalidToken)
	}
	return a.ValidateToken(strings.TrimSpace(token))
}
