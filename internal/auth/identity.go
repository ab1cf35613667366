// Package auth reads the local user's identity from the bearer credential and
// issues credentials for the sandbox server.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("authorization header must be a bearer token")
)

// Identity is the user a credential belongs to.
type Identity struct {
	UserID    int64
	Username  string
	Email     string
	ExpiresAt time.Time
}

// Claims is the token payload. The subject is the numeric user id.
type Claims struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) identity() (Identity, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return Identity{}, fmt.Errorf("token subject %q is not a user id", c.Subject)
	}
	ident := Identity{UserID: id, Username: c.Username, Email: c.Email}
	if c.ExpiresAt != nil {
		ident.ExpiresAt = c.ExpiresAt.Time
	}
	return ident, nil
}

// ParseIdentity reads the identity from a token without verifying its
// signature. The server verifies credentials; the client only needs to know
// who it is acting as.
func ParseIdentity(token string) (Identity, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}
	return claims.identity()
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", errMissingAuthorization
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errBadAuthorization
	}
	return strings.TrimSpace(token), nil
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	parser *jwt.Parser
	now    func() time.Time
}

// NewIssuer creates an issuer with the shared secret and token lifetime.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret cannot be empty")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
		now:    time.Now,
	}, nil
}

// Issue returns a signed token for the identity.
func (i *Issuer) Issue(userID int64, username, email string) (string, error) {
	now := i.now()
	claims := &Claims{
		Username: username,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks a token's signature and expiry and returns its identity.
func (i *Issuer) Verify(token string) (Identity, error) {
	var claims Claims
	_, err := i.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return i.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	return claims.identity()
}

// VerifyHeader verifies the bearer token in an Authorization header value.
func (i *Issuer) VerifyHeader(header string) (Identity, error) {
	token, err := BearerToken(header)
	if err != nil {
		return Identity{}, err
	}
	return i.Verify(token)
}
