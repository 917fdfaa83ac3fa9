package usertoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const defaultIssuer = "memoireai"

// ErrInvalidToken covers expired, malformed, or badly signed tokens.
var ErrInvalidToken = errors.New("invalid token")

// Claims is what a verified session token asserts about the caller.
type Claims struct {
	UserID string
	Email  string
}

type sessionClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Manager mints and verifies the HS256 session tokens carried by the
// auth_token cookie.
type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewManager builds a token manager. TTL defaults to one hour.
func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: defaultIssuer,
	}, nil
}

// TTL returns the configured token lifetime, used for the cookie max-age.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a session token for the user.
func (m *Manager) Issue(userID, email string) (string, error) {
	now := time.Now().UTC()
	claims := sessionClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token.
func (m *Manager) Verify(token string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		return Claims{}, ErrInvalidToken
	}
	return Claims{UserID: claims.UserID, Email: claims.Email}, nil
}
