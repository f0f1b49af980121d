package receipt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minKeyLength = 16

// Config controls receipt signing.
type Config struct {
	Key    []byte
	Issuer string
	// Now overrides the clock used for iat and expiry checks.
	Now func() time.Time
}

// Manager signs and parses receipts with one shared HMAC key.
type Manager struct {
	config Config
}

// Claims is the receipt payload. Subject holds the identity value.
type Claims struct {
	Action string `json:"act"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Key) < minKeyLength {
		return nil, errors.New("receipt key must be at least 16 bytes")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("receipt issuer required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Key = append([]byte(nil), cfg.Key...)

	return &Manager{config: cfg}, nil
}

// Sign returns a receipt for subject and action expiring at expiresAt.
func (m *Manager) Sign(subject, action string, expiresAt time.Time) (string, error) {
	now := m.config.Now()
	claims := Claims{
		Action: action,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.Key)
}

// Parse verifies signature, issuer and expiry and returns the claims.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.config.Now),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Key, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if _, err := uuid.Parse(claims.ID); err != nil {
		return nil, fmt.Errorf("%w: malformed jti", jwt.ErrTokenInvalidId)
	}

	return claims, nil
}
