// Package auth verifies the HS256 bearer tokens operators present to the API.
// Tokens come from the identity provider; Mint exists for local tooling and tests.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/handoffdesk-backend/pkg/config"
)

const clockSkew = 30 * time.Second

var (
	ErrNoSecret    = errors.New("jwt secret is required")
	ErrNoOperator  = errors.New("token missing user_id")
	signingMethod  = jwt.SigningMethodHS256
	allowedMethods = []string{signingMethod.Alg()}
)

// Operator is the human behind a request. ID is recorded as the actor on
// claims, releases, resolutions and archives.
type Operator struct {
	ID   uuid.UUID
	Name string
}

type operatorClaims struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks signature, issuer and expiry.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(cfg config.JWTConfig) *Verifier {
	return &Verifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods(allowedMethods),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}
}

func (v *Verifier) Verify(raw string) (Operator, error) {
	if len(v.secret) == 0 {
		return Operator{}, ErrNoSecret
	}
	var claims operatorClaims
	if _, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return Operator{}, err
	}
	if claims.UserID == uuid.Nil {
		return Operator{}, ErrNoOperator
	}
	return Operator{ID: claims.UserID, Name: claims.Name}, nil
}

// Mint signs a token for op that expires ExpirationMinutes after now.
func Mint(cfg config.JWTConfig, now time.Time, op Operator) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrNoSecret
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	case op.ID == uuid.Nil:
		return "", ErrNoOperator
	}
	claims := operatorClaims{
		UserID: op.ID,
		Name:   strings.TrimSpace(op.Name),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   op.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign operator token: %w", err)
	}
	return signed, nil
}
