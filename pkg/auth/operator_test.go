package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/handoffdesk-backend/pkg/config"
)

var testCfg = config.JWTConfig{Secret: "secret", Issuer: "handoffdesk", ExpirationMinutes: 30}

func TestMintThenVerify(t *testing.T) {
	op := Operator{ID: uuid.New(), Name: " Dana "}
	token, err := Mint(testCfg, time.Now(), op)
	require.NoError(t, err)

	got, err := NewVerifier(testCfg).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, op.ID, got.ID)
	assert.Equal(t, "Dana", got.Name)
}

func TestVerifyRejections(t *testing.T) {
	valid, err := Mint(testCfg, time.Now(), Operator{ID: uuid.New()})
	require.NoError(t, err)
	expired, err := Mint(testCfg, time.Now().Add(-time.Hour), Operator{ID: uuid.New()})
	require.NoError(t, err)
	// Inside the skew window a just-expired token still passes.
	justExpired, err := Mint(testCfg, time.Now().Add(-30*time.Minute-10*time.Second), Operator{ID: uuid.New()})
	require.NoError(t, err)
	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    testCfg.Issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte(testCfg.Secret))
	require.NoError(t, err)
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, operatorClaims{
		UserID:           uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{Issuer: testCfg.Issuer},
	}).SignedString([]byte(testCfg.Secret))
	require.NoError(t, err)

	otherIssuer := testCfg
	otherIssuer.Issuer = "someone-else"

	cases := []struct {
		name  string
		cfg   config.JWTConfig
		token string
		want  error
	}{
		{name: "tampered", cfg: testCfg, token: valid + "x"},
		{name: "wrong issuer", cfg: otherIssuer, token: valid, want: jwt.ErrTokenInvalidIssuer},
		{name: "expired", cfg: testCfg, token: expired, want: jwt.ErrTokenExpired},
		{name: "no expiry", cfg: testCfg, token: noExp, want: jwt.ErrTokenRequiredClaimMissing},
		{name: "no user", cfg: testCfg, token: noUser, want: ErrNoOperator},
		{name: "no secret", cfg: config.JWTConfig{Issuer: "handoffdesk"}, token: valid, want: ErrNoSecret},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewVerifier(tc.cfg).Verify(tc.token)
			require.Error(t, err)
			if tc.want != nil {
				assert.True(t, errors.Is(err, tc.want), "got %v", err)
			}
		})
	}

	_, err = NewVerifier(testCfg).Verify(justExpired)
	assert.NoError(t, err)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, operatorClaims{
		UserID: uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testCfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte(testCfg.Secret))
	require.NoError(t, err)

	_, err = NewVerifier(testCfg).Verify(token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestMintValidation(t *testing.T) {
	_, err := Mint(testCfg, time.Now(), Operator{})
	assert.ErrorIs(t, err, ErrNoOperator)
	_, err = Mint(config.JWTConfig{Issuer: "x", ExpirationMinutes: 1}, time.Now(), Operator{ID: uuid.New()})
	assert.ErrorIs(t, err, ErrNoSecret)
	_, err = Mint(config.JWTConfig{Secret: "s", Issuer: "x"}, time.Now(), Operator{ID: uuid.New()})
	assert.Error(t, err)
}
