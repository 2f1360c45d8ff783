package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/handoffdesk-backend/pkg/auth"
	"github.com/angelmondragon/handoffdesk-backend/pkg/config"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 10}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsBadCredentials(t *testing.T) {
	handler := Auth(testJWT, nil)(okHandler())
	for name, header := range map[string]string{
		"missing":      "",
		"not bearer":   "Basic dXNlcjpwYXNz",
		"empty bearer": "Bearer   ",
		"garbage":      "Bearer invalid",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAuthSeedsOperator(t *testing.T) {
	op := auth.Operator{ID: uuid.New(), Name: "Dana"}
	token, err := auth.Mint(testJWT, time.Now(), op)
	require.NoError(t, err)

	var seen auth.Operator
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = OperatorFromContext(r.Context())
		assert.Equal(t, op.ID, ActorFromContext(r.Context()))
		assert.Equal(t, op.ID.String(), UserIDFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, op, seen)
}

func TestContextWithoutOperator(t *testing.T) {
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	assert.Equal(t, uuid.Nil, ActorFromContext(ctx))
	assert.Empty(t, UserIDFromContext(ctx))
	_, ok := OperatorFromContext(WithOperator(ctx, auth.Operator{}))
	assert.False(t, ok)
}
