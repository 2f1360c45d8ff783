package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/handoffdesk-backend/api/responses"
	"github.com/angelmondragon/handoffdesk-backend/pkg/auth"
	"github.com/angelmondragon/handoffdesk-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/handoffdesk-backend/pkg/errors"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
)

// Auth requires an operator bearer token on every request.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	verifier := auth.NewVerifier(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			op, err := verifier.Verify(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithOperator(r.Context(), op)
			if logg != nil {
				ctx = logg.WithUserID(ctx, op.ID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
