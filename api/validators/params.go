package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/handoffdesk-backend/pkg/errors"
	"github.com/angelmondragon/handoffdesk-backend/pkg/pagination"
)

// ParseUUIDParam reads a chi path parameter as a non-nil uuid.
func ParseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, name)))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, invalidField("invalid path parameter", name)
	}
	return id, nil
}

// ParsePage reads the limit and cursor query parameters. Limit defaults to
// pagination.DefaultLimit and must fall within 1..pagination.MaxLimit.
func ParsePage(r *http.Request) (pagination.Params, error) {
	q := r.URL.Query()
	params := pagination.Params{Limit: pagination.DefaultLimit, Cursor: strings.TrimSpace(q.Get("cursor"))}

	raw := strings.TrimSpace(q.Get("limit"))
	if raw == "" {
		return params, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return pagination.Params{}, invalidField("limit must be numeric", "limit")
	}
	if limit < 1 || limit > pagination.MaxLimit {
		return pagination.Params{}, pkgerrors.New(pkgerrors.CodeValidation, "limit out of range").
			WithDetails(map[string]any{"field": "limit", "min": 1, "max": pagination.MaxLimit})
	}
	params.Limit = limit
	return params, nil
}

func invalidField(msg, field string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"field": field})
}
