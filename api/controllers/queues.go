package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/handoffdesk-backend/api/middleware"
	"github.com/angelmondragon/handoffdesk-backend/api/responses"
	"github.com/angelmondragon/handoffdesk-backend/api/validators"
	"github.com/angelmondragon/handoffdesk-backend/internal/assignments"
	"github.com/angelmondragon/handoffdesk-backend/internal/routing"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/handoffdesk-backend/pkg/errors"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
	"github.com/angelmondragon/handoffdesk-backend/pkg/pagination"
)

type QueueReader interface {
	ListQueues(ctx context.Context) ([]models.Queue, error)
	GetQueue(ctx context.Context, id uuid.UUID) (*models.Queue, error)
	ListItems(ctx context.Context, f routing.ItemFilter) (pagination.Page[models.QueueItem], error)
}

// AssignmentService performs the operator actions.
type AssignmentService interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Assignment, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Assignment, error)
	Claim(ctx context.Context, in assignments.ClaimInput) (*models.Assignment, error)
	Accept(ctx context.Context, assignmentID, actorID uuid.UUID) (*models.Assignment, error)
	Release(ctx context.Context, assignmentID, actorID uuid.UUID, reason string) (*models.Assignment, error)
	Resolve(ctx context.Context, assignmentID, actorID uuid.UUID, summary string) (*models.Assignment, error)
}

type claimRequest struct {
	AssigneeID string `json:"assignee_id" validate:"omitempty,uuid"`
}

func ListQueues(reader QueueReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queues, err := reader.ListQueues(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapSlice(queues, toQueueView))
	}
}

// ListQueueItems pages a queue's items oldest first; ?state narrows by state.
func ListQueueItems(reader QueueReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queueID, err := validators.ParseUUIDParam(r, "queueId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := routing.ItemFilter{QueueID: queueID, Params: params}
		if raw := strings.TrimSpace(r.URL.Query().Get("state")); raw != "" {
			state := enums.QueueItemState(raw)
			if !state.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid state").
					WithDetails(map[string]any{"field": "state"}))
				return
			}
			filter.State = state
		}

		if _, err := reader.GetQueue(r.Context(), queueID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := reader.ListItems(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapPage(page, toQueueItemView))
	}
}

// ClaimQueueItem assigns a queued item to the caller or to assignee_id.
func ClaimQueueItem(svc AssignmentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queueID, err := validators.ParseUUIDParam(r, "queueId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var req claimRequest
		if err := decodeOptionalBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		in := assignments.ClaimInput{QueueID: queueID, QueueItemID: itemID, ActorID: actor}
		if req.AssigneeID != "" {
			in.AssigneeID = uuid.MustParse(req.AssigneeID)
		}

		assignment, err := svc.Claim(r.Context(), in)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, toAssignmentView(assignment))
	}
}

func requireActor(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	actor := middleware.ActorFromContext(r.Context())
	if actor == uuid.Nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing"))
		return uuid.Nil, false
	}
	return actor, true
}
