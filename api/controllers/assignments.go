package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/handoffdesk-backend/api/responses"
	"github.com/angelmondragon/handoffdesk-backend/api/validators"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
)

type releaseRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type resolveRequest struct {
	Summary string `json:"summary" validate:"max=5000"`
}

// ListMyAssignments returns the caller's open assignments.
func ListMyAssignments(svc AssignmentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		rows, err := svc.ListForUser(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapSlice(rows, toAssignmentView))
	}
}

func GetAssignment(svc AssignmentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "assignmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		a, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toAssignmentView(a))
	}
}

func AcceptAssignment(svc AssignmentService, logg *logger.Logger) http.HandlerFunc {
	return assignmentAction(logg, func(r *http.Request, id, actor uuid.UUID) (*models.Assignment, error) {
		return svc.Accept(r.Context(), id, actor)
	})
}

// ReleaseAssignment hands the conversation back to the agent.
func ReleaseAssignment(svc AssignmentService, logg *logger.Logger) http.HandlerFunc {
	return assignmentAction(logg, func(r *http.Request, id, actor uuid.UUID) (*models.Assignment, error) {
		var req releaseRequest
		if err := decodeOptionalBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Release(r.Context(), id, actor, req.Reason)
	})
}

func ResolveAssignment(svc AssignmentService, logg *logger.Logger) http.HandlerFunc {
	return assignmentAction(logg, func(r *http.Request, id, actor uuid.UUID) (*models.Assignment, error) {
		var req resolveRequest
		if err := decodeOptionalBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Resolve(r.Context(), id, actor, req.Summary)
	})
}

type assignmentFn func(r *http.Request, id, actor uuid.UUID) (*models.Assignment, error)

func assignmentAction(logg *logger.Logger, act assignmentFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "assignmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		a, err := act(r, id, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toAssignmentView(a))
	}
}

// decodeOptionalBody accepts an empty body as the zero request.
func decodeOptionalBody(r *http.Request, dest any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return validators.DecodeJSONBody(r, dest)
}
