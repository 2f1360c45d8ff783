package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/handoffdesk-backend/api/middleware"
	"github.com/angelmondragon/handoffdesk-backend/api/responses"
	"github.com/angelmondragon/handoffdesk-backend/api/validators"
	"github.com/angelmondragon/handoffdesk-backend/internal/conversations"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
	"github.com/angelmondragon/handoffdesk-backend/pkg/pagination"
)

// ConversationService is the intake surface the conversation routes use.
type ConversationService interface {
	Create(ctx context.Context, in conversations.CreateInput) (*models.Conversation, error)
	AppendMessage(ctx context.Context, in conversations.MessageInput) (*models.Message, error)
	Archive(ctx context.Context, convID, actorID uuid.UUID) (*models.Conversation, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	ListMessages(ctx context.Context, id uuid.UUID, params pagination.Params) (pagination.Page[models.Message], error)
	ListAuditEvents(ctx context.Context, id uuid.UUID) ([]models.AuditEvent, error)
	ListHandoffs(ctx context.Context, id uuid.UUID) ([]models.Handoff, error)
	AllowedTransitions(ctx context.Context, id uuid.UUID) ([]enums.Transition, error)
}

type createConversationRequest struct {
	RequesterID   string         `json:"requester_id" validate:"required,max=255"`
	RequesterType string         `json:"requester_type" validate:"omitempty,oneof=customer visitor api"`
	Channel       string         `json:"channel" validate:"required,max=64"`
	Priority      int            `json:"priority" validate:"min=0,max=100"`
	Metadata      map[string]any `json:"metadata"`
	Message       string         `json:"message" validate:"required,max=20000"`
}

type appendMessageRequest struct {
	SenderType string         `json:"sender_type" validate:"required,oneof=requester human"`
	AuthorID   string         `json:"author_id" validate:"max=255"`
	Content    string         `json:"content" validate:"required,max=20000"`
	Metadata   map[string]any `json:"metadata"`
}

// CreateConversation opens a conversation with its first requester message.
func CreateConversation(svc ConversationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createConversationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		conv, err := svc.Create(r.Context(), conversations.CreateInput{
			RequesterID:   validators.SanitizeString(req.RequesterID, 255),
			RequesterType: enums.RequesterType(req.RequesterType),
			Channel:       validators.SanitizeString(req.Channel, 64),
			Priority:      req.Priority,
			Metadata:      req.Metadata,
			Message:       req.Message,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, toConversationView(conv))
	}
}

func GetConversation(svc ConversationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "conversationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		conv, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toConversationView(conv))
	}
}

// AppendMessage adds a requester or operator message. Operator messages
// default their author to the authenticated user.
func AppendMessage(svc ConversationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "conversationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req appendMessageRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sender := enums.SenderType(req.SenderType)
		author := validators.SanitizeString(req.AuthorID, 255)
		if sender == enums.SenderHuman && author == "" {
			author = middleware.UserIDFromContext(r.Context())
		}

		msg, err := svc.AppendMessage(r.Context(), conversations.MessageInput{
			ConversationID: id,
			SenderType:     sender,
			AuthorID:       author,
			Content:        req.Content,
			Metadata:       req.Metadata,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, toMessageView(msg))
	}
}

func ListMessages(svc ConversationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "conversationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListMessages(r.Context(), id, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapPage(page, toMessageView))
	}
}

func ListAuditEvents(svc ConversationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "conversationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		events, err := svc.ListAuditEvents(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapSlice(events, toAuditEventView))
	}
}

func ListHandoffs(svc ConversationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "conversationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		handoffs, err := svc.ListHandoffs(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapSlice(handoffs, toHandoffView))
	}
}

// ListTransitions reports which transitions may fire from the current status.
func ListTransitions(svc ConversationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "conversationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		allowed, err := svc.AllowedTransitions(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"allowed": allowed})
	}
}

func ArchiveConversation(svc ConversationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "conversationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		conv, err := svc.Archive(r.Context(), id, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toConversationView(conv))
	}
}
