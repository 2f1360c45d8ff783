package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
	"github.com/angelmondragon/handoffdesk-backend/pkg/pagination"
)

type conversationView struct {
	ID             uuid.UUID                `json:"id"`
	Status         enums.ConversationStatus `json:"status"`
	Priority       int                      `json:"priority"`
	RequesterID    string                   `json:"requester_id"`
	RequesterType  enums.RequesterType      `json:"requester_type"`
	Channel        string                   `json:"channel"`
	Metadata       map[string]any           `json:"metadata"`
	LastActivityAt time.Time                `json:"last_activity_at"`
	ArchivedAt     *time.Time               `json:"archived_at,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
}

func toConversationView(c *models.Conversation) conversationView {
	return conversationView{
		ID:             c.ID,
		Status:         c.Status,
		Priority:       c.Priority,
		RequesterID:    c.RequesterID,
		RequesterType:  c.RequesterType,
		Channel:        c.Channel,
		Metadata:       c.Metadata,
		LastActivityAt: c.LastActivityAt,
		ArchivedAt:     c.ArchivedAt,
		CreatedAt:      c.CreatedAt,
	}
}

type messageView struct {
	ID             uuid.UUID        `json:"id"`
	ConversationID uuid.UUID        `json:"conversation_id"`
	SenderType     enums.SenderType `json:"sender_type"`
	AuthorID       *string          `json:"author_id,omitempty"`
	Content        string           `json:"content"`
	Confidence     *float64         `json:"confidence,omitempty"`
	Metadata       map[string]any   `json:"metadata"`
	CreatedAt      time.Time        `json:"created_at"`
}

func toMessageView(m *models.Message) messageView {
	return messageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderType:     m.SenderType,
		AuthorID:       m.AuthorID,
		Content:        m.Content,
		Confidence:     m.Confidence,
		Metadata:       m.Metadata,
		CreatedAt:      m.CreatedAt,
	}
}

type auditEventView struct {
	ID         uuid.UUID      `json:"id"`
	EventType  string         `json:"event_type"`
	ActorID    *uuid.UUID     `json:"actor_id,omitempty"`
	Channel    string         `json:"channel"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type handoffView struct {
	ID             uuid.UUID      `json:"id"`
	ReasonCode     string         `json:"reason_code"`
	Confidence     *float64       `json:"confidence,omitempty"`
	PolicyHits     []string       `json:"policy_hits"`
	RequiredSkills []string       `json:"required_skills"`
	Metadata       map[string]any `json:"metadata"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

type queueView struct {
	ID             uuid.UUID            `json:"id"`
	Name           string               `json:"name"`
	Skills         []string             `json:"skills"`
	IsDefault      bool                 `json:"is_default"`
	PriorityPolicy enums.PriorityPolicy `json:"priority_policy"`
	Active         bool                 `json:"active"`
}

type queueItemView struct {
	ID             uuid.UUID            `json:"id"`
	QueueID        uuid.UUID            `json:"queue_id"`
	ConversationID uuid.UUID            `json:"conversation_id"`
	State          enums.QueueItemState `json:"state"`
	EnqueuedAt     time.Time            `json:"enqueued_at"`
	DequeuedAt     *time.Time           `json:"dequeued_at,omitempty"`
	Metadata       map[string]any       `json:"metadata"`
}

type assignmentView struct {
	ID             uuid.UUID              `json:"id"`
	ConversationID uuid.UUID              `json:"conversation_id"`
	QueueID        uuid.UUID              `json:"queue_id"`
	QueueItemID    *uuid.UUID             `json:"queue_item_id,omitempty"`
	UserID         uuid.UUID              `json:"user_id"`
	Status         enums.AssignmentStatus `json:"status"`
	AssignedAt     time.Time              `json:"assigned_at"`
	AcceptedAt     *time.Time             `json:"accepted_at,omitempty"`
	ReleasedAt     *time.Time             `json:"released_at,omitempty"`
	ResolvedAt     *time.Time             `json:"resolved_at,omitempty"`
	Metadata       map[string]any         `json:"metadata"`
}

func toAssignmentView(a *models.Assignment) assignmentView {
	return assignmentView{
		ID:             a.ID,
		ConversationID: a.ConversationID,
		QueueID:        a.QueueID,
		QueueItemID:    a.QueueItemID,
		UserID:         a.UserID,
		Status:         a.Status,
		AssignedAt:     a.AssignedAt,
		AcceptedAt:     a.AcceptedAt,
		ReleasedAt:     a.ReleasedAt,
		ResolvedAt:     a.ResolvedAt,
		Metadata:       a.Metadata,
	}
}

// mapSlice converts a slice of models into views.
func mapSlice[M, V any](rows []M, fn func(*M) V) []V {
	out := make([]V, 0, len(rows))
	for i := range rows {
		out = append(out, fn(&rows[i]))
	}
	return out
}

func mapPage[M, V any](page pagination.Page[M], fn func(*M) V) pagination.Page[V] {
	return pagination.Page[V]{Items: mapSlice(page.Items, fn), NextCursor: page.NextCursor}
}

func toAuditEventView(e *models.AuditEvent) auditEventView {
	return auditEventView{
		ID:         e.ID,
		EventType:  e.EventType,
		ActorID:    e.ActorID,
		Channel:    e.Channel,
		Payload:    e.Payload,
		OccurredAt: e.OccurredAt,
	}
}

func toHandoffView(h *models.Handoff) handoffView {
	return handoffView{
		ID:             h.ID,
		ReasonCode:     h.ReasonCode,
		Confidence:     h.Confidence,
		PolicyHits:     h.PolicyHits,
		RequiredSkills: h.RequiredSkills,
		Metadata:       h.Metadata,
		OccurredAt:     h.OccurredAt,
	}
}

func toQueueView(q *models.Queue) queueView {
	return queueView{
		ID:             q.ID,
		Name:           q.Name,
		Skills:         q.Skills,
		IsDefault:      q.IsDefault,
		PriorityPolicy: q.PriorityPolicy,
		Active:         q.Active,
	}
}

func toQueueItemView(i *models.QueueItem) queueItemView {
	return queueItemView{
		ID:             i.ID,
		QueueID:        i.QueueID,
		ConversationID: i.ConversationID,
		State:          i.State,
		EnqueuedAt:     i.EnqueuedAt,
		DequeuedAt:     i.DequeuedAt,
		Metadata:       i.Metadata,
	}
}
