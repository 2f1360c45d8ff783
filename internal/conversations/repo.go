package conversations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/handoffdesk-backend/internal/repo"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/handoffdesk-backend/pkg/db/types"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/handoffdesk-backend/pkg/errors"
	"github.com/angelmondragon/handoffdesk-backend/pkg/pagination"
)

// Repository persists conversations and their transcripts. Status columns are
// written only by the lifecycle machine.
type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

func (r *Repository) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	if conv.Metadata == nil {
		conv.Metadata = dbtypes.JSONMap{}
	}
	return r.DB(ctx).Create(conv).Error
}

func (r *Repository) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.DB(ctx).Where("id = ?", id).First(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "conversation not found")
		}
		return nil, err
	}
	return &conv, nil
}

// CreateMessage appends to the transcript.
func (r *Repository) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Metadata == nil {
		msg.Metadata = dbtypes.JSONMap{}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return r.DB(ctx).Create(msg).Error
}

// RecentMessages returns the last limit messages, oldest first.
func (r *Repository) RecentMessages(ctx context.Context, convID uuid.UUID, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = pagination.MaxLimit
	}
	var msgs []models.Message
	err := r.DB(ctx).
		Where("conversation_id = ?", convID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListMessages pages through the transcript oldest first.
func (r *Repository) ListMessages(ctx context.Context, convID uuid.UUID, params pagination.Params) (pagination.Page[models.Message], error) {
	q, err := pagination.Seek(r.DB(ctx).Where("conversation_id = ?", convID), "created_at", params)
	if err != nil {
		return pagination.Page[models.Message]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	var msgs []models.Message
	if err := q.Find(&msgs).Error; err != nil {
		return pagination.Page[models.Message]{}, err
	}
	return pagination.Trim(msgs, params.Limit, func(m models.Message) pagination.Cursor {
		return pagination.Cursor{At: m.CreatedAt, ID: m.ID}
	}), nil
}

// ListStale returns conversations in one of statuses whose last activity is
// older than before, least recently active first. An agent_working
// conversation whose newest message is the agent's reply is settled, not
// stalled, and is skipped.
func (r *Repository) ListStale(ctx context.Context, statuses []enums.ConversationStatus, before time.Time, limit int) ([]models.Conversation, error) {
	latestSender := r.DB(ctx).Model(&models.Message{}).
		Select("sender_type").
		Where("messages.conversation_id = conversations.id").
		Order("created_at DESC, id DESC").
		Limit(1)

	var convs []models.Conversation
	err := r.DB(ctx).
		Where("status IN ? AND last_activity_at < ? AND archived_at IS NULL", statuses, before).
		Where("NOT (status = ? AND COALESCE((?), '') = ?)", enums.ConversationAgentWorking, latestSender, enums.SenderAgent).
		Order("last_activity_at ASC").
		Limit(limit).
		Find(&convs).Error
	return convs, err
}
