package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/handoffdesk-backend/internal/repo"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/handoffdesk-backend/pkg/db/types"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/handoffdesk-backend/pkg/errors"
)

var activeItemStates = []enums.QueueItemState{enums.QueueItemQueued, enums.QueueItemHot}

// Repository persists conversation lifecycle rows. Writes are expected to run
// inside the machine's transaction; see WithTx.
type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

func (r *Repository) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.DB(ctx).Where("id = ?", id).First(&conv).Error; err != nil {
		return nil, notFound(err, "conversation not found")
	}
	return &conv, nil
}

// LockConversation reads the conversation with a row lock held until the transaction ends.
func (r *Repository) LockConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.ForUpdate(ctx).Where("id = ?", id).First(&conv).Error; err != nil {
		return nil, notFound(err, "conversation not found")
	}
	return &conv, nil
}

func (r *Repository) SaveConversationState(ctx context.Context, conv *models.Conversation) error {
	return r.DB(ctx).Model(&models.Conversation{}).
		Where("id = ?", conv.ID).
		Updates(map[string]any{
			"status":           conv.Status,
			"last_activity_at": conv.LastActivityAt,
			"archived_at":      conv.ArchivedAt,
			"updated_at":       time.Now().UTC(),
		}).Error
}

// UpsertHandoff inserts or refreshes the handoff for (conversation, reason_code).
func (r *Repository) UpsertHandoff(ctx context.Context, h *models.Handoff) (*models.Handoff, error) {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	err := r.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "conversation_id"}, {Name: "reason_code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"confidence", "policy_hits", "required_skills", "metadata", "occurred_at", "updated_at",
		}),
	}).Create(h).Error
	if err != nil {
		return nil, err
	}

	var stored models.Handoff
	err = r.DB(ctx).
		Where("conversation_id = ? AND reason_code = ?", h.ConversationID, h.ReasonCode).
		First(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// LockActiveItem returns the queued or hot item for (queue, conversation), or nil.
func (r *Repository) LockActiveItem(ctx context.Context, queueID, convID uuid.UUID) (*models.QueueItem, error) {
	var item models.QueueItem
	err := r.ForUpdate(ctx).
		Where("queue_id = ? AND conversation_id = ? AND state IN ?", queueID, convID, activeItemStates).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *Repository) CreateQueueItem(ctx context.Context, item *models.QueueItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if err := r.DB(ctx).Create(item).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "conversation already active in queue")
		}
		return err
	}
	return nil
}

// RequeueItem resets an existing active item to queued.
func (r *Repository) RequeueItem(ctx context.Context, item *models.QueueItem) error {
	return r.DB(ctx).Model(&models.QueueItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{
			"state":       enums.QueueItemQueued,
			"enqueued_at": item.EnqueuedAt,
			"dequeued_at": nil,
			"metadata":    item.Metadata,
			"updated_at":  time.Now().UTC(),
		}).Error
}

// TakeQueuedItem flips a queued item to hot. The state predicate makes the update
// the arbiter between racing claims: zero rows means someone else took it.
func (r *Repository) TakeQueuedItem(ctx context.Context, where *models.QueueItem, dequeuedAt time.Time) (*models.QueueItem, error) {
	scope := func(q *gorm.DB) *gorm.DB {
		if where.ID != uuid.Nil {
			q = q.Where("id = ?", where.ID)
		}
		if where.QueueID != uuid.Nil {
			q = q.Where("queue_id = ?", where.QueueID)
		}
		return q.Where("conversation_id = ?", where.ConversationID)
	}

	res := scope(r.DB(ctx).Model(&models.QueueItem{})).
		Where("state = ?", enums.QueueItemQueued).
		Updates(map[string]any{
			"state":       enums.QueueItemHot,
			"dequeued_at": dequeuedAt,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "queue item is no longer queued")
	}

	var item models.QueueItem
	err := scope(r.DB(ctx)).
		Where("state = ?", enums.QueueItemHot).
		Order("dequeued_at DESC").
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CompleteActiveItems closes the conversation's queued/hot items across all queues,
// stamping dequeued_at with the completion time.
func (r *Repository) CompleteActiveItems(ctx context.Context, convID uuid.UUID, states []enums.QueueItemState, at time.Time) ([]models.QueueItem, error) {
	var items []models.QueueItem
	err := r.ForUpdate(ctx).
		Where("conversation_id = ? AND state IN ?", convID, states).
		Order("enqueued_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	for i := range items {
		items[i].DequeuedAt = &at
		items[i].State = enums.QueueItemCompleted
		err := r.DB(ctx).Model(&models.QueueItem{}).
			Where("id = ?", items[i].ID).
			Updates(map[string]any{
				"state":       enums.QueueItemCompleted,
				"dequeued_at": items[i].DequeuedAt,
				"updated_at":  time.Now().UTC(),
			}).Error
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (r *Repository) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if err := r.DB(ctx).Create(a).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "conversation already has an active assignment")
		}
		return err
	}
	return nil
}

// LockLatestAssignment locks the newest assignment of the conversation in one of
// statuses, optionally held by userID.
func (r *Repository) LockLatestAssignment(ctx context.Context, convID uuid.UUID, userID *uuid.UUID, statuses ...enums.AssignmentStatus) (*models.Assignment, error) {
	q := r.ForUpdate(ctx).Where("conversation_id = ?", convID)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var a models.Assignment
	if err := q.Order("assigned_at DESC").First(&a).Error; err != nil {
		return nil, notFound(err, "assignment not found")
	}
	return &a, nil
}

func (r *Repository) SaveAssignment(ctx context.Context, a *models.Assignment) error {
	return r.DB(ctx).Model(&models.Assignment{}).
		Where("id = ?", a.ID).
		Updates(map[string]any{
			"status":      a.Status,
			"accepted_at": a.AcceptedAt,
			"released_at": a.ReleasedAt,
			"resolved_at": a.ResolvedAt,
			"metadata":    a.Metadata,
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (r *Repository) InsertAuditEvent(ctx context.Context, ev *models.AuditEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Payload == nil {
		ev.Payload = dbtypes.JSONMap{}
	}
	return r.DB(ctx).Create(ev).Error
}

func (r *Repository) ListAuditEvents(ctx context.Context, convID uuid.UUID) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := r.DB(ctx).
		Where("conversation_id = ?", convID).
		Order("occurred_at ASC, created_at ASC").
		Find(&events).Error
	return events, err
}

func (r *Repository) ListHandoffs(ctx context.Context, convID uuid.UUID) ([]models.Handoff, error) {
	var handoffs []models.Handoff
	err := r.DB(ctx).
		Where("conversation_id = ?", convID).
		Order("occurred_at ASC").
		Find(&handoffs).Error
	return handoffs, err
}

func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, msg)
	}
	return err
}
