package routing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/handoffdesk-backend/internal/repo"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/handoffdesk-backend/pkg/errors"
	"github.com/angelmondragon/handoffdesk-backend/pkg/pagination"
)

// Repository reads queues and their items.
type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// ActiveQueues lists active queues oldest first.
func (r *Repository) ActiveQueues(ctx context.Context) ([]models.Queue, error) {
	var queues []models.Queue
	err := r.DB(ctx).
		Where("active = ?", true).
		Order("created_at ASC, id ASC").
		Find(&queues).Error
	return queues, err
}

// ListQueues returns every queue, active or not, by name.
func (r *Repository) ListQueues(ctx context.Context) ([]models.Queue, error) {
	var queues []models.Queue
	err := r.DB(ctx).Order("name ASC").Find(&queues).Error
	return queues, err
}

func (r *Repository) GetQueue(ctx context.Context, id uuid.UUID) (*models.Queue, error) {
	var q models.Queue
	if err := r.DB(ctx).Where("id = ?", id).First(&q).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "queue not found")
		}
		return nil, err
	}
	return &q, nil
}

// DefaultQueue returns the active default queue, or nil when none is configured.
func (r *Repository) DefaultQueue(ctx context.Context) (*models.Queue, error) {
	var q models.Queue
	err := r.DB(ctx).Where("is_default = ? AND active = ?", true, true).First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// ItemFilter narrows ListItems.
type ItemFilter struct {
	QueueID uuid.UUID
	State   enums.QueueItemState
	pagination.Params
}

// ListItems pages through a queue's items in (enqueued_at, id) order.
func (r *Repository) ListItems(ctx context.Context, f ItemFilter) (pagination.Page[models.QueueItem], error) {
	q := r.DB(ctx).Where("queue_id = ?", f.QueueID)
	if f.State != "" {
		q = q.Where("state = ?", f.State)
	}
	q, err := pagination.Seek(q, "enqueued_at", f.Params)
	if err != nil {
		return pagination.Page[models.QueueItem]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	var items []models.QueueItem
	if err := q.Find(&items).Error; err != nil {
		return pagination.Page[models.QueueItem]{}, err
	}
	return pagination.Trim(items, f.Limit, func(it models.QueueItem) pagination.Cursor {
		return pagination.Cursor{At: it.EnqueuedAt, ID: it.ID}
	}), nil
}
