package assignments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/handoffdesk-backend/internal/repo"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/handoffdesk-backend/pkg/errors"
)

// Repository reads assignments and queue items for human actions. Get* are the
// unlocked advisory reads; Lock* must run inside a transaction.
type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

func (r *Repository) GetAssignment(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	return r.findAssignment(r.DB(ctx), id)
}

func (r *Repository) LockAssignment(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	return r.findAssignment(r.ForUpdate(ctx), id)
}

func (r *Repository) GetQueueItem(ctx context.Context, queueID, itemID uuid.UUID) (*models.QueueItem, error) {
	return r.findItem(r.DB(ctx), queueID, itemID)
}

func (r *Repository) LockQueueItem(ctx context.Context, queueID, itemID uuid.UUID) (*models.QueueItem, error) {
	return r.findItem(r.ForUpdate(ctx), queueID, itemID)
}

// ListForUser returns a user's current assignments, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Assignment, error) {
	var out []models.Assignment
	err := r.DB(ctx).
		Where("user_id = ? AND released_at IS NULL AND status IN ?", userID, currentStatuses).
		Order("assigned_at DESC").
		Find(&out).Error
	return out, err
}

func (r *Repository) findAssignment(q *gorm.DB, id uuid.UUID) (*models.Assignment, error) {
	var a models.Assignment
	if err := q.Where("id = ?", id).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "assignment not found")
		}
		return nil, err
	}
	return &a, nil
}

func (r *Repository) findItem(q *gorm.DB, queueID, itemID uuid.UUID) (*models.QueueItem, error) {
	var item models.QueueItem
	if err := q.Where("id = ? AND queue_id = ?", itemID, queueID).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "queue item not found")
		}
		return nil, err
	}
	return &item, nil
}
