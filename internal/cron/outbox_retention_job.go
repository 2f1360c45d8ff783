package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
)

const (
	defaultOutboxRetentionDays = 30
	defaultRetentionBatch      = 500
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedPruner interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository publishedPruner
	Retention  int
	BatchSize  int
}

// NewOutboxRetentionJob prunes transition events published more than
// Retention days ago.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:  params.Logger,
		db:    params.DB,
		repo:  params.Repository,
		keep:  time.Duration(defaultOutboxRetentionDays) * 24 * time.Hour,
		batch: defaultRetentionBatch,
		now:   time.Now,
	}
	if params.Retention > 0 {
		job.keep = time.Duration(params.Retention) * 24 * time.Hour
	}
	if params.BatchSize > 0 {
		job.batch = params.BatchSize
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg  *logger.Logger
	db    txRunner
	repo  publishedPruner
	keep  time.Duration
	batch int
	now   func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run deletes in bounded batches, one transaction each, until a short batch
// comes back or ctx ends.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.keep)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = j.repo.DeletePublishedBefore(tx, cutoff, j.batch)
			return err
		})
		if err != nil {
			return fmt.Errorf("outbox retention after %d rows: %w", total, err)
		}
		total += n
		if n < int64(j.batch) {
			break
		}
	}

	if total > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"cutoff":       cutoff,
			"rows_deleted": total,
		}), "pruned published outbox rows")
	}
	return nil
}
