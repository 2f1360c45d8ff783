package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
)

const defaultStalledBatchSize = 100

var agentOwnedStatuses = []enums.ConversationStatus{
	enums.ConversationNew,
	enums.ConversationBackToAgent,
	enums.ConversationAgentWorking,
}

type staleLister interface {
	ListStale(ctx context.Context, statuses []enums.ConversationStatus, before time.Time, limit int) ([]models.Conversation, error)
}

type runAgentEnqueuer interface {
	EnqueueRunAgent(ctx context.Context, convID uuid.UUID) error
}

type StalledRunsJobParams struct {
	Logger     *logger.Logger
	Store      staleLister
	Enqueuer   runAgentEnqueuer
	StallAfter time.Duration
	BatchSize  int
}

// NewStalledRunsJob re-enqueues run-agent jobs for agent-owned conversations
// with no activity for StallAfter. It recovers runs lost to a crashed worker
// or a dropped job; the per-conversation run lock keeps duplicates harmless.
func NewStalledRunsJob(params StalledRunsJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Store == nil:
		return nil, fmt.Errorf("conversation store required")
	case params.Enqueuer == nil:
		return nil, fmt.Errorf("run-agent enqueuer required")
	case params.StallAfter <= 0:
		return nil, fmt.Errorf("stall threshold must be positive")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultStalledBatchSize
	}
	return &stalledRunsJob{
		logg:       params.Logger,
		store:      params.Store,
		enqueuer:   params.Enqueuer,
		stallAfter: params.StallAfter,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type stalledRunsJob struct {
	logg       *logger.Logger
	store      staleLister
	enqueuer   runAgentEnqueuer
	stallAfter time.Duration
	batch      int
	now        func() time.Time
}

func (j *stalledRunsJob) Name() string { return "stalled-agent-runs" }

func (j *stalledRunsJob) Run(ctx context.Context) error {
	before := j.now().UTC().Add(-j.stallAfter)
	convs, err := j.store.ListStale(ctx, agentOwnedStatuses, before, j.batch)
	if err != nil {
		return fmt.Errorf("list stalled conversations: %w", err)
	}

	var errs error
	requeued := 0
	for i := range convs {
		if err := j.enqueuer.EnqueueRunAgent(ctx, convs[i].ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("conversation %s: %w", convs[i].ID, err))
			continue
		}
		requeued++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"stalled":  len(convs),
		"requeued": requeued,
		"before":   before,
	}), "stalled agent runs requeued")
	return errs
}
