package agentjobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/handoffdesk-backend/pkg/errors"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
	"github.com/angelmondragon/handoffdesk-backend/pkg/rabbitmq"
	"github.com/angelmondragon/handoffdesk-backend/pkg/redis"
)

const consumerName = "agent-runs"

type runner interface {
	Run(ctx context.Context, convID uuid.UUID) error
}

type lockStore interface {
	redis.LockStore
	LockKey(scope, id string) string
}

type jobGuard interface {
	Seen(ctx context.Context, consumer string, jobID uuid.UUID) (bool, error)
	Forget(ctx context.Context, consumer string, jobID uuid.UUID) error
}

type HandlerParams struct {
	Runner  runner
	Locks   lockStore
	Guard   jobGuard
	LockTTL time.Duration
	Logger  *logger.Logger
}

// Handler executes run-agent jobs. A per-conversation lock keeps one run per
// conversation in flight across the fleet; a busy lock defers the job to the
// retry queue without spending an attempt. Job ids are marked before the run and
// cleared on failure, so a redelivered job that was interrupted mid-run is skipped
// and left to the stalled-run sweep.
type Handler struct {
	runner  runner
	locks   lockStore
	guard   jobGuard
	lockTTL time.Duration
	logg    *logger.Logger
}

func NewHandler(p HandlerParams) (*Handler, error) {
	switch {
	case p.Runner == nil:
		return nil, errors.New("run-agent runner required")
	case p.Locks == nil:
		return nil, errors.New("lock store required")
	case p.Logger == nil:
		return nil, errors.New("logger required")
	}
	return &Handler{runner: p.Runner, locks: p.Locks, guard: p.Guard, lockTTL: p.LockTTL, logg: p.Logger}, nil
}

// Handle satisfies rabbitmq.Handler.
func (h *Handler) Handle(ctx context.Context, body []byte, attempt int) error {
	var job RunAgentJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("%w: decode run-agent job: %v", rabbitmq.ErrPoison, err)
	}
	if job.ConversationID == uuid.Nil {
		return fmt.Errorf("%w: run-agent job without conversation_id", rabbitmq.ErrPoison)
	}
	ctx = h.logg.WithConversationID(ctx, job.ConversationID.String())

	lock, err := redis.NewLock(h.locks, h.locks.LockKey("agent_run", job.ConversationID.String()), h.lockTTL)
	if err != nil {
		return err
	}
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		h.logg.Debug(ctx, "agent run in progress elsewhere, deferring")
		return rabbitmq.ErrDeferred
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			h.logg.Warn(h.logg.WithField(ctx, "error", err.Error()), "release agent run lock")
		}
	}()

	if h.guard != nil && job.JobID != nil {
		seen, err := h.guard.Seen(ctx, consumerName, *job.JobID)
		if err != nil {
			return err
		}
		if seen {
			h.logg.Info(ctx, "duplicate run-agent job skipped")
			return nil
		}
	}

	if err := h.runner.Run(ctx, job.ConversationID); err != nil {
		if h.guard != nil && job.JobID != nil {
			if ferr := h.guard.Forget(ctx, consumerName, *job.JobID); ferr != nil {
				h.logg.Warn(h.logg.WithField(ctx, "error", ferr.Error()), "forget failed job")
			}
		}
		h.logg.Warn(h.logg.WithFields(ctx, map[string]any{"error": err.Error(), "attempt": attempt}), "agent run failed")
		if !pkgerrors.IsRetryable(err) {
			return fmt.Errorf("%w: %v", rabbitmq.ErrPoison, err)
		}
		return err
	}
	return nil
}
