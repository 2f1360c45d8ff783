// Package agentjobs carries run-agent triggers over the job queue: Enqueuer
// publishes them and Handler executes them on the worker.
package agentjobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunAgentJob is the queue message body.
type RunAgentJob struct {
	ConversationID uuid.UUID  `json:"conversation_id"`
	JobID          *uuid.UUID `json:"job_id,omitempty"`
	RequestedAt    *time.Time `json:"requested_at,omitempty"`
}

type jobPublisher interface {
	PublishJSON(ctx context.Context, queue, messageID string, body any) error
}

// Enqueuer publishes run-agent jobs.
type Enqueuer struct {
	publisher jobPublisher
	queue     string
	now       func() time.Time
}

func NewEnqueuer(publisher jobPublisher, queue string) (*Enqueuer, error) {
	if publisher == nil {
		return nil, errors.New("job publisher required")
	}
	if queue == "" {
		return nil, errors.New("run-agent queue name required")
	}
	return &Enqueuer{publisher: publisher, queue: queue, now: time.Now}, nil
}

// EnqueueRunAgent schedules one orchestrator run for the conversation.
func (e *Enqueuer) EnqueueRunAgent(ctx context.Context, convID uuid.UUID) error {
	if convID == uuid.Nil {
		return errors.New("conversation id required")
	}
	jobID := uuid.New()
	at := e.now().UTC()
	job := RunAgentJob{ConversationID: convID, JobID: &jobID, RequestedAt: &at}
	if err := e.publisher.PublishJSON(ctx, e.queue, jobID.String(), job); err != nil {
		return fmt.Errorf("publish run-agent job: %w", err)
	}
	return nil
}
