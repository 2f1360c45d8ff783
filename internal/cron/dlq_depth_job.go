package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
)

type dlqCounter interface {
	CountByReason(ctx context.Context) (map[enums.OutboxDLQErrorReason]int64, error)
}

type depthGauge interface {
	Set(reason string, n int64)
}

// NewDLQDepthJob republishes the outbox DLQ size per reason so alerts can
// fire on parked transition facts.
func NewDLQDepthJob(logg *logger.Logger, counter dlqCounter, gauge depthGauge) (Job, error) {
	if logg == nil || counter == nil || gauge == nil {
		return nil, fmt.Errorf("logger, dlq counter and gauge required")
	}
	return &dlqDepthJob{logg: logg, counter: counter, gauge: gauge}, nil
}

type dlqDepthJob struct {
	logg    *logger.Logger
	counter dlqCounter
	gauge   depthGauge
}

func (j *dlqDepthJob) Name() string { return "outbox-dlq-depth" }

func (j *dlqDepthJob) Run(ctx context.Context) error {
	counts, err := j.counter.CountByReason(ctx)
	if err != nil {
		return fmt.Errorf("count dlq: %w", err)
	}
	var parked int64
	for _, reason := range enums.OutboxDLQReasons {
		j.gauge.Set(string(reason), counts[reason])
		parked += counts[reason]
	}
	if parked > 0 {
		j.logg.Warn(j.logg.WithField(ctx, "parked", parked), "outbox dlq not empty")
	}
	return nil
}
