package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/angelmondragon/handoffdesk-backend/pkg/config"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
)

// AttemptHeader counts failed deliveries of a message.
const AttemptHeader = "x-attempt"

var (
	// ErrPoison marks a message that can never succeed; it goes straight to the DLQ.
	ErrPoison = errors.New("poison message")
	// ErrDeferred asks for redelivery after the retry delay without spending an attempt.
	ErrDeferred = errors.New("deferred")
)

// Handler processes one message body. attempt is zero on first delivery.
type Handler func(ctx context.Context, body []byte, attempt int) error

// Republisher sends a delayed copy to the retry queue.
type Republisher interface {
	Publish(ctx context.Context, queue string, msg amqp.Publishing) error
}

type consumeChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

type ConsumerParams struct {
	Channel     consumeChannel
	Republisher Republisher
	Config      config.RabbitMQConfig
	Handler     Handler
	Logger      *logger.Logger
}

// Consumer runs a bounded worker pool over the main job queue.
type Consumer struct {
	ch          consumeChannel
	retry       Republisher
	queue       string
	retryQueue  string
	maxAttempts int
	concurrency int
	handler     Handler
	logg        *logger.Logger
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Channel == nil {
		return nil, errors.New("channel is required")
	}
	if params.Republisher == nil {
		return nil, errors.New("republisher is required")
	}
	if params.Handler == nil {
		return nil, errors.New("handler is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	cfg := params.Config
	c := &Consumer{
		ch:          params.Channel,
		retry:       params.Republisher,
		queue:       cfg.Queue,
		retryQueue:  cfg.RetryQueue(),
		maxAttempts: cfg.MaxAttempts,
		concurrency: cfg.Concurrency,
		handler:     params.Handler,
		logg:        params.Logger,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 1
	}
	if c.concurrency <= 0 {
		c.concurrency = 1
	}
	return c, nil
}

// Run consumes until ctx is canceled, then drains in-flight deliveries and returns ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(c.concurrency, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	jobs := make(chan amqp.Delivery, c.concurrency)
	var wg sync.WaitGroup
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			workerCtx := c.logg.WithField(ctx, "worker_id", workerID)
			for d := range jobs {
				c.handle(workerCtx, d)
			}
		}(i)
	}

	defer func() {
		close(jobs)
		wg.Wait()
		_ = c.ch.Close()
	}()

	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"queue":       c.queue,
		"concurrency": c.concurrency,
	}), "consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			jobs <- d
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	attempt := Attempt(d)
	ctx = c.logg.WithFields(ctx, map[string]any{
		"message_id": d.MessageId,
		"attempt":    attempt,
	})

	err := c.handler(ctx, d.Body, attempt)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			c.logg.Error(ctx, "ack failed", ackErr)
		}
	case errors.Is(err, ErrPoison):
		c.logg.Error(ctx, "poison message dead-lettered", err)
		_ = d.Nack(false, false)
	case errors.Is(err, ErrDeferred):
		c.redeliver(ctx, d, attempt)
	case attempt+1 >= c.maxAttempts:
		c.logg.Error(ctx, "message exhausted retries", err)
		_ = d.Nack(false, false)
	default:
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "message failed, scheduling retry")
		c.redeliver(ctx, d, attempt+1)
	}
}

// redeliver parks a copy on the retry queue and acks the original. If the copy cannot be
// published the original goes back to the main queue instead.
func (c *Consumer) redeliver(ctx context.Context, d amqp.Delivery, attempt int) {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[AttemptHeader] = int32(attempt)

	err := c.retry.Publish(ctx, c.retryQueue, amqp.Publishing{
		ContentType:   d.ContentType,
		MessageId:     d.MessageId,
		CorrelationId: d.CorrelationId,
		Headers:       headers,
		Body:          d.Body,
		Timestamp:     time.Now().UTC(),
	})
	if err != nil {
		c.logg.Error(ctx, "retry publish failed, requeueing", err)
		_ = d.Nack(false, true)
		return
	}
	if ackErr := d.Ack(false); ackErr != nil {
		c.logg.Error(ctx, "ack after retry publish failed", ackErr)
	}
}

// Attempt reads the attempt header; brokers may hand integers back in any width.
func Attempt(d amqp.Delivery) int {
	switch v := d.Headers[AttemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	}
	return 0
}
