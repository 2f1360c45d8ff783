package rabbitmq

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/handoffdesk-backend/pkg/config"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
)

func TestHandleSettlesDeliveries(t *testing.T) {
	cases := []struct {
		name        string
		attempt     int
		handlerErr  error
		publishErr  error
		wantAck     bool
		wantNack    bool
		wantRequeue bool
		wantRetry   bool
		wantNextTry int32
	}{
		{name: "success acks", wantAck: true},
		{name: "poison dead-letters", handlerErr: ErrPoison, wantNack: true},
		{name: "wrapped poison dead-letters", handlerErr: errors.Join(errors.New("decode"), ErrPoison), wantNack: true},
		{name: "failure schedules retry", handlerErr: errors.New("generator down"), wantAck: true, wantRetry: true, wantNextTry: 1},
		{name: "deferred keeps attempt", attempt: 2, handlerErr: ErrDeferred, wantAck: true, wantRetry: true, wantNextTry: 2},
		{name: "last attempt dead-letters", attempt: 2, handlerErr: errors.New("generator down"), wantNack: true},
		{name: "retry publish failure requeues", handlerErr: errors.New("boom"), publishErr: errors.New("closed"), wantNack: true, wantRequeue: true, wantRetry: true, wantNextTry: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ack := &fakeAcknowledger{}
			pub := &fakeRepublisher{err: tc.publishErr}
			c := newTestConsumer(t, pub, func(context.Context, []byte, int) error { return tc.handlerErr })

			d := amqp.Delivery{
				Acknowledger: ack,
				MessageId:    "m-1",
				Body:         []byte(`{"conversation_id":"x"}`),
				Headers:      amqp.Table{AttemptHeader: int32(tc.attempt), "trace": "t"},
			}
			c.handle(context.Background(), d)

			assert.Equal(t, tc.wantAck, ack.acked)
			assert.Equal(t, tc.wantNack, ack.nacked)
			assert.Equal(t, tc.wantRequeue, ack.requeue)
			if !tc.wantRetry {
				assert.Empty(t, pub.sent)
				return
			}
			require.Len(t, pub.sent, 1)
			assert.Equal(t, "jobs.retry", pub.queues[0])
			assert.Equal(t, tc.wantNextTry, pub.sent[0].Headers[AttemptHeader])
			assert.Equal(t, "t", pub.sent[0].Headers["trace"])
			assert.Equal(t, d.Body, pub.sent[0].Body)
		})
	}
}

func TestAttemptReadsIntegerWidths(t *testing.T) {
	assert.Equal(t, 0, Attempt(amqp.Delivery{}))
	assert.Equal(t, 3, Attempt(amqp.Delivery{Headers: amqp.Table{AttemptHeader: int64(3)}}))
	assert.Equal(t, 4, Attempt(amqp.Delivery{Headers: amqp.Table{AttemptHeader: int16(4)}}))
	assert.Equal(t, 0, Attempt(amqp.Delivery{Headers: amqp.Table{AttemptHeader: "7"}}))
}

func TestRunProcessesUntilCanceled(t *testing.T) {
	deliveries := make(chan amqp.Delivery, 3)
	ch := &fakeChannel{deliveries: deliveries}
	var mu sync.Mutex
	seen := 0
	done := make(chan struct{})

	c, err := NewConsumer(ConsumerParams{
		Channel:     ch,
		Republisher: &fakeRepublisher{},
		Config:      config.RabbitMQConfig{Queue: "jobs", MaxAttempts: 3, Concurrency: 2},
		Logger:      testLogger(),
		Handler: func(context.Context, []byte, int) error {
			mu.Lock()
			defer mu.Unlock()
			seen++
			if seen == 3 {
				close(done)
			}
			return nil
		},
	})
	require.NoError(t, err)

	acks := make([]*fakeAcknowledger, 3)
	for i := range acks {
		acks[i] = &fakeAcknowledger{}
		deliveries <- amqp.Delivery{Acknowledger: acks[i]}
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deliveries not processed")
	}
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	assert.Equal(t, 2, ch.prefetch)
	assert.True(t, ch.closed)
	for _, a := range acks {
		assert.True(t, a.isAcked())
	}
}

func TestRunFailsWhenDeliveriesClose(t *testing.T) {
	deliveries := make(chan amqp.Delivery)
	close(deliveries)
	c := newTestConsumerWithChannel(t, &fakeChannel{deliveries: deliveries})
	require.EqualError(t, c.Run(context.Background()), "delivery channel closed")
}

func TestTopologyWiresRetryAndDLQ(t *testing.T) {
	cfg := config.RabbitMQConfig{Queue: "handoffdesk.agent_runs", RetryDelay: 15 * time.Second}
	decl := &fakeDeclarer{}
	require.NoError(t, DeclareTopology(decl, cfg))

	require.Equal(t, []string{"handoffdesk.agent_runs.dlq", "handoffdesk.agent_runs.retry", "handoffdesk.agent_runs"}, decl.names)
	retry := decl.args[1]
	assert.Equal(t, int32(15000), retry["x-message-ttl"])
	assert.Equal(t, "handoffdesk.agent_runs", retry["x-dead-letter-routing-key"])
	assert.Equal(t, "handoffdesk.agent_runs.dlq", decl.args[2]["x-dead-letter-routing-key"])
}

func TestPublisherDefaults(t *testing.T) {
	ch := &fakePublishChannel{}
	p := NewPublisher(ch, 0)
	require.NoError(t, p.PublishJSON(context.Background(), "jobs", "id-1", map[string]string{"conversation_id": "c"}))

	require.Len(t, ch.msgs, 1)
	msg := ch.msgs[0]
	assert.Equal(t, "jobs", ch.keys[0])
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "id-1", msg.MessageId)
	assert.JSONEq(t, `{"conversation_id":"c"}`, string(msg.Body))
	assert.False(t, msg.Timestamp.IsZero())
}

func newTestConsumer(t *testing.T, pub Republisher, h Handler) *Consumer {
	t.Helper()
	c, err := NewConsumer(ConsumerParams{
		Channel:     &fakeChannel{},
		Republisher: pub,
		Config:      config.RabbitMQConfig{Queue: "jobs", MaxAttempts: 3, Concurrency: 1},
		Handler:     h,
		Logger:      testLogger(),
	})
	require.NoError(t, err)
	return c
}

func newTestConsumerWithChannel(t *testing.T, ch consumeChannel) *Consumer {
	t.Helper()
	c, err := NewConsumer(ConsumerParams{
		Channel:     ch,
		Republisher: &fakeRepublisher{},
		Config:      config.RabbitMQConfig{Queue: "jobs", MaxAttempts: 3, Concurrency: 1},
		Handler:     func(context.Context, []byte, int) error { return nil },
		Logger:      testLogger(),
	})
	require.NoError(t, err)
	return c
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "rabbitmq-test", Output: io.Discard})
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcknowledger) Ack(uint64, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = true
	return nil
}

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	return f.Nack(0, false, requeue)
}

func (f *fakeAcknowledger) isAcked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acked
}

type fakeRepublisher struct {
	err    error
	queues []string
	sent   []amqp.Publishing
}

func (f *fakeRepublisher) Publish(_ context.Context, queue string, msg amqp.Publishing) error {
	f.queues = append(f.queues, queue)
	f.sent = append(f.sent, msg)
	return f.err
}

type fakeChannel struct {
	deliveries chan amqp.Delivery
	prefetch   int
	closed     bool
}

func (f *fakeChannel) Qos(prefetch, _ int, _ bool) error {
	f.prefetch = prefetch
	return nil
}

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type fakeDeclarer struct {
	names []string
	args  []amqp.Table
}

func (f *fakeDeclarer) QueueDeclare(name string, _, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	f.names = append(f.names, name)
	f.args = append(f.args, args)
	return amqp.Queue{Name: name}, nil
}

type fakePublishChannel struct {
	keys []string
	msgs []amqp.Publishing
}

func (f *fakePublishChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.keys = append(f.keys, key)
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakePublishChannel) Close() error { return nil }
