package assignments_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/handoffdesk-backend/internal/assignments"
	"github.com/angelmondragon/handoffdesk-backend/internal/lifecycle"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/handoffdesk-backend/pkg/errors"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
	"github.com/angelmondragon/handoffdesk-backend/pkg/metrics"
	"github.com/angelmondragon/handoffdesk-backend/pkg/outbox"
)

type recordingEnqueuer struct {
	mu   sync.Mutex
	ids  []uuid.UUID
	fail bool
}

func (r *recordingEnqueuer) EnqueueRunAgent(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("broker unavailable")
	}
	r.ids = append(r.ids, id)
	return nil
}

type harness struct {
	conn     *gorm.DB
	svc      *assignments.Service
	enqueuer *recordingEnqueuer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.Open(t)
	conn := client.DB()
	logg := logger.New(logger.Options{ServiceName: "assignments-test", Output: io.Discard})
	m := metrics.NewRoutingMetrics(prometheus.NewRegistry())

	machine, err := lifecycle.NewMachine(client, lifecycle.NewRepository(conn),
		outbox.NewService(outbox.NewRepository(conn), logg), m, logg)
	require.NoError(t, err)

	enqueuer := &recordingEnqueuer{}
	svc, err := assignments.NewService(assignments.ServiceParams{
		TxRunner: client,
		Repo:     assignments.NewRepository(conn),
		Machine:  machine,
		Enqueuer: enqueuer,
		Metrics:  m,
		Logger:   logg,
	})
	require.NoError(t, err)
	return &harness{conn: conn, svc: svc, enqueuer: enqueuer}
}

func (h *harness) queued(t *testing.T) (models.Conversation, models.Queue, models.QueueItem) {
	t.Helper()
	conv := dbtest.SeedConversation(t, h.conn, enums.ConversationQueued)
	queue := dbtest.SeedQueue(t, h.conn, "queue-"+uuid.NewString()[:6], false)
	item := dbtest.SeedQueueItem(t, h.conn, queue.ID, conv.ID, enums.QueueItemQueued)
	return conv, queue, item
}

func (h *harness) convStatus(t *testing.T, id uuid.UUID) enums.ConversationStatus {
	t.Helper()
	var conv models.Conversation
	require.NoError(t, h.conn.First(&conv, "id = ?", id).Error)
	return conv.Status
}

func (h *harness) itemState(t *testing.T, id uuid.UUID) models.QueueItem {
	t.Helper()
	var item models.QueueItem
	require.NoError(t, h.conn.First(&item, "id = ?", id).Error)
	return item
}

func TestClaimAssignsQueuedItem(t *testing.T) {
	h := newHarness(t)
	conv, queue, item := h.queued(t)
	operator := uuid.New()

	assignment, err := h.svc.Claim(context.Background(), assignments.ClaimInput{
		QueueID: queue.ID, QueueItemID: item.ID, ActorID: operator,
	})
	require.NoError(t, err)

	assert.Equal(t, enums.AssignmentAssigned, assignment.Status)
	assert.Equal(t, operator, assignment.UserID)
	assert.Equal(t, queue.ID, assignment.QueueID)
	assert.Equal(t, enums.ConversationAssigned, h.convStatus(t, conv.ID))

	stored := h.itemState(t, item.ID)
	assert.Equal(t, enums.QueueItemHot, stored.State)
	assert.NotNil(t, stored.DequeuedAt)
}

func TestClaimOnBehalfOfAssignee(t *testing.T) {
	h := newHarness(t)
	_, queue, item := h.queued(t)
	supervisor, operator := uuid.New(), uuid.New()

	assignment, err := h.svc.Claim(context.Background(), assignments.ClaimInput{
		QueueID: queue.ID, QueueItemID: item.ID, ActorID: supervisor, AssigneeID: operator,
	})
	require.NoError(t, err)
	assert.Equal(t, operator, assignment.UserID)

	var audit models.AuditEvent
	require.NoError(t, h.conn.First(&audit, "conversation_id = ?", item.ConversationID).Error)
	require.NotNil(t, audit.ActorID)
	assert.Equal(t, supervisor, *audit.ActorID)
}

func TestConcurrentClaimsProduceOneAssignment(t *testing.T) {
	h := newHarness(t)
	conv, queue, item := h.queued(t)

	const claimers = 2
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		results   = make([]*models.Assignment, claimers)
		errs      = make([]error, claimers)
		operators = []uuid.UUID{uuid.New(), uuid.New()}
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = h.svc.Claim(context.Background(), assignments.ClaimInput{
				QueueID: queue.ID, QueueItemID: item.ID, ActorID: operators[i],
			})
		}(i)
	}
	close(start)
	wg.Wait()

	var wins, conflicts int
	for i := range errs {
		switch {
		case errs[i] == nil:
			wins++
			require.NotNil(t, results[i])
		case pkgerrors.HasCode(errs[i], pkgerrors.CodeConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", errs[i])
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)

	var rows []models.Assignment
	require.NoError(t, h.conn.Where("conversation_id = ?", conv.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.AssignmentAssigned, rows[0].Status)

	var audits int64
	require.NoError(t, h.conn.Model(&models.AuditEvent{}).Where("conversation_id = ?", conv.ID).Count(&audits).Error)
	assert.EqualValues(t, 1, audits)
}

func TestClaimRejectsTakenAndUnknownItems(t *testing.T) {
	h := newHarness(t)
	_, queue, item := h.queued(t)

	_, err := h.svc.Claim(context.Background(), assignments.ClaimInput{QueueID: queue.ID, QueueItemID: item.ID, ActorID: uuid.New()})
	require.NoError(t, err)

	_, err = h.svc.Claim(context.Background(), assignments.ClaimInput{QueueID: queue.ID, QueueItemID: item.ID, ActorID: uuid.New()})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))

	_, err = h.svc.Claim(context.Background(), assignments.ClaimInput{QueueID: uuid.New(), QueueItemID: item.ID, ActorID: uuid.New()})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	_, err = h.svc.Claim(context.Background(), assignments.ClaimInput{QueueID: queue.ID})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestClaimReportsStatusMismatchAsConflict(t *testing.T) {
	h := newHarness(t)
	conv, queue, item := h.queued(t)
	require.NoError(t, h.conn.Model(&models.Conversation{}).Where("id = ?", conv.ID).
		Update("status", enums.ConversationResolved).Error)

	_, err := h.svc.Claim(context.Background(), assignments.ClaimInput{QueueID: queue.ID, QueueItemID: item.ID, ActorID: uuid.New()})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, enums.QueueItemQueued, h.itemState(t, item.ID).State)
}

func TestAcceptReleaseResolveFlow(t *testing.T) {
	h := newHarness(t)
	conv, queue, item := h.queued(t)
	operator := uuid.New()
	ctx := context.Background()

	assignment, err := h.svc.Claim(ctx, assignments.ClaimInput{QueueID: queue.ID, QueueItemID: item.ID, ActorID: operator})
	require.NoError(t, err)

	_, err = h.svc.Release(ctx, assignment.ID, operator, "too early")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict), "release requires human_working")

	accepted, err := h.svc.Accept(ctx, assignment.ID, operator)
	require.NoError(t, err)
	assert.Equal(t, enums.AssignmentHumanWorking, accepted.Status)
	assert.Equal(t, enums.ConversationHumanWorking, h.convStatus(t, conv.ID))

	_, err = h.svc.Accept(ctx, assignment.ID, operator)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))

	resolved, err := h.svc.Resolve(ctx, assignment.ID, operator, "refund issued")
	require.NoError(t, err)
	assert.Equal(t, enums.AssignmentResolved, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, enums.ConversationResolved, h.convStatus(t, conv.ID))
	assert.Equal(t, enums.QueueItemCompleted, h.itemState(t, item.ID).State)
	assert.Empty(t, h.enqueuer.ids)
}

func TestReleaseSchedulesAgentRun(t *testing.T) {
	h := newHarness(t)
	conv, queue, item := h.queued(t)
	operator := uuid.New()
	ctx := context.Background()

	assignment, err := h.svc.Claim(ctx, assignments.ClaimInput{QueueID: queue.ID, QueueItemID: item.ID, ActorID: operator})
	require.NoError(t, err)
	_, err = h.svc.Accept(ctx, assignment.ID, operator)
	require.NoError(t, err)

	released, err := h.svc.Release(ctx, assignment.ID, operator, "customer needs order lookup")
	require.NoError(t, err)
	assert.Equal(t, enums.AssignmentReleased, released.Status)
	assert.Equal(t, enums.ConversationBackToAgent, h.convStatus(t, conv.ID))
	assert.Equal(t, enums.QueueItemCompleted, h.itemState(t, item.ID).State)
	assert.Equal(t, []uuid.UUID{conv.ID}, h.enqueuer.ids)

	_, err = h.svc.Resolve(ctx, assignment.ID, operator, "")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestReleaseSucceedsWhenEnqueueFails(t *testing.T) {
	h := newHarness(t)
	conv, queue, item := h.queued(t)
	operator := uuid.New()
	ctx := context.Background()

	assignment, err := h.svc.Claim(ctx, assignments.ClaimInput{QueueID: queue.ID, QueueItemID: item.ID, ActorID: operator})
	require.NoError(t, err)
	_, err = h.svc.Accept(ctx, assignment.ID, operator)
	require.NoError(t, err)

	h.enqueuer.fail = true
	_, err = h.svc.Release(ctx, assignment.ID, operator, "")
	require.NoError(t, err)
	assert.Equal(t, enums.ConversationBackToAgent, h.convStatus(t, conv.ID))
}

func TestUnknownAssignment(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Accept(context.Background(), uuid.New(), uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

type contendedMachine struct {
	err error
}

func (m contendedMachine) ApplyTx(context.Context, *gorm.DB, uuid.UUID, enums.Transition, lifecycle.Context) (*lifecycle.Result, error) {
	return nil, m.err
}

func (contendedMachine) Observe(context.Context, *lifecycle.Result) {}

func TestClaimReportsLockContentionAsConflict(t *testing.T) {
	for name, cause := range map[string]error{
		"sqlite busy":      errors.New("database is locked"),
		"pg lock timeout":  &pgconn.PgError{Code: "55P03", Message: "could not obtain lock on row"},
		"pg serialization": &pgconn.PgError{Code: "40001", Message: "could not serialize access"},
	} {
		t.Run(name, func(t *testing.T) {
			client := dbtest.Open(t)
			conn := client.DB()
			reg := prometheus.NewRegistry()
			svc, err := assignments.NewService(assignments.ServiceParams{
				TxRunner: client,
				Repo:     assignments.NewRepository(conn),
				Machine:  contendedMachine{err: cause},
				Enqueuer: &recordingEnqueuer{},
				Metrics:  metrics.NewRoutingMetrics(reg),
				Logger:   logger.New(logger.Options{ServiceName: "assignments-test", Output: io.Discard}),
			})
			require.NoError(t, err)

			conv := dbtest.SeedConversation(t, conn, enums.ConversationQueued)
			queue := dbtest.SeedQueue(t, conn, "tier-2", false)
			item := dbtest.SeedQueueItem(t, conn, queue.ID, conv.ID, enums.QueueItemQueued)

			_, err = svc.Claim(context.Background(), assignments.ClaimInput{QueueID: queue.ID, QueueItemID: item.ID, ActorID: uuid.New()})
			require.Error(t, err)
			assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
			assert.ErrorIs(t, err, cause)
			assert.Equal(t, 1.0, conflictCount(t, reg, "claim"))
		})
	}
}

func TestClaimLeavesUnrelatedFailuresUntyped(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	reg := prometheus.NewRegistry()
	svc, err := assignments.NewService(assignments.ServiceParams{
		TxRunner: client,
		Repo:     assignments.NewRepository(conn),
		Machine:  contendedMachine{err: errors.New("disk full")},
		Enqueuer: &recordingEnqueuer{},
		Metrics:  metrics.NewRoutingMetrics(reg),
		Logger:   logger.New(logger.Options{ServiceName: "assignments-test", Output: io.Discard}),
	})
	require.NoError(t, err)

	conv := dbtest.SeedConversation(t, conn, enums.ConversationQueued)
	queue := dbtest.SeedQueue(t, conn, "tier-2", false)
	item := dbtest.SeedQueueItem(t, conn, queue.ID, conv.ID, enums.QueueItemQueued)

	_, err = svc.Claim(context.Background(), assignments.ClaimInput{QueueID: queue.ID, QueueItemID: item.ID, ActorID: uuid.New()})
	require.Error(t, err)
	assert.False(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	assert.Zero(t, conflictCount(t, reg, "claim"))
}

func conflictCount(t *testing.T, reg *prometheus.Registry, op string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "assignment_conflicts_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "operation" && lp.GetValue() == op {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
