package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/handoffdesk-backend/pkg/db/types"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/handoffdesk-backend/pkg/errors"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
	"github.com/angelmondragon/handoffdesk-backend/pkg/metrics"
	"github.com/angelmondragon/handoffdesk-backend/pkg/outbox"
	"github.com/angelmondragon/handoffdesk-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Machine is the only writer of conversation status, queue items and assignments.
// Every transition locks the conversation row, rechecks the graph and applies its
// side effect, audit event and outbox fact in one transaction.
type Machine struct {
	tx      txRunner
	repo    *Repository
	outbox  outboxEmitter
	metrics *metrics.RoutingMetrics
	logg    *logger.Logger
	now     func() time.Time
}

type Option func(*Machine)

// WithClock replaces time.Now as the default source of effect timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func NewMachine(tx txRunner, repo *Repository, emitter outboxEmitter, m *metrics.RoutingMetrics, logg *logger.Logger, opts ...Option) (*Machine, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("lifecycle repository required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	machine := &Machine{
		tx:      tx,
		repo:    repo,
		outbox:  emitter,
		metrics: m,
		logg:    logg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(machine)
	}
	return machine, nil
}

// Can is a pure check against the conversation's current status.
func (m *Machine) Can(conv *models.Conversation, t enums.Transition) bool {
	return conv != nil && Can(conv.Status, t)
}

func (m *Machine) AllowedTransitions(conv *models.Conversation) []enums.Transition {
	if conv == nil {
		return []enums.Transition{}
	}
	return AllowedTransitions(conv.Status)
}

// Apply runs t in its own transaction.
func (m *Machine) Apply(ctx context.Context, convID uuid.UUID, t enums.Transition, tctx Context) (*Result, error) {
	if err := validate(t, tctx); err != nil {
		return nil, err
	}
	var res *Result
	err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		res, err = m.apply(ctx, tx, convID, t, tctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.Observe(ctx, res)
	return res, nil
}

// ApplyTx runs t inside the caller's transaction so the caller's row locks and the
// transition commit together. Callers report the result with Observe after commit.
func (m *Machine) ApplyTx(ctx context.Context, tx *gorm.DB, convID uuid.UUID, t enums.Transition, tctx Context) (*Result, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if err := validate(t, tctx); err != nil {
		return nil, err
	}
	return m.apply(ctx, tx, convID, t, tctx)
}

// Observe logs and counts a committed transition.
func (m *Machine) Observe(ctx context.Context, res *Result) {
	if res == nil || res.Conversation == nil {
		return
	}
	m.metrics.IncTransition(string(res.Transition))
	if res.Handoff != nil {
		m.metrics.IncHandoff(res.Handoff.ReasonCode)
	}
	ctx = m.logg.WithConversationID(ctx, res.Conversation.ID.String())
	ctx = m.logg.WithTransition(ctx, string(res.Transition))
	ctx = m.logg.WithFields(ctx, map[string]any{
		"from": string(res.From),
		"to":   string(res.Conversation.Status),
	})
	m.logg.Info(ctx, "conversation transitioned")
}

func validate(t enums.Transition, tctx Context) error {
	if !t.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown transition %q", t))
	}
	if missing := missingKeys(t, tctx); len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeMissingContext,
			fmt.Sprintf("%s requires %s", t, strings.Join(missing, ", "))).
			WithDetails(map[string]any{"transition": t, "missing": missing})
	}
	return nil
}

func (m *Machine) apply(ctx context.Context, tx *gorm.DB, convID uuid.UUID, t enums.Transition, tctx Context) (*Result, error) {
	repo := m.repo.WithTx(tx)

	conv, err := repo.LockConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	from := conv.Status
	if !Can(from, t) {
		return nil, pkgerrors.New(pkgerrors.CodeTransitionNotAllowed,
			fmt.Sprintf("%s is not allowed from %s", t, from)).
			WithDetails(map[string]any{
				"transition": t,
				"status":     from,
				"allowed":    AllowedTransitions(from),
			})
	}

	now := m.now().UTC()
	occurredAt := tctx.occurredAt(now)
	to, _ := Target(t)
	conv.Status = to
	if occurredAt.After(conv.LastActivityAt) {
		conv.LastActivityAt = occurredAt
	}
	if err := repo.SaveConversationState(ctx, conv); err != nil {
		return nil, err
	}

	res := &Result{Transition: t, From: from, Conversation: conv}
	st := &step{repo: repo, conv: conv, tctx: tctx, now: now, result: res, audit: dbtypes.JSONMap{}}
	if err := sideEffects[t].apply(ctx, st); err != nil {
		return nil, err
	}

	audit, err := m.writeAudit(ctx, repo, st, occurredAt)
	if err != nil {
		return nil, err
	}
	res.AuditEvent = audit

	if err := m.emit(ctx, tx, res, tctx); err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Machine) writeAudit(ctx context.Context, repo *Repository, st *step, occurredAt time.Time) (*models.AuditEvent, error) {
	payload := st.audit.Merge(map[string]any{
		"from":       string(st.result.From),
		"to":         string(st.conv.Status),
		"transition": string(st.result.Transition),
	})
	if len(st.tctx.Metadata) > 0 {
		payload["metadata"] = st.tctx.Metadata
	}

	channel := st.tctx.Channel
	if channel == "" {
		channel = st.conv.Channel
	}
	event := &models.AuditEvent{
		ConversationID: st.conv.ID,
		EventType:      st.result.Transition.AuditEventType(),
		ActorID:        st.tctx.ActorID,
		Payload:        payload,
		Channel:        channel,
		OccurredAt:     occurredAt,
	}
	if err := repo.InsertAuditEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (m *Machine) emit(ctx context.Context, tx *gorm.DB, res *Result, tctx Context) error {
	fact := payloads.ConversationTransitionedEvent{
		ConversationID: res.Conversation.ID,
		Transition:     res.Transition,
		From:           res.From,
		To:             res.Conversation.Status,
		ActorID:        tctx.ActorID,
		Channel:        res.AuditEvent.Channel,
		AuditEventID:   res.AuditEvent.ID,
		OccurredAt:     res.AuditEvent.OccurredAt,
	}
	if res.QueueItem != nil {
		fact.QueueID = &res.QueueItem.QueueID
		fact.QueueItemID = &res.QueueItem.ID
	}
	if res.Assignment != nil {
		fact.AssignmentID = &res.Assignment.ID
		if fact.QueueID == nil {
			fact.QueueID = &res.Assignment.QueueID
		}
	}
	if res.Handoff != nil {
		fact.ReasonCode = res.Handoff.ReasonCode
	}

	var actor *outbox.ActorRef
	if tctx.ActorID != nil {
		actor = &outbox.ActorRef{UserID: *tctx.ActorID}
	}
	return m.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventConversationTransitioned,
		AggregateType: enums.AggregateConversation,
		AggregateID:   res.Conversation.ID,
		Actor:         actor,
		Data:          fact,
		OccurredAt:    res.AuditEvent.OccurredAt,
	})
}
