// Package assignments implements the human actions on queued conversations:
// claim, accept, release and resolve.
//
// Every action follows check-lock-recheck-apply. The unlocked read up front
// only fails fast; the decision is made again after the row lock is held, and
// the lifecycle machine locks the conversation and rechecks its status once more.
package assignments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/handoffdesk-backend/internal/lifecycle"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/handoffdesk-backend/pkg/errors"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
	"github.com/angelmondragon/handoffdesk-backend/pkg/metrics"
)

const (
	opClaim   = "claim"
	opAccept  = "accept"
	opRelease = "release"
	opResolve = "resolve"
)

var currentStatuses = []enums.AssignmentStatus{enums.AssignmentAssigned, enums.AssignmentHumanWorking}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type machine interface {
	ApplyTx(ctx context.Context, tx *gorm.DB, convID uuid.UUID, t enums.Transition, tctx lifecycle.Context) (*lifecycle.Result, error)
	Observe(ctx context.Context, res *lifecycle.Result)
}

type runAgentEnqueuer interface {
	EnqueueRunAgent(ctx context.Context, convID uuid.UUID) error
}

// ClaimInput identifies the queued item an operator takes. AssigneeID defaults
// to ActorID.
type ClaimInput struct {
	QueueID     uuid.UUID
	QueueItemID uuid.UUID
	ActorID     uuid.UUID
	AssigneeID  uuid.UUID
}

type ServiceParams struct {
	TxRunner txRunner
	Repo     *Repository
	Machine  machine
	Enqueuer runAgentEnqueuer
	Metrics  *metrics.RoutingMetrics
	Logger   *logger.Logger
}

type Service struct {
	tx       txRunner
	repo     *Repository
	machine  machine
	enqueuer runAgentEnqueuer
	metrics  *metrics.RoutingMetrics
	logg     *logger.Logger
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.TxRunner == nil:
		return nil, errors.New("tx runner required")
	case p.Repo == nil:
		return nil, errors.New("assignments repository required")
	case p.Machine == nil:
		return nil, errors.New("lifecycle machine required")
	case p.Enqueuer == nil:
		return nil, errors.New("run-agent enqueuer required")
	case p.Logger == nil:
		return nil, errors.New("logger required")
	}
	return &Service{
		tx:       p.TxRunner,
		repo:     p.Repo,
		machine:  p.Machine,
		enqueuer: p.Enqueuer,
		metrics:  p.Metrics,
		logg:     p.Logger,
	}, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	return s.repo.GetAssignment(ctx, id)
}

func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Assignment, error) {
	return s.repo.ListForUser(ctx, userID)
}

// Claim assigns a queued item to an operator. Exactly one of several racing
// claims succeeds; the others get CodeConflict and write nothing.
func (s *Service) Claim(ctx context.Context, in ClaimInput) (*models.Assignment, error) {
	if in.QueueID == uuid.Nil || in.QueueItemID == uuid.Nil || in.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "queue, item and actor are required")
	}
	assignee := in.AssigneeID
	if assignee == uuid.Nil {
		assignee = in.ActorID
	}

	item, err := s.repo.GetQueueItem(ctx, in.QueueID, in.QueueItemID)
	if err != nil {
		return nil, err
	}
	if err := itemClaimable(item); err != nil {
		return nil, s.conflict(ctx, opClaim, err)
	}

	var res *lifecycle.Result
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.repo.WithTx(tx).LockQueueItem(ctx, in.QueueID, in.QueueItemID)
		if err != nil {
			return err
		}
		if err := itemClaimable(locked); err != nil {
			return err
		}
		res, err = s.machine.ApplyTx(ctx, tx, locked.ConversationID, enums.TransitionAssignHuman, lifecycle.Context{
			QueueID:     &locked.QueueID,
			QueueItemID: &locked.ID,
			AssigneeID:  &assignee,
			ActorID:     &in.ActorID,
		})
		return err
	})
	if err != nil {
		return nil, s.conflict(ctx, opClaim, err)
	}
	s.machine.Observe(ctx, res)
	return res.Assignment, nil
}

// Accept moves an assigned conversation into human_working.
func (s *Service) Accept(ctx context.Context, assignmentID, actorID uuid.UUID) (*models.Assignment, error) {
	res, err := s.act(ctx, opAccept, assignmentID, enums.AssignmentAssigned,
		func(a *models.Assignment) (enums.Transition, lifecycle.Context) {
			return enums.TransitionHumanAccepts, lifecycle.Context{AssigneeID: &a.UserID, ActorID: &actorID}
		})
	if err != nil {
		return nil, err
	}
	return res.Assignment, nil
}

// Release hands the conversation back to the agent and schedules a run.
func (s *Service) Release(ctx context.Context, assignmentID, actorID uuid.UUID, reason string) (*models.Assignment, error) {
	res, err := s.act(ctx, opRelease, assignmentID, enums.AssignmentHumanWorking,
		func(a *models.Assignment) (enums.Transition, lifecycle.Context) {
			return enums.TransitionReturnToAgent, lifecycle.Context{AssigneeID: &a.UserID, ActorID: &actorID, Reason: reason}
		})
	if err != nil {
		return nil, err
	}

	// The release is committed; a failed enqueue is picked up by the stalled-run sweep.
	if err := s.enqueuer.EnqueueRunAgent(ctx, res.Conversation.ID); err != nil {
		s.logg.Error(s.logg.WithConversationID(ctx, res.Conversation.ID.String()), "enqueue run-agent after release", err)
	}
	return res.Assignment, nil
}

// Resolve closes the conversation held by the assignment.
func (s *Service) Resolve(ctx context.Context, assignmentID, actorID uuid.UUID, summary string) (*models.Assignment, error) {
	res, err := s.act(ctx, opResolve, assignmentID, enums.AssignmentHumanWorking,
		func(a *models.Assignment) (enums.Transition, lifecycle.Context) {
			return enums.TransitionResolve, lifecycle.Context{AssigneeID: &a.UserID, ActorID: &actorID, Summary: summary}
		})
	if err != nil {
		return nil, err
	}
	return res.Assignment, nil
}

type transitionFor func(a *models.Assignment) (enums.Transition, lifecycle.Context)

func (s *Service) act(ctx context.Context, op string, assignmentID uuid.UUID, want enums.AssignmentStatus, next transitionFor) (*lifecycle.Result, error) {
	current, err := s.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := expectStatus(current, want); err != nil {
		return nil, s.conflict(ctx, op, err)
	}

	var res *lifecycle.Result
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.repo.WithTx(tx).LockAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		if err := expectStatus(locked, want); err != nil {
			return err
		}
		t, tctx := next(locked)
		res, err = s.machine.ApplyTx(ctx, tx, locked.ConversationID, t, tctx)
		return err
	})
	if err != nil {
		return nil, s.conflict(ctx, op, err)
	}
	s.machine.Observe(ctx, res)
	return res, nil
}

func itemClaimable(item *models.QueueItem) error {
	if item.State != enums.QueueItemQueued {
		return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("queue item is %s", item.State)).
			WithDetails(map[string]any{"queue_item_id": item.ID, "state": item.State})
	}
	return nil
}

func expectStatus(a *models.Assignment, want enums.AssignmentStatus) error {
	if a.Status != want {
		return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("assignment is %s, expected %s", a.Status, want)).
			WithDetails(map[string]any{"assignment_id": a.ID, "status": a.Status, "expected": want})
	}
	return nil
}

// conflict reports lost races as CodeConflict. A transition refused by the
// conversation's status is a race from the operator's point of view, and so
// is a row another transaction holds locked.
func (s *Service) conflict(ctx context.Context, op string, err error) error {
	switch {
	case pkgerrors.HasCode(err, pkgerrors.CodeTransitionNotAllowed):
		err = pkgerrors.Wrap(pkgerrors.CodeConflict, err, "conversation changed state")
	case !pkgerrors.HasCode(err, pkgerrors.CodeConflict) && db.IsLockContention(err):
		err = pkgerrors.Wrap(pkgerrors.CodeConflict, err, "row locked by a concurrent action")
	}
	if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		s.metrics.IncConflict(op)
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"operation": op, "error": err.Error()}), "human action lost race")
	}
	return err
}
