package lifecycle

import (
	"context"
	"time"

	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/handoffdesk-backend/pkg/db/types"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/handoffdesk-backend/pkg/errors"
)

// step is the state shared by a transition's side effect and the audit writer.
type step struct {
	repo   *Repository
	conv   *models.Conversation
	tctx   Context
	now    time.Time
	result *Result
	// audit collects transition-specific fields for the audit payload.
	audit dbtypes.JSONMap
}

type sideEffect struct {
	requires []string
	apply    func(ctx context.Context, s *step) error
}

var sideEffects = map[enums.Transition]sideEffect{
	enums.TransitionAgentBegins:     {apply: noEffect},
	enums.TransitionHandoffRequired: {requires: []string{KeyReasonCode}, apply: recordHandoff},
	enums.TransitionEnqueueForHuman: {requires: []string{KeyQueueID}, apply: enqueueItem},
	enums.TransitionAssignHuman:     {requires: []string{KeyQueueID, KeyAssigneeID}, apply: assignHuman},
	enums.TransitionHumanAccepts:    {requires: []string{KeyAssigneeID}, apply: acceptAssignment},
	enums.TransitionReturnToAgent:   {requires: []string{KeyAssigneeID}, apply: releaseAssignment},
	enums.TransitionResolve:         {apply: resolveConversation},
	enums.TransitionArchive:         {apply: archiveConversation},
}

// missingKeys reports the context keys t requires but tctx lacks.
func missingKeys(t enums.Transition, tctx Context) []string {
	missing := []string{}
	for _, key := range sideEffects[t].requires {
		if !tctx.has(key) {
			missing = append(missing, key)
		}
	}
	return missing
}

func noEffect(context.Context, *step) error { return nil }

func recordHandoff(ctx context.Context, s *step) error {
	handoff, err := s.repo.UpsertHandoff(ctx, &models.Handoff{
		ConversationID: s.conv.ID,
		ReasonCode:     s.tctx.ReasonCode,
		Confidence:     s.tctx.Confidence,
		PolicyHits:     dbtypes.StringList(s.tctx.PolicyHits),
		RequiredSkills: dbtypes.StringList(s.tctx.RequiredSkills).Normalized(),
		Metadata:       dbtypes.JSONMap(s.tctx.Metadata).Merge(),
		OccurredAt:     s.tctx.at(TimestampHandoffAt, s.now),
	})
	if err != nil {
		return err
	}
	s.result.Handoff = handoff
	s.audit["handoff_id"] = handoff.ID.String()
	s.audit["reason_code"] = handoff.ReasonCode
	s.audit["policy_hits"] = []string(handoff.PolicyHits)
	s.audit["required_skills"] = []string(handoff.RequiredSkills)
	if handoff.Confidence != nil {
		s.audit["confidence"] = *handoff.Confidence
	}
	return nil
}

func enqueueItem(ctx context.Context, s *step) error {
	queueID := *s.tctx.QueueID
	enqueuedAt := s.tctx.at(TimestampEnqueuedAt, s.now)

	item, err := s.repo.LockActiveItem(ctx, queueID, s.conv.ID)
	if err != nil {
		return err
	}
	if item != nil {
		item.State = enums.QueueItemQueued
		item.EnqueuedAt = enqueuedAt
		item.DequeuedAt = nil
		item.Metadata = item.Metadata.Merge(s.tctx.Metadata)
		if err := s.repo.RequeueItem(ctx, item); err != nil {
			return err
		}
	} else {
		item = &models.QueueItem{
			QueueID:        queueID,
			ConversationID: s.conv.ID,
			State:          enums.QueueItemQueued,
			EnqueuedAt:     enqueuedAt,
			Metadata:       dbtypes.JSONMap(s.tctx.Metadata).Merge(),
		}
		if err := s.repo.CreateQueueItem(ctx, item); err != nil {
			return err
		}
	}

	s.result.QueueItem = item
	s.audit["queue_id"] = queueID.String()
	s.audit["queue_item_id"] = item.ID.String()
	return nil
}

func assignHuman(ctx context.Context, s *step) error {
	dequeuedAt := s.tctx.at(TimestampDequeuedAt, s.now)
	where := &models.QueueItem{QueueID: *s.tctx.QueueID, ConversationID: s.conv.ID}
	if s.tctx.QueueItemID != nil {
		where.ID = *s.tctx.QueueItemID
	}
	item, err := s.repo.TakeQueuedItem(ctx, where, dequeuedAt)
	if err != nil {
		return err
	}

	assignment := &models.Assignment{
		ConversationID: s.conv.ID,
		QueueID:        item.QueueID,
		QueueItemID:    &item.ID,
		UserID:         *s.tctx.AssigneeID,
		Status:         enums.AssignmentAssigned,
		AssignedAt:     s.tctx.at(TimestampAssignedAt, s.now),
		Metadata:       dbtypes.JSONMap(s.tctx.Metadata).Merge(),
	}
	if err := s.repo.CreateAssignment(ctx, assignment); err != nil {
		return err
	}

	s.result.QueueItem = item
	s.result.Assignment = assignment
	s.audit["queue_id"] = item.QueueID.String()
	s.audit["queue_item_id"] = item.ID.String()
	s.audit["assignment_id"] = assignment.ID.String()
	s.audit["assignee_id"] = assignment.UserID.String()
	return nil
}

func acceptAssignment(ctx context.Context, s *step) error {
	assignment, err := s.repo.LockLatestAssignment(ctx, s.conv.ID, s.tctx.AssigneeID, enums.AssignmentAssigned)
	if err != nil {
		return err
	}
	acceptedAt := s.tctx.at(TimestampAcceptedAt, s.now)
	assignment.Status = enums.AssignmentHumanWorking
	assignment.AcceptedAt = &acceptedAt
	if err := s.repo.SaveAssignment(ctx, assignment); err != nil {
		return err
	}

	s.result.Assignment = assignment
	s.audit["assignment_id"] = assignment.ID.String()
	s.audit["assignee_id"] = assignment.UserID.String()
	return nil
}

func releaseAssignment(ctx context.Context, s *step) error {
	assignment, err := s.repo.LockLatestAssignment(ctx, s.conv.ID, s.tctx.AssigneeID, enums.AssignmentHumanWorking)
	if err != nil {
		return err
	}
	releasedAt := s.tctx.at(TimestampReleasedAt, s.now)
	assignment.Status = enums.AssignmentReleased
	assignment.ReleasedAt = &releasedAt
	if s.tctx.Reason != "" {
		assignment.Metadata = assignment.Metadata.Merge(map[string]any{"release_reason": s.tctx.Reason})
	}
	if err := s.repo.SaveAssignment(ctx, assignment); err != nil {
		return err
	}

	// The hot item must close so the next handoff cycle can enqueue again.
	completed, err := s.repo.CompleteActiveItems(ctx, s.conv.ID, []enums.QueueItemState{enums.QueueItemHot}, releasedAt)
	if err != nil {
		return err
	}

	s.result.Assignment = assignment
	s.result.CompletedItems = completed
	s.audit["assignment_id"] = assignment.ID.String()
	s.audit["assignee_id"] = assignment.UserID.String()
	if s.tctx.Reason != "" {
		s.audit["reason"] = s.tctx.Reason
	}
	return nil
}

func resolveConversation(ctx context.Context, s *step) error {
	resolvedAt := s.tctx.at(TimestampResolvedAt, s.now)

	assignment, err := s.repo.LockLatestAssignment(ctx, s.conv.ID, s.tctx.AssigneeID,
		enums.AssignmentAssigned, enums.AssignmentHumanWorking)
	switch {
	case pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
		assignment = nil
	case err != nil:
		return err
	}
	if assignment != nil {
		assignment.Status = enums.AssignmentResolved
		assignment.ResolvedAt = &resolvedAt
		if s.tctx.Summary != "" {
			assignment.Metadata = assignment.Metadata.Merge(map[string]any{"summary": s.tctx.Summary})
		}
		if err := s.repo.SaveAssignment(ctx, assignment); err != nil {
			return err
		}
		s.result.Assignment = assignment
		s.audit["assignment_id"] = assignment.ID.String()
	}

	completed, err := s.repo.CompleteActiveItems(ctx, s.conv.ID, activeItemStates, s.tctx.at(TimestampDequeuedAt, resolvedAt))
	if err != nil {
		return err
	}
	s.result.CompletedItems = completed
	if s.tctx.Summary != "" {
		s.audit["summary"] = s.tctx.Summary
	}
	return nil
}

func archiveConversation(ctx context.Context, s *step) error {
	archivedAt := s.tctx.at(TimestampArchivedAt, s.now)
	s.conv.ArchivedAt = &archivedAt
	if err := s.repo.SaveConversationState(ctx, s.conv); err != nil {
		return err
	}
	s.audit["archived_at"] = archivedAt.Format(time.RFC3339Nano)
	return nil
}
