// Package orchestrator runs the agent for one conversation: it drafts a reply,
// evaluates handoff policy and escalates to a human queue when required.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/handoffdesk-backend/internal/generator"
	"github.com/angelmondragon/handoffdesk-backend/internal/lifecycle"
	"github.com/angelmondragon/handoffdesk-backend/internal/policy"
	"github.com/angelmondragon/handoffdesk-backend/internal/routing"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/handoffdesk-backend/pkg/db/types"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/handoffdesk-backend/pkg/errors"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
	"github.com/angelmondragon/handoffdesk-backend/pkg/metrics"
)

type machine interface {
	Can(conv *models.Conversation, t enums.Transition) bool
	Apply(ctx context.Context, convID uuid.UUID, t enums.Transition, tctx lifecycle.Context) (*lifecycle.Result, error)
}

type conversationStore interface {
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	RecentMessages(ctx context.Context, convID uuid.UUID, limit int) ([]models.Message, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
}

type evaluator interface {
	Evaluate(ctx context.Context, p policy.Payload) (policy.Decision, error)
}

type resolver interface {
	Resolve(ctx context.Context, decision policy.Decision) (*routing.Resolution, error)
}

// Params wires the orchestrator's collaborators.
type Params struct {
	Machine         machine
	Conversations   conversationStore
	Generator       generator.Generator
	Policy          evaluator
	Resolver        resolver
	Metrics         *metrics.RoutingMetrics
	Logger          *logger.Logger
	TranscriptLimit int
}

type Orchestrator struct {
	machine         machine
	conversations   conversationStore
	generator       generator.Generator
	policy          evaluator
	resolver        resolver
	metrics         *metrics.RoutingMetrics
	logg            *logger.Logger
	transcriptLimit int
}

func New(p Params) (*Orchestrator, error) {
	switch {
	case p.Machine == nil:
		return nil, errors.New("lifecycle machine required")
	case p.Conversations == nil:
		return nil, errors.New("conversation store required")
	case p.Generator == nil:
		return nil, errors.New("response generator required")
	case p.Policy == nil:
		return nil, errors.New("policy evaluator required")
	case p.Resolver == nil:
		return nil, errors.New("queue resolver required")
	case p.Logger == nil:
		return nil, errors.New("logger required")
	}
	return &Orchestrator{
		machine:         p.Machine,
		conversations:   p.Conversations,
		generator:       p.Generator,
		policy:          p.Policy,
		resolver:        p.Resolver,
		metrics:         p.Metrics,
		logg:            p.Logger,
		transcriptLimit: p.TranscriptLimit,
	}, nil
}

// Run processes one run-agent job. It returns an error only when the job should
// be retried: generator failures and storage errors.
func (o *Orchestrator) Run(ctx context.Context, convID uuid.UUID) error {
	start := time.Now()
	ctx = o.logg.WithConversationID(ctx, convID.String())
	outcome, err := o.run(ctx, convID)
	if err != nil {
		outcome = metrics.AgentRunFailed
	}
	o.metrics.ObserveAgentRun(outcome, time.Since(start))
	return err
}

func (o *Orchestrator) run(ctx context.Context, convID uuid.UUID) (string, error) {
	conv, err := o.conversations.GetConversation(ctx, convID)
	if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		o.logg.Debug(ctx, "run-agent for unknown conversation ignored")
		return metrics.AgentRunSkipped, nil
	}
	if err != nil {
		return "", err
	}

	conv, ok, err := o.begin(ctx, conv)
	if err != nil || !ok {
		return metrics.AgentRunSkipped, err
	}

	transcript, err := o.conversations.RecentMessages(ctx, convID, o.transcriptLimit)
	if err != nil {
		return "", err
	}
	gen, err := o.generator.Generate(ctx, conv, transcript)
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "response generation failed")
		}
		o.logg.Error(ctx, "response generation failed", err)
		return "", err
	}

	var decision policy.Decision
	switch gen.Status {
	case generator.StatusFallback:
		decision, err = o.fallbackDecision(ctx, gen.Payload)
		if err != nil {
			return "", err
		}
	case generator.StatusFailure:
		failure := pkgerrors.New(pkgerrors.CodeDependency, "response generation reported failure")
		o.logg.Error(ctx, "response generation failed", failure)
		return "", failure
	case generator.StatusSuccess:
		decision, err = o.policy.Evaluate(ctx, gen.Payload)
		if err != nil {
			return "", err
		}
		if err := o.saveReply(ctx, conv, gen.Payload, decision); err != nil {
			return "", err
		}
		if !decision.ShouldHandoff {
			return metrics.AgentRunReplied, nil
		}
	default:
		return "", pkgerrors.Newf(pkgerrors.CodeInternal, "unknown generator status %q", gen.Status)
	}

	handedOff, err := o.handoff(ctx, convID, decision)
	if err != nil {
		return "", err
	}
	if !handedOff {
		return metrics.AgentRunSkipped, nil
	}
	return metrics.AgentRunHandedOff, nil
}

// begin moves the conversation into agent_working. ok is false when the
// conversation is in a state the agent must not touch.
func (o *Orchestrator) begin(ctx context.Context, conv *models.Conversation) (*models.Conversation, bool, error) {
	if conv.Status == enums.ConversationAgentWorking {
		return conv, true, nil
	}
	if !o.machine.Can(conv, enums.TransitionAgentBegins) {
		o.logg.Info(o.logg.WithField(ctx, "status", string(conv.Status)), "conversation not runnable by agent")
		return conv, false, nil
	}
	res, err := o.machine.Apply(ctx, conv.ID, enums.TransitionAgentBegins, lifecycle.Context{})
	if pkgerrors.HasCode(err, pkgerrors.CodeTransitionNotAllowed) {
		o.logg.Info(ctx, "conversation changed state before agent could begin")
		return conv, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return res.Conversation, true, nil
}

// fallbackDecision escalates a fallback generation. When no rule fires the
// handoff is forced with ReasonUncertainIntent so the conversation is never
// left without a route.
func (o *Orchestrator) fallbackDecision(ctx context.Context, generated policy.Payload) (policy.Decision, error) {
	reason := policy.ReasonUncertainIntent
	payload := policy.Payload{
		Confidence:       generated.Confidence,
		Reason:           &reason,
		PolicyFlags:      generated.PolicyFlags,
		HandoffMetadata:  generated.HandoffMetadata,
		RequestedHandoff: true,
		ToolError:        generated.ToolError,
	}
	decision, err := o.policy.Evaluate(ctx, payload)
	if err != nil {
		return policy.Decision{}, err
	}
	if !decision.ShouldHandoff {
		decision.ShouldHandoff = true
		decision.Reason = policy.ReasonUncertainIntent
		decision.HandoffMetadata = dbtypes.JSONMap(decision.HandoffMetadata).Merge(map[string]any{"forced": true})
		o.logg.Info(ctx, "fallback generation forced handoff")
	}
	decision.HandoffMetadata = dbtypes.JSONMap(decision.HandoffMetadata).Merge(map[string]any{"fallback": true})
	return decision, nil
}

func (o *Orchestrator) saveReply(ctx context.Context, conv *models.Conversation, p policy.Payload, decision policy.Decision) error {
	meta := dbtypes.JSONMap{
		"policy_flags": p.PolicyFlags,
		"evaluation": map[string]any{
			"should_handoff": decision.ShouldHandoff,
			"reason":         decision.Reason,
			"policy_hits":    decision.PolicyHits,
		},
	}
	if p.Reason != nil {
		meta["reason"] = *p.Reason
	}
	if p.ToolError != nil {
		meta["tool_error"] = p.ToolError
	}
	return o.conversations.CreateMessage(ctx, &models.Message{
		ConversationID: conv.ID,
		SenderType:     enums.SenderAgent,
		Content:        p.Response,
		Confidence:     p.Confidence,
		Metadata:       meta,
	})
}

// handoff records the escalation and places the conversation in a queue. It
// reports false when a concurrent actor moved the conversation first or no
// queue could take it.
func (o *Orchestrator) handoff(ctx context.Context, convID uuid.UUID, decision policy.Decision) (bool, error) {
	ctx = o.logg.WithField(ctx, "reason_code", decision.Reason)

	conv, err := o.conversations.GetConversation(ctx, convID)
	if err != nil {
		return false, err
	}
	if o.machine.Can(conv, enums.TransitionHandoffRequired) {
		res, err := o.machine.Apply(ctx, convID, enums.TransitionHandoffRequired, lifecycle.Context{
			ReasonCode:     decision.Reason,
			Confidence:     decision.Confidence,
			PolicyHits:     decision.PolicyHits,
			RequiredSkills: decision.RequiredSkills,
			Metadata:       decision.HandoffMetadata,
		})
		if pkgerrors.HasCode(err, pkgerrors.CodeTransitionNotAllowed) {
			o.logg.Info(ctx, "handoff skipped: conversation moved on")
			return false, nil
		}
		if err != nil {
			return false, err
		}
		conv = res.Conversation
	}

	if !o.machine.Can(conv, enums.TransitionEnqueueForHuman) {
		o.logg.Info(o.logg.WithField(ctx, "status", string(conv.Status)), "enqueue skipped: conversation not awaiting a queue")
		return false, nil
	}

	target, err := o.resolver.Resolve(ctx, decision)
	if pkgerrors.HasCode(err, pkgerrors.CodeUnroutable) {
		o.metrics.IncUnroutable(decision.Reason)
		o.logg.Warn(o.logg.WithField(ctx, "required_skills", decision.RequiredSkills), "unroutable handoff: conversation left in needs_human")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	_, err = o.machine.Apply(ctx, convID, enums.TransitionEnqueueForHuman, lifecycle.Context{
		QueueID: &target.Queue.ID,
		Metadata: dbtypes.JSONMap(decision.QueueMetadata).Merge(map[string]any{
			"match":      string(target.Match),
			"queue_name": target.Queue.Name,
		}),
	})
	if pkgerrors.HasCode(err, pkgerrors.CodeTransitionNotAllowed) {
		o.logg.Info(ctx, "enqueue skipped: conversation moved on")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
