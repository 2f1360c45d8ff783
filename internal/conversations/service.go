package conversations

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/handoffdesk-backend/internal/lifecycle"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/handoffdesk-backend/pkg/db/types"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/handoffdesk-backend/pkg/errors"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
	"github.com/angelmondragon/handoffdesk-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type machine interface {
	Apply(ctx context.Context, convID uuid.UUID, t enums.Transition, tctx lifecycle.Context) (*lifecycle.Result, error)
	AllowedTransitions(conv *models.Conversation) []enums.Transition
}

type historyReader interface {
	ListAuditEvents(ctx context.Context, convID uuid.UUID) ([]models.AuditEvent, error)
	ListHandoffs(ctx context.Context, convID uuid.UUID) ([]models.Handoff, error)
}

type runAgentEnqueuer interface {
	EnqueueRunAgent(ctx context.Context, convID uuid.UUID) error
}

// CreateInput opens a conversation with the requester's first message.
type CreateInput struct {
	RequesterID   string
	RequesterType enums.RequesterType
	Channel       string
	Priority      int
	Metadata      map[string]any
	Message       string
}

// MessageInput appends to an existing transcript.
type MessageInput struct {
	ConversationID uuid.UUID
	SenderType     enums.SenderType
	AuthorID       string
	Content        string
	Metadata       map[string]any
}

type ServiceParams struct {
	TxRunner txRunner
	Repo     *Repository
	History  historyReader
	Machine  machine
	Enqueuer runAgentEnqueuer
	Logger   *logger.Logger
}

// Service is the intake side of the engine. It never writes conversation
// status directly; archive goes through the lifecycle machine and agent work is
// triggered through the run-agent queue.
type Service struct {
	tx       txRunner
	repo     *Repository
	history  historyReader
	machine  machine
	enqueuer runAgentEnqueuer
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.TxRunner == nil:
		return nil, errors.New("tx runner required")
	case p.Repo == nil:
		return nil, errors.New("conversations repository required")
	case p.History == nil:
		return nil, errors.New("history reader required")
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
		history:  p.History,
		machine:  p.Machine,
		enqueuer: p.Enqueuer,
		logg:     p.Logger,
		now:      time.Now,
	}, nil
}

// Create persists a new conversation and its first requester message, then
// schedules the first agent run.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Conversation, error) {
	in.RequesterID = strings.TrimSpace(in.RequesterID)
	in.Channel = strings.TrimSpace(in.Channel)
	if in.RequesterType == "" {
		in.RequesterType = enums.RequesterCustomer
	}
	switch {
	case in.RequesterID == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requester_id is required")
	case !in.RequesterType.IsValid():
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid requester_type").
			WithDetails(map[string]any{"requester_type": in.RequesterType})
	case in.Channel == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel is required")
	case strings.TrimSpace(in.Message) == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message is required")
	}

	now := s.now().UTC()
	conv := &models.Conversation{
		ID:             uuid.New(),
		Status:         enums.ConversationNew,
		Priority:       in.Priority,
		RequesterID:    in.RequesterID,
		RequesterType:  in.RequesterType,
		Channel:        in.Channel,
		Metadata:       dbtypes.JSONMap(in.Metadata).Merge(),
		LastActivityAt: now,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateConversation(ctx, conv); err != nil {
			return err
		}
		author := in.RequesterID
		return repo.CreateMessage(ctx, &models.Message{
			ConversationID: conv.ID,
			SenderType:     enums.SenderRequester,
			AuthorID:       &author,
			Content:        in.Message,
			CreatedAt:      now,
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create conversation")
	}

	ctx = s.logg.WithConversationID(ctx, conv.ID.String())
	s.logg.Info(s.logg.WithField(ctx, "channel", conv.Channel), "conversation created")
	s.scheduleRun(ctx, conv.ID)
	return conv, nil
}

// AppendMessage adds a requester or human message. A requester message on a
// conversation the agent owns schedules another agent run.
func (s *Service) AppendMessage(ctx context.Context, in MessageInput) (*models.Message, error) {
	switch {
	case in.ConversationID == uuid.Nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "conversation id is required")
	case in.SenderType != enums.SenderRequester && in.SenderType != enums.SenderHuman:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sender_type must be requester or human").
			WithDetails(map[string]any{"sender_type": in.SenderType})
	case strings.TrimSpace(in.Content) == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "content is required")
	case in.SenderType == enums.SenderHuman && strings.TrimSpace(in.AuthorID) == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "author_id is required for human messages")
	}

	conv, err := s.repo.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == enums.ConversationArchived {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "conversation is archived").
			WithDetails(map[string]any{"conversation_id": conv.ID})
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderType:     in.SenderType,
		Content:        in.Content,
		Metadata:       dbtypes.JSONMap(in.Metadata).Merge(),
		CreatedAt:      s.now().UTC(),
	}
	if author := strings.TrimSpace(in.AuthorID); author != "" {
		msg.AuthorID = &author
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append message")
	}

	if in.SenderType == enums.SenderRequester && conv.Status.AgentRunnable() {
		s.scheduleRun(s.logg.WithConversationID(ctx, conv.ID.String()), conv.ID)
	}
	return msg, nil
}

// Archive closes out a resolved conversation.
func (s *Service) Archive(ctx context.Context, convID, actorID uuid.UUID) (*models.Conversation, error) {
	tctx := lifecycle.Context{}
	if actorID != uuid.Nil {
		tctx.ActorID = &actorID
	}
	res, err := s.machine.Apply(ctx, convID, enums.TransitionArchive, tctx)
	if err != nil {
		return nil, err
	}
	return res.Conversation, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	return s.repo.GetConversation(ctx, id)
}

func (s *Service) ListMessages(ctx context.Context, id uuid.UUID, params pagination.Params) (pagination.Page[models.Message], error) {
	if _, err := s.repo.GetConversation(ctx, id); err != nil {
		return pagination.Page[models.Message]{}, err
	}
	return s.repo.ListMessages(ctx, id, params)
}

func (s *Service) ListAuditEvents(ctx context.Context, id uuid.UUID) ([]models.AuditEvent, error) {
	if _, err := s.repo.GetConversation(ctx, id); err != nil {
		return nil, err
	}
	return s.history.ListAuditEvents(ctx, id)
}

func (s *Service) ListHandoffs(ctx context.Context, id uuid.UUID) ([]models.Handoff, error) {
	if _, err := s.repo.GetConversation(ctx, id); err != nil {
		return nil, err
	}
	return s.history.ListHandoffs(ctx, id)
}

// AllowedTransitions lists what may fire from the conversation's current status.
func (s *Service) AllowedTransitions(ctx context.Context, id uuid.UUID) ([]enums.Transition, error) {
	conv, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.machine.AllowedTransitions(conv), nil
}

func (s *Service) scheduleRun(ctx context.Context, convID uuid.UUID) {
	if err := s.enqueuer.EnqueueRunAgent(ctx, convID); err != nil {
		s.logg.Error(ctx, "enqueue run-agent", err)
	}
}
