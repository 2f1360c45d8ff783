// Package generator adapts the external response generator that drafts agent
// replies. Providers are looked up by name in a Registry.
package generator

import (
	"context"

	"github.com/angelmondragon/handoffdesk-backend/internal/policy"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
)

// Status is the generator outcome. The HTTP client returns failures as errors;
// callers treat a StatusFailure result the same way.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFallback Status = "fallback"
	StatusFailure  Status = "failure"
)

// Result is a successful or fallback generation.
type Result struct {
	Status  Status
	Payload policy.Payload
}

// Generator drafts the next agent reply for a conversation.
type Generator interface {
	Generate(ctx context.Context, conv *models.Conversation, transcript []models.Message) (Result, error)
}

// Func adapts a function to Generator.
type Func func(ctx context.Context, conv *models.Conversation, transcript []models.Message) (Result, error)

func (f Func) Generate(ctx context.Context, conv *models.Conversation, transcript []models.Message) (Result, error) {
	return f(ctx, conv, transcript)
}
