package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/handoffdesk-backend/pkg/auth"
)

type operatorKey struct{}

// WithOperator stores the authenticated operator on ctx.
func WithOperator(ctx context.Context, op auth.Operator) context.Context {
	return context.WithValue(ctx, operatorKey{}, op)
}

func OperatorFromContext(ctx context.Context) (auth.Operator, bool) {
	op, ok := ctx.Value(operatorKey{}).(auth.Operator)
	return op, ok && op.ID != uuid.Nil
}

// ActorFromContext returns the operator id, or uuid.Nil on unauthenticated requests.
func ActorFromContext(ctx context.Context) uuid.UUID {
	op, _ := OperatorFromContext(ctx)
	return op.ID
}

// UserIDFromContext is ActorFromContext as a string; empty when unauthenticated.
func UserIDFromContext(ctx context.Context) string {
	if op, ok := OperatorFromContext(ctx); ok {
		return op.ID.String()
	}
	return ""
}
