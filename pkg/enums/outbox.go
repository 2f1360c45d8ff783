package enums

// OutboxAggregateType is the aggregate_type column of outbox_events.
type OutboxAggregateType string

const AggregateConversation OutboxAggregateType = "conversation"

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateConversation
}

// OutboxEventType is the event_type column of outbox_events. Each value has a
// descriptor in the publisher registry.
type OutboxEventType string

const EventConversationTransitioned OutboxEventType = "conversation_transitioned"

func (e OutboxEventType) IsValid() bool {
	return e == EventConversationTransitioned
}

// OutboxDLQErrorReason records why the publisher parked a row.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

// OutboxDLQReasons lists every reason, for reporting zero-valued series.
var OutboxDLQReasons = []OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
