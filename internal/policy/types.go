package policy

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
)

// ReasonUncertainIntent is used when a fallback run escalates without a matching rule.
const ReasonUncertainIntent = "uncertain_intent"

// ToolError reports a failed tool call made by the agent.
type ToolError struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Payload is the agent response as seen by the rules.
type Payload struct {
	Response         string         `json:"response"`
	Confidence       *float64       `json:"confidence,omitempty"`
	Reason           *string        `json:"reason,omitempty"`
	PolicyFlags      []string       `json:"policy_flags"`
	HandoffMetadata  map[string]any `json:"handoff_metadata,omitempty"`
	RequestedHandoff bool           `json:"requested_handoff"`
	ToolError        *ToolError     `json:"tool_error,omitempty"`
}

// Decision is the outcome of evaluating a payload.
type Decision struct {
	ShouldHandoff   bool           `json:"should_handoff"`
	Reason          string         `json:"reason,omitempty"`
	Confidence      *float64       `json:"confidence,omitempty"`
	PolicyHits      []string       `json:"policy_hits"`
	RequiredSkills  []string       `json:"required_skills"`
	HandoffMetadata map[string]any `json:"handoff_metadata"`
	QueueMetadata   map[string]any `json:"queue_metadata"`
}

// Rule is an active policy rule flattened with its owning policy.
type Rule struct {
	ID             uuid.UUID
	PolicyID       uuid.UUID
	PolicyName     string
	ReasonCode     string
	RequiredSkills []string
	TriggerType    enums.TriggerType
	Priority       int

	// Criteria, decoded from the rule's JSON column.
	Threshold *float64
	Flags     []string
	Retryable *bool
}
