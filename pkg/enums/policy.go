package enums

import "fmt"

// TriggerType selects how a policy rule inspects an agent response.
type TriggerType string

const (
	TriggerConfidenceBelowThreshold TriggerType = "confidence_below_threshold"
	TriggerPolicyFlagDetected       TriggerType = "policy_flag_detected"
	TriggerToolError                TriggerType = "tool_error"
	TriggerAgentRequestedHandoff    TriggerType = "agent_requested_handoff"
)

var validTriggerTypes = []TriggerType{
	TriggerConfidenceBelowThreshold,
	TriggerPolicyFlagDetected,
	TriggerToolError,
	TriggerAgentRequestedHandoff,
}

func (t TriggerType) IsValid() bool {
	for _, candidate := range validTriggerTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

func ParseTriggerType(value string) (TriggerType, error) {
	for _, candidate := range validTriggerTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid trigger type %q", value)
}

// PriorityPolicy orders a queue's waiting items.
type PriorityPolicy string

const (
	PriorityPolicyFIFO     PriorityPolicy = "fifo"
	PriorityPolicyPriority PriorityPolicy = "priority"
)

func (p PriorityPolicy) IsValid() bool {
	return p == PriorityPolicyFIFO || p == PriorityPolicyPriority
}
