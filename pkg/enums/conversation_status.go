package enums

import "fmt"

// ConversationStatus maps to the conversation_status column.
type ConversationStatus string

const (
	ConversationNew          ConversationStatus = "new"
	ConversationAgentWorking ConversationStatus = "agent_working"
	ConversationNeedsHuman   ConversationStatus = "needs_human"
	ConversationQueued       ConversationStatus = "queued"
	ConversationAssigned     ConversationStatus = "assigned"
	ConversationHumanWorking ConversationStatus = "human_working"
	ConversationBackToAgent  ConversationStatus = "back_to_agent"
	ConversationResolved     ConversationStatus = "resolved"
	ConversationArchived     ConversationStatus = "archived"
)

var validConversationStatuses = []ConversationStatus{
	ConversationNew,
	ConversationAgentWorking,
	ConversationNeedsHuman,
	ConversationQueued,
	ConversationAssigned,
	ConversationHumanWorking,
	ConversationBackToAgent,
	ConversationResolved,
	ConversationArchived,
}

// IsValid reports whether the value is a known conversation status.
func (s ConversationStatus) IsValid() bool {
	for _, candidate := range validConversationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// AgentRunnable reports whether a run-agent trigger can make progress from this status.
func (s ConversationStatus) AgentRunnable() bool {
	return s == ConversationNew || s == ConversationAgentWorking || s == ConversationBackToAgent
}

func ParseConversationStatus(value string) (ConversationStatus, error) {
	for _, candidate := range validConversationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid conversation status %q", value)
}
