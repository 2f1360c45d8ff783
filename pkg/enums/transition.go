package enums

import "fmt"

// Transition names an edge of the conversation lifecycle graph.
type Transition string

const (
	TransitionAgentBegins     Transition = "agent_begins"
	TransitionHandoffRequired Transition = "handoff_required"
	TransitionEnqueueForHuman Transition = "enqueue_for_human"
	TransitionAssignHuman     Transition = "assign_human"
	TransitionHumanAccepts    Transition = "human_accepts"
	TransitionReturnToAgent   Transition = "return_to_agent"
	TransitionResolve         Transition = "resolve"
	TransitionArchive         Transition = "archive"
)

var validTransitions = []Transition{
	TransitionAgentBegins,
	TransitionHandoffRequired,
	TransitionEnqueueForHuman,
	TransitionAssignHuman,
	TransitionHumanAccepts,
	TransitionReturnToAgent,
	TransitionResolve,
	TransitionArchive,
}

func (t Transition) IsValid() bool {
	for _, candidate := range validTransitions {
		if candidate == t {
			return true
		}
	}
	return false
}

// AuditEventType is the event_type recorded for the transition.
func (t Transition) AuditEventType() string {
	return "conversation." + string(t)
}

func ParseTransition(value string) (Transition, error) {
	for _, candidate := range validTransitions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transition %q", value)
}
