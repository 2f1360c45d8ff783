package lifecycle

import (
	"sort"

	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
)

type edge struct {
	from []enums.ConversationStatus
	to   enums.ConversationStatus
}

var graph = map[enums.Transition]edge{
	enums.TransitionAgentBegins: {
		from: []enums.ConversationStatus{enums.ConversationNew, enums.ConversationBackToAgent},
		to:   enums.ConversationAgentWorking,
	},
	enums.TransitionHandoffRequired: {
		from: []enums.ConversationStatus{enums.ConversationAgentWorking},
		to:   enums.ConversationNeedsHuman,
	},
	enums.TransitionEnqueueForHuman: {
		from: []enums.ConversationStatus{enums.ConversationNeedsHuman},
		to:   enums.ConversationQueued,
	},
	enums.TransitionAssignHuman: {
		from: []enums.ConversationStatus{enums.ConversationQueued},
		to:   enums.ConversationAssigned,
	},
	enums.TransitionHumanAccepts: {
		from: []enums.ConversationStatus{enums.ConversationAssigned},
		to:   enums.ConversationHumanWorking,
	},
	enums.TransitionReturnToAgent: {
		from: []enums.ConversationStatus{enums.ConversationHumanWorking},
		to:   enums.ConversationBackToAgent,
	},
	enums.TransitionResolve: {
		from: []enums.ConversationStatus{enums.ConversationHumanWorking},
		to:   enums.ConversationResolved,
	},
	enums.TransitionArchive: {
		from: []enums.ConversationStatus{enums.ConversationResolved},
		to:   enums.ConversationArchived,
	},
}

// Can reports whether transition t may fire from status.
func Can(status enums.ConversationStatus, t enums.Transition) bool {
	e, ok := graph[t]
	if !ok {
		return false
	}
	for _, from := range e.from {
		if from == status {
			return true
		}
	}
	return false
}

// Target returns the status t leads to.
func Target(t enums.Transition) (enums.ConversationStatus, bool) {
	e, ok := graph[t]
	return e.to, ok
}

// AllowedTransitions lists the transitions that may fire from status, sorted by name.
func AllowedTransitions(status enums.ConversationStatus) []enums.Transition {
	out := []enums.Transition{}
	for t := range graph {
		if Can(status, t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
