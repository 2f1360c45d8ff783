package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
)

func TestCanMatchesTransitionTable(t *testing.T) {
	allowed := map[enums.Transition][]enums.ConversationStatus{
		enums.TransitionAgentBegins:     {enums.ConversationNew, enums.ConversationBackToAgent},
		enums.TransitionHandoffRequired: {enums.ConversationAgentWorking},
		enums.TransitionEnqueueForHuman: {enums.ConversationNeedsHuman},
		enums.TransitionAssignHuman:     {enums.ConversationQueued},
		enums.TransitionHumanAccepts:    {enums.ConversationAssigned},
		enums.TransitionReturnToAgent:   {enums.ConversationHumanWorking},
		enums.TransitionResolve:         {enums.ConversationHumanWorking},
		enums.TransitionArchive:         {enums.ConversationResolved},
	}
	statuses := []enums.ConversationStatus{
		enums.ConversationNew, enums.ConversationAgentWorking, enums.ConversationNeedsHuman,
		enums.ConversationQueued, enums.ConversationAssigned, enums.ConversationHumanWorking,
		enums.ConversationBackToAgent, enums.ConversationResolved, enums.ConversationArchived,
	}

	for transition, from := range allowed {
		for _, status := range statuses {
			want := false
			for _, f := range from {
				if f == status {
					want = true
				}
			}
			assert.Equal(t, want, Can(status, transition), "%s from %s", transition, status)
		}
	}
	assert.False(t, Can(enums.ConversationNew, enums.Transition("teleport")))
}

func TestTargets(t *testing.T) {
	to, ok := Target(enums.TransitionReturnToAgent)
	assert.True(t, ok)
	assert.Equal(t, enums.ConversationBackToAgent, to)

	_, ok = Target(enums.Transition("nope"))
	assert.False(t, ok)
}

func TestAllowedTransitionsSorted(t *testing.T) {
	assert.Equal(t, []enums.Transition{enums.TransitionResolve, enums.TransitionReturnToAgent},
		AllowedTransitions(enums.ConversationHumanWorking))
	assert.Equal(t, []enums.Transition{enums.TransitionAgentBegins}, AllowedTransitions(enums.ConversationNew))
	assert.Empty(t, AllowedTransitions(enums.ConversationArchived))
}

func TestMissingKeys(t *testing.T) {
	assert.Equal(t, []string{KeyReasonCode}, missingKeys(enums.TransitionHandoffRequired, Context{}))
	assert.Equal(t, []string{KeyQueueID, KeyAssigneeID}, missingKeys(enums.TransitionAssignHuman, Context{}))
	assert.Empty(t, missingKeys(enums.TransitionResolve, Context{}))
	assert.Empty(t, missingKeys(enums.TransitionAgentBegins, Context{}))
}
