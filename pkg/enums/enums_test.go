package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationStatusParse(t *testing.T) {
	status, err := ParseConversationStatus("human_working")
	require.NoError(t, err)
	assert.Equal(t, ConversationHumanWorking, status)

	_, err = ParseConversationStatus("closed")
	require.Error(t, err)
}

func TestConversationStatusAgentRunnable(t *testing.T) {
	assert.True(t, ConversationNew.AgentRunnable())
	assert.True(t, ConversationBackToAgent.AgentRunnable())
	assert.True(t, ConversationAgentWorking.AgentRunnable())
	assert.False(t, ConversationQueued.AgentRunnable())
	assert.False(t, ConversationResolved.AgentRunnable())
}

func TestTransitionAuditEventType(t *testing.T) {
	assert.Equal(t, "conversation.agent_begins", TransitionAgentBegins.AuditEventType())
	assert.Equal(t, "conversation.resolve", TransitionResolve.AuditEventType())
	assert.False(t, Transition("reopen").IsValid())
}

func TestQueueItemAndAssignmentStates(t *testing.T) {
	assert.True(t, QueueItemQueued.IsActive())
	assert.True(t, QueueItemHot.IsActive())
	assert.False(t, QueueItemCompleted.IsActive())

	assert.True(t, AssignmentAssigned.IsCurrent())
	assert.True(t, AssignmentHumanWorking.IsCurrent())
	assert.False(t, AssignmentReleased.IsCurrent())
	assert.False(t, AssignmentResolved.IsCurrent())
}

func TestTriggerTypeParse(t *testing.T) {
	trigger, err := ParseTriggerType("tool_error")
	require.NoError(t, err)
	assert.Equal(t, TriggerToolError, trigger)

	_, err = ParseTriggerType("sentiment")
	require.Error(t, err)
}
