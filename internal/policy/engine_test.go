package policy

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
)

type stubSource struct {
	rules []Rule
	err   error
	loads int
}

func (s *stubSource) ActiveRules(context.Context) ([]Rule, []error, error) {
	s.loads++
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.rules, []error{errors.New("rule x: bad criteria")}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "policy-test", Output: io.Discard})
}

func TestEngineCachesUntilTTL(t *testing.T) {
	source := &stubSource{rules: []Rule{rule(enums.TriggerAgentRequestedHandoff, 1, "customer_request")}}
	engine, err := NewEngine(source, time.Minute, testLogger())
	require.NoError(t, err)

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		decision, err := engine.Evaluate(context.Background(), Payload{RequestedHandoff: true})
		require.NoError(t, err)
		assert.True(t, decision.ShouldHandoff)
	}
	assert.Equal(t, 1, source.loads)

	now = now.Add(2 * time.Minute)
	_, err = engine.Evaluate(context.Background(), Payload{})
	require.NoError(t, err)
	assert.Equal(t, 2, source.loads)
}

func TestEngineInvalidateReloads(t *testing.T) {
	source := &stubSource{}
	engine, err := NewEngine(source, 0, testLogger())
	require.NoError(t, err)

	decision, err := engine.Evaluate(context.Background(), Payload{RequestedHandoff: true})
	require.NoError(t, err)
	assert.False(t, decision.ShouldHandoff)

	source.rules = []Rule{rule(enums.TriggerAgentRequestedHandoff, 1, "customer_request")}
	decision, err = engine.Evaluate(context.Background(), Payload{RequestedHandoff: true})
	require.NoError(t, err)
	assert.False(t, decision.ShouldHandoff, "rules stay cached without a ttl")

	engine.Invalidate()
	decision, err = engine.Evaluate(context.Background(), Payload{RequestedHandoff: true})
	require.NoError(t, err)
	assert.True(t, decision.ShouldHandoff)
	assert.Equal(t, 2, source.loads)
}

func TestEngineSourceError(t *testing.T) {
	source := &stubSource{err: errors.New("db down")}
	engine, err := NewEngine(source, time.Minute, testLogger())
	require.NoError(t, err)

	_, err = engine.Evaluate(context.Background(), Payload{})
	require.Error(t, err)

	source.err = nil
	_, err = engine.Evaluate(context.Background(), Payload{})
	require.NoError(t, err)
	assert.Equal(t, 2, source.loads)
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(nil, time.Minute, testLogger())
	require.Error(t, err)
	_, err = NewEngine(&stubSource{}, time.Minute, nil)
	require.Error(t, err)
}
