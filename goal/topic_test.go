package goal_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotics-4-all/goalee/broker"
	"github.com/robotics-4-all/goalee/goal"
)

func TestTopicMessageReceivedGoalCompletesOnFirstMessage(t *testing.T) {
	b := broker.NewInMemory()
	ctx := context.Background()

	g := goal.NewTopicMessageReceivedGoal("any_message", b, "events/raw",
		goal.WithMaxDuration(1*time.Second), goal.WithTickFreqHz(200))

	done := make(chan goal.State, 1)
	go func() { done <- g.Enter(ctx) }()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Publish(ctx, "events/raw", map[string]any{"x": 1.0}))

	select {
	case st := <-done:
		assert.Equal(t, goal.COMPLETED, st)
	case <-time.After(1 * time.Second):
		t.Fatal("goal did not complete in time")
	}
}

func TestTopicMessageParamGoalRequiresConditionMatch(t *testing.T) {
	b := broker.NewInMemory()
	ctx := context.Background()

	cond := func(msg map[string]any) bool {
		v, ok := msg["level"].(float64)
		return ok && v > 5
	}
	g := goal.NewTopicMessageParamGoal("threshold", b, "events/alerts", cond,
		goal.WithMaxDuration(1*time.Second), goal.WithTickFreqHz(200))

	done := make(chan goal.State, 1)
	go func() { done <- g.Enter(ctx) }()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Publish(ctx, "events/alerts", map[string]any{"level": 3.0}))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Publish(ctx, "events/alerts", map[string]any{"level": 9.0}))

	select {
	case st := <-done:
		assert.Equal(t, goal.COMPLETED, st)
	case <-time.After(1 * time.Second):
		t.Fatal("goal did not complete in time")
	}
}
