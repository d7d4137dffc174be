package goal_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotics-4-all/goalee/broker"
	"github.com/robotics-4-all/goalee/entity"
	"github.com/robotics-4-all/goalee/goal"
)

// TestConditionHoldScenario mirrors spec S1 on a compressed time scale:
// range>5 with for_duration=200ms, max_duration=2s; range=3 before Enter,
// range=7 about 20ms later; expected COMPLETED once the hold has elapsed.
func TestConditionHoldScenario(t *testing.T) {
	b := broker.NewInMemory()
	ctx := context.Background()
	sonar := entity.New("front_sonar", "sonar", "sensors/front_sonar", broker.Descriptor{}, []string{"range"}, nil, 0)
	require.NoError(t, sonar.Start(ctx, b))

	g, err := goal.NewEntityStateConditionExpr(
		"s1", map[string]*entity.Entity{"front_sonar": sonar}, "front_sonar.range > 5",
		goal.WithForDuration(200*time.Millisecond),
		goal.WithMaxDuration(2*time.Second),
		goal.WithTickFreqHz(50),
	)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "sensors/front_sonar", map[string]any{"range": 3.0}))

	done := make(chan goal.State, 1)
	go func() { done <- g.Enter(ctx) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Publish(ctx, "sensors/front_sonar", map[string]any{"range": 7.0}))

	select {
	case st := <-done:
		assert.Equal(t, goal.COMPLETED, st)
	case <-time.After(2 * time.Second):
		t.Fatal("goal did not complete in time")
	}
}

func TestConditionNilAttributeNeverCompletesUntilSet(t *testing.T) {
	b := broker.NewInMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sonar := entity.New("front_sonar", "sonar", "sensors/front_sonar", broker.Descriptor{}, []string{"range"}, nil, 0)
	require.NoError(t, sonar.Start(ctx, b))

	g, err := goal.NewEntityStateConditionExpr(
		"cond", map[string]*entity.Entity{"front_sonar": sonar}, "front_sonar.range > 5",
		goal.WithMaxDuration(60*time.Millisecond),
		goal.WithTickFreqHz(100),
	)
	require.NoError(t, err)

	st := g.Enter(ctx)
	assert.Equal(t, goal.FAILED, st)
}

func TestTerminalityInvariant(t *testing.T) {
	b := broker.NewInMemory()
	ctx := context.Background()
	sonar := entity.New("front_sonar", "sonar", "sensors/front_sonar", broker.Descriptor{}, []string{"range"}, nil, 0)
	require.NoError(t, sonar.Start(ctx, b))
	require.NoError(t, b.Publish(ctx, "sensors/front_sonar", map[string]any{"range": 7.0}))

	g, err := goal.NewEntityStateConditionExpr(
		"cond", map[string]*entity.Entity{"front_sonar": sonar}, "front_sonar.range > 5",
		goal.WithMaxDuration(1*time.Second),
		goal.WithTickFreqHz(50),
	)
	require.NoError(t, err)

	st := g.Enter(ctx)
	assert.Equal(t, goal.COMPLETED, st)
	assert.Equal(t, goal.COMPLETED, g.State())

	g.Reset()
	assert.Equal(t, goal.IDLE, g.State())
}
