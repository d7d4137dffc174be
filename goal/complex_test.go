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

func makeConditionGoal(t *testing.T, name, topic string, val float64, opts ...goal.Option) (*goal.EntityStateCondition, *entity.Entity) {
	t.Helper()
	b := broker.NewInMemory()
	ctx := context.Background()
	e := entity.New(name+"_entity", "sensor", topic, broker.Descriptor{}, []string{"v"}, nil, 0)
	require.NoError(t, e.Start(ctx, b))
	require.NoError(t, b.Publish(ctx, topic, map[string]any{"v": val}))

	g, err := goal.NewEntityStateConditionExpr(name, map[string]*entity.Entity{name + "_entity": e}, name+"_entity.v > 0", opts...)
	require.NoError(t, err)
	return g, e
}

// TestComplexGoalAtLeastOneEarlyStop mirrors spec S4: a fast goal g1
// completes almost immediately; a slow goal g2 would otherwise run for a
// long max_duration. Expected: composite COMPLETED quickly, with g2
// TERMINATED rather than left running or FAILED.
func TestComplexGoalAtLeastOneEarlyStop(t *testing.T) {
	g1, _ := makeConditionGoal(t, "g1", "fast/topic", 1.0, goal.WithTickFreqHz(200))
	g2, _ := makeConditionGoal(t, "g2", "slow/topic", -1.0, goal.WithTickFreqHz(200), goal.WithMaxDuration(10*time.Second))

	composite := goal.NewComplexGoal("composite", goal.AtLeastOneAccomplished, 0, goal.WithMaxDuration(10*time.Second))
	composite.AddGoal(g1)
	composite.AddGoal(g2)

	start := time.Now()
	st := composite.Enter(context.Background())
	elapsed := time.Since(start)

	assert.Equal(t, goal.COMPLETED, st)
	assert.Equal(t, goal.TERMINATED, g2.State())
	assert.Equal(t, goal.COMPLETED, g1.State())
	assert.Less(t, elapsed, 2*time.Second)
}

func TestComplexGoalAllAccomplishedOrderedRunsSequentially(t *testing.T) {
	g1, _ := makeConditionGoal(t, "o1", "ordered/one", 1.0, goal.WithTickFreqHz(200))
	g2, _ := makeConditionGoal(t, "o2", "ordered/two", 1.0, goal.WithTickFreqHz(200))

	composite := goal.NewComplexGoal("composite_ordered", goal.AllAccomplishedOrdered, 0, goal.WithMaxDuration(5*time.Second))
	composite.AddGoal(g1)
	composite.AddGoal(g2)

	st := composite.Enter(context.Background())
	assert.Equal(t, goal.COMPLETED, st)
	assert.Equal(t, goal.COMPLETED, g1.State())
	assert.Equal(t, goal.COMPLETED, g2.State())
}

func TestComplexGoalExactlyXAccomplishedEnumDistinctValues(t *testing.T) {
	seen := map[goal.ComplexGoalAlgorithm]bool{}
	for _, a := range []goal.ComplexGoalAlgorithm{
		goal.AllAccomplished,
		goal.AllAccomplishedOrdered,
		goal.NoneAccomplished,
		goal.AtLeastOneAccomplished,
		goal.ExactlyXAccomplished,
		goal.ExactlyXAccomplishedOrdered,
	} {
		assert.False(t, seen[a], "duplicate enum value detected")
		seen[a] = true
	}
	assert.Len(t, seen, 6)
}

func TestGoalRepeaterSucceedsAfterNRuns(t *testing.T) {
	g, _ := makeConditionGoal(t, "rep", "repeat/topic", 1.0, goal.WithTickFreqHz(200))
	rep := goal.NewGoalRepeater("repeater", g, 3, goal.WithMaxDuration(5*time.Second))

	st := rep.Enter(context.Background())
	assert.Equal(t, goal.COMPLETED, st)
}
