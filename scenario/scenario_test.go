package scenario_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotics-4-all/goalee/broker"
	"github.com/robotics-4-all/goalee/entity"
	"github.com/robotics-4-all/goalee/goal"
	"github.com/robotics-4-all/goalee/scenario"
)

func newConditionGoal(t *testing.T, b *broker.InMemory, name, topic string, opts ...goal.Option) (*goal.EntityStateCondition, *entity.Entity) {
	t.Helper()
	e := entity.New(name+"_entity", "sensor", topic, broker.Descriptor{}, []string{"v"}, nil, 0)
	require.NoError(t, e.Start(context.Background(), b))
	g, err := goal.NewEntityStateConditionExpr(name, map[string]*entity.Entity{name + "_entity": e}, name+"_entity.v > 0", opts...)
	require.NoError(t, err)
	return g, e
}

// TestScenarioWeightedScoreWithAntiGoal mirrors spec S5: one main goal
// completes, one anti-goal also completes; expected score =
// goal_weight - antigoal_weight.
func TestScenarioWeightedScoreWithAntiGoal(t *testing.T) {
	b := broker.NewInMemory()
	ctx := context.Background()

	s := scenario.New("s5", broker.Descriptor{}, nil).WithConn(b)

	mainGoal, _ := newConditionGoal(t, b, "main", "main/topic", goal.WithMaxDuration(300*time.Millisecond), goal.WithTickFreqHz(200))
	antiGoal, _ := newConditionGoal(t, b, "anti", "anti/topic", goal.WithMaxDuration(300*time.Millisecond), goal.WithTickFreqHz(200))

	require.NoError(t, b.Publish(ctx, "main/topic", map[string]any{"v": 1.0}))
	require.NoError(t, b.Publish(ctx, "anti/topic", map[string]any{"v": 1.0}))

	s.AddGoal(mainGoal, 1.0)
	s.AddAntiGoal(antiGoal, 0.5)

	score, err := s.Run(ctx, scenario.Sequential)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-9)
}

// TestScenarioFatalGoalCascadesTermination mirrors invariant 6: a fatal
// goal completing must terminate every non-terminal main and anti-goal.
func TestScenarioFatalGoalCascadesTermination(t *testing.T) {
	b := broker.NewInMemory()
	ctx := context.Background()

	s := scenario.New("s_fatal", broker.Descriptor{}, nil).WithConn(b)

	slowGoal, _ := newConditionGoal(t, b, "slow", "slow/topic", goal.WithMaxDuration(10*time.Second), goal.WithTickFreqHz(200))
	fatalGoal, _ := newConditionGoal(t, b, "fatal", "fatal/topic", goal.WithMaxDuration(300*time.Millisecond), goal.WithTickFreqHz(200))

	require.NoError(t, b.Publish(ctx, "fatal/topic", map[string]any{"v": 1.0}))

	s.AddGoal(slowGoal, 1.0)
	s.AddFatalGoal(fatalGoal)

	start := time.Now()
	_, err := s.Run(ctx, scenario.Concurrent)
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Equal(t, goal.TERMINATED, slowGoal.State())
	assert.Equal(t, goal.COMPLETED, fatalGoal.State())
	assert.Less(t, elapsed, 5*time.Second)
}

// TestScenarioTwoGoalsBothCompleteScoresWeightSum exercises the scoring
// invariant across multiple goals: both complete, so the score is the sum
// of their two weights.
func TestScenarioTwoGoalsBothCompleteScoresWeightSum(t *testing.T) {
	b := broker.NewInMemory()
	ctx := context.Background()

	s := scenario.New("s_weights", broker.Descriptor{}, nil).WithConn(b)
	g1, _ := newConditionGoal(t, b, "g1", "g1/topic", goal.WithMaxDuration(300*time.Millisecond), goal.WithTickFreqHz(200))
	g2, _ := newConditionGoal(t, b, "g2", "g2/topic", goal.WithMaxDuration(300*time.Millisecond), goal.WithTickFreqHz(200))

	require.NoError(t, b.Publish(ctx, "g1/topic", map[string]any{"v": 1.0}))
	require.NoError(t, b.Publish(ctx, "g2/topic", map[string]any{"v": 1.0}))

	s.AddGoal(g1, 0.6)
	s.AddGoal(g2, 0.4)

	score, err := s.Run(ctx, scenario.Sequential)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
}
