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
	"github.com/robotics-4-all/goalee/types"
)

func TestPositionGoalWithinDeviation(t *testing.T) {
	e, b := newPositionedEntity(t, "robot", "pose_goal/pos")
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "pose_goal/pos", map[string]any{"position": map[string]any{"x": 1.05, "y": 2.0, "z": 0.0}}))

	g := goal.NewPositionGoal("reach", e, types.Point{X: 1.0, Y: 2.0, Z: 0.0}, 0.1,
		goal.WithMaxDuration(1*time.Second), goal.WithTickFreqHz(100))

	st := g.Enter(ctx)
	assert.Equal(t, goal.COMPLETED, st)
}

func TestPoseGoalRequiresPositionAndOrientationTogether(t *testing.T) {
	ctx := context.Background()
	b := broker.NewInMemory()
	e := entity.New("robot", "robot", "pose_goal/full", broker.Descriptor{}, []string{"position", "orientation"}, nil, 0)
	require.NoError(t, e.Start(ctx, b))

	target := types.Pose{Translation: types.Point{X: 0, Y: 0, Z: 0}, Orientation: types.Orientation{Yaw: 0}}
	g := goal.NewPoseGoal("docked", e, target, 0.1, goal.WithMaxDuration(120*time.Millisecond), goal.WithTickFreqHz(200))

	done := make(chan goal.State, 1)
	go func() { done <- g.Enter(ctx) }()

	require.NoError(t, b.Publish(ctx, "pose_goal/full", map[string]any{"position": map[string]any{"x": 0.0, "y": 0.0, "z": 0.0}}))
	time.Sleep(60 * time.Millisecond)

	select {
	case st := <-done:
		assert.Equal(t, goal.FAILED, st, "position alone without orientation should never satisfy a pose goal")
	case <-time.After(1 * time.Second):
		t.Fatal("goal did not finish in time")
	}
}
