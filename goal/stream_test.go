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

func newAttrStreamSetup(t *testing.T, topic string) (*entity.Entity, *broker.InMemory) {
	t.Helper()
	b := broker.NewInMemory()
	e := entity.New("stream_entity", "sensor", topic, broker.Descriptor{}, []string{"state"}, nil, 0)
	require.NoError(t, e.Start(context.Background(), b))
	return e, b
}

func TestStreamAllRequiresEveryExpectedValue(t *testing.T) {
	e, b := newAttrStreamSetup(t, "stream/all")
	ctx := context.Background()
	g := goal.NewEntityAttrStream("all", e, "state", []any{"a", "b", "c"}, goal.StreamAll, 0, 0,
		goal.WithMaxDuration(1*time.Second), goal.WithTickFreqHz(200))

	done := make(chan goal.State, 1)
	go func() { done <- g.Enter(ctx) }()

	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, b.Publish(ctx, "stream/all", map[string]any{"state": v}))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case st := <-done:
		assert.Equal(t, goal.COMPLETED, st)
	case <-time.After(1 * time.Second):
		t.Fatal("stream goal did not complete in time")
	}
}

// TestStreamNoneSucceedsWhenNothingProhibitedAppears checks the inverted
// timeout-means-success polarity for StreamNone.
func TestStreamNoneSucceedsWhenNothingProhibitedAppears(t *testing.T) {
	e, b := newAttrStreamSetup(t, "stream/none")
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "stream/none", map[string]any{"state": "ok"}))

	g := goal.NewEntityAttrStream("none", e, "state", []any{"error"}, goal.StreamNone, 0, 80*time.Millisecond,
		goal.WithTickFreqHz(200))

	st := g.Enter(ctx)
	assert.Equal(t, goal.COMPLETED, st)
}

func TestStreamNoneFailsWhenProhibitedValueAppears(t *testing.T) {
	e, b := newAttrStreamSetup(t, "stream/none2")
	ctx := context.Background()

	g := goal.NewEntityAttrStream("none2", e, "state", []any{"error"}, goal.StreamNone, 0, 2*time.Second,
		goal.WithTickFreqHz(200))

	done := make(chan goal.State, 1)
	go func() { done <- g.Enter(ctx) }()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Publish(ctx, "stream/none2", map[string]any{"state": "error"}))

	select {
	case st := <-done:
		assert.Equal(t, goal.FAILED, st)
	case <-time.After(1 * time.Second):
		t.Fatal("stream goal did not fail in time")
	}
}

// TestStreamOrderedClearsMarkOnOutOfOrderValue exercises invariant 7: a
// value matching an earlier already-marked position, or arriving out of
// turn, clears that position's mark rather than leaving it set.
func TestStreamOrderedClearsMarkOnOutOfOrderValue(t *testing.T) {
	e, b := newAttrStreamSetup(t, "stream/ordered")
	ctx := context.Background()

	g := goal.NewEntityAttrStream("ordered", e, "state", []any{"a", "b", "c"}, goal.StreamAllOrdered, 0, 0,
		goal.WithMaxDuration(300*time.Millisecond), goal.WithTickFreqHz(200))

	done := make(chan goal.State, 1)
	go func() { done <- g.Enter(ctx) }()

	for _, v := range []string{"b", "a", "c"} {
		require.NoError(t, b.Publish(ctx, "stream/ordered", map[string]any{"state": v}))
		time.Sleep(10 * time.Millisecond)
	}

	st := <-done
	assert.Equal(t, goal.FAILED, st, "b arriving before a clears its mark, stalling progress at index 1 until timeout")
}

func TestStreamAllOrderedCompletesInOrder(t *testing.T) {
	e, b := newAttrStreamSetup(t, "stream/ordered_ok")
	ctx := context.Background()

	g := goal.NewEntityAttrStream("ordered_ok", e, "state", []any{"a", "b", "c"}, goal.StreamAllOrdered, 0, 0,
		goal.WithMaxDuration(1*time.Second), goal.WithTickFreqHz(200))

	done := make(chan goal.State, 1)
	go func() { done <- g.Enter(ctx) }()

	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, b.Publish(ctx, "stream/ordered_ok", map[string]any{"state": v}))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case st := <-done:
		assert.Equal(t, goal.COMPLETED, st)
	case <-time.After(1 * time.Second):
		t.Fatal("ordered stream goal did not complete in time")
	}
}
