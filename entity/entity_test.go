package entity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotics-4-all/goalee/broker"
	"github.com/robotics-4-all/goalee/entity"
)

func TestUpdateStateLaxModeIgnoresUnknownKeys(t *testing.T) {
	e := entity.New("front_sonar", "sonar", "sensors/front_sonar", broker.NewMQTT("localhost"), []string{"range"}, nil, 0)

	e.UpdateState(map[string]any{"range": 3.0, "unknown": "x"})

	assert.Equal(t, 3.0, e.GetAttr("range"))
	assert.True(t, e.Initialized())
}

func TestUpdateStateStrictModeDropsWholeMessage(t *testing.T) {
	e := entity.New("front_sonar", "sonar", "sensors/front_sonar", broker.NewMQTT("localhost"), []string{"range"}, nil, 0)
	e.Mode = entity.Strict

	e.UpdateState(map[string]any{"range": 3.0, "unknown": "x"})

	assert.Nil(t, e.GetAttr("range"))
	assert.False(t, e.Initialized())
}

func TestBufferNotWarmReturnsZeros(t *testing.T) {
	e := entity.New("front_sonar", "sonar", "sensors/front_sonar", broker.NewMQTT("localhost"), []string{"range"}, []string{"range"}, 3)

	e.UpdateState(map[string]any{"range": 1.0})
	e.UpdateState(map[string]any{"range": 2.0})

	buf := e.GetBuffer("range", 3)
	assert.Equal(t, []float64{0, 0, 0}, buf)

	e.UpdateState(map[string]any{"range": 3.0})
	buf = e.GetBuffer("range", 3)
	assert.Equal(t, []float64{1, 2, 3}, buf)
}

func TestBufferSlidesOnceWarm(t *testing.T) {
	e := entity.New("front_sonar", "sonar", "sensors/front_sonar", broker.NewMQTT("localhost"), []string{"range"}, []string{"range"}, 2)

	e.UpdateState(map[string]any{"range": 1.0})
	e.UpdateState(map[string]any{"range": 2.0})
	e.UpdateState(map[string]any{"range": 3.0})

	assert.Equal(t, []float64{2, 3}, e.GetBuffer("range", 2))
}

func TestStartSubscribesOverSharedConnection(t *testing.T) {
	b := broker.NewInMemory()
	e := entity.New("front_sonar", "sonar", "sensors/front_sonar", broker.NewMQTT("localhost"), []string{"range"}, nil, 0)
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, b))
	require.NoError(t, e.Start(ctx, b)) // idempotent

	require.NoError(t, b.Publish(ctx, "sensors/front_sonar", map[string]any{"range": 4.5}))
	assert.Equal(t, 4.5, e.GetAttr("range"))

	require.NoError(t, e.Stop())
}
