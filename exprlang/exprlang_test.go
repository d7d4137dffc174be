package exprlang_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotics-4-all/goalee/exprlang"
)

type fakeEntity struct {
	attrs   map[string]any
	buffers map[string][]float64
}

func (f *fakeEntity) GetAttr(name string) any { return f.attrs[name] }
func (f *fakeEntity) GetBuffer(name string, m int) []float64 {
	if b, ok := f.buffers[name]; ok {
		return b
	}
	return make([]float64, m)
}

func TestArithmeticAndComparison(t *testing.T) {
	node, err := exprlang.Parse("front_sonar.range > 5")
	require.NoError(t, err)

	entities := map[string]exprlang.EntityView{
		"front_sonar": &fakeEntity{attrs: map[string]any{"range": 7.0}},
	}
	ok, err := exprlang.Eval(node, entities)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBooleanOperators(t *testing.T) {
	node, err := exprlang.Parse("front_sonar.range > 5 && front_sonar.range < 10")
	require.NoError(t, err)

	entities := map[string]exprlang.EntityView{
		"front_sonar": &fakeEntity{attrs: map[string]any{"range": 7.0}},
	}
	ok, err := exprlang.Eval(node, entities)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReducerOverBuffer(t *testing.T) {
	node, err := exprlang.Parse("mean(front_sonar.buffer(range, 3)) > 1.5")
	require.NoError(t, err)

	entities := map[string]exprlang.EntityView{
		"front_sonar": &fakeEntity{buffers: map[string][]float64{"range": {1, 2, 3}}},
	}
	ok, err := exprlang.Eval(node, entities)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNilAttributeIsNotSatisfied(t *testing.T) {
	node, err := exprlang.Parse("front_sonar.range > 5")
	require.NoError(t, err)

	entities := map[string]exprlang.EntityView{
		"front_sonar": &fakeEntity{attrs: map[string]any{}},
	}
	_, err = exprlang.Eval(node, entities)
	assert.ErrorIs(t, err, exprlang.ErrNilAttribute)
}

func TestRejectsNonWhitelistedFunction(t *testing.T) {
	_, err := exprlang.Parse("sum(front_sonar.buffer(range, 3)) > 2")
	assert.Error(t, err)
}

func TestOperatorPrecedence(t *testing.T) {
	node, err := exprlang.Parse("1 + 2 * 3 == 7")
	require.NoError(t, err)
	ok, err := exprlang.Eval(node, map[string]exprlang.EntityView{})
	require.NoError(t, err)
	assert.True(t, ok)
}
