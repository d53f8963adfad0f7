package offer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScalarSubtract(t *testing.T) {
	cpus := NewScalar("cpus", "*", 10)
	used := NewScalar("cpus", "*", 3)

	remainder, nonEmpty := cpus.Subtract(used)
	assert.True(t, nonEmpty)
	assert.True(t, roundedEqual(remainder.(*ScalarResource).Value, 7))
}

func TestScalarSubtractDropsAtZero(t *testing.T) {
	cpus := NewScalar("cpus", "*", 3)
	used := NewScalar("cpus", "*", 3)

	_, nonEmpty := cpus.Subtract(used)
	assert.False(t, nonEmpty)
}

func TestScalarSubtractEpsilon(t *testing.T) {
	cpus := NewScalar("cpus", "*", 3.00001)
	used := NewScalar("cpus", "*", 3)

	_, nonEmpty := cpus.Subtract(used)
	assert.False(t, nonEmpty, "difference within epsilon should be treated as exhausted")
}

func TestRangeSubtractSplits(t *testing.T) {
	ports := NewRanges("ports", "*", []Range{{Begin: 31000, End: 32000}})
	used := NewRanges("ports", "*", []Range{{Begin: 31500, End: 31500}})

	remainder, nonEmpty := ports.Subtract(used)
	assert.True(t, nonEmpty)
	r := remainder.(*RangeResource)
	assert.Equal(t, []Range{{Begin: 31000, End: 31499}, {Begin: 31501, End: 32000}}, r.Ranges)
}

func TestRangeSubtractEmpties(t *testing.T) {
	ports := NewRanges("ports", "*", []Range{{Begin: 31000, End: 31000}})
	used := NewRanges("ports", "*", []Range{{Begin: 30000, End: 32000}})

	_, nonEmpty := ports.Subtract(used)
	assert.False(t, nonEmpty)
}

func TestSetSubtract(t *testing.T) {
	vols := NewSet("volumes", "*", []string{"a", "b", "c"})
	used := NewSet("volumes", "*", []string{"b"})

	remainder, nonEmpty := vols.Subtract(used)
	assert.True(t, nonEmpty)
	r := remainder.(*SetResource)
	_, hasB := r.Values["b"]
	assert.False(t, hasB)
	assert.Len(t, r.Values, 2)
}

func TestBundleSubtractCommutative(t *testing.T) {
	b1 := NewBundle(
		NewScalar("cpus", "*", 10),
		NewScalar("mem", "*", 100),
	)
	b2 := NewBundle(
		NewScalar("mem", "*", 100),
		NewScalar("cpus", "*", 10),
	)

	used := NewBundle(NewScalar("cpus", "*", 4))

	r1 := b1.Subtract(used)
	r2 := b2.Subtract(used)

	assert.Equal(t, r1.Scalar("cpus", "*"), r2.Scalar("cpus", "*"))
	assert.Equal(t, r1.Scalar("mem", "*"), r2.Scalar("mem", "*"))
}

func TestBundleSubtractDropsExhaustedResources(t *testing.T) {
	b := NewBundle(NewScalar("cpus", "*", 3), NewScalar("mem", "*", 100))
	used := NewBundle(NewScalar("cpus", "*", 3))

	result := b.Subtract(used)
	_, ok := result.Get("cpus", "*")
	assert.False(t, ok)
	assert.Equal(t, float64(100), result.Scalar("mem", "*"))
}

func TestBundleContains(t *testing.T) {
	b := NewBundle(NewScalar("cpus", "*", 10))
	assert.True(t, b.Contains(NewBundle(NewScalar("cpus", "*", 5))))
	assert.False(t, b.Contains(NewBundle(NewScalar("cpus", "*", 15))))
}

func TestBundleUnknownShapePassedThrough(t *testing.T) {
	b := NewBundle(NewScalar("cpus", "*", 10))
	used := NewBundle(NewScalar("disk", "*", 1)) // no counterpart in b

	result := b.Subtract(used)
	assert.Equal(t, float64(10), result.Scalar("cpus", "*"))
}
