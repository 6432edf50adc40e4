package accumulators

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sliceIterator struct {
	vals []int
	key  uint64
}

func (it *sliceIterator) HasNext() bool { return len(it.vals) > 0 }
func (it *sliceIterator) Key() uint64   { return it.key }
func (it *sliceIterator) Next() (int, error) {
	v := it.vals[0]
	it.vals = it.vals[1:]
	return v, nil
}

func evens(v int) (float64, bool) {
	return float64(v), v%2 == 0
}

func TestCountAndSum(t *testing.T) {
	count, err := Group[int](Counter[int])(&sliceIterator{vals: []int{1, 2, 3}}, 0)
	require.Nil(t, err)
	require.EqualValues(t, 3, count.GetCount())

	sum, err := Group[int](Adder(evens))(&sliceIterator{vals: []int{1, 2, 3, 4}}, 0)
	require.Nil(t, err)
	require.Equal(t, 6.0, sum.GetSum())
	require.EqualValues(t, 2, sum.GetSkipped())

	other := Adder(evens)()
	require.Nil(t, other.Accumulate(10))
	require.Nil(t, sum.Merge(other))
	require.Equal(t, 16.0, sum.GetSum())
	require.Error(t, sum.Merge(Counter[int]()))
	require.Error(t, count.Merge(other))
}

func TestComposed(t *testing.T) {
	create := Compose(
		func() Accumulator[int] { return Counter[int]() },
		func() Accumulator[int] { return Adder(evens)() },
	)
	a := create()
	require.Nil(t, Drain[int](&sliceIterator{vals: []int{2, 3}}, a))
	b := create()
	require.Nil(t, Drain[int](&sliceIterator{vals: []int{4}}, b))
	require.Nil(t, a.Merge(b))
	results := a.GetResults()
	require.EqualValues(t, 3, results[0].(*Count[int]).GetCount())
	require.Equal(t, 6.0, results[1].(*Sum[int]).GetSum())
	require.Error(t, a.Merge(Compose[int]()()))
}
