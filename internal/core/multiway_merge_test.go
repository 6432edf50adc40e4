package core

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func lessInt(a, b int) bool { return a < b }

func mergeSlices(t *testing.T, runs [][]int) []int {
	seqs := make([]Sequence[int], len(runs))
	for i, r := range runs {
		seqs[i] = NewSliceSequence(r)
	}
	res := make([]int, 0)
	err := MultiwayMerge(seqs, lessInt, func(v int) error {
		res = append(res, v)
		return nil
	})
	require.Nil(t, err)
	return res
}

func TestMultiwayMerge(t *testing.T) {
	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, mergeSlices(t, [][]int{{1, 4, 7}, {2, 5, 8}, {3, 6, 9}}))
	require.Equal(t, []int{1, 2, 4, 5, 7, 8}, mergeSlices(t, [][]int{{1, 4, 7}, {2, 5, 8}}))
	require.Equal(t, []int{1, 4, 7}, mergeSlices(t, [][]int{{1, 4, 7}}))
	require.Empty(t, mergeSlices(t, nil))
	require.Equal(t, []int{1, 2}, mergeSlices(t, [][]int{{}, {1}, {}, {2}}))
}

func TestMultiwayMergeSingleRunIsCopied(t *testing.T) {
	// an unsorted single run is not compared, only copied
	require.Equal(t, []int{3, 1, 2}, mergeSlices(t, [][]int{{3, 1, 2}}))
}

func TestMultiwayMergeRandomRuns(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	runs := make([][]int, 17)
	all := make([]int, 0)
	for i := range runs {
		n := rng.Intn(500)
		for j := 0; j < n; j++ {
			runs[i] = append(runs[i], rng.Intn(100))
		}
		sort.Ints(runs[i])
		all = append(all, runs[i]...)
	}
	sort.Ints(all)
	require.Equal(t, all, mergeSlices(t, runs))
}

func TestMultiwayMergeStopsOnError(t *testing.T) {
	seqs := []Sequence[int]{NewSliceSequence([]int{1, 3}), NewSliceSequence([]int{2, 4})}
	calls := 0
	err := MultiwayMerge(seqs, lessInt, func(v int) error {
		calls++
		if v == 2 {
			return fmt.Errorf("disk full")
		}
		return nil
	})
	require.EqualError(t, err, "disk full")
	require.Equal(t, 2, calls)
}
