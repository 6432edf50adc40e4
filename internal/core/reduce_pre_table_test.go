package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type wordCount struct {
	word  uint64
	count int
}

func sumCounts(a, b wordCount) wordCount {
	return wordCount{word: a.word, count: a.count + b.count}
}

func wordKey(v wordCount) uint64 {
	return v.word
}

func TestReducePreTableMillionKeys(t *testing.T) {
	for _, numPartitions := range []int{1, 10} {
		emitted := make([]map[uint64]int, numPartitions)
		emitters := make([]func(v wordCount) error, numPartitions)
		for i := range emitters {
			i := i
			emitted[i] = make(map[uint64]int)
			emitters[i] = func(v wordCount) error {
				emitted[i][v.word] += v.count
				return nil
			}
		}
		table, err := NewReducePreTable(numPartitions, wordKey, sumCounts, HashUint64, emitters, nil)
		require.Nil(t, err)
		for i := 0; i < 1000000; i++ {
			require.Nil(t, table.Insert(wordCount{word: uint64(i * 17), count: 1}))
		}
		require.Equal(t, 1000000, table.Size())
		require.Greater(t, table.NumResizes(), 0)
		require.Nil(t, table.Flush())
		require.Equal(t, 0, table.Size())

		total := 0
		for _, m := range emitted {
			total += len(m)
			for _, c := range m {
				require.Equal(t, 1, c)
			}
		}
		require.Equal(t, 1000000, total)
	}
}

func TestReducePreTableCombines(t *testing.T) {
	res := make(map[uint64]int)
	emits := 0
	table, err := NewReducePreTable(3, wordKey, sumCounts, HashUint64, []func(v wordCount) error{
		func(v wordCount) error {
			emits++
			res[v.word] = v.count
			return nil
		},
	}, &ReducePreTableOptions{InitialBuckets: 2})
	require.Nil(t, err)
	for i := 0; i < 1000; i++ {
		require.Nil(t, table.Insert(wordCount{word: uint64(i % 10), count: 1}))
	}
	require.Equal(t, 10, table.Size())
	require.Nil(t, table.Flush())
	require.Equal(t, 10, emits)
	for k := uint64(0); k < 10; k++ {
		require.Equal(t, 100, res[k])
	}
}

func TestReducePreTableFlushesFullPartitions(t *testing.T) {
	emits := 0
	table, err := NewReducePreTable(1, wordKey, sumCounts, HashUint64, []func(v wordCount) error{
		func(v wordCount) error {
			emits++
			return nil
		},
	}, &ReducePreTableOptions{MaxItemsPerPartition: 100})
	require.Nil(t, err)
	for i := 0; i < 250; i++ {
		require.Nil(t, table.Insert(wordCount{word: uint64(i), count: 1}))
	}
	require.Equal(t, 200, emits)
	require.Equal(t, 50, table.PartitionSize(0))
}

func TestReducePreTableResizeKeepsEntries(t *testing.T) {
	table, err := NewReducePreTable(2, func(s string) string { return s }, func(a, b string) string { return a }, HashString,
		[]func(v string) error{func(string) error { return nil }, func(string) error { return nil }},
		&ReducePreTableOptions{InitialBuckets: 1, MaxFillFactor: 1})
	require.Nil(t, err)
	for i := 0; i < 64; i++ {
		require.Nil(t, table.Insert(fmt.Sprintf("key-%d", i)))
	}
	require.Equal(t, 64, table.Size())
	// reinserting existing keys never adds entries
	for i := 0; i < 64; i++ {
		require.Nil(t, table.Insert(fmt.Sprintf("key-%d", i)))
	}
	require.Equal(t, 64, table.Size())
	require.Greater(t, table.NumBuckets(0)+table.NumBuckets(1), 2)
}

func TestReducePreTableValidatesEmitters(t *testing.T) {
	_, err := NewReducePreTable(3, wordKey, sumCounts, HashUint64, make([]func(v wordCount) error, 2), nil)
	require.NotNil(t, err)
	_, err = NewReducePreTable(0, wordKey, sumCounts, HashUint64, make([]func(v wordCount) error, 1), nil)
	require.NotNil(t, err)
}
