package data

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-sif/dataflow/errors"
	"github.com/stretchr/testify/require"
)

func TestBlockQueueBlocksUntilClosed(t *testing.T) {
	pool, err := NewBlockPool(BlockPoolConfig{MemoryLimit: 1 << 20})
	require.Nil(t, err)
	defer pool.Close()
	var closes atomic.Int32
	q := NewBlockQueue(pool, func(err error) {
		require.Nil(t, err)
		closes.Add(1)
	})

	received := make(chan int, 10)
	done := make(chan error, 1)
	go func() {
		for {
			b, ok, err := q.NextBlock()
			if err != nil || !ok {
				done <- err
				return
			}
			received <- b.NumItems
		}
	}()

	require.Nil(t, q.AppendBlock(Block{Data: []byte{1}, NumItems: 1}))
	require.Equal(t, 1, <-received)
	select {
	case <-done:
		t.Fatal("reader finished before the queue was closed")
	case <-time.After(50 * time.Millisecond):
	}
	require.Nil(t, q.AppendBlock(Block{Data: []byte{1, 2}, NumItems: 2}))
	require.Nil(t, q.Close())
	require.Nil(t, q.Close())
	require.Nil(t, <-done)
	require.Equal(t, 2, <-received)
	require.EqualValues(t, 1, closes.Load())
	require.True(t, q.IsClosed())
	require.Equal(t, 3, q.NumItems())
	require.Equal(t, 2, q.NumBlocks())
	require.EqualValues(t, 3, q.SizeBytes())
}

func TestBlockQueueAbortIsReportedAfterDrain(t *testing.T) {
	pool, err := NewBlockPool(BlockPoolConfig{MemoryLimit: 1 << 20})
	require.Nil(t, err)
	defer pool.Close()
	q := NewBlockQueue(pool, nil)
	require.Nil(t, q.AppendBlock(Block{Data: []byte{1}, NumItems: 1}))
	q.Abort(fmt.Errorf("connection reset"))

	_, ok, err := q.NextBlock()
	require.True(t, ok)
	require.Nil(t, err)
	_, ok, err = q.NextBlock()
	require.False(t, ok)
	require.EqualError(t, err, "connection reset")
	require.ErrorAs(t, q.AppendBlock(Block{Data: []byte{1}, NumItems: 1}), &errors.ClosedError{})
}

func TestBlockQueueSpills(t *testing.T) {
	pool, err := NewBlockPool(BlockPoolConfig{MemoryLimit: 16, TempDir: t.TempDir()})
	require.Nil(t, err)
	defer pool.Close()
	q := NewBlockQueue(pool, nil)
	for i := 0; i < 10; i++ {
		require.Nil(t, q.AppendBlock(Block{Data: []byte(fmt.Sprintf("block-%d", i)), NumItems: 1}))
	}
	require.Nil(t, q.Close())
	require.Greater(t, pool.NumSpilledBlocks(), int64(0))
	for i := 0; i < 10; i++ {
		b, ok, err := q.NextBlock()
		require.Nil(t, err)
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("block-%d", i), string(b.Data))
	}
	_, ok, err := q.NextBlock()
	require.False(t, ok)
	require.Nil(t, err)
}
