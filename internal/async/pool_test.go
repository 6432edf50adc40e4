package async

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-sif/dataflow/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestPoolRunsAllTasks(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := NewPool(4)
	var called int32
	for i := 0; i < 100; i++ {
		require.Nil(t, p.Enqueue(func() { atomic.AddInt32(&called, 1) }))
	}
	require.Nil(t, p.LoopUntilEmpty())
	require.Equal(t, int32(100), atomic.LoadInt32(&called))
	require.Nil(t, p.Close())
}

func TestPoolLoopUntilEmptyWaitsForRunningTask(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := NewPool(1)
	var done int32
	require.Nil(t, p.Enqueue(func() {
		time.Sleep(50 * time.Millisecond)
		atomic.StoreInt32(&done, 1)
	}))
	require.Nil(t, p.LoopUntilEmpty())
	require.Equal(t, int32(1), atomic.LoadInt32(&done))
	require.Nil(t, p.Close())
}

func TestPoolReentrantEnqueue(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := NewPool(2)
	var called int32
	var spawn func(depth int)
	spawn = func(depth int) {
		atomic.AddInt32(&called, 1)
		if depth == 0 {
			return
		}
		for i := 0; i < 2; i++ {
			if err := p.Enqueue(func() { spawn(depth - 1) }); err != nil {
				panic(err)
			}
		}
	}
	require.Nil(t, p.Enqueue(func() { spawn(5) }))
	require.Nil(t, p.LoopUntilEmpty())
	// a full binary tree of depth 5
	require.Equal(t, int32(63), atomic.LoadInt32(&called))
	require.Nil(t, p.Close())
}

func TestPoolSurfacesPanicsAfterQuiescence(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := NewPool(2)
	var called int32
	require.Nil(t, p.Enqueue(func() { panic(fmt.Errorf("task exploded")) }))
	for i := 0; i < 10; i++ {
		require.Nil(t, p.Enqueue(func() { atomic.AddInt32(&called, 1) }))
	}
	err := p.LoopUntilEmpty()
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "task exploded")
	require.Equal(t, int32(10), atomic.LoadInt32(&called))
	// errors are reported once
	require.Nil(t, p.LoopUntilEmpty())
	require.Nil(t, p.Close())
}

func TestPoolEnqueueAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := NewPool(1)
	require.Nil(t, p.Close())
	require.Equal(t, errors.PoolClosedError{}, p.Enqueue(func() {}))
}
