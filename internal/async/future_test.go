package async

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-sif/dataflow/errors"
	"github.com/stretchr/testify/require"
)

func TestFutureGetReturnsCorrectValue(t *testing.T) {
	pool := NewPool(2)
	defer pool.Close()
	f := NewFuture[int]()
	var result int
	require.Nil(t, pool.Enqueue(func() {
		result = f.Wait()
	}))
	require.Nil(t, pool.Enqueue(func() {
		if err := f.Callback(42); err != nil {
			panic(err)
		}
	}))
	require.Nil(t, pool.LoopUntilEmpty())
	require.Equal(t, 42, result)
}

func TestFutureIsFinishedIsSetAfterWait(t *testing.T) {
	pool := NewPool(2)
	defer pool.Close()
	f := NewFuture[int]()
	var result int
	var before, afterCallback, afterWait bool
	require.Nil(t, pool.Enqueue(func() {
		time.Sleep(100 * time.Millisecond)
		result = f.Wait()
	}))
	require.Nil(t, pool.Enqueue(func() {
		before = f.IsFinished()
		if err := f.Callback(42); err != nil {
			panic(err)
		}
		// the consumer is still asleep, so nobody has taken the value yet
		time.Sleep(10 * time.Nanosecond)
		afterCallback = f.IsFinished()
		time.Sleep(200 * time.Millisecond)
		afterWait = f.IsFinished()
	}))
	require.Nil(t, pool.LoopUntilEmpty())
	require.Equal(t, 42, result)
	require.False(t, before)
	require.False(t, afterCallback)
	require.True(t, afterWait)
}

func TestFutureSecondCallbackFails(t *testing.T) {
	f := NewFuture[string]()
	require.False(t, f.IsFulfilled())
	require.Nil(t, f.Callback("first"))
	require.True(t, f.IsFulfilled())
	err := f.Callback("second")
	require.Equal(t, errors.FutureAlreadyFulfilledError{}, err)
	require.Equal(t, "first", f.Wait())
}

func TestFutureWaitContext(t *testing.T) {
	f := NewFuture[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.WaitContext(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, f.IsFinished())

	require.Nil(t, f.Callback(7))
	v, err := f.WaitContext(context.Background())
	require.Nil(t, err)
	require.Equal(t, 7, v)
	require.True(t, f.IsFinished())
}

func TestManyFuturesConcurrently(t *testing.T) {
	const n = 50
	futures := make([]*Future[int], n)
	for i := range futures {
		futures[i] = NewFuture[int]()
	}
	var wg sync.WaitGroup
	results := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			results[i] = futures[i].Wait()
		}(i)
		go func(i int) {
			defer wg.Done()
			errs[i] = futures[i].Callback(i * i)
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		require.Nil(t, errs[i])
		require.Equal(t, i*i, results[i])
	}
}
