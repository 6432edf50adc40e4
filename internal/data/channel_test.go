package data

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-sif/dataflow/errors"
	"github.com/go-sif/dataflow/serializers"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// directTransport hands Blocks straight to a peer's Multiplexer
type directTransport struct {
	rank  int
	peers []Receiver
}

func (t *directTransport) OpenStream(ctx context.Context, peer int, channelID uint64) (BlockStream, error) {
	if peer < 0 || peer >= len(t.peers) {
		return nil, errors.UnknownPeerError{Rank: peer}
	}
	return &directStream{to: t.peers[peer], from: t.rank, channelID: channelID}, nil
}

type directStream struct {
	to        Receiver
	from      int
	channelID uint64
}

func (s *directStream) Send(b Block) error {
	data := make([]byte, len(b.Data))
	copy(data, b.Data)
	return s.to.Deliver(s.channelID, s.from, Block{Data: data, NumItems: b.NumItems})
}

func (s *directStream) Close() error {
	return s.to.CloseInbound(s.channelID, s.from)
}

func newTestGroup(t *testing.T, numWorkers int, memoryLimit int64) []*Multiplexer {
	receivers := make([]Receiver, numWorkers)
	muxes := make([]*Multiplexer, numWorkers)
	for rank := range muxes {
		pool, err := NewBlockPool(BlockPoolConfig{MemoryLimit: memoryLimit, TempDir: t.TempDir()})
		require.Nil(t, err)
		mux, err := NewMultiplexer(MultiplexerConfig{
			Rank:       rank,
			NumWorkers: numWorkers,
			Transport:  &directTransport{rank: rank, peers: receivers},
			Pool:       pool,
			BlockSize:  128,
		})
		require.Nil(t, err)
		muxes[rank] = mux
		receivers[rank] = mux
	}
	t.Cleanup(func() {
		for _, mux := range muxes {
			mux.Close()
			mux.Pool().Close()
		}
	})
	return muxes
}

// sendAll has every worker send n values, routing value i to worker i % numWorkers.
// Values are encoded as sender*1000000 + i.
func sendAll(t *testing.T, channels []*Channel, n int) {
	for rank, c := range channels {
		bws, err := c.OpenWriters(context.Background())
		require.Nil(t, err)
		writers := make([]*Writer[uint64], len(bws))
		for i, bw := range bws {
			writers[i] = NewWriter(bw, serializers.Uint64())
		}
		for i := 0; i < n; i++ {
			require.Nil(t, writers[i%len(writers)].Put(uint64(rank*1000000+i)))
		}
		for _, w := range writers {
			require.Nil(t, w.Close())
		}
	}
}

func readChannel(t *testing.T, c *Channel, consume bool) []uint64 {
	r := NewReader(c.OpenConcatReader(consume), serializers.Uint64())
	res := make([]uint64, 0)
	for r.HasNext() {
		v, err := r.Next()
		require.Nil(t, err)
		res = append(res, v)
	}
	require.Nil(t, r.Err())
	return res
}

func TestChannelConservesRecords(t *testing.T) {
	for _, numWorkers := range []int{1, 2, 3} {
		muxes := newTestGroup(t, numWorkers, 512)
		channels := make([]*Channel, numWorkers)
		for rank, mux := range muxes {
			channels[rank] = mux.GetNewChannel()
			require.EqualValues(t, 0, channels[rank].ID())
		}
		sendAll(t, channels, 1000)

		total := 0
		for rank, c := range channels {
			received := readChannel(t, c, true)
			// senders are drained in rank order, and each sender writes in ascending order
			require.True(t, sort.SliceIsSorted(received, func(i, j int) bool { return received[i] < received[j] }))
			for _, v := range received {
				require.Equal(t, rank, int(v%1000000)%numWorkers)
			}
			total += len(received)
		}
		require.Equal(t, 1000*numWorkers, total)
	}
}

func TestChannelConcurrentWorkers(t *testing.T) {
	defer goleak.VerifyNone(t)
	numWorkers := 4
	muxes := newTestGroup(t, numWorkers, 1<<20)
	var wg sync.WaitGroup
	counts := make([]int, numWorkers)
	errs := make([]error, numWorkers)
	for rank, mux := range muxes {
		wg.Add(1)
		go func(rank int, mux *Multiplexer) {
			defer wg.Done()
			c := mux.GetNewChannel()
			bws, err := c.OpenWriters(context.Background())
			if err != nil {
				errs[rank] = err
				return
			}
			for i := 0; i < 500; i++ {
				w := NewWriter(bws[i%numWorkers], serializers.Uint64())
				if err := w.Put(uint64(i)); err != nil {
					errs[rank] = err
					return
				}
			}
			for _, bw := range bws {
				bw.Close()
			}
			r := NewReader(c.OpenConcatReader(true), serializers.Uint64())
			for r.HasNext() {
				if _, err := r.Next(); err != nil {
					errs[rank] = err
					return
				}
				counts[rank]++
			}
			errs[rank] = r.Err()
		}(rank, mux)
	}
	wg.Wait()
	for rank := range muxes {
		require.Nil(t, errs[rank])
		require.Equal(t, 500, counts[rank])
	}
	for _, mux := range muxes {
		require.Nil(t, mux.Close())
	}
}

func TestChannelOnCloseFiresOnce(t *testing.T) {
	muxes := newTestGroup(t, 2, 1<<20)
	channels := []*Channel{muxes[0].GetNewChannel(), muxes[1].GetNewChannel()}
	var fired atomic.Int32
	channels[0].OnClose(func() { fired.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := channels[0].WaitClosed(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, channels[0].IsClosed())

	sendAll(t, channels, 10)
	snapshot, err := channels[0].WaitClosed(context.Background())
	require.Nil(t, err)
	require.True(t, channels[0].IsClosed())
	require.EqualValues(t, 10, snapshot.ItemsSent)
	require.EqualValues(t, 10, snapshot.ItemsReceived)

	// registered after close, so it is dispatched immediately
	channels[0].OnClose(func() { fired.Add(1) })
	require.Nil(t, muxes[0].WaitCallbacks())
	require.EqualValues(t, 2, fired.Load())
}

func TestChannelNonConsumingReread(t *testing.T) {
	muxes := newTestGroup(t, 2, 256)
	channels := []*Channel{muxes[0].GetNewChannel(), muxes[1].GetNewChannel()}
	sendAll(t, channels, 200)

	first := readChannel(t, channels[1], false)
	require.Len(t, first, 200)
	require.Equal(t, first, readChannel(t, channels[1], false))
	require.Equal(t, first, readChannel(t, channels[1], true))

	r := channels[1].OpenConcatReader(true)
	require.False(t, r.HasNext())
	require.ErrorAs(t, r.Err(), &errors.ConsumedError{})
}

func TestChannelWritersOpenOnce(t *testing.T) {
	muxes := newTestGroup(t, 1, 1<<20)
	c := muxes[0].GetNewChannel()
	_, err := c.OpenWriters(context.Background())
	require.Nil(t, err)
	_, err = c.OpenWriters(context.Background())
	require.NotNil(t, err)
}

func TestEarlyDeliveryIsBuffered(t *testing.T) {
	muxes := newTestGroup(t, 2, 1<<20)
	buf, err := serializers.Uint64().Append(nil, 42)
	require.Nil(t, err)
	require.Nil(t, muxes[0].Deliver(0, 1, Block{Data: buf, NumItems: 1}))
	require.Nil(t, muxes[0].CloseInbound(0, 1))

	c := muxes[0].GetNewChannel()
	require.EqualValues(t, 0, c.ID())
	bws, err := c.OpenWriters(context.Background())
	require.Nil(t, err)
	for _, bw := range bws {
		require.Nil(t, bw.Close())
	}
	require.Equal(t, []uint64{42}, readChannel(t, c, true))
}

func TestReleasedChannelRejectsDeliveries(t *testing.T) {
	muxes := newTestGroup(t, 1, 1<<20)
	c := muxes[0].GetNewChannel()
	muxes[0].Release(c.ID())
	require.NotNil(t, muxes[0].Deliver(c.ID(), 0, Block{Data: []byte{1}, NumItems: 1}))
	_, err := muxes[0].GetOrCreateChannel(c.ID())
	require.NotNil(t, err)
	require.EqualValues(t, 1, muxes[0].GetNewChannel().ID())
}

func TestAbortedInboundFailsReader(t *testing.T) {
	muxes := newTestGroup(t, 2, 1<<20)
	c := muxes[0].GetNewChannel()
	muxes[0].AbortInbound(0, 0, context.Canceled)
	r := c.OpenConcatReader(true)
	require.False(t, r.HasNext())
	require.ErrorIs(t, r.Err(), context.Canceled)
}

func TestMultiplexerValidatesConfig(t *testing.T) {
	pool, err := NewBlockPool(BlockPoolConfig{MemoryLimit: 1})
	require.Nil(t, err)
	defer pool.Close()
	_, err = NewMultiplexer(MultiplexerConfig{Rank: 0, NumWorkers: 0, Pool: pool})
	require.NotNil(t, err)
	_, err = NewMultiplexer(MultiplexerConfig{Rank: 2, NumWorkers: 2, Pool: pool})
	require.NotNil(t, err)
	_, err = NewMultiplexer(MultiplexerConfig{Rank: 0, NumWorkers: 2, Pool: pool})
	require.NotNil(t, err)
	_, err = NewMultiplexer(MultiplexerConfig{Rank: 0, NumWorkers: 1})
	require.NotNil(t, err)
	mux, err := NewMultiplexer(MultiplexerConfig{Rank: 0, NumWorkers: 1, Pool: pool})
	require.Nil(t, err)
	require.Equal(t, DefaultBlockSize, mux.BlockSize())
	require.Nil(t, mux.Close())
}

func TestMultiplexerAbort(t *testing.T) {
	muxes := newTestGroup(t, 2, 1<<20)
	before := muxes[0].GetNewChannel()
	failure := fmt.Errorf("peer failed")
	muxes[0].Abort(failure)
	after := muxes[0].GetNewChannel()
	for _, c := range []*Channel{before, after} {
		r := c.OpenConcatReader(true)
		require.False(t, r.HasNext())
		require.ErrorIs(t, r.Err(), failure)
	}
}

func TestAbortedChannelReportsFailureOnClose(t *testing.T) {
	muxes := newTestGroup(t, 2, 1<<20)
	c := muxes[0].GetNewChannel()
	muxes[1].GetNewChannel()
	var fired atomic.Int32
	c.OnClose(func() { fired.Add(1) })

	failure := fmt.Errorf("peer failed")
	muxes[0].AbortInbound(c.ID(), 1, failure)
	writers, err := c.OpenWriters(context.Background())
	require.Nil(t, err)
	for _, w := range writers {
		w.Close()
	}

	_, err = c.WaitClosed(context.Background())
	require.ErrorIs(t, err, failure)
	require.True(t, c.IsClosed())
	c.OnClose(func() { fired.Add(1) })
	require.Nil(t, muxes[0].WaitCallbacks())
	require.EqualValues(t, 0, fired.Load())
}
