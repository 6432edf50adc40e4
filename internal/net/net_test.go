package net

import (
	"context"
	stdnet "net"
	"testing"

	"github.com/go-sif/dataflow/errors"
	"github.com/go-sif/dataflow/internal/data"
	"github.com/go-sif/dataflow/serializers"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
)

func newMultiplexer(t *testing.T, rank int, numWorkers int, transport data.Transport) *data.Multiplexer {
	pool, err := data.NewBlockPool(data.BlockPoolConfig{MemoryLimit: 4096, TempDir: t.TempDir()})
	require.Nil(t, err)
	mux, err := data.NewMultiplexer(data.MultiplexerConfig{
		Rank:       rank,
		NumWorkers: numWorkers,
		Transport:  transport,
		Pool:       pool,
		BlockSize:  256,
	})
	require.Nil(t, err)
	return mux
}

// exchange has every worker send n values to every worker, then read its inbound records
func exchange(t *testing.T, muxes []*data.Multiplexer, n int) [][]uint64 {
	type result struct {
		rank   int
		values []uint64
		err    error
	}
	results := make(chan result, len(muxes))
	for rank, mux := range muxes {
		go func(rank int, mux *data.Multiplexer) {
			res := result{rank: rank}
			defer func() { results <- res }()
			c := mux.GetNewChannel()
			bws, err := c.OpenWriters(context.Background())
			if err != nil {
				res.err = err
				return
			}
			for _, bw := range bws {
				w := data.NewWriter(bw, serializers.Uint64())
				for i := 0; i < n; i++ {
					if res.err = w.Put(uint64(rank*n + i)); res.err != nil {
						return
					}
				}
				if res.err = w.Close(); res.err != nil {
					return
				}
			}
			r := data.NewReader(c.OpenConcatReader(true), serializers.Uint64())
			for r.HasNext() {
				v, err := r.Next()
				if err != nil {
					res.err = err
					return
				}
				res.values = append(res.values, v)
			}
			res.err = r.Err()
		}(rank, mux)
	}
	out := make([][]uint64, len(muxes))
	for range muxes {
		res := <-results
		require.Nil(t, res.err)
		out[res.rank] = res.values
	}
	return out
}

func expectedExchange(numWorkers int, n int) []uint64 {
	expected := make([]uint64, 0, numWorkers*n)
	for i := 0; i < numWorkers*n; i++ {
		expected = append(expected, uint64(i))
	}
	return expected
}

func TestMockGroup(t *testing.T) {
	defer goleak.VerifyNone(t)
	numWorkers := 3
	group := NewMockGroup(numWorkers)
	require.Equal(t, numWorkers, group.NumWorkers())
	muxes := make([]*data.Multiplexer, numWorkers)
	for rank := range muxes {
		muxes[rank] = newMultiplexer(t, rank, numWorkers, group.Transport(rank))
		group.Attach(rank, muxes[rank])
	}
	for _, values := range exchange(t, muxes, 500) {
		require.Equal(t, expectedExchange(numWorkers, 500), values)
	}
	for _, mux := range muxes {
		require.Nil(t, mux.Close())
		require.Nil(t, mux.Pool().Close())
	}
}

func TestMockGroupUnknownPeer(t *testing.T) {
	group := NewMockGroup(2)
	_, err := group.Transport(0).OpenStream(context.Background(), 1, 0)
	require.NotNil(t, err)
	_, err = group.Transport(0).OpenStream(context.Background(), 5, 0)
	require.ErrorAs(t, err, &errors.UnknownPeerError{})
}

func TestFrameRoundTrip(t *testing.T) {
	b, err := decodeFrame(encodeFrame(data.Block{Data: []byte("abc"), NumItems: 300}))
	require.Nil(t, err)
	require.Equal(t, 300, b.NumItems)
	require.Equal(t, []byte("abc"), b.Data)
	_, err = decodeFrame(nil)
	require.NotNil(t, err)
}

func TestGRPCTransport(t *testing.T) {
	numWorkers := 2
	listeners := make([]stdnet.Listener, numWorkers)
	peers := make([]string, numWorkers)
	for rank := range listeners {
		lis, err := stdnet.Listen("tcp", "127.0.0.1:0")
		require.Nil(t, err)
		listeners[rank] = lis
		peers[rank] = lis.Addr().String()
	}
	muxes := make([]*data.Multiplexer, numWorkers)
	transports := make([]*GRPCTransport, numWorkers)
	servers := make([]*grpc.Server, numWorkers)
	for rank := range muxes {
		transport, err := NewGRPCTransport(GRPCTransportConfig{Rank: rank, Peers: peers, SendWindowBytes: 1024})
		require.Nil(t, err)
		transports[rank] = transport
		muxes[rank] = newMultiplexer(t, rank, numWorkers, transport)
		servers[rank] = grpc.NewServer()
		NewBlockServer(muxes[rank], nil).Register(servers[rank])
		go servers[rank].Serve(listeners[rank])
	}
	defer func() {
		for rank := range muxes {
			servers[rank].Stop()
			require.Nil(t, transports[rank].Close())
			require.Nil(t, muxes[rank].Close())
			require.Nil(t, muxes[rank].Pool().Close())
		}
	}()
	for _, values := range exchange(t, muxes, 2000) {
		require.Equal(t, expectedExchange(numWorkers, 2000), values)
	}
}

func TestGRPCTransportValidatesRank(t *testing.T) {
	_, err := NewGRPCTransport(GRPCTransportConfig{Rank: 1, Peers: []string{"localhost:1"}})
	require.NotNil(t, err)
	transport, err := NewGRPCTransport(GRPCTransportConfig{Rank: 0, Peers: []string{"localhost:1"}})
	require.Nil(t, err)
	_, err = transport.OpenStream(context.Background(), 3, 0)
	require.ErrorAs(t, err, &errors.UnknownPeerError{})
	require.Nil(t, transport.Close())
}
