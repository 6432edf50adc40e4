package net

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/go-sif/dataflow/errors"
	"github.com/go-sif/dataflow/internal/data"
	"github.com/go-sif/dataflow/logging"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// DefaultSendWindowBytes bounds the bytes a worker has in flight to all peers at once
const DefaultSendWindowBytes = 16 * 1024 * 1024

// GRPCTransportConfig configures a GRPCTransport
type GRPCTransportConfig struct {
	Rank            int               // rank of this worker
	Peers           []string          // address of every worker, indexed by rank
	SendWindowBytes int64             // maximum bytes in flight across all outbound streams
	DialOptions     []grpc.DialOption // extra options for peer connections
	Logger          logging.Logger
}

// GRPCTransport streams Blocks to peer workers' BlockServers. Connections are
// established lazily and shared by every stream to the same peer.
type GRPCTransport struct {
	conf   GRPCTransportConfig
	window *semaphore.Weighted
	logger logging.Logger
	lock   sync.Mutex
	conns  map[int]*grpc.ClientConn
	closed bool
}

// NewGRPCTransport creates a GRPCTransport
func NewGRPCTransport(conf GRPCTransportConfig) (*GRPCTransport, error) {
	if conf.Rank < 0 || conf.Rank >= len(conf.Peers) {
		return nil, fmt.Errorf("Rank %d is outside of [0, %d)", conf.Rank, len(conf.Peers))
	}
	if conf.SendWindowBytes <= 0 {
		conf.SendWindowBytes = DefaultSendWindowBytes
	}
	if conf.Logger == nil {
		conf.Logger = logging.NewNopLogger()
	}
	return &GRPCTransport{
		conf:   conf,
		window: semaphore.NewWeighted(conf.SendWindowBytes),
		logger: conf.Logger.With("rank", conf.Rank),
		conns:  make(map[int]*grpc.ClientConn),
	}, nil
}

func (t *GRPCTransport) connection(peer int) (*grpc.ClientConn, error) {
	if peer < 0 || peer >= len(t.conf.Peers) {
		return nil, errors.UnknownPeerError{Rank: peer}
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.closed {
		return nil, errors.ClosedError{Name: "Transport"}
	}
	if conn, ok := t.conns[peer]; ok {
		return conn, nil
	}
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, t.conf.DialOptions...)
	conn, err := grpc.NewClient(t.conf.Peers[peer], opts...)
	if err != nil {
		return nil, fmt.Errorf("fail to dial: %v", err)
	}
	t.logger.Debug("connected to peer", "peer", peer, "address", t.conf.Peers[peer])
	t.conns[peer] = conn
	return conn, nil
}

// OpenStream implements data.Transport
func (t *GRPCTransport) OpenStream(ctx context.Context, peer int, channelID uint64) (data.BlockStream, error) {
	conn, err := t.connection(peer)
	if err != nil {
		return nil, err
	}
	md := metadata.Pairs(
		channelMetadataKey, strconv.FormatUint(channelID, 10),
		senderMetadataKey, strconv.Itoa(t.conf.Rank),
	)
	sctx, cancel := context.WithCancel(metadata.NewOutgoingContext(ctx, md))
	stream, err := conn.NewStream(sctx, &blockServiceDesc.Streams[0], pushBlocksMethod)
	if err != nil {
		cancel()
		return nil, err
	}
	return &grpcStream{transport: t, ctx: sctx, cancel: cancel, stream: stream}, nil
}

// Close closes every peer connection
func (t *GRPCTransport) Close() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.closed = true
	var errs *multierror.Error
	for peer, conn := range t.conns {
		if err := conn.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("Unable to close connection to worker %d: %w", peer, err))
		}
	}
	t.conns = make(map[int]*grpc.ClientConn)
	return errs.ErrorOrNil()
}

type grpcStream struct {
	transport *GRPCTransport
	ctx       context.Context
	cancel    context.CancelFunc
	stream    grpc.ClientStream
	closed    bool
}

func (s *grpcStream) Send(b data.Block) error {
	if s.closed {
		return errors.ClosedError{Name: "BlockStream"}
	}
	frame := encodeFrame(b)
	weight := int64(len(frame))
	if weight > s.transport.conf.SendWindowBytes {
		weight = s.transport.conf.SendWindowBytes
	}
	if err := s.transport.window.Acquire(s.ctx, weight); err != nil {
		return err
	}
	defer s.transport.window.Release(weight)
	return s.stream.SendMsg(&wrapperspb.BytesValue{Value: frame})
}

// Close half-closes the stream, then waits for the peer to acknowledge every Block
func (s *grpcStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.cancel()
	if err := s.stream.CloseSend(); err != nil {
		return err
	}
	return s.stream.RecvMsg(new(emptypb.Empty))
}
