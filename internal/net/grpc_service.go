package net

import (
	"io"
	"strconv"

	"github.com/go-sif/dataflow/internal/data"
	"github.com/go-sif/dataflow/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	channelMetadataKey = "x-dataflow-channel"
	senderMetadataKey  = "x-dataflow-sender"
	pushBlocksMethod   = "/dataflow.BlockService/PushBlocks"
)

type blockService interface {
	pushBlocks(stream grpc.ServerStream) error
}

// blockServiceDesc describes a service with a single client-streaming method,
// PushBlocks(stream BytesValue) returns (Empty). Each stream carries the Blocks of
// one sender on one Channel, identified by request metadata.
var blockServiceDesc = grpc.ServiceDesc{
	ServiceName: "dataflow.BlockService",
	HandlerType: (*blockService)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "PushBlocks",
			Handler:       pushBlocksHandler,
			ClientStreams: true,
		},
	},
	Metadata: "dataflow/block_service",
}

func pushBlocksHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(blockService).pushBlocks(stream)
}

// BlockServer receives Block streams from peer workers and hands them to a Receiver
type BlockServer struct {
	receiver data.Receiver
	logger   logging.Logger
}

// NewBlockServer creates a BlockServer which delivers inbound Blocks to receiver
func NewBlockServer(receiver data.Receiver, logger logging.Logger) *BlockServer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &BlockServer{receiver: receiver, logger: logger}
}

// Register adds this BlockServer's service to a grpc.Server
func (s *BlockServer) Register(server *grpc.Server) {
	server.RegisterService(&blockServiceDesc, s)
}

func (s *BlockServer) pushBlocks(stream grpc.ServerStream) error {
	channelID, sender, err := parseStreamMetadata(stream)
	if err != nil {
		return err
	}
	for {
		msg := new(wrapperspb.BytesValue)
		err := stream.RecvMsg(msg)
		if err == io.EOF {
			if err := s.receiver.CloseInbound(channelID, sender); err != nil {
				return status.Errorf(codes.FailedPrecondition, "Unable to close channel %d: %v", channelID, err)
			}
			return stream.SendMsg(&emptypb.Empty{})
		} else if err != nil {
			s.logger.Warn("block stream failed", "channel", channelID, "sender", sender, "error", err)
			s.receiver.AbortInbound(channelID, sender, err)
			return err
		}
		b, err := decodeFrame(msg.GetValue())
		if err == nil {
			err = s.receiver.Deliver(channelID, sender, b)
		}
		if err != nil {
			s.receiver.AbortInbound(channelID, sender, err)
			return status.Errorf(codes.InvalidArgument, "Unable to deliver block on channel %d: %v", channelID, err)
		}
	}
}

func parseStreamMetadata(stream grpc.ServerStream) (uint64, int, error) {
	md, ok := metadata.FromIncomingContext(stream.Context())
	if !ok {
		return 0, 0, status.Error(codes.InvalidArgument, "Block stream is missing metadata")
	}
	channels := md.Get(channelMetadataKey)
	senders := md.Get(senderMetadataKey)
	if len(channels) != 1 || len(senders) != 1 {
		return 0, 0, status.Error(codes.InvalidArgument, "Block stream must name exactly one channel and sender")
	}
	channelID, err := strconv.ParseUint(channels[0], 10, 64)
	if err != nil {
		return 0, 0, status.Errorf(codes.InvalidArgument, "Invalid channel id %q", channels[0])
	}
	sender, err := strconv.Atoi(senders[0])
	if err != nil {
		return 0, 0, status.Errorf(codes.InvalidArgument, "Invalid sender %q", senders[0])
	}
	return channelID, sender, nil
}
