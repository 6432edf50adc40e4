package cluster

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/go-sif/dataflow/api"
	inet "github.com/go-sif/dataflow/internal/net"
	"github.com/go-sif/dataflow/logging"
	uuid "github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
	"google.golang.org/grpc"
)

// Worker is a Node which serves its peers' Block streams over gRPC, and runs
// operators on an api.Context whose Channels reach those peers
type Worker struct {
	id            string
	opts          *NodeOptions
	logger        logging.Logger
	lifecycleLock sync.Mutex
	server        *grpc.Server
	transport     *inet.GRPCTransport
	dctx          *api.Context
	addr          string
	serveErr      chan error
}

// CreateWorker is a factory for Workers
func CreateWorker(opts *NodeOptions) (*Worker, error) {
	// default certain options if not supplied
	ensureDefaultNodeOptionsValues(opts)
	// generate worker ID
	id, err := uuid.NewV4()
	if err != nil {
		log.Fatalf("failed to generate UUID: %v", err)
	}
	return &Worker{
		id:     id.String(),
		opts:   opts,
		logger: opts.Logger.With("worker", id.String(), "rank", opts.Rank),
	}, nil
}

// ID returns the ID of this worker
func (w *Worker) ID() string {
	return w.id
}

// Rank returns the rank of this worker
func (w *Worker) Rank() int {
	return w.opts.Rank
}

// Addr returns the address this worker is serving on, once started
func (w *Worker) Addr() string {
	w.lifecycleLock.Lock()
	defer w.lifecycleLock.Unlock()
	return w.addr
}

// Context returns the execution Context of this worker, once started
func (w *Worker) Context() *api.Context {
	w.lifecycleLock.Lock()
	defer w.lifecycleLock.Unlock()
	return w.dctx
}

// Start binds to the configured address and begins serving peers in the background
func (w *Worker) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", w.opts.connectionString())
	if err != nil {
		return fmt.Errorf("failed to listen: %v", err)
	}
	return w.StartWithListener(ctx, lis)
}

// StartWithListener begins serving peers on an existing listener. ctx bounds the
// lifetime of this worker's outbound streams.
func (w *Worker) StartWithListener(ctx context.Context, lis net.Listener) error {
	w.lifecycleLock.Lock()
	defer w.lifecycleLock.Unlock()
	if w.server != nil {
		lis.Close()
		return fmt.Errorf("Worker %s has already been started", w.id)
	}
	transport, err := inet.NewGRPCTransport(inet.GRPCTransportConfig{
		Rank:            w.opts.Rank,
		Peers:           w.opts.Peers,
		SendWindowBytes: w.opts.SendWindowBytes,
		// peers may still be starting up
		DialOptions: []grpc.DialOption{grpc.WithDefaultCallOptions(grpc.WaitForReady(true))},
		Logger:      w.logger,
	})
	if err != nil {
		lis.Close()
		return err
	}
	dctx, err := api.NewContext(ctx, w.opts.Rank, len(w.opts.Peers), transport, w.opts.contextOptions())
	if err != nil {
		lis.Close()
		transport.Close()
		return err
	}
	w.transport = transport
	w.dctx = dctx
	w.addr = lis.Addr().String()
	w.server = grpc.NewServer()
	// register rpc handlers
	inet.NewBlockServer(dctx.Receiver(), w.logger).Register(w.server)
	w.serveErr = make(chan error, 1)
	w.logger.Info("starting worker", "address", w.addr, "peers", len(w.opts.Peers))
	go func(server *grpc.Server, serveErr chan<- error) {
		serveErr <- server.Serve(lis)
	}(w.server, w.serveErr)
	return nil
}

// GracefulStop the worker, waiting for inbound streams to finish
func (w *Worker) GracefulStop() error {
	return w.stop(func(s *grpc.Server) { s.GracefulStop() })
}

// Stop the worker immediately, failing any open streams
func (w *Worker) Stop() error {
	return w.stop(func(s *grpc.Server) { s.Stop() })
}

func (w *Worker) stop(stopServer func(s *grpc.Server)) error {
	w.lifecycleLock.Lock()
	defer w.lifecycleLock.Unlock()
	if w.server == nil {
		return nil
	}
	var errs *multierror.Error
	// closing outbound connections first aborts the streams our peers are reading
	if err := w.transport.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	stopServer(w.server)
	if err := <-w.serveErr; err != nil && err != grpc.ErrServerStopped {
		errs = multierror.Append(errs, fmt.Errorf("failed to serve: %v", err))
	}
	if err := w.dctx.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	w.server = nil
	w.logger.Info("stopped worker")
	return errs.ErrorOrNil()
}
