package cluster

import (
	"context"
	"fmt"
	"net"

	"github.com/go-sif/dataflow/api"
	"github.com/go-sif/dataflow/internal/util"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// Job is the code each worker runs against its execution Context
type Job[T any] func(ctx context.Context, dctx *api.Context) (T, error)

// RunLocal runs a Job on numWorkers Workers within this process, connected to one
// another over gRPC on opts.Host, returning each worker's result indexed by rank
func RunLocal[T any](ctx context.Context, opts *NodeOptions, numWorkers int, job Job[T]) ([]T, error) {
	if numWorkers < 1 {
		return nil, fmt.Errorf("numWorkers must be at least 1")
	}
	host := opts.Host
	if len(host) == 0 {
		host = "127.0.0.1"
	}
	listeners := make([]net.Listener, numWorkers)
	peers := make([]string, numWorkers)
	for rank := range listeners {
		lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, portFor(opts.Port, rank)))
		if err != nil {
			for _, l := range listeners[:rank] {
				l.Close()
			}
			return nil, fmt.Errorf("failed to listen: %v", err)
		}
		listeners[rank] = lis
		peers[rank] = lis.Addr().String()
	}

	workers := make([]*Worker, 0, numWorkers)
	stopAll := func() error {
		var errs *multierror.Error
		for _, w := range workers {
			if err := w.GracefulStop(); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		return errs.ErrorOrNil()
	}
	for rank, lis := range listeners {
		wopts := CloneNodeOptions(opts)
		wopts.Host = host
		wopts.Rank = rank
		wopts.Peers = peers
		w, err := CreateWorker(wopts)
		if err == nil {
			err = w.StartWithListener(ctx, lis)
		}
		if err != nil {
			for _, l := range listeners[rank+1:] {
				l.Close()
			}
			stopAll()
			return nil, err
		}
		workers = append(workers, w)
	}

	results := make([]T, numWorkers)
	g, gctx := errgroup.WithContext(ctx)
	for rank, w := range workers {
		rank, w := rank, w
		g.Go(func() error {
			var res T
			var jobErr error
			err := util.RecoverTask(func() {
				res, jobErr = job(gctx, w.Context())
			})
			if err == nil {
				err = jobErr
			}
			if err != nil {
				err = fmt.Errorf("Worker %d failed: %w", rank, err)
				// peers may be waiting on records this worker will never send
				for _, peer := range workers {
					peer.Context().Abort(err)
				}
				return err
			}
			results[rank] = res
			return nil
		})
	}
	err := g.Wait()
	if serr := stopAll(); err == nil && serr != nil {
		err = serr
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

// portFor assigns consecutive ports from base, or ephemeral ports when base is 0
func portFor(base int, rank int) int {
	if base == 0 {
		return 0
	}
	return base + rank
}
