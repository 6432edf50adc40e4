package testing

import (
	"context"
	"time"

	"github.com/go-sif/dataflow/cluster"
	"github.com/go-sif/dataflow/logging"
)

// LocalRunJob runs a Job on a localhost test cluster with a certain number of workers,
// returning each worker's result indexed by rank
func LocalRunJob[T any](ctx context.Context, job cluster.Job[T], opts *cluster.NodeOptions, numWorkers int) (result []T, err error) {
	// handle panics
	defer func() {
		if r := recover(); r != nil {
			if anErr, ok := r.(error); ok {
				err = anErr
			} else {
				panic(r)
			}
		}
	}()

	// configure workers
	opts = cluster.CloneNodeOptions(opts)
	opts.Host = "127.0.0.1"
	opts.Port = 0
	opts.RPCTimeout = time.Duration(5) * time.Second
	if opts.MemoryBudget == 0 {
		opts.MemoryBudget = 1024 * 1024
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	return cluster.RunLocal(ctx, opts, numWorkers, job)
}
