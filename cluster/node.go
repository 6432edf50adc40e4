package cluster

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sif/dataflow/api"
	"github.com/go-sif/dataflow/logging"
)

const (
	// RankEnvVar names the environment variable holding a worker's rank
	RankEnvVar = "DATAFLOW_WORKER_RANK"
	// PeersEnvVar names the environment variable holding the comma-separated addresses of all workers
	PeersEnvVar = "DATAFLOW_PEERS"
)

// Node is a member of a dataflow cluster. Every Node is a worker: there is no
// coordinator, since workers derive their roles from their ranks.
// Nodes present several methods to control their lifecycle.
type Node interface {
	ID() string
	Rank() int
	Start(ctx context.Context) error
	Context() *api.Context
	GracefulStop() error
	Stop() error
}

// NodeOptions are options for a Node, configuring elements of a dataflow cluster
type NodeOptions struct {
	Port            int            // port for this Node to bind to
	Host            string         // hostname for this Node to bind to
	Rank            int            // rank of this Node within the job
	Peers           []string       // [REQUIRED] address of every Node in the job (including this one), indexed by rank
	RPCTimeout      time.Duration  // how long to wait for a peer to become reachable
	TempDir         string         // location for storing temporary files (spilled blocks)
	MemoryBudget    int64          // bytes of records to retain in memory before spilling to disk
	BlockSize       int            // target size of transferred Blocks in bytes
	Compression     string         // codec for spilled Blocks ("lz4", "zstd" or "none")
	SendWindowBytes int64          // maximum bytes in flight to peers at once
	LogLevel        int            // minimum level of log messages, if Logger is not supplied
	Logger          logging.Logger // destination for log messages
}

// CloneNodeOptions makes a copy of a NodeOptions
func CloneNodeOptions(opts *NodeOptions) *NodeOptions {
	var peers []string
	if opts.Peers != nil {
		peers = make([]string, len(opts.Peers))
		copy(peers, opts.Peers)
	}
	return &NodeOptions{
		Port:            opts.Port,
		Host:            opts.Host,
		Rank:            opts.Rank,
		Peers:           peers,
		RPCTimeout:      opts.RPCTimeout,
		TempDir:         opts.TempDir,
		MemoryBudget:    opts.MemoryBudget,
		BlockSize:       opts.BlockSize,
		Compression:     opts.Compression,
		SendWindowBytes: opts.SendWindowBytes,
		LogLevel:        opts.LogLevel,
		Logger:          opts.Logger,
	}
}

func ensureDefaultNodeOptionsValues(opts *NodeOptions) {
	// crash if certain required options are not supplied
	if len(opts.Peers) == 0 {
		log.Fatal("NodeOptions.Peers must list the address of every worker")
	}
	if opts.Rank < 0 || opts.Rank >= len(opts.Peers) {
		log.Fatalf("NodeOptions.Rank must be within [0, %d)", len(opts.Peers))
	}
	// default certain options if not supplied
	if opts.Port == 0 {
		opts.Port = 1643
	}
	if len(opts.Host) == 0 {
		opts.Host = "0.0.0.0"
	}
	if opts.RPCTimeout == 0 {
		opts.RPCTimeout = time.Duration(5) * time.Second
	}
	if len(opts.TempDir) == 0 {
		opts.TempDir = os.TempDir()
	}
	if opts.MemoryBudget == 0 {
		opts.MemoryBudget = api.DefaultMemoryBudget
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewSlogLogger(opts.LogLevel)
	}
}

// connectionString returns the connection string for this node
func (o *NodeOptions) connectionString() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

// contextOptions derives the execution options of this node's Context
func (o *NodeOptions) contextOptions() *api.ContextOptions {
	return &api.ContextOptions{
		MemoryBudget: o.MemoryBudget,
		BlockSize:    o.BlockSize,
		TempDir:      o.TempDir,
		Compression:  o.Compression,
		Logger:       o.Logger,
	}
}

// CreateNode creates a worker Node, deriving its rank and peers from environment
// variables when they are set
func CreateNode(opts *NodeOptions) (Node, error) {
	opts = CloneNodeOptions(opts)
	if rank, ok := os.LookupEnv(RankEnvVar); ok {
		r, err := strconv.Atoi(rank)
		if err != nil {
			return nil, fmt.Errorf("$%s=\"%s\" is not a valid rank", RankEnvVar, rank)
		}
		opts.Rank = r
	}
	if peers, ok := os.LookupEnv(PeersEnvVar); ok && len(peers) > 0 {
		opts.Peers = strings.Split(peers, ",")
	}
	if len(opts.Peers) == 0 {
		return nil, fmt.Errorf("$%s is not set, and NodeOptions.Peers is empty", PeersEnvVar)
	}
	if opts.Rank < 0 || opts.Rank >= len(opts.Peers) {
		return nil, fmt.Errorf("Rank %d is outside of [0, %d)", opts.Rank, len(opts.Peers))
	}
	if opts.Port == 0 {
		if _, port, err := splitPort(opts.Peers[opts.Rank]); err == nil {
			opts.Port = port
		}
	}
	return CreateWorker(opts)
}

func splitPort(address string) (string, int, error) {
	idx := strings.LastIndex(address, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("%s has no port", address)
	}
	port, err := strconv.Atoi(address[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("%s has an invalid port: %w", address, err)
	}
	return address[:idx], port, nil
}
