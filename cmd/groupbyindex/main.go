// Command groupbyindex groups delimited or JSON lines records by a dense integer
// index field, writing one JSON summary per index in [0, keys).
//
// Without $DATAFLOW_PEERS, every worker runs within this process. With it, this
// process is the worker whose rank is $DATAFLOW_WORKER_RANK, and writes only the
// summaries for its own share of the index range.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-sif/dataflow/api"
	"github.com/go-sif/dataflow/cluster"
	"github.com/go-sif/dataflow/datasource"
	"github.com/go-sif/dataflow/datasource/file"
	"github.com/go-sif/dataflow/datasource/parser/dsv"
	"github.com/go-sif/dataflow/datasource/parser/jsonl"
	"github.com/go-sif/dataflow/logging"
	jsoniter "github.com/json-iterator/go"
)

type config struct {
	input       string
	format      string
	keyPath     string
	valuePath   string
	keyColumn   int
	valueColumn int
	headerLines int
	numberKeys  uint64
	workers     int
	port        int
	memory      int64
	compression string
	tempDir     string
	logLevel    string
	output      string
	combine     bool
	tableItems  int
}

func parseFlags(args []string) (*config, error) {
	conf := &config{}
	fs := flag.NewFlagSet("groupbyindex", flag.ContinueOnError)
	fs.StringVar(&conf.input, "input", "", "glob of input files (required)")
	fs.StringVar(&conf.format, "format", "jsonl", "input format: jsonl or csv")
	fs.StringVar(&conf.keyPath, "key", "index", "gjson path of the index field (jsonl)")
	fs.StringVar(&conf.valuePath, "value", "", "gjson path of the value field (jsonl); defaults to the whole row")
	fs.IntVar(&conf.keyColumn, "key-column", 0, "column of the index field (csv)")
	fs.IntVar(&conf.valueColumn, "value-column", -1, "column of the value field (csv); defaults to all other columns")
	fs.IntVar(&conf.headerLines, "header-lines", 0, "lines to skip at the start of each file")
	fs.Uint64Var(&conf.numberKeys, "keys", 0, "number of indices; every index must lie in [0, keys) (required)")
	fs.IntVar(&conf.workers, "workers", 1, "number of in-process workers, when $"+cluster.PeersEnvVar+" is not set")
	fs.IntVar(&conf.port, "port", 0, "first port for in-process workers (0 picks free ports)")
	fs.Int64Var(&conf.memory, "memory", api.DefaultMemoryBudget, "per-worker memory budget in bytes")
	fs.StringVar(&conf.compression, "compression", "lz4", "codec for spilled blocks: lz4, zstd or none")
	fs.StringVar(&conf.tempDir, "temp-dir", "", "directory for spilled blocks")
	fs.StringVar(&conf.logLevel, "log-level", "info", "minimum log level")
	fs.StringVar(&conf.output, "output", "", "output file; defaults to stdout")
	fs.BoolVar(&conf.combine, "combine", true, "pre-aggregate each worker's records per index before shuffling")
	fs.IntVar(&conf.tableItems, "combine-items", 1<<20, "distinct indices held per pre-aggregation partition before it is flushed")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if len(conf.input) == 0 {
		return nil, fmt.Errorf("-input is required")
	}
	if conf.numberKeys == 0 {
		return nil, fmt.Errorf("-keys must be positive")
	}
	return conf, nil
}

func (c *config) parser() (datasource.Parser, error) {
	switch strings.ToLower(c.format) {
	case "jsonl", "json":
		return jsonl.CreateParser(&jsonl.ParserConf{
			KeyPath:     c.keyPath,
			ValuePath:   c.valuePath,
			HeaderLines: c.headerLines,
		}), nil
	case "csv":
		conf := &dsv.ParserConf{KeyColumn: c.keyColumn, HeaderLines: c.headerLines}
		if c.valueColumn >= 0 {
			conf.ValueColumns = []int{c.valueColumn}
		}
		return dsv.CreateParser(conf), nil
	case "tsv":
		conf := &dsv.ParserConf{KeyColumn: c.keyColumn, HeaderLines: c.headerLines, Delimiter: '\t'}
		if c.valueColumn >= 0 {
			conf.ValueColumns = []int{c.valueColumn}
		}
		return dsv.CreateParser(conf), nil
	default:
		return nil, fmt.Errorf("unknown format %s", c.format)
	}
}

func (c *config) nodeOptions() *cluster.NodeOptions {
	level := logging.LevelFromString(c.logLevel)
	return &cluster.NodeOptions{
		Port:         c.port,
		MemoryBudget: c.memory,
		Compression:  c.compression,
		TempDir:      c.tempDir,
		LogLevel:     level,
		Logger:       logging.NewSlogLoggerTo(os.Stderr, level),
	}
}

func writeSummaries(w io.Writer, results [][]Summary) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	for _, part := range results {
		for _, s := range part {
			if err := enc.Encode(s); err != nil {
				return err
			}
		}
	}
	return nil
}

func run(ctx context.Context, conf *config) (results [][]Summary, err error) {
	parser, err := conf.parser()
	if err != nil {
		return nil, err
	}
	source := file.Create(conf.input, parser)
	job := groupJob(source.Read, conf.numberKeys)
	if conf.combine {
		job = combineJob(source.Read, conf.numberKeys, conf.tableItems)
	}
	opts := conf.nodeOptions()

	if _, ok := os.LookupEnv(cluster.PeersEnvVar); !ok {
		return cluster.RunLocal(ctx, opts, conf.workers, job)
	}
	opts.Port = 0
	node, err := cluster.CreateNode(opts)
	if err != nil {
		return nil, err
	}
	if err := node.Start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if serr := node.GracefulStop(); err == nil {
			err = serr
		}
	}()
	res, err := job(ctx, node.Context())
	if err != nil {
		node.Context().Abort(err)
		return nil, err
	}
	return [][]Summary{res}, nil
}

func main() {
	conf, err := parseFlags(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatal(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	results, err := run(ctx, conf)
	if err != nil {
		log.Fatal(err)
	}
	out := io.Writer(os.Stdout)
	if len(conf.output) > 0 {
		f, err := os.Create(conf.output)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		out = f
	}
	if err := writeSummaries(out, results); err != nil {
		log.Fatal(err)
	}
}
