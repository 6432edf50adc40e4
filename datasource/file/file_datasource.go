package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-sif/dataflow/datasource"
)

// DataSource is a set of files matched by a glob
type DataSource struct {
	glob   string
	parser datasource.Parser
}

// Create is a factory for DataSources
func Create(glob string, parser datasource.Parser) *DataSource {
	return &DataSource{glob: glob, parser: parser}
}

// Analyze returns the sorted list of files matched by this DataSource's glob
func (fs *DataSource) Analyze() ([]string, error) {
	matches, err := filepath.Glob(fs.glob)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("glob %s produced 0 files", fs.glob)
	}
	sort.Strings(matches)
	return matches, nil
}

// Assigned returns the files which the worker with the given rank should read.
// Files are dealt round-robin across workers.
func (fs *DataSource) Assigned(rank int, numWorkers int) ([]string, error) {
	if numWorkers <= 0 || rank < 0 || rank >= numWorkers {
		return nil, fmt.Errorf("rank %d is not valid for %d workers", rank, numWorkers)
	}
	files, err := fs.Analyze()
	if err != nil {
		return nil, err
	}
	var toRead []string
	for i := rank; i < len(files); i += numWorkers {
		toRead = append(toRead, files[i])
	}
	return toRead, nil
}

// Read parses every file assigned to rank, passing each Record to emit
func (fs *DataSource) Read(ctx context.Context, rank int, numWorkers int, emit func(datasource.Record) error) error {
	files, err := fs.Assigned(rank, numWorkers)
	if err != nil {
		return err
	}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fs.readFile(path, emit); err != nil {
			return err
		}
	}
	return nil
}

func (fs *DataSource) readFile(path string, emit func(datasource.Record) error) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := fs.parser.Parse(f, emit); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
