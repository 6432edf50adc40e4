// Package memory provides a DataSource which parses chunks of in-memory data.
package memory

import (
	"bytes"
	"fmt"

	"github.com/go-sif/dataflow/datasource"
)

// DataSource is a set of byte chunks, each holding one or more rows
type DataSource struct {
	data   [][]byte
	parser datasource.Parser
}

// Create is a factory for DataSources
func Create(data [][]byte, parser datasource.Parser) *DataSource {
	return &DataSource{data: data, parser: parser}
}

// NumChunks returns the number of chunks in this DataSource
func (ms *DataSource) NumChunks() int {
	return len(ms.data)
}

// Read parses the chunks assigned to rank (dealt round-robin), passing each Record to emit
func (ms *DataSource) Read(rank int, numWorkers int, emit func(datasource.Record) error) error {
	if numWorkers <= 0 || rank < 0 || rank >= numWorkers {
		return fmt.Errorf("rank %d is not valid for %d workers", rank, numWorkers)
	}
	for i := rank; i < len(ms.data); i += numWorkers {
		if err := ms.parser.Parse(bytes.NewReader(ms.data[i]), emit); err != nil {
			return fmt.Errorf("parsing chunk %d: %w", i, err)
		}
	}
	return nil
}

// ReadAll parses every chunk, returning the Records in order
func (ms *DataSource) ReadAll() ([]datasource.Record, error) {
	var res []datasource.Record
	err := ms.Read(0, 1, func(r datasource.Record) error {
		res = append(res, r)
		return nil
	})
	return res, err
}
