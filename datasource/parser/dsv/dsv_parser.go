// Package dsv parses delimiter-separated value DataSources such as CSV and TSV.
package dsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/go-sif/dataflow/datasource"
)

// ParserConf configures a DSV Parser
type ParserConf struct {
	KeyColumn    int    // The zero-based column holding each row's integer index. Defaults to 0.
	ValueColumns []int  // Columns joined (by Delimiter) to form each row's value. Defaults to every column other than KeyColumn.
	HeaderLines  int    // The number of lines to ignore from the beginning of each file. Defaults to 0.
	Delimiter    rune   // The delimiter separating columns in the file. Defaults to ,
	Comment      rune   // Lines beginning with the comment character are ignored. Cannot be equal to the Delimiter. Defaults to no comment character.
	NilValue     string // A special string which represents nil values in the dataset. Nil values are dropped from the row's value. Defaults to "" (the empty string).
}

// Parser produces Records from DSV data
type Parser struct {
	conf *ParserConf
}

// CreateParser returns a new DSV Parser
func CreateParser(conf *ParserConf) *Parser {
	if conf.Delimiter == 0 {
		conf.Delimiter = ','
	}
	return &Parser{conf: conf}
}

// Parse parses DSV data, passing one Record per row to emit
func (p *Parser) Parse(r io.Reader, emit func(datasource.Record) error) error {
	// start parsing by creating a reader
	reader := csv.NewReader(r)
	reader.Comma = p.conf.Delimiter
	reader.Comment = p.conf.Comment
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	// ignore header lines, if configured to do so
	for i := 0; i < p.conf.HeaderLines; i++ {
		_, err := reader.Read()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
	}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		rec, err := p.parseRow(row)
		if err != nil {
			line, _ := reader.FieldPos(0)
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
}

func (p *Parser) parseRow(row []string) (datasource.Record, error) {
	var rec datasource.Record
	if p.conf.KeyColumn < 0 || p.conf.KeyColumn >= len(row) {
		return rec, fmt.Errorf("row has %d columns, index column is %d", len(row), p.conf.KeyColumn)
	}
	idx, err := datasource.ParseIndex(row[p.conf.KeyColumn])
	if err != nil {
		return rec, err
	}
	rec.Key = idx
	var parts []string
	if len(p.conf.ValueColumns) == 0 {
		for i, v := range row {
			if i != p.conf.KeyColumn && v != p.conf.NilValue {
				parts = append(parts, v)
			}
		}
	} else {
		for _, c := range p.conf.ValueColumns {
			if c < 0 || c >= len(row) {
				return rec, fmt.Errorf("row has %d columns, value column is %d", len(row), c)
			}
			if row[c] != p.conf.NilValue {
				parts = append(parts, row[c])
			}
		}
	}
	rec.Value = strings.Join(parts, string(p.conf.Delimiter))
	return rec, nil
}
