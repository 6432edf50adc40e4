package jsonl

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/go-sif/dataflow/datasource"
	"github.com/tidwall/gjson"
)

// ParserConf configures a JSONL Parser, suitable for JSON lines data
type ParserConf struct {
	KeyPath       string // gjson path of the integer index within each row. Required.
	ValuePath     string // gjson path of the value within each row. Defaults to the whole row.
	HeaderLines   int    // The number of lines to ignore from the beginning of each file. Defaults to 0.
	Comment       rune   // Lines beginning with the comment character are ignored. Defaults to no comment character.
	MaxBufferSize int    // Maximum size in bytes of the buffer used to read lines from the file
}

// Parser produces Records from JSONL data
type Parser struct {
	conf *ParserConf
}

// CreateParser returns a new JSONL Parser
func CreateParser(conf *ParserConf) *Parser {
	if conf.MaxBufferSize == 0 {
		conf.MaxBufferSize = bufio.MaxScanTokenSize
	}
	return &Parser{conf: conf}
}

// Parse parses JSONL data, passing one Record per row to emit
func (p *Parser) Parse(r io.Reader, emit func(datasource.Record) error) error {
	if p.conf.KeyPath == "" {
		return fmt.Errorf("jsonl parser requires a KeyPath")
	}
	// start parsing by creating a scanner
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), p.conf.MaxBufferSize)
	// ignore header lines, if configured to do so
	for i := 0; i < p.conf.HeaderLines; i++ {
		if !scanner.Scan() {
			return scanner.Err()
		}
	}
	line := p.conf.HeaderLines
	for scanner.Scan() {
		line++
		rowString := strings.TrimSpace(scanner.Text())
		if len(rowString) == 0 || (p.conf.Comment != 0 && strings.HasPrefix(rowString, string(p.conf.Comment))) {
			continue
		}
		rec, err := p.parseRow(rowString)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (p *Parser) parseRow(rowString string) (datasource.Record, error) {
	var rec datasource.Record
	if !gjson.Valid(rowString) {
		return rec, fmt.Errorf("invalid json")
	}
	row := gjson.Parse(rowString)
	key := row.Get(p.conf.KeyPath)
	if !key.Exists() {
		return rec, fmt.Errorf("missing index at %s", p.conf.KeyPath)
	}
	var keyText string
	switch key.Type {
	case gjson.Number:
		keyText = key.Raw
	case gjson.String:
		keyText = key.Str
	default:
		return rec, fmt.Errorf("index at %s has type %s", p.conf.KeyPath, key.Type)
	}
	idx, err := datasource.ParseIndex(keyText)
	if err != nil {
		return rec, err
	}
	rec.Key = idx
	if p.conf.ValuePath == "" {
		rec.Value = rowString
	} else {
		rec.Value = row.Get(p.conf.ValuePath).String()
	}
	return rec, nil
}
