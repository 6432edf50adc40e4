package jsonl

import (
	"strings"
	"testing"

	"github.com/go-sif/dataflow/datasource"
	"github.com/go-sif/dataflow/datasource/memory"
	"github.com/stretchr/testify/require"
)

func TestJSONLDatasourceParser(t *testing.T) {
	parser := CreateParser(&ParserConf{
		KeyPath:   "meta.index",
		ValuePath: "name",
	})
	data := [][]byte{
		[]byte("{\"name\": \"Sean\", \"meta\": { \"index\": 1, \"first\": \"Sean\", \"last\": \"McIntyre\"}}\n{\"name\": \"Chris\", \"meta\": { \"index\": 3, \"first\": \"Chris\", \"last\": \"Dickson\"}}"),
		[]byte("{\"name\": \"Phil\", \"meta\": { \"index\": \"2\", \"first\": \"Phil\", \"last\": \"Laliberté\"}}\n\n{\"name\": \"Fahd\", \"meta\": { \"index\": 4, \"first\": \"Fahd\", \"last\": \"Husain\"}}"),
	}
	records, err := memory.Create(data, parser).ReadAll()
	require.Nil(t, err)
	require.Equal(t, []datasource.Record{
		{Key: 1, Value: "Sean"},
		{Key: 3, Value: "Chris"},
		{Key: 2, Value: "Phil"},
		{Key: 4, Value: "Fahd"},
	}, records)
}

func TestJSONLWholeRowAndComments(t *testing.T) {
	parser := CreateParser(&ParserConf{
		KeyPath:     "i",
		HeaderLines: 1,
		Comment:     '#',
	})
	input := "header\n# skipped\n{\"i\": 7, \"v\": true}\n"
	var records []datasource.Record
	err := parser.Parse(strings.NewReader(input), func(r datasource.Record) error {
		records = append(records, r)
		return nil
	})
	require.Nil(t, err)
	require.Equal(t, []datasource.Record{{Key: 7, Value: "{\"i\": 7, \"v\": true}"}}, records)
}

func TestJSONLInvalidRows(t *testing.T) {
	parser := CreateParser(&ParserConf{KeyPath: "i"})
	cases := []string{
		"{\"j\": 1}",
		"{\"i\": -1}",
		"{\"i\": 1.5}",
		"{\"i\": [1]}",
		"{\"i\": 1",
	}
	for _, c := range cases {
		err := parser.Parse(strings.NewReader(c), func(datasource.Record) error { return nil })
		require.Error(t, err, c)
		require.Contains(t, err.Error(), "line 1")
	}
	err := CreateParser(&ParserConf{}).Parse(strings.NewReader("{}"), func(datasource.Record) error { return nil })
	require.Error(t, err)
}
