// Package jsonl parses JSON Lines DataSources. This parser uses https://github.com/tidwall/gjson to process data,
// and locates the index and value of each row using gjson paths.
package jsonl
