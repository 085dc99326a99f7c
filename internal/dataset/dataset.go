// Package dataset parses uploaded files into tabular form ahead of type
// inference. Cells stay strings here; classification happens downstream.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pietrodileo/iris-tool-and-data-manager/internal/schema"
)

var (
	ErrEmptyDataset     = errors.New("dataset: no rows")
	ErrMissingHeader    = errors.New("dataset: header row is required")
	ErrUnsupportedShape = errors.New("dataset: unsupported document shape")
)

// Dataset is a fully materialized tabular upload. Rows are positional and
// aligned with Columns.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// SampleColumns pivots the dataset into per-column sample slices for the
// schema inferencer, sampling at most limit rows (zero means all).
func (d Dataset) SampleColumns(limit int) []schema.SampleColumn {
	rows := d.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	columns := make([]schema.SampleColumn, len(d.Columns))
	for i, name := range d.Columns {
		samples := make([]string, 0, len(rows))
		for _, row := range rows {
			if i < len(row) {
				samples = append(samples, row[i])
			}
		}
		columns[i] = schema.SampleColumn{Name: name, Samples: samples}
	}
	return columns
}

// ParseCSV reads a comma-separated upload. The first record is the header
// and every data record must match its width.
func ParseCSV(r io.Reader) (Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return Dataset{}, ErrMissingHeader
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("read csv header: %w", err)
	}

	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = schema.SanitizeName(name)
	}

	rows := make([][]string, 0)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Dataset{}, fmt.Errorf("read csv row %d: %w", len(rows)+2, err)
		}
		rows = append(rows, record)
	}
	if len(rows) == 0 {
		return Dataset{}, ErrEmptyDataset
	}

	return Dataset{Columns: columns, Rows: rows}, nil
}

// ParseJSON reads an upload shaped as an array of flat objects. Keys are
// unioned across objects in first-seen order; missing keys become empty
// cells. Nested objects and arrays of scalars embed as their JSON text,
// which keeps bracketed embedding columns intact for vector inference.
func ParseJSON(r io.Reader) (Dataset, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var records []map[string]any
	if err := decoder.Decode(&records); err != nil {
		return Dataset{}, fmt.Errorf("%w: %v", ErrUnsupportedShape, err)
	}
	if len(records) == 0 {
		return Dataset{}, ErrEmptyDataset
	}

	order := make(map[string]int)
	var columns []string
	for _, record := range records {
		keys := make([]string, 0, len(record))
		for key := range record {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if _, ok := order[key]; !ok {
				order[key] = len(columns)
				columns = append(columns, key)
			}
		}
	}

	rows := make([][]string, 0, len(records))
	for _, record := range records {
		row := make([]string, len(columns))
		for key, value := range record {
			cell, err := stringifyCell(value)
			if err != nil {
				return Dataset{}, err
			}
			row[order[key]] = cell
		}
		rows = append(rows, row)
	}

	sanitized := make([]string, len(columns))
	for i, name := range columns {
		sanitized[i] = schema.SanitizeName(name)
	}
	return Dataset{Columns: sanitized, Rows: rows}, nil
}

func stringifyCell(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode cell: %w", err)
		}
		return string(encoded), nil
	}
}

// Kind guesses the parser from the file name.
type Kind int

const (
	KindUnknown Kind = iota
	KindCSV
	KindJSON
	KindParquet
)

func DetectKind(filename string) Kind {
	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".csv"):
		return KindCSV
	case strings.HasSuffix(strings.ToLower(filename), ".json"):
		return KindJSON
	case strings.HasSuffix(strings.ToLower(filename), ".parquet"):
		return KindParquet
	default:
		return KindUnknown
	}
}

// Parse dispatches on the detected kind. Parquet is not parsed here; the
// preview engine materializes it.
func Parse(filename string, r io.Reader) (Dataset, error) {
	switch DetectKind(filename) {
	case KindCSV:
		return ParseCSV(r)
	case KindJSON:
		return ParseJSON(r)
	default:
		return Dataset{}, fmt.Errorf("%w: %s", ErrUnsupportedShape, filename)
	}
}
