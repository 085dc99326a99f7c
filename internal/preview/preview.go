// Package preview defines the engine contract for inspecting uploaded files
// with SQL before anything touches the target database.
package preview

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pietrodileo/iris-tool-and-data-manager/internal/dataset"
)

// Request describes one preview run. Filename selects the reader function;
// SQL defaults to selecting everything from the uploaded file, which is
// exposed to the statement as a view named "dataset".
type Request struct {
	Filename string
	SQL      string
	RowLimit int
}

type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

type Engine interface {
	Preview(ctx context.Context, file io.Reader, request Request) (Result, error)
}

// ToDataset flattens a preview result into string cells for the schema
// inferencer. This is how parquet uploads enter the import pipeline.
func ToDataset(result Result) dataset.Dataset {
	rows := make([][]string, len(result.Rows))
	for i, row := range result.Rows {
		cells := make([]string, len(row))
		for j, value := range row {
			cells[j] = stringifyValue(value)
		}
		rows[i] = cells
	}
	return dataset.Dataset{Columns: result.Columns, Rows: rows}
}

func stringifyValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
