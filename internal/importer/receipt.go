package importer

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
)

// receiptRow is one column of the imported table plus the import-wide
// counters, repeated per row so the receipt reads as a flat parquet file.
type receiptRow struct {
	ImportID         string `parquet:"import_id"`
	SchemaName       string `parquet:"schema_name"`
	TableName        string `parquet:"table_name"`
	ColumnName       string `parquet:"column_name"`
	ColumnType       string `parquet:"column_type"`
	Nullable         bool   `parquet:"nullable"`
	RowCount         int64  `parquet:"row_count"`
	OperationCount   int32  `parquet:"operation_count"`
	ImportedAtUnixMs int64  `parquet:"imported_at_unix_ms"`
	DurationMs       int64  `parquet:"duration_ms"`
}

// EncodeReceipt renders the import receipt as parquet bytes, one row per
// imported column.
func EncodeReceipt(result Result, schemaName, tableName string, importedAt time.Time) ([]byte, error) {
	if len(result.Columns) == 0 {
		return nil, fmt.Errorf("receipt requires at least one column")
	}

	rows := make([]receiptRow, 0, len(result.Columns))
	for _, column := range result.Columns {
		rows = append(rows, receiptRow{
			ImportID:         result.ImportID,
			SchemaName:       schemaName,
			TableName:        tableName,
			ColumnName:       column.Name,
			ColumnType:       column.Type.SQL(),
			Nullable:         column.Nullable,
			RowCount:         result.RowsInserted,
			OperationCount:   int32(len(result.Operations)),
			ImportedAtUnixMs: importedAt.UnixMilli(),
			DurationMs:       result.Duration.Milliseconds(),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[receiptRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write receipt rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close receipt writer: %w", err)
	}
	return buf.Bytes(), nil
}

// ReceiptColumn is one column entry of a decoded receipt.
type ReceiptColumn struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Receipt is the decoded form of one import receipt.
type Receipt struct {
	ImportID   string          `json:"import_id"`
	Schema     string          `json:"schema"`
	Table      string          `json:"table"`
	Columns    []ReceiptColumn `json:"columns"`
	RowCount   int64           `json:"row_count"`
	Operations int             `json:"operations"`
	ImportedAt time.Time       `json:"imported_at"`
	DurationMs int64           `json:"duration_ms"`
}

// DecodeReceipt parses parquet receipt bytes back into a Receipt. Rows share
// the import-wide counters, so they are taken from the first row.
func DecodeReceipt(data []byte) (Receipt, error) {
	rows, err := parquet.Read[receiptRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Receipt{}, fmt.Errorf("read receipt rows: %w", err)
	}
	if len(rows) == 0 {
		return Receipt{}, fmt.Errorf("receipt has no rows")
	}

	receipt := Receipt{
		ImportID:   rows[0].ImportID,
		Schema:     rows[0].SchemaName,
		Table:      rows[0].TableName,
		RowCount:   rows[0].RowCount,
		Operations: int(rows[0].OperationCount),
		ImportedAt: time.UnixMilli(rows[0].ImportedAtUnixMs).UTC(),
		DurationMs: rows[0].DurationMs,
	}
	for _, row := range rows {
		receipt.Columns = append(receipt.Columns, ReceiptColumn{
			Name:     row.ColumnName,
			Type:     row.ColumnType,
			Nullable: row.Nullable,
		})
	}
	return receipt, nil
}
