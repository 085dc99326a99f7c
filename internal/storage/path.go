package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildUploadPath returns the archive key for a raw uploaded file:
// uploads/<schema>/<table>/<timestamp>_<filename>. The original file is kept
// verbatim so an import can be audited or replayed.
func BuildUploadPath(schemaName, tableName, filename string, uploadedAt time.Time) (string, error) {
	if err := validatePathComponent(schemaName, "schema name"); err != nil {
		return "", err
	}
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	cleaned := sanitizeFilename(filename)
	if err := validatePathComponent(cleaned, "file name"); err != nil {
		return "", err
	}

	return path.Join(
		"uploads",
		schemaName,
		tableName,
		fmt.Sprintf("%s_%s", uploadedAt.UTC().Format("20060102T150405Z"), cleaned),
	), nil
}

// BuildReceiptPath returns the key for an import receipt:
// receipts/<schema>/<table>/import-<id>.parquet.
func BuildReceiptPath(schemaName, tableName, importID string) (string, error) {
	if err := validatePathComponent(schemaName, "schema name"); err != nil {
		return "", err
	}
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	if err := validatePathComponent(importID, "import id"); err != nil {
		return "", err
	}
	return path.Join(
		"receipts",
		schemaName,
		tableName,
		"import-"+importID+".parquet",
	), nil
}

// BuildReceiptPrefix returns the key prefix all receipts for one table share,
// ending in "/" so a List over it cannot match sibling tables.
func BuildReceiptPrefix(schemaName, tableName string) (string, error) {
	if err := validatePathComponent(schemaName, "schema name"); err != nil {
		return "", err
	}
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	return path.Join("receipts", schemaName, tableName) + "/", nil
}

// sanitizeFilename keeps only the base name of a client-supplied file name
// and squeezes spaces out of it.
func sanitizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	return strings.ReplaceAll(base, " ", "_")
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
