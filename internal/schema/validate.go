package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSchema is the umbrella for every validation failure; the specific
// sentinels below wrap it so callers can match either the class or the exact
// cause with errors.Is.
var (
	ErrSchema             = errors.New("schema validation failed")
	ErrDuplicateColumn    = fmt.Errorf("%w: duplicate column", ErrSchema)
	ErrUnknownColumn      = fmt.Errorf("%w: unknown column", ErrSchema)
	ErrMultiplePrimaryKey = fmt.Errorf("%w: multiple primary keys", ErrSchema)
	ErrIncompatibleIndex  = fmt.Errorf("%w: incompatible index", ErrSchema)
	ErrTableExists        = errors.New("table already exists")
)

// Validate checks a table specification and its index requests as a whole.
// It fails before any DDL is emitted; a nil return means every invariant
// holds. Identifier comparison is case-insensitive, matching the engine.
func Validate(spec TableSpec, indexes []IndexSpec) error {
	if strings.TrimSpace(spec.Name) == "" {
		return fmt.Errorf("%w: table name is required", ErrSchema)
	}

	byName := make(map[string]ColumnDescriptor, len(spec.Columns))
	for _, column := range spec.Columns {
		key := strings.ToLower(column.Name)
		if key == "" {
			return fmt.Errorf("%w: empty column name", ErrSchema)
		}
		if _, ok := byName[key]; ok {
			return fmt.Errorf("%w %q", ErrDuplicateColumn, column.Name)
		}
		byName[key] = column
	}

	if len(spec.PrimaryKeys) > 1 {
		return fmt.Errorf("%w: %d key sets supplied", ErrMultiplePrimaryKey, len(spec.PrimaryKeys))
	}
	for _, key := range spec.PrimaryKeys {
		if len(key) == 0 {
			return fmt.Errorf("%w: empty primary key", ErrSchema)
		}
		for _, columnName := range key {
			if _, ok := byName[strings.ToLower(columnName)]; !ok {
				return fmt.Errorf("%w %q in primary key", ErrUnknownColumn, columnName)
			}
		}
	}

	for _, index := range indexes {
		column, ok := byName[strings.ToLower(index.Column)]
		if !ok {
			return fmt.Errorf("%w %q in index %q", ErrUnknownColumn, index.Column, index.EffectiveName(spec.Name))
		}
		if index.Kind != IndexVector {
			continue
		}
		if column.Type.Kind != TypeVector {
			return fmt.Errorf("%w: vector index %q targets non-vector column %q (%s)",
				ErrIncompatibleIndex, index.EffectiveName(spec.Name), column.Name, column.Type.Kind)
		}
		m := index.M
		if m == 0 {
			m = DefaultHNSWM
		}
		ef := index.EfConstruct
		if ef == 0 {
			ef = DefaultHNSWEfConstruct
		}
		if m < 2 {
			return fmt.Errorf("%w: M must be at least 2, got %d", ErrIncompatibleIndex, m)
		}
		if ef < m {
			return fmt.Errorf("%w: efConstruct %d is below M %d", ErrIncompatibleIndex, ef, m)
		}
	}

	return nil
}
