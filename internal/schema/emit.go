package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Emit produces the ordered DDL operations that materialize the table:
// an optional drop, the create, then indexes with standard and unique ones
// ahead of vector indexes, whose graph construction is the expensive part.
// Emit is pure; exists is the collaborator's report of current table state
// and nothing here touches a database.
func Emit(spec TableSpec, indexes []IndexSpec, exists bool) ([]Operation, error) {
	if err := Validate(spec, indexes); err != nil {
		return nil, err
	}

	fullName := spec.QualifiedName()
	var ops []Operation

	if exists {
		switch spec.Existence {
		case FailIfExists:
			return nil, fmt.Errorf("%w: %s", ErrTableExists, fullName)
		case SkipIfExists:
			return nil, nil
		case DropAndRecreate:
			ops = append(ops, Operation{
				Kind:  OpDropTable,
				SQL:   "DROP TABLE " + fullName,
				Table: fullName,
			})
		}
	}

	ops = append(ops, Operation{
		Kind:  OpCreateTable,
		SQL:   createTableSQL(spec, fullName),
		Table: fullName,
	})

	ordered := make([]IndexSpec, len(indexes))
	copy(ordered, indexes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Kind != IndexVector && ordered[j].Kind == IndexVector
	})
	for _, index := range ordered {
		ops = append(ops, Operation{
			Kind:  OpCreateIndex,
			SQL:   createIndexSQL(spec, index, fullName),
			Table: fullName,
			Index: index.EffectiveName(spec.Name),
		})
	}

	return ops, nil
}

// EmitAddColumns produces one ALTER TABLE ADD per column of spec that is
// not already present on the table, in spec order. existing carries the
// table's current column names; matching is case-insensitive. Columns the
// table already has are silently skipped, so re-running the same request is
// a no-op.
func EmitAddColumns(spec TableSpec, existing []string) ([]Operation, error) {
	if err := Validate(spec, nil); err != nil {
		return nil, err
	}

	present := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		present[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	fullName := spec.QualifiedName()
	var ops []Operation
	for _, column := range spec.Columns {
		if _, ok := present[strings.ToLower(column.Name)]; ok {
			continue
		}
		// Existing rows have no value for the new column, so it is always
		// added nullable regardless of the descriptor.
		def := column.Name + " " + column.Type.SQL()
		ops = append(ops, Operation{
			Kind:  OpAlterTable,
			SQL:   "ALTER TABLE " + fullName + " ADD " + def,
			Table: fullName,
		})
	}
	return ops, nil
}

func createTableSQL(spec TableSpec, fullName string) string {
	primary := map[string]bool{}
	if len(spec.PrimaryKeys) == 1 {
		for _, columnName := range spec.PrimaryKeys[0] {
			primary[strings.ToLower(columnName)] = true
		}
	}

	defs := make([]string, 0, len(spec.Columns)+1)
	for _, column := range spec.Columns {
		def := column.Name + " " + column.Type.SQL()
		// Primary key columns are non-nullable regardless of the sampled data.
		if !column.Nullable || primary[strings.ToLower(column.Name)] {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if len(spec.PrimaryKeys) == 1 {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(spec.PrimaryKeys[0], ", ")+")")
	}

	return "CREATE TABLE " + fullName + " (" + strings.Join(defs, ", ") + ")"
}

func createIndexSQL(spec TableSpec, index IndexSpec, fullName string) string {
	name := index.EffectiveName(spec.Name)
	switch index.Kind {
	case IndexUnique:
		return fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s)", name, fullName, index.Column)
	case IndexVector:
		m := index.M
		if m == 0 {
			m = DefaultHNSWM
		}
		ef := index.EfConstruct
		if ef == 0 {
			ef = DefaultHNSWEfConstruct
		}
		return fmt.Sprintf("CREATE INDEX %s ON %s (%s) AS %%SQL.Index.HNSW(Distance='%s', M=%d, efConstruct=%d)",
			name, fullName, index.Column, index.Metric, m, ef)
	default:
		return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", name, fullName, index.Column)
	}
}
