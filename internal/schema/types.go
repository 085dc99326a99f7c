// Package schema is the reconciler core: it turns sampled tabular data and
// caller intent into validated table and index specifications and the ordered
// DDL operations that materialize them. It performs no I/O; executing the
// emitted operations is the caller's job.
package schema

import (
	"fmt"
	"strconv"
	"strings"
)

type TypeKind int

const (
	TypeInteger TypeKind = iota
	TypeBigInt
	TypeDouble
	TypeDate
	TypeTime
	TypeDateTime
	TypeBoolean
	TypeVarchar
	TypeClob
	TypeVector
)

func (k TypeKind) String() string {
	switch k {
	case TypeInteger:
		return "INTEGER"
	case TypeBigInt:
		return "BIGINT"
	case TypeDouble:
		return "DOUBLE"
	case TypeDate:
		return "DATE"
	case TypeTime:
		return "TIME"
	case TypeDateTime:
		return "DATETIME"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeVarchar:
		return "VARCHAR"
	case TypeClob:
		return "CLOB"
	case TypeVector:
		return "VECTOR"
	default:
		return fmt.Sprintf("TypeKind(%d)", int(k))
	}
}

// ColumnType is a logical column type. Length carries the VARCHAR size or the
// VECTOR dimension and is zero for every other kind.
type ColumnType struct {
	Kind   TypeKind
	Length int
}

// SQL renders the column type the way the target engine declares it.
func (t ColumnType) SQL() string {
	switch t.Kind {
	case TypeInteger:
		return "INT"
	case TypeBigInt:
		return "BIGINT"
	case TypeDouble:
		return "DOUBLE"
	case TypeDate:
		return "DATE"
	case TypeTime:
		return "TIME"
	case TypeDateTime:
		return "DATETIME"
	case TypeBoolean:
		return "BIT"
	case TypeVarchar:
		return fmt.Sprintf("VARCHAR(%d)", t.Length)
	case TypeClob:
		return "CLOB"
	case TypeVector:
		return fmt.Sprintf("VECTOR(DOUBLE, %d)", t.Length)
	default:
		return "VARCHAR(255)"
	}
}

func Varchar(length int) ColumnType { return ColumnType{Kind: TypeVarchar, Length: length} }
func Vector(dim int) ColumnType     { return ColumnType{Kind: TypeVector, Length: dim} }

// ParseColumnType reads a declared column type such as "VARCHAR(64)" or
// "VECTOR(DOUBLE, 768)". Common aliases from other dialects are accepted.
func ParseColumnType(raw string) (ColumnType, error) {
	text := strings.ToUpper(strings.TrimSpace(raw))
	base := text
	var arg string
	if open := strings.Index(text, "("); open >= 0 {
		if !strings.HasSuffix(text, ")") {
			return ColumnType{}, fmt.Errorf("invalid column type %q", raw)
		}
		base = strings.TrimSpace(text[:open])
		arg = strings.TrimSpace(text[open+1 : len(text)-1])
	}

	switch base {
	case "INT", "INTEGER":
		return ColumnType{Kind: TypeInteger}, nil
	case "BIGINT":
		return ColumnType{Kind: TypeBigInt}, nil
	case "DOUBLE", "FLOAT", "REAL":
		return ColumnType{Kind: TypeDouble}, nil
	case "DATE":
		return ColumnType{Kind: TypeDate}, nil
	case "TIME":
		return ColumnType{Kind: TypeTime}, nil
	case "DATETIME", "TIMESTAMP":
		return ColumnType{Kind: TypeDateTime}, nil
	case "BIT", "BOOLEAN", "BOOL":
		return ColumnType{Kind: TypeBoolean}, nil
	case "CLOB", "TEXT", "LONGVARCHAR":
		return ColumnType{Kind: TypeClob}, nil
	case "VARCHAR", "CHARACTER VARYING":
		length := 255
		if arg != "" {
			parsed, err := strconv.Atoi(arg)
			if err != nil || parsed <= 0 {
				return ColumnType{}, fmt.Errorf("invalid varchar length in %q", raw)
			}
			length = parsed
		}
		return Varchar(length), nil
	case "VECTOR":
		if arg == "" {
			return ColumnType{}, fmt.Errorf("vector type %q requires a dimension", raw)
		}
		dimPart := arg
		if comma := strings.LastIndex(arg, ","); comma >= 0 {
			dimPart = strings.TrimSpace(arg[comma+1:])
		}
		dim, err := strconv.Atoi(dimPart)
		if err != nil || dim <= 0 {
			return ColumnType{}, fmt.Errorf("invalid vector dimension in %q", raw)
		}
		return Vector(dim), nil
	default:
		return ColumnType{}, fmt.Errorf("unsupported column type %q", raw)
	}
}

// ColumnStats are sample statistics gathered while inferring a column.
type ColumnStats struct {
	MaxLength int
	SawNull   bool
	MinInt    int64
	MaxInt    int64
}

// ColumnDescriptor describes one column of a table to be created. Descriptors
// are derived once per import and treated as immutable afterwards.
type ColumnDescriptor struct {
	Name     string
	Type     ColumnType
	Nullable bool
	Stats    ColumnStats
}

type ExistencePolicy int

const (
	// FailIfExists aborts the emit when the table already exists.
	FailIfExists ExistencePolicy = iota
	// SkipIfExists emits no operations when the table already exists.
	SkipIfExists
	// DropAndRecreate drops an existing table before creating it again.
	DropAndRecreate
)

func (p ExistencePolicy) String() string {
	switch p {
	case FailIfExists:
		return "fail"
	case SkipIfExists:
		return "skip"
	case DropAndRecreate:
		return "drop"
	default:
		return fmt.Sprintf("ExistencePolicy(%d)", int(p))
	}
}

// ParseExistencePolicy maps the wire spelling of a policy to its value.
func ParseExistencePolicy(raw string) (ExistencePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "fail", "fail_if_exists":
		return FailIfExists, nil
	case "skip", "skip_if_exists":
		return SkipIfExists, nil
	case "drop", "drop_and_recreate", "overwrite":
		return DropAndRecreate, nil
	default:
		return FailIfExists, fmt.Errorf("invalid existence policy %q", raw)
	}
}

// TableSpec identifies the table to materialize. PrimaryKeys holds the
// caller-supplied candidate keys; validation rejects more than one.
type TableSpec struct {
	Schema      string
	Name        string
	Columns     []ColumnDescriptor
	PrimaryKeys [][]string
	Existence   ExistencePolicy
}

// QualifiedName returns schema.table, defaulting the schema to SQLUser the
// way the target engine does.
func (s TableSpec) QualifiedName() string {
	schemaName := strings.TrimSpace(s.Schema)
	if schemaName == "" {
		schemaName = DefaultSchema
	}
	return schemaName + "." + strings.TrimSpace(s.Name)
}

// DefaultSchema is the engine's implicit schema for unqualified tables.
const DefaultSchema = "SQLUser"

type IndexKind int

const (
	IndexStandard IndexKind = iota
	IndexUnique
	IndexVector
)

func (k IndexKind) String() string {
	switch k {
	case IndexStandard:
		return "index"
	case IndexUnique:
		return "unique"
	case IndexVector:
		return "vector"
	default:
		return fmt.Sprintf("IndexKind(%d)", int(k))
	}
}

// ParseIndexKind maps the wire spelling of an index kind to its value.
func ParseIndexKind(raw string) (IndexKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "index", "standard":
		return IndexStandard, nil
	case "unique":
		return IndexUnique, nil
	case "vector", "hnsw":
		return IndexVector, nil
	default:
		return IndexStandard, fmt.Errorf("invalid index kind %q", raw)
	}
}

type DistanceMetric int

const (
	MetricCosine DistanceMetric = iota
	MetricEuclidean
	MetricDotProduct
)

func (m DistanceMetric) String() string {
	switch m {
	case MetricCosine:
		return "Cosine"
	case MetricEuclidean:
		return "Euclidean"
	case MetricDotProduct:
		return "DotProduct"
	default:
		return fmt.Sprintf("DistanceMetric(%d)", int(m))
	}
}

// ParseDistanceMetric maps the wire spelling of a metric to its value.
func ParseDistanceMetric(raw string) (DistanceMetric, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "cosine":
		return MetricCosine, nil
	case "euclidean", "l2":
		return MetricEuclidean, nil
	case "dotproduct", "dot_product", "innerproduct":
		return MetricDotProduct, nil
	default:
		return MetricCosine, fmt.Errorf("invalid distance metric %q", raw)
	}
}

// Default HNSW graph parameters, matching the engine's own defaults.
const (
	DefaultHNSWM           = 64
	DefaultHNSWEfConstruct = 64
)

// IndexSpec requests one index on a column of the table being materialized.
// Metric, M and EfConstruct apply to vector indexes only.
type IndexSpec struct {
	Column      string
	Kind        IndexKind
	Name        string
	Metric      DistanceMetric
	M           int
	EfConstruct int
}

// EffectiveName returns the explicit index name or the conventional
// <table>_<column>_<kind> default.
func (s IndexSpec) EffectiveName(table string) string {
	if strings.TrimSpace(s.Name) != "" {
		return strings.TrimSpace(s.Name)
	}
	return fmt.Sprintf("%s_%s_%s", table, s.Column, s.Kind)
}

type OperationKind int

const (
	OpDropTable OperationKind = iota
	OpCreateTable
	OpCreateIndex
	OpAlterTable
)

func (k OperationKind) String() string {
	switch k {
	case OpDropTable:
		return "drop_table"
	case OpCreateTable:
		return "create_table"
	case OpCreateIndex:
		return "create_index"
	case OpAlterTable:
		return "alter_table"
	default:
		return fmt.Sprintf("OperationKind(%d)", int(k))
	}
}

// Operation is one emitted DDL statement, ready for an executor to run.
type Operation struct {
	Kind  OperationKind
	SQL   string
	Table string
	Index string
}
