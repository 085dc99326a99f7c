package schema

import (
	"strconv"
	"strings"
	"time"
)

// SampleColumn is one column of source data handed to Infer: the sanitized
// column name and the raw sample values as read from the file.
type SampleColumn struct {
	Name    string
	Samples []string
}

const (
	maxVarcharLength = 255
	minVarcharBucket = 16
)

var dateLayouts = []string{"2006-01-02", "2006/01/02", "02-01-2006"}
var timeLayouts = []string{"15:04:05", "15:04"}
var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// Infer classifies each sample column into a column descriptor. The pass is
// deterministic: one scan per column, with numeric classification taking
// precedence over temporal when a value parses as both. Columns are nullable
// by default; the caller flips that for primary key or required columns.
func Infer(columns []SampleColumn) []ColumnDescriptor {
	descriptors := make([]ColumnDescriptor, 0, len(columns))
	for _, column := range columns {
		descriptors = append(descriptors, inferColumn(column))
	}
	return descriptors
}

func inferColumn(column SampleColumn) ColumnDescriptor {
	desc := ColumnDescriptor{
		Name:     SanitizeName(column.Name),
		Nullable: true,
	}

	allInt := true
	allFloat := true
	allDate := true
	allTime := true
	allDateTime := true
	allBool := true
	vectorDim := -1
	sawValue := false
	sawFraction := false
	sawInt := false
	distinct := map[string]struct{}{}

	for _, raw := range column.Samples {
		value := strings.TrimSpace(raw)
		if value == "" {
			desc.Stats.SawNull = true
			continue
		}
		sawValue = true
		if len(value) > desc.Stats.MaxLength {
			desc.Stats.MaxLength = len(value)
		}

		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			if !sawInt || n < desc.Stats.MinInt {
				desc.Stats.MinInt = n
			}
			if !sawInt || n > desc.Stats.MaxInt {
				desc.Stats.MaxInt = n
			}
			sawInt = true
		} else {
			allInt = false
		}
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			allFloat = false
		} else if strings.ContainsAny(value, ".eE") {
			sawFraction = true
		}
		if !parsesAs(value, dateLayouts) {
			allDate = false
		}
		if !parsesAs(value, timeLayouts) {
			allTime = false
		}
		if !parsesAs(value, dateTimeLayouts) {
			allDateTime = false
		}
		if !isBooleanToken(value) {
			allBool = false
		} else {
			distinct[strings.ToLower(value)] = struct{}{}
		}
		if dim, ok := parseVector(value); ok {
			if vectorDim == -1 {
				vectorDim = dim
			} else if vectorDim != dim {
				vectorDim = -2
			}
		} else {
			vectorDim = -2
		}
	}

	if !sawValue {
		desc.Type = Varchar(maxVarcharLength)
		return desc
	}

	switch {
	// Numeric wins over temporal for ambiguous columns such as "20250102":
	// the tie-break is a documented policy, not an accident of scan order.
	case allInt:
		if desc.Stats.MinInt < -2147483648 || desc.Stats.MaxInt > 2147483647 {
			desc.Type = ColumnType{Kind: TypeBigInt}
		} else {
			desc.Type = ColumnType{Kind: TypeInteger}
		}
	case allFloat && sawFraction:
		desc.Type = ColumnType{Kind: TypeDouble}
	case allDate:
		desc.Type = ColumnType{Kind: TypeDate}
	case allTime:
		desc.Type = ColumnType{Kind: TypeTime}
	case allDateTime:
		desc.Type = ColumnType{Kind: TypeDateTime}
	case allBool && len(distinct) == 2:
		desc.Type = ColumnType{Kind: TypeBoolean}
	case vectorDim > 0:
		desc.Type = Vector(vectorDim)
	case desc.Stats.MaxLength > maxVarcharLength:
		desc.Type = ColumnType{Kind: TypeClob}
	default:
		desc.Type = Varchar(varcharBucket(desc.Stats.MaxLength))
	}
	return desc
}

// varcharBucket rounds a maximum observed length up to the next sizing
// bucket so minor data growth does not force an ALTER.
func varcharBucket(maxLen int) int {
	bucket := minVarcharBucket
	for bucket < maxLen && bucket < maxVarcharLength {
		bucket *= 2
	}
	if bucket > maxVarcharLength {
		return maxVarcharLength
	}
	return bucket
}

func parsesAs(value string, layouts []string) bool {
	for _, layout := range layouts {
		if _, err := time.Parse(layout, value); err == nil {
			return true
		}
	}
	return false
}

// Boolean vocabulary deliberately excludes "0"/"1": those are integers under
// the numeric precedence rule.
func isBooleanToken(value string) bool {
	switch strings.ToLower(value) {
	case "true", "false", "t", "f", "yes", "no", "y", "n":
		return true
	default:
		return false
	}
}

// parseVector reports whether the value is a bracketed numeric array, which
// is how embedding columns arrive in CSV and JSON exports.
func parseVector(value string) (int, bool) {
	if !strings.HasPrefix(value, "[") || !strings.HasSuffix(value, "]") {
		return 0, false
	}
	inner := strings.TrimSpace(value[1 : len(value)-1])
	if inner == "" {
		return 0, false
	}
	parts := strings.Split(inner, ",")
	for _, part := range parts {
		if _, err := strconv.ParseFloat(strings.TrimSpace(part), 64); err != nil {
			return 0, false
		}
	}
	return len(parts), true
}

// SanitizeName normalizes a source column name into a legal SQL identifier:
// surrounding whitespace is dropped and inner spaces and dots become
// underscores.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, ".", "_")
	return name
}
