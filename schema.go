// Data model: column and table schemas.
//
// A TableSchema is a set of named columns plus the designated key column.
// It is immutable for the life of a table — there is no schema evolution
// in the core; a schema change means creating a new table.
package feastore

import (
	"sort"

	json "github.com/goccy/go-json"
)

// DType is a tagged enum over the column value types the core supports.
// New numeric variants can be added without changing the segment framing
// (§4.A), but every variant must have a column codec (column_*.go).
type DType int

const (
	DTypeFloat32 DType = iota
	DTypeUtf8
)

func (d DType) String() string {
	switch d {
	case DTypeFloat32:
		return "float32"
	case DTypeUtf8:
		return "utf8"
	default:
		return "unknown"
	}
}

// MarshalJSON renders DType as its string name, so the catalog descriptor
// stays readable and stable across future variant additions.
func (d DType) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *DType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "float32":
		*d = DTypeFloat32
	case "utf8":
		*d = DTypeUtf8
	default:
		return newErr(KindConfigParsing, "unknown dtype "+s)
	}
	return nil
}

// ColumnSchema describes one column's wire type and nullability.
type ColumnSchema struct {
	DType    DType `json:"dtype"`
	Nullable bool  `json:"nullable"`
}

// TableSchema is the set of columns a table holds, plus which one is the key.
// Column order carries no meaning — it is a map — but codecs and writers
// iterate it in a stable (sorted) order so encode output is deterministic.
type TableSchema struct {
	Key     string                  `json:"key"`
	Columns map[string]ColumnSchema `json:"columns"`
}

// Validate checks the invariants from spec §3: the key column must exist,
// must be Utf8, and must not be nullable.
func (s *TableSchema) Validate() error {
	if s.Key == "" {
		return wrapErr(KindTableError, "schema validation", ErrInvalidSchema)
	}
	key, ok := s.Columns[s.Key]
	if !ok {
		return wrapErr(KindTableError, "key column not declared in columns", ErrInvalidSchema)
	}
	if key.DType != DTypeUtf8 {
		return wrapErr(KindTableError, "key column must be Utf8", ErrInvalidSchema)
	}
	if key.Nullable {
		return wrapErr(KindTableError, "key column must not be nullable", ErrInvalidSchema)
	}
	return nil
}

// NonKeyColumns returns the names of every column other than the key, sorted.
func (s *TableSchema) NonKeyColumns() []string {
	names := make([]string, 0, len(s.Columns))
	for name := range s.Columns {
		if name == s.Key {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SortedColumnNames returns every column name, including the key, sorted.
// Writers and the footer encoder iterate columns in this order so segment
// bytes are deterministic for the same logical input (§4.B codec contract).
func (s *TableSchema) SortedColumnNames() []string {
	names := make([]string, 0, len(s.Columns))
	for name := range s.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
