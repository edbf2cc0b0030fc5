// Package feastore implements a read-optimized, append-only columnar
// feature store: writers publish immutable segments, readers fan out
// point lookups over a set of keys and columns and get back a single
// columnar batch with missing keys filled as nulls.
//
// The package owns the on-disk segment format, the column codecs, the
// key-index/gather read path, and the per-table service registry. HTTP,
// RPC, CLI and ingest-pipeline glue are intentionally not part of this
// package; they are expected to sit on top of it and call into the
// exported API in registry.go.
package feastore

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an error for translation by API/RPC glue, per the
// suggested status-code mapping: TableNotFound -> 404, TableAlreadyExists
// -> 409, TableError/ColumnUnknown -> 400, Io/ColumnarLib/SegmentError -> 500.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConfigParsing
	KindIo
	KindColumnarLib
	KindTableNotFound
	KindTableAlreadyExists
	KindTableError
	KindSegmentError
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfigParsing:
		return "config_parsing"
	case KindIo:
		return "io"
	case KindColumnarLib:
		return "columnar_lib"
	case KindTableNotFound:
		return "table_not_found"
	case KindTableAlreadyExists:
		return "table_already_exists"
	case KindTableError:
		return "table_error"
	case KindSegmentError:
		return "segment_error"
	default:
		return "unknown"
	}
}

// Error is the shared error type returned by every exported operation.
// Callers that care about taxonomy (rather than message text) should use
// errors.As to recover it and switch on Kind().
type Error struct {
	kind ErrorKind
	msg  string
	err  error // wrapped cause, if any
}

func newErr(kind ErrorKind, msg string) error {
	return &Error{kind: kind, msg: msg}
}

func wrapErr(kind ErrorKind, msg string, cause error) error {
	return &Error{kind: kind, msg: msg, err: cause}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Kind reports the error taxonomy of e.
func (e *Error) Kind() ErrorKind { return e.kind }

// Sentinel errors for common conditions. Use errors.Is to match these;
// use errors.As(&Error{}) to recover the full Kind() for cases without a
// dedicated sentinel (e.g. SegmentError carries a free-form message).
var (
	// ErrTableNotFound is returned when a named table does not exist in the registry.
	ErrTableNotFound = newErr(KindTableNotFound, "table not found")

	// ErrTableAlreadyExists is returned by create on a pre-existing table name.
	ErrTableAlreadyExists = newErr(KindTableAlreadyExists, "table already exists")

	// ErrNoData is returned by read when a table has a catalog descriptor but zero segments.
	ErrNoData = newErr(KindTableError, "table has no data")

	// ErrColumnUnknown is returned by read when a requested column is not in the table schema.
	ErrColumnUnknown = newErr(KindTableError, "unknown column")

	// ErrMissingColumn is returned by write when the schema names a column the batch lacks.
	ErrMissingColumn = newErr(KindTableError, "missing column")

	// ErrDTypeMismatch is returned by write when a batch column's type disagrees with the schema.
	ErrDTypeMismatch = newErr(KindTableError, "column dtype mismatch")

	// ErrInvalidSchema is returned by create for a schema that violates §3's invariants.
	ErrInvalidSchema = newErr(KindTableError, "invalid schema")

	// ErrNullKey is returned by write when the key column contains a null.
	ErrNullKey = newErr(KindTableError, "key column must not contain nulls")

	// ErrClosed is returned when operating on a registry or handle after Close.
	ErrClosed = newErr(KindIo, "feastore: closed")
)

func isKind(err error, kind ErrorKind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind == kind
	}
	return false
}

// IsTableNotFound reports whether err (or a wrapped cause) is a TableNotFound error.
func IsTableNotFound(err error) bool { return isKind(err, KindTableNotFound) }

// IsTableAlreadyExists reports whether err (or a wrapped cause) is a TableAlreadyExists error.
func IsTableAlreadyExists(err error) bool { return isKind(err, KindTableAlreadyExists) }

// IsSegmentError reports whether err (or a wrapped cause) is a SegmentError.
func IsSegmentError(err error) bool { return isKind(err, KindSegmentError) }
