package stonebed

import (
	"unsafe"
)

// Handle is an opaque native connection handle.
type Handle uintptr

// NativeResult is an opaque native result-set pointer.
type NativeResult uintptr

// NativeStatement is an opaque native prepared-statement pointer.
type NativeStatement uintptr

// Engine result codes.
const (
	StatusOK     = 0
	StatusAlloc  = -1 // allocation failed
	StatusEngine = -2 // error inside the engine; Error() has the text
)

// openErrors maps open result codes to generic text for codes where the
// engine cannot be asked for its own error string.
var openErrors = map[int]string{
	StatusOK:    "OK",
	StatusAlloc: "allocation failed",
}

// ColumnDesc describes one native result or append column: its type tag,
// row count, name, and a reference to the raw column buffer.
type ColumnDesc struct {
	Type  Type
	Count uint64
	Name  string
	Data  unsafe.Pointer
}

// ColumnMeta is one (name, declared type) pair from a table's schema.
type ColumnMeta struct {
	Name string
	Type Type
}

// Options carries the connection options handed to the engine on open.
type Options struct {
	MemoryLimit    int
	QueryTimeout   int
	SessionTimeout int
	Threads        int
}

// Engine is the narrow capability surface of the embedded engine. The
// binding never reaches past it: the native library implements it via
// dynamic loading, and memengine implements it in pure Go for tests.
//
// All methods are synchronous and return engine status codes; the caller
// checks every code at the call site.
type Engine interface {
	// Open opens a connection. An empty path means in-memory.
	Open(path string, opts Options) (Handle, int)
	Close(h Handle) int
	// Error returns the engine's latest error string for the connection.
	Error(h Handle) string

	Query(h Handle, sql []byte, wantResult bool) (NativeResult, int64, int)
	ResultColumnCount(r NativeResult) int
	ResultRowCount(r NativeResult) int64
	FetchColumn(r NativeResult, index int) (ColumnDesc, int)
	CleanupResult(h Handle, r NativeResult) int

	Prepare(h Handle, sql []byte) (NativeStatement, int)
	Bind(s NativeStatement, value []byte, index int) int
	Execute(s NativeStatement, wantResult bool) (NativeResult, int64, int)
	CleanupStatement(h Handle, s NativeStatement)

	GetAutocommit(h Handle) (bool, int)
	SetAutocommit(h Handle, value bool) int
	InTransaction(h Handle) bool

	Append(h Handle, schema, table []byte, cols []ColumnDesc) int
	GetColumns(h Handle, schema, table []byte) ([]ColumnMeta, int)

	DumpDatabase(h Handle, path []byte) int
	DumpTable(h Handle, schema, table, path []byte) int
}
