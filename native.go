package stonebed

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"unsafe"
)

// nativeColumn mirrors the engine's C column descriptor:
// { int32_t type; uint64_t count; char *name; void *data; }
type nativeColumn struct {
	typ   int32
	_     int32
	count uint64
	name  uintptr
	data  uintptr
}

// nativeOptions mirrors the engine's C open options struct.
type nativeOptions struct {
	memoryLimit    int64
	queryTimeout   int64
	sessionTimeout int64
	threads        int64
}

// NativeEngine implements Engine on top of the dynamically loaded engine
// library. No CGO is involved; symbols are resolved at load time and invoked
// directly.
type NativeEngine struct {
	lib unsafe.Pointer

	fnOpen              uintptr
	fnClose             uintptr
	fnError             uintptr
	fnQuery             uintptr
	fnResultColumnCount uintptr
	fnResultRowCount    uintptr
	fnFetchColumn       uintptr
	fnCleanupResult     uintptr
	fnPrepare           uintptr
	fnBind              uintptr
	fnExecute           uintptr
	fnCleanupStatement  uintptr
	fnGetAutocommit     uintptr
	fnSetAutocommit     uintptr
	fnInTransaction     uintptr
	fnAppend            uintptr
	fnGetColumns        uintptr
	fnDumpDatabase      uintptr
	fnDumpTable         uintptr
}

// LoadNativeEngine loads the engine library. An empty path searches
// STONEBED_LIBRARY and the usual install locations for the platform soname.
func LoadNativeEngine(path string) (*NativeEngine, error) {
	if path == "" {
		path = findNativeLibraryPath()
	}
	if path == "" {
		return nil, fmt.Errorf("stonebed library not found; set STONEBED_LIBRARY")
	}

	lib, err := loadDynamicLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load stonebed library: %w", err)
	}

	e := &NativeEngine{lib: lib}
	symbols := []struct {
		name string
		fn   *uintptr
	}{
		{"stonebed_open", &e.fnOpen},
		{"stonebed_close", &e.fnClose},
		{"stonebed_error", &e.fnError},
		{"stonebed_query", &e.fnQuery},
		{"stonebed_result_column_count", &e.fnResultColumnCount},
		{"stonebed_result_row_count", &e.fnResultRowCount},
		{"stonebed_result_fetch_column", &e.fnFetchColumn},
		{"stonebed_cleanup_result", &e.fnCleanupResult},
		{"stonebed_prepare", &e.fnPrepare},
		{"stonebed_bind", &e.fnBind},
		{"stonebed_execute", &e.fnExecute},
		{"stonebed_cleanup_statement", &e.fnCleanupStatement},
		{"stonebed_get_autocommit", &e.fnGetAutocommit},
		{"stonebed_set_autocommit", &e.fnSetAutocommit},
		{"stonebed_in_transaction", &e.fnInTransaction},
		{"stonebed_append", &e.fnAppend},
		{"stonebed_get_columns", &e.fnGetColumns},
		{"stonebed_dump_database", &e.fnDumpDatabase},
		{"stonebed_dump_table", &e.fnDumpTable},
	}
	for _, sym := range symbols {
		fn, err := getSymbol(lib, sym.name)
		if err != nil {
			closeLibrary(lib)
			return nil, fmt.Errorf("failed to resolve %s: %w", sym.name, err)
		}
		*sym.fn = fn
	}

	return e, nil
}

// Unload releases the library handle. No engine call may follow.
func (e *NativeEngine) Unload() {
	closeLibrary(e.lib)
	e.lib = nil
}

// findNativeLibraryPath locates the engine library.
func findNativeLibraryPath() string {
	if path := os.Getenv("STONEBED_LIBRARY"); path != "" {
		return path
	}

	var soname string
	switch runtime.GOOS {
	case "darwin":
		soname = "libstonebed.dylib"
	case "windows":
		soname = "stonebed.dll"
	default:
		soname = "libstonebed.so"
	}

	candidates := []string{
		soname,
		filepath.Join("/usr/local/lib", soname),
		filepath.Join("/usr/lib", soname),
	}
	if execPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(execPath), soname))
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// nulTerminated copies b and appends the terminator the C side expects.
func nulTerminated(b []byte) []byte {
	buf := make([]byte, len(b)+1)
	copy(buf, b)
	return buf
}

func bufPtr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

// status sign-extends a raw return value into an engine status code.
func status(r uintptr) int {
	return int(int32(r))
}

func (e *NativeEngine) Open(path string, opts Options) (Handle, int) {
	var h uintptr
	var url uintptr
	var urlBuf []byte
	if path != "" {
		urlBuf = nulTerminated([]byte(path))
		url = bufPtr(urlBuf)
	}

	nopts := nativeOptions{
		memoryLimit:    int64(opts.MemoryLimit),
		queryTimeout:   int64(opts.QueryTimeout),
		sessionTimeout: int64(opts.SessionTimeout),
		threads:        int64(opts.Threads),
	}

	r := syscallN(e.fnOpen, uintptr(unsafe.Pointer(&h)), url, uintptr(unsafe.Pointer(&nopts)))
	runtime.KeepAlive(urlBuf)
	runtime.KeepAlive(&nopts)
	return Handle(h), status(r)
}

func (e *NativeEngine) Close(h Handle) int {
	return status(syscallN(e.fnClose, uintptr(h)))
}

func (e *NativeEngine) Error(h Handle) string {
	r := syscallN(e.fnError, uintptr(h))
	return goStringFromPtr(unsafe.Pointer(r))
}

func (e *NativeEngine) Query(h Handle, sql []byte, wantResult bool) (NativeResult, int64, int) {
	buf := nulTerminated(sql)

	var res uintptr
	var affected int64
	resArg := uintptr(0)
	if wantResult {
		resArg = uintptr(unsafe.Pointer(&res))
	}

	r := syscallN(e.fnQuery, uintptr(h), bufPtr(buf), resArg, uintptr(unsafe.Pointer(&affected)))
	runtime.KeepAlive(buf)
	return NativeResult(res), affected, status(r)
}

func (e *NativeEngine) ResultColumnCount(r NativeResult) int {
	return int(syscallN(e.fnResultColumnCount, uintptr(r)))
}

func (e *NativeEngine) ResultRowCount(r NativeResult) int64 {
	return int64(syscallN(e.fnResultRowCount, uintptr(r)))
}

func (e *NativeEngine) FetchColumn(r NativeResult, index int) (ColumnDesc, int) {
	var col nativeColumn
	code := status(syscallN(e.fnFetchColumn, uintptr(r), uintptr(unsafe.Pointer(&col)), uintptr(index)))
	if code != StatusOK {
		return ColumnDesc{}, code
	}

	return ColumnDesc{
		Type:  Type(col.typ),
		Count: col.count,
		Name:  goStringFromPtr(unsafe.Pointer(col.name)),
		Data:  unsafe.Pointer(col.data),
	}, StatusOK
}

func (e *NativeEngine) CleanupResult(h Handle, r NativeResult) int {
	return status(syscallN(e.fnCleanupResult, uintptr(h), uintptr(r)))
}

func (e *NativeEngine) Prepare(h Handle, sql []byte) (NativeStatement, int) {
	buf := nulTerminated(sql)
	var stmt uintptr
	r := syscallN(e.fnPrepare, uintptr(h), bufPtr(buf), uintptr(unsafe.Pointer(&stmt)))
	runtime.KeepAlive(buf)
	return NativeStatement(stmt), status(r)
}

func (e *NativeEngine) Bind(s NativeStatement, value []byte, index int) int {
	buf := nulTerminated(value)
	r := syscallN(e.fnBind, uintptr(s), bufPtr(buf), uintptr(index))
	runtime.KeepAlive(buf)
	return status(r)
}

func (e *NativeEngine) Execute(s NativeStatement, wantResult bool) (NativeResult, int64, int) {
	var res uintptr
	var affected int64
	resArg := uintptr(0)
	if wantResult {
		resArg = uintptr(unsafe.Pointer(&res))
	}

	r := syscallN(e.fnExecute, uintptr(s), resArg, uintptr(unsafe.Pointer(&affected)))
	return NativeResult(res), affected, status(r)
}

func (e *NativeEngine) CleanupStatement(h Handle, s NativeStatement) {
	syscallN(e.fnCleanupStatement, uintptr(h), uintptr(s))
}

func (e *NativeEngine) GetAutocommit(h Handle) (bool, int) {
	var value int32
	r := syscallN(e.fnGetAutocommit, uintptr(h), uintptr(unsafe.Pointer(&value)))
	return value != 0, status(r)
}

func (e *NativeEngine) SetAutocommit(h Handle, value bool) int {
	v := uintptr(0)
	if value {
		v = 1
	}
	return status(syscallN(e.fnSetAutocommit, uintptr(h), v))
}

func (e *NativeEngine) InTransaction(h Handle) bool {
	return syscallN(e.fnInTransaction, uintptr(h)) != 0
}

func (e *NativeEngine) Append(h Handle, schema, table []byte, cols []ColumnDesc) int {
	schemaBuf := nulTerminated(schema)
	tableBuf := nulTerminated(table)

	// The engine takes an array of pointers to column descriptors.
	work := make([]nativeColumn, len(cols))
	ptrs := make([]uintptr, len(cols))
	nameBufs := make([][]byte, len(cols))
	for i, c := range cols {
		nameBufs[i] = nulTerminated([]byte(c.Name))
		work[i] = nativeColumn{
			typ:   int32(c.Type),
			count: c.Count,
			name:  bufPtr(nameBufs[i]),
			data:  uintptr(c.Data),
		}
		ptrs[i] = uintptr(unsafe.Pointer(&work[i]))
	}

	var colsArg uintptr
	if len(ptrs) > 0 {
		colsArg = uintptr(unsafe.Pointer(&ptrs[0]))
	}

	r := syscallN(e.fnAppend, uintptr(h), bufPtr(schemaBuf), bufPtr(tableBuf), colsArg, uintptr(len(cols)))
	runtime.KeepAlive(schemaBuf)
	runtime.KeepAlive(tableBuf)
	runtime.KeepAlive(nameBufs)
	runtime.KeepAlive(work)
	runtime.KeepAlive(ptrs)
	return status(r)
}

func (e *NativeEngine) GetColumns(h Handle, schema, table []byte) ([]ColumnMeta, int) {
	schemaBuf := nulTerminated(schema)
	tableBuf := nulTerminated(table)

	var count uint64
	var names uintptr // char **
	var types uintptr // int32 *

	r := syscallN(e.fnGetColumns, uintptr(h), bufPtr(schemaBuf), bufPtr(tableBuf),
		uintptr(unsafe.Pointer(&count)),
		uintptr(unsafe.Pointer(&names)),
		uintptr(unsafe.Pointer(&types)))
	runtime.KeepAlive(schemaBuf)
	runtime.KeepAlive(tableBuf)

	code := status(r)
	if code != StatusOK || count == 0 || names == 0 || types == 0 {
		return nil, code
	}

	namePtrs := unsafe.Slice((*uintptr)(unsafe.Pointer(names)), count)
	typeTags := unsafe.Slice((*int32)(unsafe.Pointer(types)), count)

	meta := make([]ColumnMeta, count)
	for i := range meta {
		meta[i] = ColumnMeta{
			Name: goStringFromPtr(unsafe.Pointer(namePtrs[i])),
			Type: Type(typeTags[i]),
		}
	}
	return meta, StatusOK
}

func (e *NativeEngine) DumpDatabase(h Handle, path []byte) int {
	buf := nulTerminated(path)
	r := syscallN(e.fnDumpDatabase, uintptr(h), bufPtr(buf))
	runtime.KeepAlive(buf)
	return status(r)
}

func (e *NativeEngine) DumpTable(h Handle, schema, table, path []byte) int {
	schemaBuf := nulTerminated(schema)
	tableBuf := nulTerminated(table)
	pathBuf := nulTerminated(path)
	r := syscallN(e.fnDumpTable, uintptr(h), bufPtr(schemaBuf), bufPtr(tableBuf), bufPtr(pathBuf))
	runtime.KeepAlive(schemaBuf)
	runtime.KeepAlive(tableBuf)
	runtime.KeepAlive(pathBuf)
	return status(r)
}
