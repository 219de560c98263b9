// Package memengine is a pure-Go stonebed engine used by tests and
// examples. It implements the same narrow capability surface the native
// library exposes, including raw column buffers handed across the boundary,
// so the binding's zero-copy materialization path runs unchanged against it.
//
// It understands only the statement forms the binding itself exercises:
// CREATE TABLE, DROP TABLE, DELETE FROM, SELECT *, and transaction control.
// It is a stand-in for the real engine, not a SQL implementation.
package memengine

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"unsafe"

	stonebed "github.com/stonebed/go-stonebed"
)

// Engine is an in-memory implementation of stonebed.Engine.
type Engine struct {
	mu     sync.Mutex
	nextID uintptr

	dbs     map[stonebed.Handle]*database
	results map[stonebed.NativeResult]*resultSet
	stmts   map[stonebed.NativeStatement]*statement
	errs    map[stonebed.Handle]string

	closeCount int

	failOpenCode int
	failOpenText string
	failClose    bool
}

// New creates an empty engine.
func New() *Engine {
	return &Engine{
		nextID:  1,
		dbs:     make(map[stonebed.Handle]*database),
		results: make(map[stonebed.NativeResult]*resultSet),
		stmts:   make(map[stonebed.NativeStatement]*statement),
		errs:    make(map[stonebed.Handle]string),
	}
}

type database struct {
	path       string
	autocommit bool
	inTx       bool
	tables     map[string]*table
}

type colDef struct {
	name string
	typ  stonebed.Type
}

type table struct {
	defs []colDef
	cols []interface{} // sentinel-encoded typed slices, parallel to defs
	rows int
}

type resultSet struct {
	descs []stonebed.ColumnDesc
	nrows int64

	// backing stores for the raw buffers handed out in descs
	pinned []interface{}
}

type statement struct {
	db     stonebed.Handle
	sql    string
	params []string
}

func (e *Engine) id() uintptr {
	v := e.nextID
	e.nextID++
	return v
}

func (e *Engine) setErr(h stonebed.Handle, format string, args ...interface{}) int {
	e.errs[h] = fmt.Sprintf(format, args...)
	return stonebed.StatusEngine
}

// FailNextOpen makes the next Open return the given status code. For
// StatusEngine a partial handle is allocated carrying errText, mirroring how
// the native engine hands back a connection that must still be closed.
func (e *Engine) FailNextOpen(code int, errText string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failOpenCode = code
	e.failOpenText = errText
}

// FailNextClose makes the next Close report failure.
func (e *Engine) FailNextClose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failClose = true
}

// OpenConnections reports how many handles are currently open.
func (e *Engine) OpenConnections() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.dbs)
}

// CloseCount reports how many times Close has been called.
func (e *Engine) CloseCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeCount
}

// RowCount reports the stored row count of a table, for test assertions
// that bypass the query path.
func (e *Engine) RowCount(h stonebed.Handle, name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	db, ok := e.dbs[h]
	if !ok {
		return -1
	}
	t, ok := db.tables[strings.ToLower(name)]
	if !ok {
		return -1
	}
	return t.rows
}

func (e *Engine) Open(path string, opts stonebed.Options) (stonebed.Handle, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.failOpenCode != 0 {
		code := e.failOpenCode
		e.failOpenCode = 0
		if code == stonebed.StatusEngine {
			h := stonebed.Handle(e.id())
			e.dbs[h] = &database{path: path, autocommit: true, tables: make(map[string]*table)}
			e.errs[h] = e.failOpenText
			return h, code
		}
		return 0, code
	}

	h := stonebed.Handle(e.id())
	e.dbs[h] = &database{path: path, autocommit: true, tables: make(map[string]*table)}
	return h, stonebed.StatusOK
}

func (e *Engine) Close(h stonebed.Handle) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closeCount++
	if e.failClose {
		e.failClose = false
		return stonebed.StatusEngine
	}
	if _, ok := e.dbs[h]; !ok {
		return stonebed.StatusEngine
	}
	delete(e.dbs, h)
	return stonebed.StatusOK
}

func (e *Engine) Error(h stonebed.Handle) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errs[h]
}

func (e *Engine) Query(h stonebed.Handle, sql []byte, wantResult bool) (stonebed.NativeResult, int64, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queryLocked(h, string(sql), wantResult)
}

func (e *Engine) queryLocked(h stonebed.Handle, sql string, wantResult bool) (stonebed.NativeResult, int64, int) {
	db, ok := e.dbs[h]
	if !ok {
		return 0, 0, e.setErr(h, "no open database")
	}

	stmt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sql), ";"))
	upper := strings.ToUpper(stmt)

	switch {
	case strings.HasPrefix(upper, "CREATE TABLE "):
		if code := e.execCreate(h, db, stmt); code != stonebed.StatusOK {
			return 0, 0, code
		}
		return 0, 0, stonebed.StatusOK

	case strings.HasPrefix(upper, "DROP TABLE "):
		name := strings.ToLower(strings.TrimSpace(stmt[len("DROP TABLE "):]))
		if _, ok := db.tables[name]; !ok {
			return 0, 0, e.setErr(h, "no such table: %s", name)
		}
		delete(db.tables, name)
		return 0, 0, stonebed.StatusOK

	case strings.HasPrefix(upper, "DELETE FROM "):
		name := strings.ToLower(strings.TrimSpace(stmt[len("DELETE FROM "):]))
		t, ok := db.tables[name]
		if !ok {
			return 0, 0, e.setErr(h, "no such table: %s", name)
		}
		affected := int64(t.rows)
		for i, def := range t.defs {
			t.cols[i] = emptyColumn(def.typ)
		}
		t.rows = 0
		return 0, affected, stonebed.StatusOK

	case strings.HasPrefix(upper, "SELECT * FROM "):
		name := strings.ToLower(strings.TrimSpace(stmt[len("SELECT * FROM "):]))
		t, ok := db.tables[name]
		if !ok {
			return 0, 0, e.setErr(h, "no such table: %s", name)
		}
		if !wantResult {
			return 0, 0, stonebed.StatusOK
		}
		rs := snapshot(t)
		r := stonebed.NativeResult(e.id())
		e.results[r] = rs
		return r, 0, stonebed.StatusOK

	case upper == "BEGIN" || upper == "BEGIN TRANSACTION" || upper == "START TRANSACTION":
		db.inTx = true
		return 0, 0, stonebed.StatusOK

	case upper == "COMMIT" || upper == "ROLLBACK":
		db.inTx = false
		return 0, 0, stonebed.StatusOK
	}

	return 0, 0, e.setErr(h, "syntax error in: %s", stmt)
}

func (e *Engine) execCreate(h stonebed.Handle, db *database, stmt string) int {
	rest := strings.TrimSpace(stmt[len("CREATE TABLE "):])
	open := strings.IndexByte(rest, '(')
	if open < 0 || !strings.HasSuffix(rest, ")") {
		return e.setErr(h, "syntax error in: %s", stmt)
	}

	name := strings.ToLower(strings.TrimSpace(rest[:open]))
	if name == "" {
		return e.setErr(h, "syntax error in: %s", stmt)
	}
	if _, ok := db.tables[name]; ok {
		return e.setErr(h, "table %s already exists", name)
	}

	t := &table{}
	for _, part := range strings.Split(rest[open+1:len(rest)-1], ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) < 2 {
			return e.setErr(h, "syntax error in column definition: %s", part)
		}
		typ, ok := sqlType(fields[1])
		if !ok {
			return e.setErr(h, "unsupported column type: %s", fields[1])
		}
		t.defs = append(t.defs, colDef{name: strings.ToLower(fields[0]), typ: typ})
		t.cols = append(t.cols, emptyColumn(typ))
	}

	db.tables[name] = t
	return stonebed.StatusOK
}

// sqlType maps a declared SQL type to its engine tag.
func sqlType(s string) (stonebed.Type, bool) {
	base := strings.ToUpper(s)
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = base[:i]
	}
	switch base {
	case "BOOL", "BOOLEAN":
		return stonebed.TypeBool, true
	case "TINYINT":
		return stonebed.TypeInt8, true
	case "SMALLINT":
		return stonebed.TypeInt16, true
	case "INT", "INTEGER":
		return stonebed.TypeInt32, true
	case "BIGINT":
		return stonebed.TypeInt64, true
	case "REAL", "FLOAT":
		return stonebed.TypeFloat, true
	case "DOUBLE":
		return stonebed.TypeDouble, true
	case "VARCHAR", "TEXT", "STRING":
		return stonebed.TypeString, true
	case "DATE":
		return stonebed.TypeDate, true
	case "TIME":
		return stonebed.TypeTime, true
	case "TIMESTAMP":
		return stonebed.TypeTimestamp, true
	}
	return stonebed.TypeUnknown, false
}

func emptyColumn(typ stonebed.Type) interface{} {
	switch typ {
	case stonebed.TypeBool:
		return []bool(nil)
	case stonebed.TypeInt8:
		return []int8(nil)
	case stonebed.TypeInt16:
		return []int16(nil)
	case stonebed.TypeInt32:
		return []int32(nil)
	case stonebed.TypeInt64, stonebed.TypeTime:
		return []int64(nil)
	case stonebed.TypeFloat:
		return []float32(nil)
	case stonebed.TypeDouble:
		return []float64(nil)
	case stonebed.TypeString:
		return []*string(nil)
	case stonebed.TypeDate:
		return []stonebed.Date(nil)
	case stonebed.TypeTimestamp:
		return []stonebed.Timestamp(nil)
	}
	return nil
}

// snapshot copies a table's columns into raw wire buffers, exactly as the
// native engine pins result memory until cleanup.
func snapshot(t *table) *resultSet {
	rs := &resultSet{nrows: int64(t.rows)}
	for i, def := range t.defs {
		desc := stonebed.ColumnDesc{
			Type:  def.typ,
			Count: uint64(t.rows),
			Name:  def.name,
		}

		switch v := t.cols[i].(type) {
		case []bool:
			buf := append([]bool(nil), v...)
			rs.pinned = append(rs.pinned, buf)
			desc.Data = sliceData(buf)
		case []int8:
			buf := append([]int8(nil), v...)
			rs.pinned = append(rs.pinned, buf)
			desc.Data = sliceData(buf)
		case []int16:
			buf := append([]int16(nil), v...)
			rs.pinned = append(rs.pinned, buf)
			desc.Data = sliceData(buf)
		case []int32:
			buf := append([]int32(nil), v...)
			rs.pinned = append(rs.pinned, buf)
			desc.Data = sliceData(buf)
		case []int64:
			buf := append([]int64(nil), v...)
			rs.pinned = append(rs.pinned, buf)
			desc.Data = sliceData(buf)
		case []float32:
			buf := append([]float32(nil), v...)
			rs.pinned = append(rs.pinned, buf)
			desc.Data = sliceData(buf)
		case []float64:
			buf := append([]float64(nil), v...)
			rs.pinned = append(rs.pinned, buf)
			desc.Data = sliceData(buf)
		case []stonebed.Date:
			buf := append([]stonebed.Date(nil), v...)
			rs.pinned = append(rs.pinned, buf)
			desc.Data = sliceData(buf)
		case []stonebed.Timestamp:
			buf := append([]stonebed.Timestamp(nil), v...)
			rs.pinned = append(rs.pinned, buf)
			desc.Data = sliceData(buf)
		case []*string:
			bufs := make([][]byte, len(v))
			ptrs := make([]unsafe.Pointer, len(v))
			for j, s := range v {
				if s == nil {
					continue
				}
				bufs[j] = append([]byte(*s), 0)
				ptrs[j] = unsafe.Pointer(&bufs[j][0])
			}
			rs.pinned = append(rs.pinned, bufs, ptrs)
			desc.Data = sliceData(ptrs)
		}

		rs.descs = append(rs.descs, desc)
	}
	return rs
}

func sliceData[T any](v []T) unsafe.Pointer {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Pointer(&v[0])
}

func (e *Engine) ResultColumnCount(r stonebed.NativeResult) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	rs, ok := e.results[r]
	if !ok {
		return 0
	}
	return len(rs.descs)
}

func (e *Engine) ResultRowCount(r stonebed.NativeResult) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	rs, ok := e.results[r]
	if !ok {
		return 0
	}
	return rs.nrows
}

func (e *Engine) FetchColumn(r stonebed.NativeResult, index int) (stonebed.ColumnDesc, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rs, ok := e.results[r]
	if !ok {
		return stonebed.ColumnDesc{}, stonebed.StatusEngine
	}
	if index < 0 || index >= len(rs.descs) {
		return stonebed.ColumnDesc{}, stonebed.StatusEngine
	}
	return rs.descs[index], stonebed.StatusOK
}

func (e *Engine) CleanupResult(h stonebed.Handle, r stonebed.NativeResult) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.results[r]; !ok {
		return e.setErr(h, "unknown result")
	}
	delete(e.results, r)
	return stonebed.StatusOK
}

func (e *Engine) Prepare(h stonebed.Handle, sql []byte) (stonebed.NativeStatement, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.dbs[h]; !ok {
		return 0, e.setErr(h, "no open database")
	}

	text := string(sql)
	s := stonebed.NativeStatement(e.id())
	e.stmts[s] = &statement{
		db:     h,
		sql:    text,
		params: make([]string, strings.Count(text, "?")),
	}
	return s, stonebed.StatusOK
}

func (e *Engine) Bind(s stonebed.NativeStatement, value []byte, index int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.stmts[s]
	if !ok {
		return stonebed.StatusEngine
	}
	if index < 0 || index >= len(st.params) {
		return e.setErr(st.db, "bind index %d out of range", index)
	}
	st.params[index] = string(value)
	return stonebed.StatusOK
}

func (e *Engine) Execute(s stonebed.NativeStatement, wantResult bool) (stonebed.NativeResult, int64, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.stmts[s]
	if !ok {
		return 0, 0, stonebed.StatusEngine
	}

	sql := st.sql
	for _, p := range st.params {
		sql = strings.Replace(sql, "?", p, 1)
	}
	return e.queryLocked(st.db, sql, wantResult)
}

func (e *Engine) CleanupStatement(h stonebed.Handle, s stonebed.NativeStatement) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.stmts, s)
}

func (e *Engine) GetAutocommit(h stonebed.Handle) (bool, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, ok := e.dbs[h]
	if !ok {
		return false, e.setErr(h, "no open database")
	}
	return db.autocommit, stonebed.StatusOK
}

func (e *Engine) SetAutocommit(h stonebed.Handle, value bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, ok := e.dbs[h]
	if !ok {
		return e.setErr(h, "no open database")
	}
	db.autocommit = value
	return stonebed.StatusOK
}

func (e *Engine) InTransaction(h stonebed.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, ok := e.dbs[h]
	return ok && db.inTx
}

func (e *Engine) Append(h stonebed.Handle, schema, table []byte, cols []stonebed.ColumnDesc) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, ok := e.dbs[h]
	if !ok {
		return e.setErr(h, "no open database")
	}
	name := strings.ToLower(string(table))
	t, ok := db.tables[name]
	if !ok {
		return e.setErr(h, "no such table: %s", name)
	}
	if len(cols) != len(t.defs) {
		return e.setErr(h, "append expects %d columns, got %d", len(t.defs), len(cols))
	}

	rows := -1
	for _, c := range cols {
		if rows == -1 {
			rows = int(c.Count)
		} else if int(c.Count) != rows {
			return e.setErr(h, "append column %s has %d rows, expected %d", c.Name, c.Count, rows)
		}
	}

	for _, c := range cols {
		idx := -1
		for i, def := range t.defs {
			if def.name == strings.ToLower(c.Name) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return e.setErr(h, "no such column: %s", c.Name)
		}
		if t.defs[idx].typ != c.Type {
			return e.setErr(h, "append column %s has type %d, expected %d", c.Name, c.Type, t.defs[idx].typ)
		}
		t.cols[idx] = appendRaw(t.cols[idx], c)
	}
	t.rows += rows
	return stonebed.StatusOK
}

// appendRaw copies rows out of a raw append buffer into the table's storage.
func appendRaw(stored interface{}, c stonebed.ColumnDesc) interface{} {
	n := int(c.Count)
	if n == 0 {
		return stored
	}

	switch v := stored.(type) {
	case []bool:
		return append(v, unsafe.Slice((*bool)(c.Data), n)...)
	case []int8:
		return append(v, unsafe.Slice((*int8)(c.Data), n)...)
	case []int16:
		return append(v, unsafe.Slice((*int16)(c.Data), n)...)
	case []int32:
		return append(v, unsafe.Slice((*int32)(c.Data), n)...)
	case []int64:
		return append(v, unsafe.Slice((*int64)(c.Data), n)...)
	case []float32:
		return append(v, unsafe.Slice((*float32)(c.Data), n)...)
	case []float64:
		return append(v, unsafe.Slice((*float64)(c.Data), n)...)
	case []stonebed.Date:
		return append(v, unsafe.Slice((*stonebed.Date)(c.Data), n)...)
	case []stonebed.Timestamp:
		return append(v, unsafe.Slice((*stonebed.Timestamp)(c.Data), n)...)
	case []*string:
		ptrs := unsafe.Slice((*unsafe.Pointer)(c.Data), n)
		for _, p := range ptrs {
			if p == nil {
				v = append(v, nil)
				continue
			}
			s := goString(p)
			v = append(v, &s)
		}
		return v
	}
	return stored
}

// goString copies a NUL-terminated buffer into a Go string.
func goString(p unsafe.Pointer) string {
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(p), n))
}

func (e *Engine) GetColumns(h stonebed.Handle, schema, table []byte) ([]stonebed.ColumnMeta, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, ok := e.dbs[h]
	if !ok {
		return nil, e.setErr(h, "no open database")
	}
	name := strings.ToLower(string(table))
	t, ok := db.tables[name]
	if !ok {
		return nil, e.setErr(h, "no such table: %s", name)
	}

	meta := make([]stonebed.ColumnMeta, len(t.defs))
	for i, def := range t.defs {
		meta[i] = stonebed.ColumnMeta{Name: def.name, Type: def.typ}
	}
	return meta, stonebed.StatusOK
}

func (e *Engine) DumpDatabase(h stonebed.Handle, path []byte) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, ok := e.dbs[h]
	if !ok {
		return e.setErr(h, "no open database")
	}

	var sb strings.Builder
	for name, t := range db.tables {
		fmt.Fprintf(&sb, "%s: %d rows\n", name, t.rows)
	}
	if err := os.WriteFile(string(path), []byte(sb.String()), 0o644); err != nil {
		return e.setErr(h, "dump failed: %v", err)
	}
	return stonebed.StatusOK
}

func (e *Engine) DumpTable(h stonebed.Handle, schema, table, path []byte) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	db, ok := e.dbs[h]
	if !ok {
		return e.setErr(h, "no open database")
	}
	name := strings.ToLower(string(table))
	t, ok := db.tables[name]
	if !ok {
		return e.setErr(h, "no such table: %s", name)
	}
	if err := os.WriteFile(string(path), []byte(fmt.Sprintf("%s: %d rows\n", name, t.rows)), 0o644); err != nil {
		return e.setErr(h, "dump failed: %v", err)
	}
	return stonebed.StatusOK
}
