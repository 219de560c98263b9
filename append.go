package stonebed

import (
	"runtime"
	"sort"
	"strings"
	"time"
	"unsafe"
)

// Append bulk-inserts pre-built columnar arrays into a table, bypassing
// row-by-row SQL. The provided column names must exactly match the table's
// column set, every array's engine type must match the declared column type,
// and all arrays must have the same length. The arrays are handed to the
// engine without copying where the layout already matches and must not be
// mutated until Append returns.
//
// Supported array types: []bool, []int8, []int16, []int32, []int64,
// []float32, []float64, []string, []*string (nil = null), []Date,
// []Timestamp, and []time.Time (converted to timestamps).
func (s *Session) Append(schema, table string, columns map[string]interface{}) error {
	return s.registry.run(s, func() error {
		// Schema is re-fetched on every append so validation never runs
		// against stale metadata.
		meta, code := s.engine.GetColumns(s.handle, []byte(schema), []byte(table))
		if code != StatusOK {
			return s.operr(code)
		}

		if err := matchColumnSets(meta, columns); err != nil {
			return err
		}

		rows := -1
		for name, values := range columns {
			n, err := arrayLen(values)
			if err != nil {
				return err
			}
			if rows == -1 {
				rows = n
			} else if n != rows {
				return Errorf(ErrProgramming, "appended column '%s' has %d rows where other columns have %d", name, n, rows)
			}
		}

		var batch appendBatch
		descs := make([]ColumnDesc, len(meta))
		for i, m := range meta {
			values := columns[m.Name]
			tag, typeName, err := engineTypeFor(values)
			if err != nil {
				return err
			}
			if tag != m.Type {
				return Errorf(ErrProgramming, "type '%s' for appended column '%s' does not match table type '%s'",
					typeName, m.Name, TypeName(m.Type))
			}
			descs[i] = ColumnDesc{
				Type:  tag,
				Count: uint64(rows),
				Name:  m.Name,
				Data:  batch.dataPointer(values),
			}
		}

		code = s.engine.Append(s.handle, []byte(schema), []byte(table), descs)
		runtime.KeepAlive(columns)
		runtime.KeepAlive(&batch)
		if code != StatusOK {
			return s.operr(code)
		}
		return nil
	})
}

// matchColumnSets checks, order-independently, that the provided column
// names exactly equal the table's column names.
func matchColumnSets(meta []ColumnMeta, columns map[string]interface{}) error {
	existing := make([]string, len(meta))
	byName := make(map[string]bool, len(meta))
	for i, m := range meta {
		existing[i] = m.Name
		byName[m.Name] = true
	}

	provided := make([]string, 0, len(columns))
	for name := range columns {
		provided = append(provided, name)
	}
	sort.Strings(provided)

	if len(provided) == len(meta) {
		match := true
		for _, name := range provided {
			if !byName[name] {
				match = false
				break
			}
		}
		if match {
			return nil
		}
	}

	return Errorf(ErrProgramming, "appended column names (%s) don't match existing column names (%s)",
		strings.Join(provided, ", "), strings.Join(existing, ", "))
}

// arrayLen returns the row count of an append array.
func arrayLen(values interface{}) (int, error) {
	switch v := values.(type) {
	case []bool:
		return len(v), nil
	case []int8:
		return len(v), nil
	case []int16:
		return len(v), nil
	case []int32:
		return len(v), nil
	case []int64:
		return len(v), nil
	case []float32:
		return len(v), nil
	case []float64:
		return len(v), nil
	case []string:
		return len(v), nil
	case []*string:
		return len(v), nil
	case []Date:
		return len(v), nil
	case []Timestamp:
		return len(v), nil
	case []time.Time:
		return len(v), nil
	default:
		return 0, Errorf(ErrUnsupportedType, "no engine type for array of %T", values)
	}
}

// appendBatch owns the side buffers a descriptor build allocates: per-row
// string pointer tables and converted timestamp ticks. Keeping it alive
// keeps every buffer the engine was handed alive too.
type appendBatch struct {
	byteBufs  [][]byte
	ptrTables [][]unsafe.Pointer
	tickBufs  [][]Timestamp
}

// dataPointer produces the raw buffer reference for one append array. The
// fixed-width layouts are passed through without copying; strings grow a
// NUL-terminated pointer table and time.Time values are converted to ticks.
func (b *appendBatch) dataPointer(values interface{}) unsafe.Pointer {
	switch v := values.(type) {
	case []bool:
		return slicePtr(v)
	case []int8:
		return slicePtr(v)
	case []int16:
		return slicePtr(v)
	case []int32:
		return slicePtr(v)
	case []int64:
		return slicePtr(v)
	case []float32:
		return slicePtr(v)
	case []float64:
		return slicePtr(v)
	case []Date:
		return slicePtr(v)
	case []Timestamp:
		return slicePtr(v)
	case []string:
		ptrs := make([]unsafe.Pointer, len(v))
		for i, s := range v {
			ptrs[i] = b.cString(s)
		}
		b.ptrTables = append(b.ptrTables, ptrs)
		return slicePtr(ptrs)
	case []*string:
		ptrs := make([]unsafe.Pointer, len(v))
		for i, s := range v {
			if s != nil {
				ptrs[i] = b.cString(*s)
			}
		}
		b.ptrTables = append(b.ptrTables, ptrs)
		return slicePtr(ptrs)
	case []time.Time:
		ticks := make([]Timestamp, len(v))
		for i, t := range v {
			ticks[i] = TimestampOf(t)
		}
		b.tickBufs = append(b.tickBufs, ticks)
		return slicePtr(ticks)
	}
	return nil
}

// cString pins a NUL-terminated copy of s and returns its address.
func (b *appendBatch) cString(s string) unsafe.Pointer {
	buf := append([]byte(s), 0)
	b.byteBufs = append(b.byteBufs, buf)
	return unsafe.Pointer(&buf[0])
}

// slicePtr returns the address of the first element, or nil for an empty
// slice.
func slicePtr[T any](v []T) unsafe.Pointer {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Pointer(&v[0])
}
