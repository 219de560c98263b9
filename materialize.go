package stonebed

import (
	"math"
	"time"
	"unsafe"
)

// materializeColumn turns one native column descriptor into a Column.
//
// Fixed-width buffers are reinterpreted in place, so the resulting slices
// alias engine memory and stay valid only as long as the owning result.
// String, date and timestamp columns are extracted row by row into Go-owned
// storage and carry no lifetime tie.
func materializeColumn(owner *ResultHandle, desc ColumnDesc) (*Column, error) {
	spec, err := specFor(desc.Type)
	if err != nil {
		return nil, err
	}

	n := int(desc.Count)
	col := &Column{Name: desc.Name, Type: desc.Type, Len: n}

	switch spec.kind {
	case kindFixed:
		col.owner = owner
		switch desc.Type {
		case TypeBool:
			// bool reserves no sentinel; the mask stays empty.
			col.data = unsafe.Slice((*bool)(desc.Data), n)
		case TypeInt8:
			v := unsafe.Slice((*int8)(desc.Data), n)
			col.data, col.Nulls = v, maskEq(v, NullInt8)
		case TypeInt16:
			v := unsafe.Slice((*int16)(desc.Data), n)
			col.data, col.Nulls = v, maskEq(v, NullInt16)
		case TypeInt32:
			v := unsafe.Slice((*int32)(desc.Data), n)
			col.data, col.Nulls = v, maskEq(v, NullInt32)
		case TypeInt64:
			v := unsafe.Slice((*int64)(desc.Data), n)
			col.data, col.Nulls = v, maskEq(v, NullInt64)
		case TypeFloat:
			v := unsafe.Slice((*float32)(desc.Data), n)
			nulls := make([]bool, n)
			for i, f := range v {
				nulls[i] = math.IsNaN(float64(f))
			}
			col.data, col.Nulls = v, nulls
		case TypeDouble:
			v := unsafe.Slice((*float64)(desc.Data), n)
			nulls := make([]bool, n)
			for i, f := range v {
				nulls[i] = math.IsNaN(f)
			}
			col.data, col.Nulls = v, nulls
		}

	case kindString:
		ptrs := unsafe.Slice((*unsafe.Pointer)(desc.Data), n)
		vals := make([]string, n)
		nulls := make([]bool, n)
		for i, p := range ptrs {
			if p == nil {
				nulls[i] = true
				continue
			}
			vals[i] = goStringFromPtr(p)
		}
		col.data, col.Nulls = vals, nulls

	case kindDate:
		days := unsafe.Slice((*Date)(desc.Data), n)
		vals := make([]time.Time, n)
		nulls := make([]bool, n)
		for i, d := range days {
			if d == NullDate {
				nulls[i] = true
				continue
			}
			vals[i] = d.Time()
		}
		col.data, col.Nulls = vals, nulls

	case kindTimestamp:
		ticks := unsafe.Slice((*Timestamp)(desc.Data), n)
		vals := make([]time.Time, n)
		nulls := make([]bool, n)
		for i, ts := range ticks {
			if ts == NullTimestamp {
				nulls[i] = true
				continue
			}
			vals[i] = ts.Time()
		}
		col.data, col.Nulls = vals, nulls

	case kindTime:
		owner.session.log.Warn("not converting TIME column; no calendar array equivalent",
			"column", desc.Name)
		v := unsafe.Slice((*int64)(desc.Data), n)
		col.owner = owner
		col.data, col.Nulls = v, maskEq(v, NullTime)
	}

	return col, nil
}

// maskEq builds the null mask by comparing every element to the type's
// sentinel value.
func maskEq[T comparable](v []T, sentinel T) []bool {
	nulls := make([]bool, len(v))
	for i, x := range v {
		nulls[i] = x == sentinel
	}
	return nulls
}

// goStringFromPtr copies a NUL-terminated engine string into Go memory.
func goStringFromPtr(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(p), n))
}
