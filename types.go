package stonebed

import (
	"math"
	"time"
)

// Type is an engine column type tag.
type Type int32

const (
	TypeUnknown Type = iota
	TypeBool
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat
	TypeDouble
	TypeString
	TypeDate
	TypeTime
	TypeTimestamp
)

// Date is a day count since the Unix epoch, the engine's wire layout for
// DATE columns.
type Date int32

// Timestamp is a nanosecond tick count since the Unix epoch, the engine's
// wire layout for TIMESTAMP columns.
type Timestamp int64

// DateOf converts a time.Time to its day count.
func DateOf(t time.Time) Date {
	return Date(t.UTC().Unix() / (60 * 60 * 24))
}

// Time converts a day count back to a UTC time at midnight.
func (d Date) Time() time.Time {
	return time.Unix(int64(d)*24*60*60, 0).UTC()
}

// TimestampOf converts a time.Time to its tick count.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp(t.UTC().UnixNano())
}

// Time converts a tick count back to a UTC time.
func (ts Timestamp) Time() time.Time {
	return time.Unix(0, int64(ts)).UTC()
}

// Null sentinels for the fixed-width types. A cell holding its type's
// sentinel reads back as null. Floats use NaN instead of an integer
// sentinel; booleans reserve no sentinel at all.
const (
	NullInt8      = int8(math.MinInt8)
	NullInt16     = int16(math.MinInt16)
	NullInt32     = int32(math.MinInt32)
	NullInt64     = int64(math.MinInt64)
	NullDate      = Date(math.MinInt32)
	NullTime      = int64(math.MinInt64)
	NullTimestamp = Timestamp(math.MinInt64)
)

// NullFloat returns the float32 null sentinel.
func NullFloat() float32 { return float32(math.NaN()) }

// NullDouble returns the float64 null sentinel.
func NullDouble() float64 { return math.NaN() }

// decodeKind selects the materialization strategy for a type tag.
type decodeKind int

const (
	kindFixed     decodeKind = iota // direct buffer reinterpretation
	kindString                      // per-row pointer dereference
	kindDate                        // 32-bit day count
	kindTime                        // no safe array equivalent
	kindTimestamp                   // 64-bit tick count
)

// arraySpec describes how a column of a given type tag is laid out and
// materialized.
type arraySpec struct {
	kind decodeKind
	size int    // element size in bytes
	name string // engine type name, used in error messages
}

// typeSpecs is the closed converter table. It is initialized once and never
// mutated; callers cannot register converters at runtime.
var typeSpecs = map[Type]arraySpec{
	TypeBool:      {kindFixed, 1, "bool"},
	TypeInt8:      {kindFixed, 1, "int8"},
	TypeInt16:     {kindFixed, 2, "int16"},
	TypeInt32:     {kindFixed, 4, "int32"},
	TypeInt64:     {kindFixed, 8, "int64"},
	TypeFloat:     {kindFixed, 4, "float"},
	TypeDouble:    {kindFixed, 8, "double"},
	TypeString:    {kindString, 8, "str"},
	TypeDate:      {kindDate, 4, "date"},
	TypeTime:      {kindTime, 8, "time"},
	TypeTimestamp: {kindTimestamp, 8, "timestamp"},
}

// specFor resolves the array spec for an engine type tag.
func specFor(tag Type) (arraySpec, error) {
	spec, ok := typeSpecs[tag]
	if !ok {
		return arraySpec{}, Errorf(ErrUnsupportedType, "unknown engine type tag %d", tag)
	}
	return spec, nil
}

// TypeName returns the engine's name for a type tag, or "unknown".
func TypeName(tag Type) string {
	if spec, ok := typeSpecs[tag]; ok {
		return spec.name
	}
	return "unknown"
}

// engineTypeFor maps a Go array to its engine column type. This is the
// inverse of the materialization table and is what append validation uses to
// compare a provided batch against a table's declared types.
func engineTypeFor(values interface{}) (Type, string, error) {
	switch values.(type) {
	case []bool:
		return TypeBool, "bool", nil
	case []int8:
		return TypeInt8, "int8", nil
	case []int16:
		return TypeInt16, "int16", nil
	case []int32:
		return TypeInt32, "int32", nil
	case []int64:
		return TypeInt64, "int64", nil
	case []float32:
		return TypeFloat, "float", nil
	case []float64:
		return TypeDouble, "double", nil
	case []string, []*string:
		return TypeString, "str", nil
	case []Date:
		return TypeDate, "date", nil
	case []Timestamp:
		return TypeTimestamp, "timestamp", nil
	case []time.Time:
		return TypeTimestamp, "timestamp", nil
	default:
		return TypeUnknown, "", Errorf(ErrUnsupportedType, "no engine type for array of %T", values)
	}
}
