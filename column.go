package stonebed

import (
	"sync/atomic"
	"time"
)

// Column is one materialized, immutable result column paired with its null
// mask. Fixed-width columns alias engine-owned memory; their accessors fail
// once the owning ResultHandle has been cleaned up. Variable-width and
// temporal columns are copied out and stay valid indefinitely.
type Column struct {
	Name string
	Type Type
	Len  int

	// Nulls marks the masked positions. It is nil for types that reserve
	// no null sentinel.
	Nulls []bool

	data  interface{}
	owner *ResultHandle
}

// alive checks the zero-copy lifetime tie to the owning result.
func (c *Column) alive() error {
	if c.owner != nil && atomic.LoadInt32(&c.owner.cleaned) != 0 {
		return ErrResultCleaned
	}
	return nil
}

// Null reports whether row i is masked.
func (c *Column) Null(i int) bool {
	return c.Nulls != nil && c.Nulls[i]
}

// Bools returns the column as a bool slice.
func (c *Column) Bools() ([]bool, error) {
	return typedData[bool](c, TypeBool)
}

// Int8s returns the column as an int8 slice.
func (c *Column) Int8s() ([]int8, error) {
	return typedData[int8](c, TypeInt8)
}

// Int16s returns the column as an int16 slice.
func (c *Column) Int16s() ([]int16, error) {
	return typedData[int16](c, TypeInt16)
}

// Int32s returns the column as an int32 slice.
func (c *Column) Int32s() ([]int32, error) {
	return typedData[int32](c, TypeInt32)
}

// Int64s returns the column as an int64 slice.
func (c *Column) Int64s() ([]int64, error) {
	return typedData[int64](c, TypeInt64)
}

// Float32s returns the column as a float32 slice.
func (c *Column) Float32s() ([]float32, error) {
	return typedData[float32](c, TypeFloat)
}

// Float64s returns the column as a float64 slice.
func (c *Column) Float64s() ([]float64, error) {
	return typedData[float64](c, TypeDouble)
}

// Strings returns a string column. Masked rows hold the empty string.
func (c *Column) Strings() ([]string, error) {
	return typedData[string](c, TypeString)
}

// Times returns a date or timestamp column as UTC times, at day and
// nanosecond precision respectively. Masked rows hold the zero time.
func (c *Column) Times() ([]time.Time, error) {
	if err := c.alive(); err != nil {
		return nil, err
	}
	if c.Type != TypeDate && c.Type != TypeTimestamp {
		return nil, Errorf(ErrUnsupportedType, "column %q is %s, not date or timestamp", c.Name, TypeName(c.Type))
	}
	v, ok := c.data.([]time.Time)
	if !ok {
		return nil, Errorf(ErrUnsupportedType, "column %q holds %T", c.Name, c.data)
	}
	return v, nil
}

// TimeMicros returns a TIME column as raw microseconds since midnight. TIME
// has no safe calendar equivalent, so the ticks are handed back unconverted.
func (c *Column) TimeMicros() ([]int64, error) {
	if err := c.alive(); err != nil {
		return nil, err
	}
	if c.Type != TypeTime {
		return nil, Errorf(ErrUnsupportedType, "column %q is %s, not time", c.Name, TypeName(c.Type))
	}
	v, ok := c.data.([]int64)
	if !ok {
		return nil, Errorf(ErrUnsupportedType, "column %q holds %T", c.Name, c.data)
	}
	return v, nil
}

// typedData is the shared accessor body: liveness check, tag check, assert.
func typedData[T any](c *Column, want Type) ([]T, error) {
	if err := c.alive(); err != nil {
		return nil, err
	}
	if c.Type != want {
		return nil, Errorf(ErrUnsupportedType, "column %q is %s, not %s", c.Name, TypeName(c.Type), TypeName(want))
	}
	v, ok := c.data.([]T)
	if !ok {
		return nil, Errorf(ErrUnsupportedType, "column %q holds %T", c.Name, c.data)
	}
	return v, nil
}
