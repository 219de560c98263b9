package stonebed

import (
	"testing"
	"time"
)

func TestDateConversion(t *testing.T) {
	day := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	d := DateOf(day)
	if got := d.Time(); !got.Equal(day) {
		t.Errorf("Expected %v, got %v", day, got)
	}

	// The time of day is discarded.
	if DateOf(time.Date(2026, 8, 29, 23, 59, 59, 0, time.UTC)) != d {
		t.Errorf("Expected same day count regardless of time of day")
	}

	if DateOf(time.Unix(0, 0).UTC()) != 0 {
		t.Errorf("Expected day 0 for the epoch")
	}
}

func TestTimestampConversion(t *testing.T) {
	now := time.Date(2026, 8, 29, 14, 30, 15, 123456789, time.UTC)

	ts := TimestampOf(now)
	if got := ts.Time(); !got.Equal(now) {
		t.Errorf("Expected %v, got %v", now, got)
	}

	// Non-UTC inputs normalize to the same tick count.
	loc := time.FixedZone("EST", -5*60*60)
	if TimestampOf(now.In(loc)) != ts {
		t.Errorf("Expected identical ticks for the same instant in another zone")
	}
}

func TestTypeName(t *testing.T) {
	cases := []struct {
		tag  Type
		name string
	}{
		{TypeBool, "bool"},
		{TypeInt32, "int32"},
		{TypeFloat, "float"},
		{TypeDouble, "double"},
		{TypeString, "str"},
		{TypeDate, "date"},
		{TypeTime, "time"},
		{TypeTimestamp, "timestamp"},
		{TypeUnknown, "unknown"},
		{Type(99), "unknown"},
	}

	for _, c := range cases {
		if got := TypeName(c.tag); got != c.name {
			t.Errorf("Expected %q for tag %d, got %q", c.name, c.tag, got)
		}
	}
}

func TestSpecForUnknownTag(t *testing.T) {
	if _, err := specFor(Type(99)); !IsError(err, ErrUnsupportedType) {
		t.Errorf("Expected unsupported type error, got %v", err)
	}
}

func TestEngineTypeFor(t *testing.T) {
	cases := []struct {
		values interface{}
		tag    Type
		name   string
	}{
		{[]bool{true}, TypeBool, "bool"},
		{[]int8{1}, TypeInt8, "int8"},
		{[]int16{1}, TypeInt16, "int16"},
		{[]int32{1}, TypeInt32, "int32"},
		{[]int64{1}, TypeInt64, "int64"},
		{[]float32{1}, TypeFloat, "float"},
		{[]float64{1}, TypeDouble, "double"},
		{[]string{"a"}, TypeString, "str"},
		{[]*string{nil}, TypeString, "str"},
		{[]Date{0}, TypeDate, "date"},
		{[]Timestamp{0}, TypeTimestamp, "timestamp"},
		{[]time.Time{{}}, TypeTimestamp, "timestamp"},
	}

	for _, c := range cases {
		tag, name, err := engineTypeFor(c.values)
		if err != nil {
			t.Fatalf("Failed to map %T: %v", c.values, err)
		}
		if tag != c.tag || name != c.name {
			t.Errorf("Expected (%d, %q) for %T, got (%d, %q)", c.tag, c.name, c.values, tag, name)
		}
	}

	if _, _, err := engineTypeFor([]uint32{1}); !IsError(err, ErrUnsupportedType) {
		t.Errorf("Expected unsupported type error for []uint32, got %v", err)
	}
}

func TestErrorClassification(t *testing.T) {
	err := Errorf(ErrProgramming, "bad column %q", "x")
	if err.Error() != `stonebed: bad column "x"` {
		t.Errorf("Unexpected message: %q", err.Error())
	}
	if !IsError(err, ErrProgramming) {
		t.Errorf("Expected programming error classification")
	}
	if IsError(err, ErrOperational) {
		t.Errorf("Did not expect operational classification")
	}
	if IsError(nil, ErrOperational) {
		t.Errorf("nil must not classify as any error type")
	}
}
