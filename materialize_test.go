package stonebed

import (
	"bytes"
	"log/slog"
	"math"
	"testing"
	"time"
	"unsafe"
)

// testOwner builds a ResultHandle sufficient for materialization, with a
// logger that writes into buf when one is given.
func testOwner(buf *bytes.Buffer) *ResultHandle {
	log := slog.Default()
	if buf != nil {
		log = slog.New(slog.NewTextHandler(buf, nil))
	}
	return &ResultHandle{session: &Session{log: log}}
}

func rawDesc[T any](name string, tag Type, v []T) ColumnDesc {
	d := ColumnDesc{Type: tag, Count: uint64(len(v)), Name: name}
	if len(v) > 0 {
		d.Data = unsafe.Pointer(&v[0])
	}
	return d
}

func TestMaterializeInt32Sentinels(t *testing.T) {
	raw := []int32{10, NullInt32, 30}
	col, err := materializeColumn(testOwner(nil), rawDesc("v", TypeInt32, raw))
	if err != nil {
		t.Fatalf("Failed to materialize: %v", err)
	}

	vals, err := col.Int32s()
	if err != nil {
		t.Fatalf("Failed to read values: %v", err)
	}
	if vals[0] != 10 || vals[2] != 30 {
		t.Errorf("Expected [10 _ 30], got %v", vals)
	}
	if col.Null(0) || !col.Null(1) || col.Null(2) {
		t.Errorf("Expected only row 1 masked, got %v", col.Nulls)
	}

	// The slice aliases the source buffer; no copy was made.
	raw[0] = 99
	if vals[0] != 99 {
		t.Errorf("Expected aliased buffer, got copy")
	}
}

func TestMaterializeIntegerSentinels(t *testing.T) {
	i8, err := materializeColumn(testOwner(nil), rawDesc("a", TypeInt8, []int8{NullInt8, 1}))
	if err != nil {
		t.Fatalf("Failed to materialize int8: %v", err)
	}
	if !i8.Null(0) || i8.Null(1) {
		t.Errorf("Wrong int8 mask: %v", i8.Nulls)
	}

	i16, err := materializeColumn(testOwner(nil), rawDesc("b", TypeInt16, []int16{1, NullInt16}))
	if err != nil {
		t.Fatalf("Failed to materialize int16: %v", err)
	}
	if i16.Null(0) || !i16.Null(1) {
		t.Errorf("Wrong int16 mask: %v", i16.Nulls)
	}

	i64, err := materializeColumn(testOwner(nil), rawDesc("c", TypeInt64, []int64{NullInt64}))
	if err != nil {
		t.Fatalf("Failed to materialize int64: %v", err)
	}
	if !i64.Null(0) {
		t.Errorf("Wrong int64 mask: %v", i64.Nulls)
	}
}

func TestMaterializeFloatNaN(t *testing.T) {
	col, err := materializeColumn(testOwner(nil), rawDesc("f", TypeDouble, []float64{1.5, math.NaN(), 2.5}))
	if err != nil {
		t.Fatalf("Failed to materialize: %v", err)
	}
	if col.Null(0) || !col.Null(1) || col.Null(2) {
		t.Errorf("Expected NaN masked, got %v", col.Nulls)
	}

	f32, err := materializeColumn(testOwner(nil), rawDesc("g", TypeFloat, []float32{NullFloat(), 1}))
	if err != nil {
		t.Fatalf("Failed to materialize float32: %v", err)
	}
	if !f32.Null(0) || f32.Null(1) {
		t.Errorf("Expected NaN masked, got %v", f32.Nulls)
	}
}

func TestMaterializeBoolHasNoMask(t *testing.T) {
	col, err := materializeColumn(testOwner(nil), rawDesc("b", TypeBool, []bool{true, false}))
	if err != nil {
		t.Fatalf("Failed to materialize: %v", err)
	}
	if col.Nulls != nil {
		t.Errorf("Expected no mask for bool, got %v", col.Nulls)
	}
	vals, err := col.Bools()
	if err != nil {
		t.Fatalf("Failed to read values: %v", err)
	}
	if !vals[0] || vals[1] {
		t.Errorf("Expected [true false], got %v", vals)
	}
}

func TestMaterializeEmptyColumns(t *testing.T) {
	for _, tag := range []Type{TypeBool, TypeInt8, TypeInt16, TypeInt32, TypeInt64,
		TypeFloat, TypeDouble, TypeString, TypeDate, TypeTime, TypeTimestamp} {
		col, err := materializeColumn(testOwner(nil), ColumnDesc{Type: tag, Count: 0, Name: "e"})
		if err != nil {
			t.Fatalf("Failed to materialize empty %s column: %v", TypeName(tag), err)
		}
		if col.Len != 0 {
			t.Errorf("Expected empty %s column, got length %d", TypeName(tag), col.Len)
		}
	}
}

func TestMaterializeStrings(t *testing.T) {
	hello := append([]byte("hello"), 0)
	empty := []byte{0}
	ptrs := []unsafe.Pointer{
		unsafe.Pointer(&hello[0]),
		nil,
		unsafe.Pointer(&empty[0]),
	}

	d := ColumnDesc{Type: TypeString, Count: 3, Name: "s", Data: unsafe.Pointer(&ptrs[0])}
	col, err := materializeColumn(testOwner(nil), d)
	if err != nil {
		t.Fatalf("Failed to materialize: %v", err)
	}

	vals, err := col.Strings()
	if err != nil {
		t.Fatalf("Failed to read values: %v", err)
	}
	if vals[0] != "hello" || vals[1] != "" || vals[2] != "" {
		t.Errorf("Expected [hello <null> <empty>], got %q", vals)
	}
	if col.Null(0) || !col.Null(1) || col.Null(2) {
		t.Errorf("Expected only the nil pointer masked, got %v", col.Nulls)
	}

	// Strings are copied out, not aliased.
	hello[0] = 'X'
	if vals[0] != "hello" {
		t.Errorf("Expected copied string, got aliased buffer")
	}
}

func TestMaterializeDate(t *testing.T) {
	day := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	col, err := materializeColumn(testOwner(nil), rawDesc("d", TypeDate, []Date{DateOf(day), NullDate}))
	if err != nil {
		t.Fatalf("Failed to materialize: %v", err)
	}

	vals, err := col.Times()
	if err != nil {
		t.Fatalf("Failed to read values: %v", err)
	}
	if !vals[0].Equal(day) {
		t.Errorf("Expected %v, got %v", day, vals[0])
	}
	if !col.Null(1) || !vals[1].IsZero() {
		t.Errorf("Expected masked zero time, got %v", vals[1])
	}
}

func TestMaterializeTimestamp(t *testing.T) {
	at := time.Date(2026, 8, 29, 14, 30, 0, 500, time.UTC)
	col, err := materializeColumn(testOwner(nil), rawDesc("ts", TypeTimestamp, []Timestamp{TimestampOf(at), NullTimestamp}))
	if err != nil {
		t.Fatalf("Failed to materialize: %v", err)
	}

	vals, err := col.Times()
	if err != nil {
		t.Fatalf("Failed to read values: %v", err)
	}
	if !vals[0].Equal(at) {
		t.Errorf("Expected %v, got %v", at, vals[0])
	}
	if !col.Null(1) {
		t.Errorf("Expected sentinel masked")
	}
}

func TestMaterializeTimeWarnsAndKeepsTicks(t *testing.T) {
	var buf bytes.Buffer
	raw := []int64{14 * 3600 * 1e6, NullTime}

	col, err := materializeColumn(testOwner(&buf), rawDesc("tm", TypeTime, raw))
	if err != nil {
		t.Fatalf("Failed to materialize: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("TIME")) {
		t.Errorf("Expected a TIME warning, log was: %s", buf.String())
	}

	ticks, err := col.TimeMicros()
	if err != nil {
		t.Fatalf("Failed to read ticks: %v", err)
	}
	if ticks[0] != raw[0] {
		t.Errorf("Expected raw ticks %d, got %d", raw[0], ticks[0])
	}
	if col.Null(0) || !col.Null(1) {
		t.Errorf("Expected sentinel masked, got %v", col.Nulls)
	}
}

func TestColumnTypeMismatchAccess(t *testing.T) {
	col, err := materializeColumn(testOwner(nil), rawDesc("v", TypeInt32, []int32{1}))
	if err != nil {
		t.Fatalf("Failed to materialize: %v", err)
	}

	if _, err := col.Int64s(); !IsError(err, ErrUnsupportedType) {
		t.Errorf("Expected unsupported type error, got %v", err)
	}
	if _, err := col.Times(); !IsError(err, ErrUnsupportedType) {
		t.Errorf("Expected unsupported type error, got %v", err)
	}
}

func TestColumnAccessAfterCleanup(t *testing.T) {
	owner := testOwner(nil)
	col, err := materializeColumn(owner, rawDesc("v", TypeInt32, []int32{1, 2}))
	if err != nil {
		t.Fatalf("Failed to materialize: %v", err)
	}

	if _, err := col.Int32s(); err != nil {
		t.Fatalf("Failed to read live column: %v", err)
	}

	owner.cleaned = 1
	if _, err := col.Int32s(); err != ErrResultCleaned {
		t.Errorf("Expected ErrResultCleaned, got %v", err)
	}
}
