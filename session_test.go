package stonebed_test

import (
	"os"
	"strings"
	"testing"

	stonebed "github.com/stonebed/go-stonebed"
	"github.com/stonebed/go-stonebed/memengine"
)

// newTestSession opens an in-memory session on its own engine and registry so
// tests stay independent of the process-wide default.
func newTestSession(t *testing.T, opts ...stonebed.SessionOption) (*memengine.Engine, *stonebed.Registry, *stonebed.Session) {
	t.Helper()

	engine := memengine.New()
	reg := stonebed.NewRegistry()
	opts = append([]stonebed.SessionOption{stonebed.WithRegistry(reg)}, opts...)

	s, err := stonebed.NewSession(engine, opts...)
	if err != nil {
		t.Fatalf("Failed to open session: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return engine, reg, s
}

func TestSessionOpenClose(t *testing.T) {
	engine, reg, s := newTestSession(t)

	if reg.ActiveSession() != s {
		t.Errorf("Expected the new session to be active")
	}
	if engine.OpenConnections() != 1 {
		t.Errorf("Expected 1 open connection, got %d", engine.OpenConnections())
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Failed to close session: %v", err)
	}
	if engine.OpenConnections() != 0 {
		t.Errorf("Expected 0 open connections after close, got %d", engine.OpenConnections())
	}
	if reg.ActiveSession() != nil {
		t.Errorf("Expected no active session after close")
	}

	// Close is idempotent.
	if err := s.Close(); err != nil {
		t.Errorf("Expected second close to be a no-op, got %v", err)
	}
}

func TestSessionSupersede(t *testing.T) {
	engine, reg, s1 := newTestSession(t)

	s2, err := stonebed.NewSession(engine, stonebed.WithRegistry(reg))
	if err != nil {
		t.Fatalf("Failed to open second session: %v", err)
	}
	defer s2.Close()

	// Exactly one native connection exists; s1 lost it.
	if engine.OpenConnections() != 1 {
		t.Errorf("Expected 1 open connection, got %d", engine.OpenConnections())
	}
	if reg.ActiveSession() != s2 {
		t.Errorf("Expected the second session to be active")
	}

	// Transaction state reflects the new session, not the old one.
	inTx, err := s2.InTransaction()
	if err != nil {
		t.Fatalf("Failed to check transaction state: %v", err)
	}
	if inTx {
		t.Errorf("Expected fresh session outside a transaction")
	}

	// Using s1 again switches the handle back, superseding s2 in turn.
	if _, err := s1.Exec("CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatalf("Failed to run on superseded session: %v", err)
	}
	if reg.ActiveSession() != s1 {
		t.Errorf("Expected the first session to be active again")
	}
	if engine.OpenConnections() != 1 {
		t.Errorf("Expected 1 open connection after switch, got %d", engine.OpenConnections())
	}
}

func TestSessionOpenAllocFailure(t *testing.T) {
	engine := memengine.New()
	engine.FailNextOpen(stonebed.StatusAlloc, "")

	_, err := stonebed.NewSession(engine, stonebed.WithRegistry(stonebed.NewRegistry()))
	if err == nil {
		t.Fatalf("Expected open to fail")
	}
	if !stonebed.IsError(err, stonebed.ErrOperational) {
		t.Errorf("Expected an operational error, got %v", err)
	}
	if !strings.Contains(err.Error(), "allocation failed") {
		t.Errorf("Expected the generic allocation message, got %q", err.Error())
	}
}

func TestSessionOpenEngineFailureClosesPartialHandle(t *testing.T) {
	engine := memengine.New()
	engine.FailNextOpen(stonebed.StatusEngine, "catalog corrupted")

	_, err := stonebed.NewSession(engine, stonebed.WithRegistry(stonebed.NewRegistry()))
	if err == nil {
		t.Fatalf("Expected open to fail")
	}
	if !strings.Contains(err.Error(), "catalog corrupted") {
		t.Errorf("Expected the engine's own error text, got %q", err.Error())
	}

	// The partially created handle must not leak.
	if engine.OpenConnections() != 0 {
		t.Errorf("Expected partial handle closed, %d connections remain", engine.OpenConnections())
	}
}

func TestSessionCloseFailure(t *testing.T) {
	engine, _, s := newTestSession(t)
	engine.FailNextClose()

	err := s.Close()
	if err == nil {
		t.Fatalf("Expected close to report the engine failure")
	}
	if !strings.Contains(err.Error(), "failed to close database") {
		t.Errorf("Unexpected close error: %q", err.Error())
	}
}

func TestSessionQueryError(t *testing.T) {
	_, _, s := newTestSession(t)

	_, err := s.Exec("SELECT * FROM missing")
	if err == nil {
		t.Fatalf("Expected an error for a missing table")
	}
	if !stonebed.IsError(err, stonebed.ErrOperational) {
		t.Errorf("Expected an operational error, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing") {
		t.Errorf("Expected the engine's error text, got %q", err.Error())
	}
}

func TestAutocommit(t *testing.T) {
	_, _, s := newTestSession(t)

	on, err := s.Autocommit()
	if err != nil {
		t.Fatalf("Failed to read autocommit: %v", err)
	}
	if !on {
		t.Errorf("Expected autocommit on by default")
	}

	if err := s.SetAutocommit(false); err != nil {
		t.Fatalf("Failed to set autocommit: %v", err)
	}
	on, err = s.Autocommit()
	if err != nil {
		t.Fatalf("Failed to read autocommit: %v", err)
	}
	if on {
		t.Errorf("Expected autocommit off")
	}
}

func TestInTransaction(t *testing.T) {
	_, _, s := newTestSession(t)

	if _, err := s.Exec("BEGIN"); err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	inTx, err := s.InTransaction()
	if err != nil {
		t.Fatalf("Failed to check transaction state: %v", err)
	}
	if !inTx {
		t.Errorf("Expected to be inside a transaction")
	}

	if _, err := s.Exec("COMMIT"); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	inTx, err = s.InTransaction()
	if err != nil {
		t.Fatalf("Failed to check transaction state: %v", err)
	}
	if inTx {
		t.Errorf("Expected to be outside a transaction after commit")
	}
}

func TestInMemoryOccupied(t *testing.T) {
	_, reg, s := newTestSession(t)

	if reg.InMemoryOccupied() {
		t.Errorf("Expected the in-memory slot free while the session lives")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Failed to close session: %v", err)
	}
	if !reg.InMemoryOccupied() {
		t.Errorf("Expected the in-memory slot occupied after close")
	}
}

func TestInMemoryFlagUntouchedForPersistentSession(t *testing.T) {
	_, reg, s := newTestSession(t, stonebed.WithPath(t.TempDir()))

	if err := s.Close(); err != nil {
		t.Fatalf("Failed to close session: %v", err)
	}
	if reg.InMemoryOccupied() {
		t.Errorf("Expected the in-memory slot free after a persistent session")
	}
}

func TestSessionColumns(t *testing.T) {
	_, _, s := newTestSession(t)

	if _, err := s.Exec("CREATE TABLE t (id INTEGER, name VARCHAR, ts TIMESTAMP)"); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	cols, err := s.Columns("", "t")
	if err != nil {
		t.Fatalf("Failed to fetch columns: %v", err)
	}

	var names []string
	var types []stonebed.Type
	for name, typ := range cols {
		names = append(names, name)
		types = append(types, typ)
	}

	wantNames := []string{"id", "name", "ts"}
	wantTypes := []stonebed.Type{stonebed.TypeInt32, stonebed.TypeString, stonebed.TypeTimestamp}
	if len(names) != len(wantNames) {
		t.Fatalf("Expected %d columns, got %d", len(wantNames), len(names))
	}
	for i := range wantNames {
		if names[i] != wantNames[i] || types[i] != wantTypes[i] {
			t.Errorf("Expected column (%s, %s), got (%s, %s)",
				wantNames[i], stonebed.TypeName(wantTypes[i]), names[i], stonebed.TypeName(types[i]))
		}
	}

	// The sequence is single-use: once drained it yields nothing.
	count := 0
	for range cols {
		count++
	}
	if count != 0 {
		t.Errorf("Expected a drained sequence, got %d more pairs", count)
	}
}

func TestSessionColumnsMissingTable(t *testing.T) {
	_, _, s := newTestSession(t)

	if _, err := s.Columns("", "nope"); err == nil {
		t.Errorf("Expected an error for a missing table")
	}
}

func TestDump(t *testing.T) {
	_, _, s := newTestSession(t)

	if _, err := s.Exec("CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	dir := t.TempDir()
	dbPath := dir + "/db.dump"
	if err := s.DumpDatabase(dbPath); err != nil {
		t.Fatalf("Failed to dump database: %v", err)
	}
	tblPath := dir + "/t.dump"
	if err := s.DumpTable("", "t", tblPath); err != nil {
		t.Fatalf("Failed to dump table: %v", err)
	}

	for _, p := range []string{dbPath, tblPath} {
		if !fileExists(p) {
			t.Errorf("Expected dump file %s to exist", p)
		}
	}

	// A failing dump surfaces its status code instead of being swallowed.
	if err := s.DumpTable("", "missing", tblPath); err == nil {
		t.Errorf("Expected an error dumping a missing table")
	}
	if err := s.DumpDatabase(dir + "/no/such/dir/db.dump"); err == nil {
		t.Errorf("Expected an error for an unwritable dump path")
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
