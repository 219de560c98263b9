// Package stonebed is a low-level Go binding for the stonebed embedded
// columnar analytics engine.
//
// The engine itself is opaque: it is reached only through the Engine
// interface, implemented by NativeEngine over the dynamically loaded
// libstonebed and by the memengine package in pure Go.
//
// A Session is one logical connection. The engine supports a single live
// native connection per process, so sessions register with a Registry that
// owns the handle and switches it between sessions on demand:
//
//	sess, err := stonebed.NewSession(engine)
//	if err != nil { ... }
//	defer sess.Close()
//
//	res, _, err := sess.Query("SELECT * FROM t", true)
//	if err != nil { ... }
//	defer res.Cleanup()
//
//	cols, err := res.Columns()
//
// Materialized fixed-width columns alias engine memory and are valid only
// until the result is cleaned up; string, date and timestamp columns are
// copied out. Bulk columnar ingestion goes through Session.Append, which
// validates the batch against the table's declared schema before handing
// the raw buffers to the engine.
package stonebed
