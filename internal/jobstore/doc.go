// Package jobstore owns the durable job records driven through the rendering
// pipeline.
//
// Each job lives in its own JSON file under <data_root>/jobs and is updated
// with a write-temp-then-rename so readers never observe a torn record. The
// orchestrator worker that claims a job is its single writer; the HTTP adapter
// and CLI only read. An advisory file lock keeps a second daemon instance from
// opening the same directory.
package jobstore
