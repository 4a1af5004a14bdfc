// Package mapstore implements the entity store port on top of a plain
// key-value map of encoded records.
//
// The store owns the concurrency rules; the Map only stores bytes. Prepare
// takes striped in-process locks for every reference in the batch, checks
// versions, and keeps the locks until the returned committer is committed or
// cancelled. Stripes are chosen by xxhash of the reference and always
// acquired in ascending order, so overlapping prepares serialize without
// deadlocking.
//
// Because locking is in-process, a Map shared by several processes (a file
// directory or an S3 bucket) is only safe when one process writes at a time.
//
// Backends:
//   - MemoryMap: process-local map, the default store for tests and demos
//   - FileMap: one file per entity in a directory, written by atomic rename
//   - S3Map: one object per entity in an S3 (or S3-compatible) bucket
package mapstore
