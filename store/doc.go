// Package store manages versioned answer stores on disk and the snapshot
// that queries run against.
//
// A corpus root holds one immutable badger database per build under
// versions/, plus a CURRENT file naming the live one. Load reads a version
// into a Snapshot, checking it thoroughly: any inconsistency is reported as
// core.ErrCorruptStore rather than served. Live publishes the current
// Snapshot through an atomic pointer, and Watcher swaps in versions that
// another process publishes.
package store
