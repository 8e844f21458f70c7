// Package objstore exposes generated data as a read-only virtual object
// store.
//
// The catalog is built once at startup: for every table a static schema
// object and one data object per planned file. Data objects hold no bytes.
// They carry the descriptor of the stream that produces them, and GetObject
// regenerates the content on demand. Regeneration is deterministic, so every
// read of an object returns identical bytes.
//
// The catalog is sorted by name and never changes, so reads take no locks.
// Concurrent reads of the same object share one regeneration.
package objstore
