// Package engine implements the row-generation engine.
//
// The engine walks a forest of table templates once per row event. Each
// table owns one Sink for the lifetime of a stream, and the engine drives
// the sinks through a strict call order so any encoding can be plugged in.
//
// ARCHITECTURE:
//
// Row events:
// 1. Every table is marked fresh
// 2. Tables are visited in template order; a fresh table becomes a root
// 3. Before a root is generated, everything reachable from it over derived
//    edges is marked not fresh, so no table is generated twice per event
// 4. Each occurrence fans out into its derived tables, once per edge,
//    with SubRowNum counting 1..count
//
// Batches:
// Rows accumulate in per-table batches. WriteBatchTrailer closes every
// batch that received at least one row. Tables with nothing written get no
// header and no trailer.
//
// The engine is single-goroutine. Independent streams each own an Engine
// and a State, and may run concurrently.
package engine
