// Package store loads generated rows into a SQLite database.
//
// Each table gets a Sink that buffers one batch and inserts it with
// multi-row parameterised INSERT statements inside a transaction when the
// engine closes the batch. The file header creates the table.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - one open connection: SQLite has a single writer
//
// Runs are recorded in dbgen_runs with the template digest and seed, so a
// loaded database can be traced back to the exact generation inputs.
package store
