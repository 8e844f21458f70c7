// Package eval implements expression evaluation and table templates.
//
// An Expr is evaluated against a State. State is the only mutable input:
// it carries the row counters, the seeded random source and the
// lexicographic counter slots. Evaluating the same sequence of expressions
// against States built from the same Snapshot always yields the same
// sequence of values. This reproducibility is what allows virtual objects
// to be regenerated byte-for-byte on demand.
//
// A State belongs to exactly one generation stream and must not be shared
// between goroutines.
package eval
