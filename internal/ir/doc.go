// Package ir provides the foundational types shared by every dbgen package.
//
// This package contains the generated Value union, table schemas, source
// positions and the position-annotated Error type, plus canonical encoding
// used for content-addressed object identity. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Values are immutable once produced
//   - Timestamps are always UTC
//   - Errors from template construction and evaluation carry a Pos
package ir
