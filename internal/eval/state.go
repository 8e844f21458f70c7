package eval

import (
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"time"
)

// SeedSize is the length in bytes of a generation seed.
const SeedSize = 32

// Snapshot is the immutable starting point of a generation stream.
// It is the captured state stored alongside virtual objects: every State
// created from the same Snapshot evolves identically.
type Snapshot struct {
	// Seed seeds the ChaCha8 random source.
	Seed [SeedSize]byte

	// RowNum is the row number of the first row event. Zero means 1.
	RowNum int64

	// Now is the fixed timestamp returned by the now() builtin.
	Now time.Time
}

// State is the mutable context threaded through evaluation.
//
// Thread-safety: State is NOT safe for concurrent use. Each stream owns
// its own State.
type State struct {
	// RowNum is the current top-level row number, starting at 1.
	RowNum int64

	// SubRowNum is the 1-based index of the current occurrence among the
	// children produced by one fan-out.
	SubRowNum int64

	now      time.Time
	src      *rand.ChaCha8
	rng      *rand.Rand
	counters []uint64
}

// NewState creates a State positioned at the start of snap.
func NewState(snap Snapshot) *State {
	rowNum := snap.RowNum
	if rowNum == 0 {
		rowNum = 1
	}
	src := rand.NewChaCha8(snap.Seed)
	return &State{
		RowNum:    rowNum,
		SubRowNum: 1,
		now:       snap.Now.UTC(),
		src:       src,
		rng:       rand.New(src),
	}
}

// IncreaseRowNum advances to the next row event.
func (s *State) IncreaseRowNum() {
	s.RowNum++
}

// Now returns the fixed generation timestamp.
func (s *State) Now() time.Time {
	return s.now
}

// Rand returns the seeded random generator.
func (s *State) Rand() *rand.Rand {
	return s.rng
}

// Read fills p from the seeded random source. It never fails.
func (s *State) Read(p []byte) (int, error) {
	return s.src.Read(p)
}

// nextCounter returns the current value of the counter in slot and
// advances it.
func (s *State) nextCounter(slot int) uint64 {
	if slot >= len(s.counters) {
		grown := make([]uint64, slot+1)
		copy(grown, s.counters)
		s.counters = grown
	}
	v := s.counters[slot]
	s.counters[slot]++
	return v
}

// ParseSeed decodes a hex seed. An empty string yields the zero seed.
func ParseSeed(s string) ([SeedSize]byte, error) {
	var seed [SeedSize]byte
	if s == "" {
		return seed, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return seed, fmt.Errorf("invalid seed: %w", err)
	}
	if len(raw) != SeedSize {
		return seed, fmt.Errorf("invalid seed: want %d bytes, got %d", SeedSize, len(raw))
	}
	copy(seed[:], raw)
	return seed, nil
}
