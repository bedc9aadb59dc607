// Package reference provides access to reference genome sequence.
package reference

import (
	"errors"
	"fmt"
)

// ErrUnavailable indicates the requested interval cannot be served: unknown
// contig or out-of-bounds coordinates. Normalization treats it as a soft
// failure and keeps the last representation it could prove correct.
var ErrUnavailable = errors.New("reference sequence unavailable")

// Accessor fetches reference bases. Intervals are 0-based, half-open.
// Implementations must return exactly end-start bases or ErrUnavailable.
type Accessor interface {
	Fetch(chrom string, start, end int64) (string, error)
}

// Base returns the single reference base at a 0-based position.
func Base(acc Accessor, chrom string, pos int64) (byte, error) {
	s, err := acc.Fetch(chrom, pos, pos+1)
	if err != nil {
		return 0, err
	}
	if len(s) != 1 {
		return 0, fmt.Errorf("fetch %s:%d: %w", chrom, pos, ErrUnavailable)
	}
	return s[0], nil
}

// Memory is a map-backed Accessor holding whole contig sequences, keyed by
// canonical chromosome name. Used by tests and small benchmarks.
type Memory struct {
	sequences map[string]string
}

// NewMemory creates an in-memory accessor from chrom -> sequence.
func NewMemory(sequences map[string]string) *Memory {
	return &Memory{sequences: sequences}
}

// Fetch returns bases for a 0-based half-open interval.
func (m *Memory) Fetch(chrom string, start, end int64) (string, error) {
	seq, ok := m.sequences[chrom]
	if !ok {
		return "", fmt.Errorf("contig %s: %w", chrom, ErrUnavailable)
	}
	if start < 0 || end > int64(len(seq)) || start > end {
		return "", fmt.Errorf("%s:%d-%d: %w", chrom, start, end, ErrUnavailable)
	}
	return seq[start:end], nil
}
