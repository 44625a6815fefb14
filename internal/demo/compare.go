package demo

import (
	"fmt"
	"os"
	"strings"
)

// Comparison flags the categories in which a new run beats an old one.
type Comparison uint8

const (
	BetterTime  Comparison = 1 << 0
	BetterScore Comparison = 1 << 1
	BetterRings Comparison = 1 << 2

	// BetterAll is the complete set of categories.
	BetterAll = BetterTime | BetterScore | BetterRings
)

// Has reports whether every bit of flag is set.
func (c Comparison) Has(flag Comparison) bool { return c&flag == flag }

func (c Comparison) String() string {
	var parts []string
	if c.Has(BetterTime) {
		parts = append(parts, "time")
	}
	if c.Has(BetterScore) {
		parts = append(parts, "score")
	}
	if c.Has(BetterRings) {
		parts = append(parts, "rings")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// CompareScores returns the categories in which next beats prev. Each
// category breaks ties on the remaining two in a fixed order.
func CompareScores(prev, next Scores) Comparison {
	var c Comparison
	if next.Time < prev.Time || (next.Time == prev.Time &&
		(next.Score > prev.Score || (next.Score == prev.Score && next.Rings > prev.Rings))) {
		c |= BetterTime
	}
	if next.Score > prev.Score || (next.Score == prev.Score &&
		(next.Time < prev.Time || (next.Time == prev.Time && next.Rings > prev.Rings))) {
		c |= BetterScore
	}
	if next.Rings > prev.Rings || (next.Rings == prev.Rings &&
		(next.Time < prev.Time || (next.Time == prev.Time && next.Score > prev.Score))) {
		c |= BetterRings
	}
	return c
}

// CompareHeaders compares the results stored in two envelopes.
func CompareHeaders(prev, next *Header) Comparison {
	return CompareScores(prev.Scores, next.Scores)
}

// ReplayIOError reports a replay that could not be read or decoded for a
// comparison. It is never folded into a Comparison.
type ReplayIOError struct {
	Path string
	Err  error
}

func (e *ReplayIOError) Error() string {
	return fmt.Sprintf("replay %s: %v", e.Path, e.Err)
}

func (e *ReplayIOError) Unwrap() error { return e.Err }

// LoadHeader reads and decodes the envelope of a replay file.
func LoadHeader(path string) (*Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ReplayIOError{Path: path, Err: err}
	}
	header, err := ReadHeader(NewReader(data), KindPlay)
	if err != nil {
		return nil, &ReplayIOError{Path: path, Err: err}
	}
	return header, nil
}

// CompareFiles compares the results of two replay files on disk.
func CompareFiles(oldPath, newPath string) (Comparison, error) {
	prev, err := LoadHeader(oldPath)
	if err != nil {
		return 0, err
	}
	next, err := LoadHeader(newPath)
	if err != nil {
		return 0, err
	}
	return CompareHeaders(prev, next), nil
}
