// Package stream folds freshly fetched coordinate batches into a
// monotonically growing series. The backend streams drift coordinates
// cumulatively, so each fetch returns everything streamed so far; Merge
// keeps the retained prefix stable and detects stream resets.
package stream

import (
	"fmt"

	"github.com/banshee-data/driftsight/internal/geometry"
)

// Series is an append-only sequence of drift coordinates with optional
// parallel per-point metadata columns. Every parallel slice has the same
// length at all times.
type Series struct {
	X    []float64           `json:"x"`
	Y    []float64           `json:"y"`
	Meta map[string][]string `json:"metadata,omitempty"`
}

// Len returns the number of points in the series.
func (s Series) Len() int { return len(s.X) }

// Point returns the i'th coordinate.
func (s Series) Point(i int) geometry.Point {
	return geometry.Point{X: s.X[i], Y: s.Y[i]}
}

// Validate checks the parallel-array alignment invariant.
func (s Series) Validate() error {
	if len(s.X) != len(s.Y) {
		return fmt.Errorf("series misaligned: %d x values, %d y values", len(s.X), len(s.Y))
	}
	for key, col := range s.Meta {
		if len(col) != len(s.X) {
			return fmt.Errorf("series misaligned: metadata %q has %d values, want %d", key, len(col), len(s.X))
		}
	}
	return nil
}

// Merge folds a freshly fetched series into the previously retained one.
//
//   - incoming shorter than previous: the backend stream restarted, so the
//     incoming series replaces everything.
//   - equal length: previous is returned unchanged, so downstream consumers
//     can skip recomputation on identity.
//   - incoming longer: previous is extended with the incoming tail across
//     every parallel column, leaving the retained prefix untouched.
func Merge(previous, incoming Series) Series {
	n := previous.Len()
	switch {
	case incoming.Len() < n:
		return incoming
	case incoming.Len() == n:
		return previous
	}

	merged := Series{
		X: append(previous.X[:n:n], incoming.X[n:]...),
		Y: append(previous.Y[:n:n], incoming.Y[n:]...),
	}
	if len(incoming.Meta) > 0 {
		merged.Meta = make(map[string][]string)
		for key, col := range incoming.Meta {
			if len(col) < incoming.Len() {
				// Misaligned column; drop it rather than breaking the
				// parallel-array invariant.
				continue
			}
			prefix := col[:n]
			if prev, ok := previous.Meta[key]; ok && len(prev) == n {
				// Keep the retained prefix stable.
				prefix = prev
			}
			merged.Meta[key] = append(prefix[:n:n], col[n:]...)
		}
	}
	return merged
}
