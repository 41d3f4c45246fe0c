// Package classify partitions streamed drift coordinates into normal and
// anomalous sets using the user-drawn boundaries, and tags the most recently
// streamed points for the dashboard's glow highlight.
package classify

import (
	"github.com/banshee-data/driftsight/internal/boundary"
	"github.com/banshee-data/driftsight/internal/stream"
)

// Result is the derived, non-persisted partition of a series. Every point
// index appears in exactly one of Normal or Anomalous. Latest is an
// orthogonal presentational tag over the last points by arrival order and is
// independent of the normal/anomalous split.
type Result struct {
	Normal    []int `json:"normal"`
	Anomalous []int `json:"anomalous"`
	Latest    []int `json:"latest"`
}

// Classify evaluates every point in the series against the ordered boundary
// list. The first boundary containing a point marks it normal; points
// contained by no boundary are anomalous. With an empty boundary list every
// point is anomalous. latestWindow tags the trailing points regardless of
// their classification.
func Classify(series stream.Series, boundaries []boundary.Boundary, latestWindow int) Result {
	res := Result{}
	for i := 0; i < series.Len(); i++ {
		p := series.Point(i)
		normal := false
		for j := range boundaries {
			if boundaries[j].Contains(p) {
				normal = true
				break
			}
		}
		if normal {
			res.Normal = append(res.Normal, i)
		} else {
			res.Anomalous = append(res.Anomalous, i)
		}
	}

	if latestWindow > 0 && series.Len() > 0 {
		start := series.Len() - latestWindow
		if start < 0 {
			start = 0
		}
		for i := start; i < series.Len(); i++ {
			res.Latest = append(res.Latest, i)
		}
	}
	return res
}

// AnomalyPercentage returns the share of anomalous points in the result,
// in percent. An empty series yields zero.
func (r Result) AnomalyPercentage() float64 {
	total := len(r.Normal) + len(r.Anomalous)
	if total == 0 {
		return 0
	}
	return float64(len(r.Anomalous)) / float64(total) * 100
}
