// Package history keeps a bounded time series of derived drift metrics.
// The series rides along inside the preference snapshot, so it survives
// restarts and follows the account across devices.
package history

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultCap bounds the retained history window.
const DefaultCap = 10000

// Point is one derived-metric sample. The metric fields are optional; a
// tick that produced no throughput reading simply leaves it nil.
type Point struct {
	Timestamp           time.Time `json:"timestamp"`
	AnomalyPercentage   *float64  `json:"anomaly_percentage,omitempty"`
	WearScore           *float64  `json:"wear_score,omitempty"`
	ThroughputPerMinute *float64  `json:"throughput_per_minute,omitempty"`
}

// Aggregator appends derived-metric samples into a capped FIFO window,
// evicting the oldest samples beyond the cap.
type Aggregator struct {
	cap    int
	points []Point
}

// NewAggregator returns an aggregator bounded to capacity points. A
// non-positive capacity falls back to DefaultCap.
func NewAggregator(capacity int) *Aggregator {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Aggregator{cap: capacity}
}

// Append adds a sample, evicting the oldest if the window is full.
func (a *Aggregator) Append(p Point) {
	a.points = append(a.points, p)
	if len(a.points) > a.cap {
		a.points = a.points[len(a.points)-a.cap:]
	}
}

// Len returns the number of retained samples.
func (a *Aggregator) Len() int { return len(a.points) }

// Points returns a copy of the retained window, oldest first.
func (a *Aggregator) Points() []Point {
	return append([]Point(nil), a.points...)
}

// Replace swaps in a restored window, truncating to the cap from the front
// so the newest samples survive. Used when adopting a snapshot.
func (a *Aggregator) Replace(points []Point) {
	if len(points) > a.cap {
		points = points[len(points)-a.cap:]
	}
	a.points = append([]Point(nil), points...)
}

// Summary describes the distribution of one metric over the window.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
}

// Summarize computes distribution statistics for the selected metric across
// the window, skipping samples where the metric is absent. ok is false when
// no sample carried the metric.
func (a *Aggregator) Summarize(metric func(Point) *float64) (Summary, bool) {
	var values []float64
	for _, p := range a.points {
		if v := metric(p); v != nil {
			values = append(values, *v)
		}
	}
	if len(values) == 0 {
		return Summary{}, false
	}

	mean, std := stat.MeanStdDev(values, nil)
	sort.Float64s(values)
	s := Summary{
		Count:  len(values),
		Mean:   mean,
		P50:    stat.Quantile(0.5, stat.Empirical, values, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, values, nil),
	}
	// MeanStdDev returns NaN for a single sample; report zero spread instead.
	if len(values) > 1 {
		s.StdDev = std
	}
	return s, true
}

// Metric selectors for Summarize.
func AnomalyPercentage(p Point) *float64   { return p.AnomalyPercentage }
func WearScore(p Point) *float64           { return p.WearScore }
func ThroughputPerMinute(p Point) *float64 { return p.ThroughputPerMinute }
