// Command drift-report renders the persisted drift history from a local
// preference cache into a standalone HTML report. A dev/ops artifact: the
// live dashboard is elsewhere, this is for sharing a point-in-time view.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/driftsight/internal/history"
	"github.com/banshee-data/driftsight/internal/replica"
)

func main() {
	var (
		dbPath  = flag.String("db", "driftsight.db", "Path to the local preference cache")
		account = flag.String("account", "default", "Account id to report on")
		outPath = flag.String("out", "drift-report.html", "Output HTML file")
	)
	flag.Parse()

	store, err := replica.NewLocalStore(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open preference cache: %v", err)
	}
	defer store.Close()

	snap, found, err := store.Get(*account)
	if err != nil {
		log.Fatalf("Failed to load snapshot: %v", err)
	}
	if !found {
		log.Fatalf("No snapshot stored for account %q", *account)
	}
	if len(snap.History) == 0 {
		log.Fatalf("Account %q has no history to report", *account)
	}

	agg := history.NewAggregator(0)
	agg.Replace(snap.History)

	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("Drift report — %s", *account)
	page.AddCharts(
		metricChart(snap.History, "Anomaly percentage", "%", history.AnomalyPercentage),
		metricChart(snap.History, "Throughput", "points/min", history.ThroughputPerMinute),
	)

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		log.Fatalf("Failed to render report: %v", err)
	}

	log.Printf("Report written to %s (%d history points, dataset %d)",
		*outPath, len(snap.History), snap.SelectedDatasetID)
	logSummary(agg, "anomaly percentage", history.AnomalyPercentage)
	logSummary(agg, "throughput", history.ThroughputPerMinute)
}

func logSummary(agg *history.Aggregator, name string, metric func(history.Point) *float64) {
	s, ok := agg.Summarize(metric)
	if !ok {
		log.Printf("No %s samples recorded", name)
		return
	}
	log.Printf("%s: n=%d mean=%.2f stddev=%.2f p50=%.2f p95=%.2f",
		name, s.Count, s.Mean, s.StdDev, s.P50, s.P95)
}

func metricChart(points []history.Point, title, unit string, metric func(history.Point) *float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1100px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: unit}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: unit}),
	)

	var labels []string
	var data []opts.LineData
	for _, p := range points {
		v := metric(p)
		if v == nil {
			continue
		}
		labels = append(labels, p.Timestamp.Format(time.RFC3339))
		data = append(data, opts.LineData{Value: *v})
	}
	line.SetXAxis(labels)
	line.AddSeries(title, data, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}
