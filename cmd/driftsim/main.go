// Command driftsim replays a recorded monitor CSV against the analysis
// backend as a simulated live sensor stream. Useful for demoing the
// dashboard and for exercising the drift pipeline without hardware.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/driftsight/internal/httputil"
	"github.com/banshee-data/driftsight/internal/sim"
)

func main() {
	var (
		baselineID  = flag.Int64("baseline-id", 0, "Existing baseline dataset id to stream against (required)")
		monitorFile = flag.String("monitor-file", "", "Path to the monitor CSV file (required)")
		delay       = flag.Duration("delay", 2*time.Second, "Delay between batches")
		batchSize   = flag.Int("batch-size", 1, "Points per batch")
		glowCount   = flag.Int("latest-glow-count", 10, "Latest points highlighted during streaming")
		apiURL      = flag.String("api-url", "http://localhost:8080/api/v1", "Backend API base URL")
		waitBase    = flag.Bool("wait-baseline", true, "Wait for baseline processing before streaming")
	)
	flag.Parse()

	if *baselineID == 0 || *monitorFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	dataset, err := sim.LoadMonitorCSV(*monitorFile)
	if err != nil {
		log.Fatalf("Failed to load monitor data: %v", err)
	}
	log.Printf("Loaded %d monitor points (%d feature columns, family %s)",
		dataset.Len(), len(dataset.Features), dataset.Family)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hc := httputil.NewStandardClient(&http.Client{Timeout: 30 * time.Second})
	simulator := sim.New(hc, *apiURL, nil, sim.Options{
		BatchSize: *batchSize,
		Delay:     *delay,
		GlowCount: *glowCount,
	})

	if *waitBase {
		if err := simulator.WaitForBaseline(ctx, *baselineID, 60); err != nil {
			log.Fatalf("Baseline not ready: %v", err)
		}
	}

	if err := simulator.Stream(ctx, *baselineID, dataset); err != nil {
		if ctx.Err() != nil {
			log.Printf("Streaming interrupted")
			return
		}
		log.Fatalf("Streaming failed: %v", err)
	}
	log.Printf("Streaming simulation completed")
}
