// Command driftsight runs the dashboard backend agent: it keeps the
// preference document synchronized between the local cache and the shared
// server copy, polls the analysis backend for streamed drift coordinates,
// classifies them against the user-drawn boundaries, and serves the result
// to the browser dashboard.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/driftsight/internal/api"
	"github.com/banshee-data/driftsight/internal/backend"
	"github.com/banshee-data/driftsight/internal/config"
	"github.com/banshee-data/driftsight/internal/engine"
	"github.com/banshee-data/driftsight/internal/httputil"
	"github.com/banshee-data/driftsight/internal/replica"
	"github.com/banshee-data/driftsight/internal/syncer"
	"github.com/banshee-data/driftsight/internal/version"
)

var (
	listen     = flag.String("listen", ":8090", "Listen address for the dashboard API")
	backendURL = flag.String("backend", "http://localhost:8080/api/v1", "Analysis backend base URL")
	dbFile     = flag.String("db", "driftsight.db", "Path to the local preference cache")
	account    = flag.String("account", "default", "Account id to synchronize")
	deviceID   = flag.String("device", "", "Device id for sync echo detection (default: hostname)")
	datasetID  = flag.Int64("dataset", 0, "Initial dataset id (0 keeps the persisted selection)")
	configPath = flag.String("config", "", "Optional tuning config JSON file")
	devMode    = flag.Bool("dev", false, "Expose the admin debug routes")
)

func main() {
	flag.Parse()
	log.Print(version.String())

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	device := *deviceID
	if device == "" {
		host, err := os.Hostname()
		if err != nil {
			log.Fatalf("Failed to determine device id: %v", err)
		}
		device = host
	}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	}

	local, err := replica.NewLocalStore(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open local preference cache: %v", err)
	}
	defer local.Close()

	hc := httputil.NewStandardClient(&http.Client{Timeout: 30 * time.Second})
	remote := replica.NewRemoteStore(hc, *backendURL, *account)

	rec, err := syncer.New(syncer.Options{
		AccountID: *account,
		DeviceID:  device,
		Local:     local,
		Remote:    remote,
		Debounce:  tuning.GetWriteDebounce(),
	})
	if err != nil {
		log.Fatalf("Failed to initialize sync reconciler: %v", err)
	}

	eng := engine.New(engine.Options{
		Backend:    backend.NewClient(hc, *backendURL),
		Reconciler: rec,
		Tuning:     tuning,
	})
	if *datasetID > 0 {
		if err := eng.SetDataset(*datasetID); err != nil {
			log.Fatalf("Failed to select dataset %d: %v", *datasetID, err)
		}
	}
	log.Printf("driftsight agent: account=%s device=%s dataset=%d backend=%s",
		*account, device, eng.DatasetID(), *backendURL)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// sync write-behind and the adaptive poll loops
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Run(ctx)
		log.Print("engine routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only in dev mode or
		// behind a tailnet-only listener)
		if *devMode {
			local.AttachAdminRoutes(mux)
		}

		apiMux := api.NewServer(eng).ServeMux()
		mux.Handle("/api/", apiMux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
