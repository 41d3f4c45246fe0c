// Package api serves the dashboard projection: classification snapshots,
// boundary editing, sync state, and history statistics, all as JSON over a
// plain ServeMux.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/driftsight/internal/boundary"
	"github.com/banshee-data/driftsight/internal/engine"
	"github.com/banshee-data/driftsight/internal/geometry"
	"github.com/banshee-data/driftsight/internal/history"
	"github.com/banshee-data/driftsight/internal/httputil"
	"github.com/banshee-data/driftsight/internal/syncer"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	engine *engine.Engine
}

func NewServer(e *engine.Engine) *Server {
	return &Server{engine: e}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/dashboard", s.showDashboard)
	mux.HandleFunc("/api/dataset", s.handleDataset)
	mux.HandleFunc("/api/boundaries", s.handleBoundaries)
	mux.HandleFunc("/api/boundaries/multi", s.setMultiMode)
	mux.HandleFunc("/api/refresh", s.triggerRefresh)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/history", s.showHistory)
	mux.HandleFunc("/api/history/stats", s.showHistoryStats)
	mux.HandleFunc("/api/preferences", s.handlePreferences)
	mux.HandleFunc("/api/sync", s.showSync)
	mux.HandleFunc("/api/sync/resolve", s.resolveSync)
	return mux
}

// dashboardResponse is the combined projection the dashboard renders from:
// the retained series, its partition, and the stream progress.
type dashboardResponse struct {
	DatasetID int64               `json:"dataset_id"`
	X         []float64           `json:"x"`
	Y         []float64           `json:"y"`
	Metadata  map[string][]string `json:"metadata,omitempty"`
	Normal    []int               `json:"normal"`
	Anomalous []int               `json:"anomalous"`
	Latest    []int               `json:"latest"`
	Status    interface{}         `json:"status"`
}

func (s *Server) showDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	series := s.engine.Series()
	res := s.engine.Classification()
	httputil.WriteJSON(w, http.StatusOK, dashboardResponse{
		DatasetID: s.engine.DatasetID(),
		X:         series.X,
		Y:         series.Y,
		Metadata:  series.Meta,
		Normal:    res.Normal,
		Anomalous: res.Anomalous,
		Latest:    res.Latest,
		Status:    s.engine.Status(),
	})
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSON(w, http.StatusOK, map[string]int64{"dataset_id": s.engine.DatasetID()})
	case http.MethodPut, http.MethodPost:
		var req struct {
			DatasetID int64 `json:"dataset_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, "invalid JSON body")
			return
		}
		if err := s.engine.SetDataset(req.DatasetID); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to switch dataset: %v", err))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]int64{"dataset_id": req.DatasetID})
	default:
		httputil.MethodNotAllowed(w)
	}
}

// boundaryRequest is one drawing gesture. Box shapes use start/end; polygons
// use the vertex list.
type boundaryRequest struct {
	Type     string           `json:"type"`
	Start    geometry.Point   `json:"start"`
	End      geometry.Point   `json:"end"`
	Vertices []geometry.Point `json:"vertices,omitempty"`
}

func (s *Server) handleBoundaries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list := s.engine.Boundaries()
		if list == nil {
			list = []boundary.Boundary{}
		}
		httputil.WriteJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req boundaryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, "invalid JSON body")
			return
		}
		sel := boundary.Selection{Start: req.Start, End: req.End, Vertices: req.Vertices}
		b, err := s.engine.AddBoundary(sel, boundary.Kind(req.Type))
		if err != nil {
			if errors.Is(err, engine.ErrInvalidSelection) {
				httputil.BadRequest(w, err.Error())
				return
			}
			httputil.InternalServerError(w, fmt.Sprintf("failed to add boundary: %v", err))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, b)
	case http.MethodDelete:
		// ?id= removes one boundary; no id clears the dataset's set.
		id := r.URL.Query().Get("id")
		if id == "" {
			if err := s.engine.ClearBoundaries(); err != nil {
				httputil.InternalServerError(w, fmt.Sprintf("failed to clear boundaries: %v", err))
				return
			}
			httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
			return
		}
		if err := s.engine.RemoveBoundary(id); err != nil {
			if errors.Is(err, engine.ErrBoundaryNotFound) {
				httputil.NotFound(w, err.Error())
				return
			}
			httputil.InternalServerError(w, fmt.Sprintf("failed to remove boundary: %v", err))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "removed", "id": id})
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) setMultiMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	s.engine.SetMultiBoundary(req.Enabled)
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

func (s *Server) triggerRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.engine.Refresh(r.Context()); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("refresh failed: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.engine.Classification())
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) showHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	points := s.engine.History()
	if points == nil {
		points = []history.Point{}
	}
	httputil.WriteJSON(w, http.StatusOK, points)
}

var metricSelectors = map[string]func(history.Point) *float64{
	"anomaly_percentage":    history.AnomalyPercentage,
	"wear_score":            history.WearScore,
	"throughput_per_minute": history.ThroughputPerMinute,
}

func (s *Server) showHistoryStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = "anomaly_percentage"
	}
	selector, ok := metricSelectors[metric]
	if !ok {
		httputil.BadRequest(w, fmt.Sprintf("unknown metric %q", metric))
		return
	}
	summary, ok := s.engine.HistoryStats(selector)
	if !ok {
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"metric": metric, "count": 0})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"metric": metric, "summary": summary})
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snap, _, _ := s.engine.Preferences()
		httputil.WriteJSON(w, http.StatusOK, snap)
	case http.MethodPatch, http.MethodPost:
		var req struct {
			PlaybackSpeed     *float64 `json:"playback_speed,omitempty"`
			ManualMode        *bool    `json:"manual_mode,omitempty"`
			MetadataSelection *string  `json:"metadata_selection,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, "invalid JSON body")
			return
		}
		if req.PlaybackSpeed != nil {
			if err := s.engine.SetPlaybackSpeed(*req.PlaybackSpeed); err != nil {
				httputil.BadRequest(w, err.Error())
				return
			}
		}
		if req.ManualMode != nil {
			if err := s.engine.SetManualMode(*req.ManualMode); err != nil {
				httputil.InternalServerError(w, err.Error())
				return
			}
		}
		if req.MetadataSelection != nil {
			if err := s.engine.SetMetadataSelection(*req.MetadataSelection); err != nil {
				httputil.InternalServerError(w, err.Error())
				return
			}
		}
		snap, _, _ := s.engine.Preferences()
		httputil.WriteJSON(w, http.StatusOK, snap)
	default:
		httputil.MethodNotAllowed(w)
	}
}

// syncResponse is the conflict banner's data source.
type syncResponse struct {
	State    string                  `json:"state"`
	Conflict *syncer.PendingConflict `json:"conflict,omitempty"`
}

func (s *Server) showSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	_, state, conflict := s.engine.Preferences()
	httputil.WriteJSON(w, http.StatusOK, syncResponse{State: state.String(), Conflict: conflict})
}

func (s *Server) resolveSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req struct {
		Resolution string `json:"resolution"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	var err error
	switch req.Resolution {
	case "apply-remote":
		err = s.engine.ResolveConflict(true)
	case "keep-local":
		err = s.engine.ResolveConflict(false)
	default:
		httputil.BadRequest(w, fmt.Sprintf("unknown resolution %q", req.Resolution))
		return
	}
	if err != nil {
		httputil.ConflictResponse(w, err.Error())
		return
	}
	_, state, conflict := s.engine.Preferences()
	httputil.WriteJSON(w, http.StatusOK, syncResponse{State: state.String(), Conflict: conflict})
}
