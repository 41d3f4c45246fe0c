// Package engine wires the drift pipeline together: it owns the merged
// coordinate series, the boundary store, the classification result, and the
// metric history, applies UI mutations through the sync reconciler, and
// drives the two adaptive polling loops against the analysis backend.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/driftsight/internal/backend"
	"github.com/banshee-data/driftsight/internal/boundary"
	"github.com/banshee-data/driftsight/internal/classify"
	"github.com/banshee-data/driftsight/internal/config"
	"github.com/banshee-data/driftsight/internal/history"
	"github.com/banshee-data/driftsight/internal/monitoring"
	"github.com/banshee-data/driftsight/internal/prefs"
	"github.com/banshee-data/driftsight/internal/stream"
	"github.com/banshee-data/driftsight/internal/syncer"
	"github.com/banshee-data/driftsight/internal/timeutil"
)

var (
	// ErrBoundaryNotFound reports a remove for an id the dataset doesn't have.
	ErrBoundaryNotFound = errors.New("boundary not found")
	// ErrInvalidSelection reports a drawing gesture that can't form a shape.
	ErrInvalidSelection = errors.New("selection does not form a valid boundary")
)

// Backend is the slice of the analysis backend the engine consumes.
type Backend interface {
	MonitorCoordinates(ctx context.Context, datasetID int64) (stream.Series, error)
	StreamStatus(ctx context.Context, datasetID int64) (backend.Status, error)
}

// Options configures an Engine.
type Options struct {
	Backend    Backend
	Reconciler *syncer.Reconciler
	Clock      timeutil.Clock
	Tuning     *config.TuningConfig
}

// Engine serializes all dashboard state behind one mutex. Mutations apply
// synchronously and re-classify before returning, so every read after a
// mutation sees the new partition.
type Engine struct {
	backend Backend
	rec     *syncer.Reconciler
	clock   timeutil.Clock
	cfg     *config.TuningConfig
	logf    func(format string, v ...interface{})

	mu         sync.Mutex
	datasetID  int64
	playback   float64
	manual     bool
	metaSel    string
	boundaries *boundary.Store
	series     stream.Series
	result     classify.Result
	status     backend.Status
	hist       *history.Aggregator
	snapStamp  time.Time // UpdatedAt of the last snapshot folded into engine state
	lastTick   time.Time
	lastCount  int

	kickPref   chan struct{}
	kickStatus chan struct{}
}

// New builds an engine seeded from the reconciler's working snapshot, so a
// restart resumes with the persisted dataset, boundaries, and history.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Tuning == nil {
		opts.Tuning = config.EmptyTuningConfig()
	}

	e := &Engine{
		backend:    opts.Backend,
		rec:        opts.Reconciler,
		clock:      opts.Clock,
		cfg:        opts.Tuning,
		logf:       monitoring.Scoped("engine"),
		boundaries: boundary.NewStore(),
		hist:       history.NewAggregator(opts.Tuning.GetHistoryCap()),
		kickPref:   make(chan struct{}, 1),
		kickStatus: make(chan struct{}, 1),
	}

	snap, _ := e.rec.Current()
	e.adoptLocked(snap)
	return e
}

// adoptLocked folds a snapshot into engine state. Callers hold e.mu (or, in
// New, exclusive access).
func (e *Engine) adoptLocked(snap *prefs.Snapshot) {
	if snap.SelectedDatasetID != e.datasetID {
		e.resetStreamLocked(snap.SelectedDatasetID)
	}
	e.playback = snap.PlaybackSpeed
	e.manual = snap.ManualMode
	e.metaSel = snap.MetadataSelection
	e.boundaries.Replace(snap.Boundaries)
	e.hist.Replace(snap.History)
	e.snapStamp = snap.UpdatedAt
	e.reclassifyLocked()
}

func (e *Engine) resetStreamLocked(datasetID int64) {
	e.datasetID = datasetID
	e.series = stream.Series{}
	e.result = classify.Result{}
	e.status = backend.Status{}
	e.lastTick = time.Time{}
	e.lastCount = 0
}

func (e *Engine) reclassifyLocked() {
	e.result = classify.Classify(e.series, e.boundaries.List(e.datasetID), e.latestWindowLocked())
}

// latestWindowLocked prefers the backend-reported glow count, falling back
// to the configured window.
func (e *Engine) latestWindowLocked() int {
	if e.status.LatestGlowCount > 0 {
		return e.status.LatestGlowCount
	}
	return e.cfg.GetLatestWindow()
}

// mutateLocked records the current engine state as a local edit, marking
// the snapshot dirty for the debounced write-back. Callers hold e.mu.
func (e *Engine) mutateLocked() error {
	err := e.rec.Mutate(func(s *prefs.Snapshot) {
		s.SelectedDatasetID = e.datasetID
		s.PlaybackSpeed = e.playback
		s.ManualMode = e.manual
		s.MetadataSelection = e.metaSel
		s.Boundaries = e.boundaries.All()
		s.History = e.hist.Points()
	})
	if err != nil {
		return err
	}
	snap, _ := e.rec.Current()
	e.snapStamp = snap.UpdatedAt
	return nil
}

// SetDataset switches the monitored dataset. The retained series, the
// classification, and the streaming status reset; the poll loops restart
// their timers so the new dataset is fetched promptly.
func (e *Engine) SetDataset(datasetID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if datasetID == e.datasetID {
		return nil
	}
	e.resetStreamLocked(datasetID)
	e.reclassifyLocked()
	if err := e.mutateLocked(); err != nil {
		return err
	}
	e.kick()
	return nil
}

func (e *Engine) kick() {
	select {
	case e.kickPref <- struct{}{}:
	default:
	}
	select {
	case e.kickStatus <- struct{}{}:
	default:
	}
}

// AddBoundary builds a boundary from a drawing gesture and inserts it for
// the current dataset (replace-set or append per multi mode).
func (e *Engine) AddBoundary(sel boundary.Selection, kind boundary.Kind) (boundary.Boundary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := boundary.Build(sel, kind, e.datasetID)
	if !ok {
		return boundary.Boundary{}, ErrInvalidSelection
	}
	e.boundaries.Add(b)
	e.reclassifyLocked()
	if err := e.mutateLocked(); err != nil {
		return boundary.Boundary{}, err
	}
	return b, nil
}

// RemoveBoundary deletes one boundary from the current dataset's set.
func (e *Engine) RemoveBoundary(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.boundaries.RemoveByID(e.datasetID, id) {
		return fmt.Errorf("%w: %s", ErrBoundaryNotFound, id)
	}
	e.reclassifyLocked()
	return e.mutateLocked()
}

// ClearBoundaries removes every boundary for the current dataset.
func (e *Engine) ClearBoundaries() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.boundaries.Clear(e.datasetID)
	e.reclassifyLocked()
	return e.mutateLocked()
}

// SetMultiBoundary toggles whether new boundaries replace or extend the set.
func (e *Engine) SetMultiBoundary(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.boundaries.SetMulti(enabled)
}

// SetPlaybackSpeed updates the dashboard playback multiplier.
func (e *Engine) SetPlaybackSpeed(speed float64) error {
	if speed <= 0 {
		return fmt.Errorf("playback speed must be positive, got %v", speed)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playback = speed
	return e.mutateLocked()
}

// SetManualMode toggles manual refresh. While on, the status loop keeps
// polling progress but stops fetching coordinates; Refresh drives fetches.
func (e *Engine) SetManualMode(enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.manual = enabled
	return e.mutateLocked()
}

// SetMetadataSelection records which metadata column the dashboard colors by.
func (e *Engine) SetMetadataSelection(column string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metaSel = column
	return e.mutateLocked()
}

// ResolveConflict resolves a pending sync conflict. applyRemote adopts the
// foreign snapshot into the whole engine state; otherwise the local side is
// kept and republished.
func (e *Engine) ResolveConflict(applyRemote bool) error {
	var err error
	if applyRemote {
		err = e.rec.ResolveApplyRemote()
	} else {
		err = e.rec.ResolveKeepLocal()
	}
	if err != nil {
		return err
	}
	e.syncFromReconciler()
	return nil
}

// syncFromReconciler folds the reconciler's working snapshot into engine
// state when it changed underneath us (foreign auto-apply or resolution).
func (e *Engine) syncFromReconciler() {
	snap, _ := e.rec.Current()
	e.mu.Lock()
	defer e.mu.Unlock()
	if snap.UpdatedAt.Equal(e.snapStamp) {
		return
	}
	e.adoptLocked(snap)
}

// Refresh fetches the latest streamed coordinates, merges them into the
// retained series, re-classifies, and appends a history sample when the
// series grew. Safe to call concurrently with the poll loops.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	id := e.datasetID
	e.mu.Unlock()
	if id == 0 {
		return nil
	}

	incoming, err := e.backend.MonitorCoordinates(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch coordinates: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.datasetID != id {
		// Dataset switched while the fetch was in flight.
		return nil
	}
	merged := stream.Merge(e.series, incoming)
	grew := merged.Len() > e.series.Len()
	e.series = merged
	e.reclassifyLocked()

	if grew {
		now := e.clock.Now()
		pct := e.result.AnomalyPercentage()
		p := history.Point{Timestamp: now, AnomalyPercentage: &pct}
		if !e.lastTick.IsZero() && now.After(e.lastTick) {
			rate := float64(merged.Len()-e.lastCount) / now.Sub(e.lastTick).Minutes()
			p.ThroughputPerMinute = &rate
		}
		e.lastTick = now
		e.lastCount = merged.Len()
		e.hist.Append(p)
	}
	return nil
}

// pollStatus refreshes the streaming status and, outside manual mode,
// fetches coordinates while the stream is active.
func (e *Engine) pollStatus(ctx context.Context) {
	e.mu.Lock()
	id := e.datasetID
	e.mu.Unlock()
	if id == 0 {
		return
	}

	st, err := e.backend.StreamStatus(ctx, id)
	if err != nil {
		e.logf("status poll failed (will retry): %v", err)
		return
	}

	e.mu.Lock()
	if e.datasetID != id {
		e.mu.Unlock()
		return
	}
	wasActive := e.status.IsActive
	e.status = st
	manual := e.manual
	e.mu.Unlock()

	if manual {
		return
	}
	if st.IsActive || wasActive {
		// One more fetch after the stream goes idle picks up the tail.
		if err := e.Refresh(ctx); err != nil {
			e.logf("refresh failed (will retry): %v", err)
		}
	}
}

func (e *Engine) streamActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.IsActive
}

func (e *Engine) prefInterval() time.Duration {
	if e.streamActive() {
		return e.cfg.GetPrefPollActive()
	}
	return e.cfg.GetPrefPollIdle()
}

func (e *Engine) statusInterval() time.Duration {
	if e.streamActive() {
		return e.cfg.GetStatusPollActive()
	}
	return e.cfg.GetStatusPollIdle()
}

// Run drives the reconciler's write-behind and the two adaptive poll loops
// until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		e.rec.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		e.runPrefPoll(ctx)
	}()
	go func() {
		defer wg.Done()
		e.runStatusPoll(ctx)
	}()
	wg.Wait()
}

func (e *Engine) runPrefPoll(ctx context.Context) {
	timer := e.clock.NewTimer(e.prefInterval())
	defer timer.Stop()
	for {
		select {
		case <-timer.C():
			if err := e.rec.PollRemote(ctx); err == nil {
				e.syncFromReconciler()
			}
			timer.Reset(e.prefInterval())
		case <-e.kickPref:
			timer.Reset(e.prefInterval())
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) runStatusPoll(ctx context.Context) {
	timer := e.clock.NewTimer(e.statusInterval())
	defer timer.Stop()
	for {
		select {
		case <-timer.C():
			e.pollStatus(ctx)
			timer.Reset(e.statusInterval())
		case <-e.kickStatus:
			e.pollStatus(ctx)
			timer.Reset(e.statusInterval())
		case <-ctx.Done():
			return
		}
	}
}

// Series returns the retained coordinate series.
func (e *Engine) Series() stream.Series {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.series
}

// Classification returns the current partition and latest-point tags.
func (e *Engine) Classification() classify.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// Boundaries returns the current dataset's boundary list in priority order.
func (e *Engine) Boundaries() []boundary.Boundary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.boundaries.List(e.datasetID)
}

// Status returns the last streaming status fetched from the backend.
func (e *Engine) Status() backend.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// DatasetID returns the currently selected dataset.
func (e *Engine) DatasetID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.datasetID
}

// History returns a copy of the retained metric history window.
func (e *Engine) History() []history.Point {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hist.Points()
}

// HistoryStats summarizes one metric over the history window.
func (e *Engine) HistoryStats(metric func(history.Point) *float64) (history.Summary, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hist.Summarize(metric)
}

// Preferences returns the working snapshot, the sync state, and any pending
// conflict for the UI projection.
func (e *Engine) Preferences() (*prefs.Snapshot, syncer.State, *syncer.PendingConflict) {
	snap, conflict := e.rec.Current()
	return snap, e.rec.State(), conflict
}
