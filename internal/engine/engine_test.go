package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/driftsight/internal/backend"
	"github.com/banshee-data/driftsight/internal/boundary"
	"github.com/banshee-data/driftsight/internal/config"
	"github.com/banshee-data/driftsight/internal/geometry"
	"github.com/banshee-data/driftsight/internal/prefs"
	"github.com/banshee-data/driftsight/internal/replica"
	"github.com/banshee-data/driftsight/internal/stream"
	"github.com/banshee-data/driftsight/internal/syncer"
	"github.com/banshee-data/driftsight/internal/timeutil"
)

type fakeBackend struct {
	mu          sync.Mutex
	series      stream.Series
	status      backend.Status
	coordCalls  int
	statusCalls int
}

func (f *fakeBackend) MonitorCoordinates(ctx context.Context, datasetID int64) (stream.Series, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coordCalls++
	return f.series, nil
}

func (f *fakeBackend) StreamStatus(ctx context.Context, datasetID int64) (backend.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	return f.status, nil
}

func (f *fakeBackend) setSeries(x, y []float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.series = stream.Series{X: x, Y: y}
}

func (f *fakeBackend) coordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.coordCalls
}

type fakeRemote struct {
	mu   sync.Mutex
	snap *prefs.Snapshot
}

func (f *fakeRemote) Get(ctx context.Context) (*prefs.Snapshot, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snap == nil {
		return nil, time.Time{}, nil
	}
	return f.snap.Clone(), f.snap.UpdatedAt, nil
}

func (f *fakeRemote) Put(ctx context.Context, snap *prefs.Snapshot) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap.Clone()
	return snap.UpdatedAt, nil
}

var base = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *fakeBackend, *fakeRemote, *timeutil.MockClock) {
	t.Helper()
	local, err := replica.NewLocalStore(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	t.Cleanup(func() { local.Close() })

	remote := &fakeRemote{}
	clock := timeutil.NewMockClock(base)
	rec, err := syncer.New(syncer.Options{
		AccountID: "acct",
		DeviceID:  "device-a",
		Local:     local,
		Remote:    remote,
		Clock:     clock,
		Debounce:  800 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("syncer.New: %v", err)
	}

	fb := &fakeBackend{}
	e := New(Options{
		Backend:    fb,
		Reconciler: rec,
		Clock:      clock,
		Tuning:     config.EmptyTuningConfig(),
	})
	return e, fb, remote, clock
}

func unitRect(t *testing.T, e *Engine) boundary.Boundary {
	t.Helper()
	b, err := e.AddBoundary(boundary.Selection{
		Start: geometry.Point{X: 0, Y: 0},
		End:   geometry.Point{X: 10, Y: 10},
	}, boundary.KindRectangle)
	if err != nil {
		t.Fatalf("AddBoundary: %v", err)
	}
	return b
}

func TestRefreshMergesAndClassifies(t *testing.T) {
	e, fb, _, _ := newTestEngine(t)
	if err := e.SetDataset(1); err != nil {
		t.Fatal(err)
	}
	unitRect(t, e)

	fb.setSeries([]float64{5, 20}, []float64{5, 20})
	if err := e.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	res := e.Classification()
	if len(res.Normal)+len(res.Anomalous) != e.Series().Len() {
		t.Errorf("partition not total: %+v over %d points", res, e.Series().Len())
	}
	if len(res.Normal) != 1 || len(res.Anomalous) != 1 {
		t.Errorf("result = %+v, want 1 normal / 1 anomalous", res)
	}
}

func TestRefreshAppendsToSeriesMonotonically(t *testing.T) {
	e, fb, _, _ := newTestEngine(t)
	if err := e.SetDataset(1); err != nil {
		t.Fatal(err)
	}

	fb.setSeries([]float64{1, 2}, []float64{1, 2})
	e.Refresh(context.Background())
	fb.setSeries([]float64{1, 2, 3}, []float64{1, 2, 3})
	e.Refresh(context.Background())
	// Re-delivery of the same cumulative arrays changes nothing.
	e.Refresh(context.Background())

	if got := e.Series().Len(); got != 3 {
		t.Errorf("series length = %d, want 3", got)
	}
	if got := len(e.History()); got != 2 {
		t.Errorf("history samples = %d, want 2 (one per growth)", got)
	}
}

func TestHistoryThroughput(t *testing.T) {
	e, fb, _, clock := newTestEngine(t)
	if err := e.SetDataset(1); err != nil {
		t.Fatal(err)
	}

	fb.setSeries([]float64{1}, []float64{1})
	e.Refresh(context.Background())
	clock.Set(base.Add(time.Minute))
	fb.setSeries([]float64{1, 2, 3}, []float64{1, 2, 3})
	e.Refresh(context.Background())

	hist := e.History()
	if len(hist) != 2 {
		t.Fatalf("history = %d samples, want 2", len(hist))
	}
	last := hist[1]
	if last.ThroughputPerMinute == nil {
		t.Fatal("second sample missing throughput")
	}
	if *last.ThroughputPerMinute != 2 {
		t.Errorf("throughput = %v points/min, want 2", *last.ThroughputPerMinute)
	}
}

func TestSetDatasetResetsStream(t *testing.T) {
	e, fb, _, _ := newTestEngine(t)
	e.SetDataset(1)
	fb.setSeries([]float64{1, 2}, []float64{1, 2})
	e.Refresh(context.Background())

	if err := e.SetDataset(2); err != nil {
		t.Fatal(err)
	}
	if e.Series().Len() != 0 {
		t.Errorf("series survived dataset switch: %d points", e.Series().Len())
	}
	res := e.Classification()
	if len(res.Normal)+len(res.Anomalous) != 0 {
		t.Errorf("classification survived dataset switch: %+v", res)
	}
	if e.DatasetID() != 2 {
		t.Errorf("dataset = %d, want 2", e.DatasetID())
	}
}

func TestAddBoundaryReclassifies(t *testing.T) {
	e, fb, _, _ := newTestEngine(t)
	e.SetDataset(1)
	fb.setSeries([]float64{5}, []float64{5})
	e.Refresh(context.Background())

	if res := e.Classification(); len(res.Anomalous) != 1 {
		t.Fatalf("without boundaries want all anomalous, got %+v", res)
	}
	unitRect(t, e)
	if res := e.Classification(); len(res.Normal) != 1 {
		t.Errorf("after boundary want point normal, got %+v", res)
	}
}

func TestRemoveBoundary(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	e.SetDataset(1)
	b := unitRect(t, e)

	if err := e.RemoveBoundary(b.ID); err != nil {
		t.Fatalf("RemoveBoundary: %v", err)
	}
	if got := e.Boundaries(); len(got) != 0 {
		t.Errorf("boundaries = %+v, want empty", got)
	}
	if err := e.RemoveBoundary("no-such-id"); err == nil {
		t.Error("removing unknown id should error")
	}
}

func TestMultiBoundaryMode(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	e.SetDataset(1)

	unitRect(t, e)
	unitRect(t, e)
	if got := len(e.Boundaries()); got != 1 {
		t.Errorf("single mode kept %d boundaries, want 1", got)
	}

	e.SetMultiBoundary(true)
	unitRect(t, e)
	unitRect(t, e)
	if got := len(e.Boundaries()); got != 3 {
		t.Errorf("multi mode kept %d boundaries, want 3", got)
	}
}

func TestInvalidSelectionRejected(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	e.SetDataset(1)
	_, err := e.AddBoundary(boundary.Selection{
		Vertices: []geometry.Point{{X: 0, Y: 0}, {X: 1, Y: 1}},
	}, boundary.KindPolygon)
	if err == nil {
		t.Error("two-vertex polygon should be rejected")
	}
}

func TestLatestWindowFollowsStatus(t *testing.T) {
	e, fb, _, _ := newTestEngine(t)
	e.SetDataset(1)
	fb.status = backend.Status{IsActive: true, LatestGlowCount: 3}
	e.pollStatus(context.Background())

	fb.setSeries([]float64{1, 2, 3, 4, 5}, []float64{1, 2, 3, 4, 5})
	e.Refresh(context.Background())

	res := e.Classification()
	if len(res.Latest) != 3 {
		t.Errorf("latest window = %d, want 3 from status", len(res.Latest))
	}
}

func TestManualModeSkipsAutoFetch(t *testing.T) {
	e, fb, _, _ := newTestEngine(t)
	e.SetDataset(1)
	e.SetManualMode(true)
	fb.status = backend.Status{IsActive: true}

	before := fb.coordCount()
	e.pollStatus(context.Background())
	if fb.coordCount() != before {
		t.Error("manual mode still auto-fetched coordinates")
	}

	// Progress polling itself keeps running.
	if e.Status().IsActive != true {
		t.Error("status not updated in manual mode")
	}
}

func TestMutationsMarkDirty(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	e.SetDataset(1)
	if _, state, _ := e.Preferences(); state != syncer.Dirty {
		t.Errorf("state = %v, want dirty after mutation", state)
	}
	snap, _, _ := e.Preferences()
	if snap.SelectedDatasetID != 1 {
		t.Errorf("snapshot dataset = %d, want 1", snap.SelectedDatasetID)
	}
}

func TestForeignSnapshotAdopted(t *testing.T) {
	e, _, remote, _ := newTestEngine(t)

	foreign := prefs.Default()
	foreign.SelectedDatasetID = 9
	foreign.DeviceID = "device-b"
	foreign.UpdatedAt = base.Add(time.Minute)
	foreign.Boundaries = []boundary.Boundary{{
		ID:        "b-1",
		Type:      boundary.KindCircle,
		DatasetID: 9,
		Center:    &geometry.Point{X: 0, Y: 0},
		Radius:    5,
	}}
	remote.snap = foreign

	e.rec.PollRemote(context.Background())
	e.syncFromReconciler()

	if e.DatasetID() != 9 {
		t.Errorf("dataset = %d, want foreign 9", e.DatasetID())
	}
	if got := e.Boundaries(); len(got) != 1 || got[0].ID != "b-1" {
		t.Errorf("boundaries = %+v, want foreign circle", got)
	}
}

func TestResolveConflictApplyRemote(t *testing.T) {
	e, _, remote, _ := newTestEngine(t)
	e.SetDataset(1)

	foreign := prefs.Default()
	foreign.SelectedDatasetID = 9
	foreign.DeviceID = "device-b"
	foreign.UpdatedAt = base.Add(time.Minute)
	remote.snap = foreign

	e.rec.PollRemote(context.Background())
	if _, state, _ := e.Preferences(); state != syncer.Conflict {
		t.Fatalf("state = %v, want conflict", state)
	}

	if err := e.ResolveConflict(true); err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}
	if e.DatasetID() != 9 {
		t.Errorf("dataset = %d, want remote side adopted", e.DatasetID())
	}
	if _, state, _ := e.Preferences(); state != syncer.Clean {
		t.Errorf("state = %v, want clean", state)
	}
}
