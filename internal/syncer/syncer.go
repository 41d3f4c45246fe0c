// Package syncer reconciles the two replicas of the preference document.
// Local mutations apply synchronously, persist to the device-local cache,
// and publish to the shared remote copy through a debounced write-behind.
// Remote polls flow back through an explicit state machine that detects
// echoes of our own writes, auto-applies foreign updates while clean, and
// raises a user-facing conflict instead of merging when both sides changed.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/driftsight/internal/monitoring"
	"github.com/banshee-data/driftsight/internal/prefs"
	"github.com/banshee-data/driftsight/internal/timeutil"
)

// State is the reconciler's position in the sync lifecycle.
type State int

const (
	// Clean means the local working snapshot has no unpublished edits.
	Clean State = iota
	// Dirty means local edits are waiting for the debounced write-back.
	Dirty
	// Conflict means a foreign, newer remote snapshot arrived while local
	// edits were pending. Resolution requires an explicit user decision.
	Conflict
)

func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	case Conflict:
		return "conflict"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// LocalReplica is the durable device-local snapshot store.
type LocalReplica interface {
	Get(accountID string) (*prefs.Snapshot, bool, error)
	Put(accountID string, snap *prefs.Snapshot) error
}

// RemoteReplica is the shared server-held snapshot store. Get reports the
// server-observed update time; Put echoes it for the written document.
type RemoteReplica interface {
	Get(ctx context.Context) (*prefs.Snapshot, time.Time, error)
	Put(ctx context.Context, snap *prefs.Snapshot) (time.Time, error)
}

// PendingConflict retains both sides of a detected divergence until the
// user picks one.
type PendingConflict struct {
	Local           *prefs.Snapshot
	Remote          *prefs.Snapshot
	RemoteUpdatedAt time.Time
}

// Result describes one state transition for the UI projection.
type Result struct {
	State    State
	Reason   string
	Snapshot *prefs.Snapshot
	Conflict *PendingConflict
}

// Reconciler owns the working snapshot for one account on one device. All
// collaborators are injected; there are no package-level globals.
type Reconciler struct {
	accountID string
	deviceID  string
	local     LocalReplica
	remote    RemoteReplica
	clock     timeutil.Clock
	debounce  time.Duration
	logf      func(format string, v ...interface{})

	mu       sync.Mutex
	state    State
	snap     *prefs.Snapshot
	conflict *PendingConflict
	timer    timeutil.Timer

	results chan Result
}

// Options configures a Reconciler.
type Options struct {
	AccountID string
	DeviceID  string
	Local     LocalReplica
	Remote    RemoteReplica
	Clock     timeutil.Clock
	Debounce  time.Duration // write-behind coalescing window
}

// New builds a reconciler and loads the working snapshot from the local
// replica, falling back to defaults for a fresh account.
func New(opts Options) (*Reconciler, error) {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 800 * time.Millisecond
	}

	snap, found, err := opts.Local.Get(opts.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load local replica: %w", err)
	}
	if !found {
		snap = prefs.Default()
		snap.DeviceID = opts.DeviceID
	}

	r := &Reconciler{
		accountID: opts.AccountID,
		deviceID:  opts.DeviceID,
		local:     opts.Local,
		remote:    opts.Remote,
		clock:     opts.Clock,
		debounce:  opts.Debounce,
		logf:      monitoring.Scoped("syncer"),
		state:     Clean,
		snap:      snap,
		results:   make(chan Result, 16),
	}
	r.timer = r.clock.NewTimer(r.debounce)
	r.timer.Stop()
	return r, nil
}

// Results delivers state transitions to the UI projection. Events are
// dropped if the consumer falls behind; Current always has the truth.
func (r *Reconciler) Results() <-chan Result { return r.results }

// State returns the current reconciler state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Current returns the working snapshot (cloned) and any pending conflict.
func (r *Reconciler) Current() (*prefs.Snapshot, *PendingConflict) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap.Clone(), r.cloneConflictLocked()
}

func (r *Reconciler) cloneConflictLocked() *PendingConflict {
	if r.conflict == nil {
		return nil
	}
	return &PendingConflict{
		Local:           r.conflict.Local.Clone(),
		Remote:          r.conflict.Remote.Clone(),
		RemoteUpdatedAt: r.conflict.RemoteUpdatedAt,
	}
}

func (r *Reconciler) emitLocked(reason string) {
	res := Result{
		State:    r.state,
		Reason:   reason,
		Snapshot: r.snap.Clone(),
		Conflict: r.cloneConflictLocked(),
	}
	select {
	case r.results <- res:
	default:
	}
}

// Mutate applies a local edit to the working snapshot. The edit is stamped
// with this device's identity and the current time, persisted to the local
// replica immediately, and published to the remote replica after the
// debounce window. A pending conflict is dropped: continued local editing
// means the next foreign-newer poll will raise it again.
func (r *Reconciler) Mutate(edit func(*prefs.Snapshot)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	edit(r.snap)
	r.snap.DeviceID = r.deviceID
	r.snap.UpdatedAt = r.clock.Now()
	r.snap.SchemaVersion = prefs.SchemaVersion
	r.state = Dirty
	r.conflict = nil

	if err := r.local.Put(r.accountID, r.snap); err != nil {
		// The edit stays in memory and in the Dirty state; local persistence
		// gets another chance on the next mutation or flush.
		r.logf("local replica write failed: %v", err)
	}

	r.timer.Reset(r.debounce)
	r.emitLocked("local-edit")
	return nil
}

// PollRemote fetches the shared snapshot and feeds it through the state
// machine. Fetch failures are transient: the state is left unchanged and
// the next scheduled poll retries.
func (r *Reconciler) PollRemote(ctx context.Context) error {
	remote, serverTime, err := r.remote.Get(ctx)
	if err != nil {
		r.logf("remote poll failed (will retry): %v", err)
		return err
	}
	if remote == nil {
		return nil
	}
	r.onRemoteSnapshot(remote, serverTime)
	return nil
}

// onRemoteSnapshot runs the transition table for an arriving remote copy.
func (r *Reconciler) onRemoteSnapshot(remote *prefs.Snapshot, serverTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if remote.DeviceID == r.deviceID {
		// Echo of our own write. Adopt the server's timestamp bookkeeping,
		// but never regress pending edits that are newer than the echo.
		if r.state == Dirty && r.snap.UpdatedAt.After(remote.UpdatedAt) {
			return
		}
		if r.state != Conflict {
			r.state = Clean
			r.emitLocked("remote-echo")
		}
		return
	}

	// Foreign device. Older-or-equal snapshots are ignored: local is
	// authoritative.
	if !remote.UpdatedAt.After(r.snap.UpdatedAt) {
		return
	}

	switch r.state {
	case Dirty, Conflict:
		r.conflict = &PendingConflict{
			Local:           r.snap.Clone(),
			Remote:          remote.Clone(),
			RemoteUpdatedAt: serverTime,
		}
		r.state = Conflict
		// Publishing now would clobber the foreign edit; hold the
		// write-back until the user decides.
		r.timer.Stop()
		r.logf("conflict: foreign device %s updated at %s while local edits pending", remote.DeviceID, remote.UpdatedAt.Format(time.RFC3339))
		r.emitLocked("conflict-detected")
	case Clean:
		r.snap = remote.Clone()
		if err := r.local.Put(r.accountID, r.snap); err != nil {
			r.logf("local replica write failed: %v", err)
		}
		r.emitLocked("remote-applied")
	}
}

// ResolveApplyRemote resolves a pending conflict by overwriting local state
// with the retained remote snapshot, adopting its timestamp.
func (r *Reconciler) ResolveApplyRemote() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Conflict || r.conflict == nil {
		return fmt.Errorf("no pending conflict to resolve")
	}
	r.snap = r.conflict.Remote.Clone()
	r.conflict = nil
	r.state = Clean
	if err := r.local.Put(r.accountID, r.snap); err != nil {
		r.logf("local replica write failed: %v", err)
	}
	r.emitLocked("conflict-applied-remote")
	return nil
}

// ResolveKeepLocal resolves a pending conflict by discarding the remote
// snapshot and re-marking Dirty with a fresh timestamp to force republish.
func (r *Reconciler) ResolveKeepLocal() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Conflict || r.conflict == nil {
		return fmt.Errorf("no pending conflict to resolve")
	}
	r.conflict = nil
	r.state = Dirty
	r.snap.UpdatedAt = r.clock.Now()
	if err := r.local.Put(r.accountID, r.snap); err != nil {
		r.logf("local replica write failed: %v", err)
	}
	r.timer.Reset(r.debounce)
	r.emitLocked("conflict-kept-local")
	return nil
}

// Flush publishes the working snapshot to the remote replica. The remote
// copy is re-fetched first so a foreign-newer document raises a conflict
// instead of being clobbered; this read-then-write has no version check and
// two devices writing inside the same window can still race.
func (r *Reconciler) Flush(ctx context.Context) error {
	r.mu.Lock()
	if r.state != Dirty {
		r.mu.Unlock()
		return nil
	}
	pub := r.snap.Clone()
	r.mu.Unlock()

	pre, preTime, err := r.remote.Get(ctx)
	if err != nil {
		r.rescheduleAfterFailure(err)
		return err
	}
	if pre != nil && pre.DeviceID != r.deviceID && pre.UpdatedAt.After(pub.UpdatedAt) {
		r.onRemoteSnapshot(pre, preTime)
		return nil
	}

	serverTime, err := r.remote.Put(ctx, pub)
	if err != nil {
		r.rescheduleAfterFailure(err)
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Dirty && !r.snap.UpdatedAt.After(pub.UpdatedAt) {
		r.state = Clean
		r.emitLocked("published")
	}
	// New edits arrived mid-flight: stay Dirty, the armed timer republishes.
	r.logf("published snapshot for %s (server time %s)", r.accountID, serverTime.Format(time.RFC3339))
	return nil
}

// rescheduleAfterFailure keeps the Dirty state and re-arms the debounce so
// the write-back is retried. The local replica remains the durable fallback.
func (r *Reconciler) rescheduleAfterFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Dirty {
		return
	}
	r.logf("write-back failed, staying dirty: %v", err)
	r.timer.Reset(r.debounce)
}

// Run services the debounce timer until the context is cancelled. Polling
// is driven externally (the engine owns the adaptive intervals).
func (r *Reconciler) Run(ctx context.Context) {
	for {
		select {
		case <-r.timer.C():
			if err := r.Flush(ctx); err != nil {
				r.logf("flush error: %v", err)
			}
		case <-ctx.Done():
			r.mu.Lock()
			r.timer.Stop()
			r.mu.Unlock()
			return
		}
	}
}
