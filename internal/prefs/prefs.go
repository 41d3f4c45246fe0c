// Package prefs defines the per-account preference snapshot: the single
// JSON document that carries UI state, boundary annotations, and the metric
// history between the device-local cache and the shared server copy.
package prefs

import (
	"encoding/json"
	"time"

	"github.com/banshee-data/driftsight/internal/boundary"
	"github.com/banshee-data/driftsight/internal/history"
)

// SchemaVersion is stamped into every written snapshot so future readers
// can tell which fields to expect.
const SchemaVersion = 1

// Snapshot is one replica's copy of the preference document. Two copies
// exist per account (local and remote), each independently timestamped;
// the envelope fields (DeviceID, UpdatedAt, SchemaVersion) drive conflict
// detection in the reconciler.
type Snapshot struct {
	SelectedDatasetID int64               `json:"selected_dataset_id"`
	PlaybackSpeed     float64             `json:"playback_speed"`
	ManualMode        bool                `json:"manual_mode"`
	MetadataSelection string              `json:"metadata_selection,omitempty"`
	Boundaries        []boundary.Boundary `json:"boundaries,omitempty"`
	History           []history.Point     `json:"history,omitempty"`

	DeviceID      string    `json:"device_id"`
	UpdatedAt     time.Time `json:"updated_at"`
	SchemaVersion int       `json:"schema_version"`
}

// Default returns a snapshot with usable defaults for a fresh account.
func Default() *Snapshot {
	return &Snapshot{
		PlaybackSpeed: 1.0,
		SchemaVersion: SchemaVersion,
	}
}

// Clone returns a deep copy. The reconciler retains both sides of a
// conflict, so snapshots must never share backing slices.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Boundaries = append([]boundary.Boundary(nil), s.Boundaries...)
	for i := range out.Boundaries {
		b := &out.Boundaries[i]
		b.Coordinates = append(boundary.PointList(nil), b.Coordinates...)
		if b.Center != nil {
			c := *b.Center
			b.Center = &c
		}
	}
	out.History = append([]history.Point(nil), s.History...)
	return &out
}

// Encode marshals the snapshot for persistence. UpdatedAt serializes as
// RFC 3339, per the envelope contract.
func (s *Snapshot) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// Decode rebuilds a snapshot from a persisted document, field by field with
// defaulting. Unknown keys are ignored, missing or malformed fields keep
// their defaults, and invalid boundary or history entries are dropped
// individually. Decode never fails: a completely unreadable document yields
// the default snapshot.
func Decode(data []byte) *Snapshot {
	snap := Default()

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return snap
	}

	decodeField(fields, "selected_dataset_id", &snap.SelectedDatasetID)
	decodeField(fields, "manual_mode", &snap.ManualMode)
	decodeField(fields, "metadata_selection", &snap.MetadataSelection)
	decodeField(fields, "device_id", &snap.DeviceID)
	decodeField(fields, "schema_version", &snap.SchemaVersion)

	var speed float64
	if decodeField(fields, "playback_speed", &speed) && speed > 0 {
		snap.PlaybackSpeed = speed
	}

	var updated string
	if decodeField(fields, "updated_at", &updated) {
		if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			snap.UpdatedAt = t
		}
	}

	var rawBoundaries []json.RawMessage
	if decodeField(fields, "boundaries", &rawBoundaries) {
		snap.Boundaries = boundary.DecodeList(rawBoundaries)
	}

	var rawHistory []json.RawMessage
	if decodeField(fields, "history", &rawHistory) {
		for _, r := range rawHistory {
			var p history.Point
			if err := json.Unmarshal(r, &p); err != nil {
				continue
			}
			if p.Timestamp.IsZero() {
				continue
			}
			snap.History = append(snap.History, p)
		}
	}

	return snap
}

func decodeField(fields map[string]json.RawMessage, key string, dst interface{}) bool {
	raw, ok := fields[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}
