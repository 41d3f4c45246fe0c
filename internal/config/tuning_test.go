package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()
	if got := cfg.GetWriteDebounce(); got != 800*time.Millisecond {
		t.Errorf("GetWriteDebounce() = %v, want 800ms", got)
	}
	if got := cfg.GetPrefPollActive(); got != 2*time.Second {
		t.Errorf("GetPrefPollActive() = %v, want 2s", got)
	}
	if got := cfg.GetPrefPollIdle(); got != 15*time.Second {
		t.Errorf("GetPrefPollIdle() = %v, want 15s", got)
	}
	if got := cfg.GetStatusPollActive(); got != time.Second {
		t.Errorf("GetStatusPollActive() = %v, want 1s", got)
	}
	if got := cfg.GetStatusPollIdle(); got != 10*time.Second {
		t.Errorf("GetStatusPollIdle() = %v, want 10s", got)
	}
	if got := cfg.GetHistoryCap(); got != 10000 {
		t.Errorf("GetHistoryCap() = %d, want 10000", got)
	}
	if got := cfg.GetLatestWindow(); got != 10 {
		t.Errorf("GetLatestWindow() = %d, want 10", got)
	}
}

func TestLoadPartialConfig(t *testing.T) {
	path := writeConfig(t, `{"write_debounce": "1.5s", "latest_window": 25}`)
	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}
	if got := cfg.GetWriteDebounce(); got != 1500*time.Millisecond {
		t.Errorf("GetWriteDebounce() = %v, want 1.5s", got)
	}
	if got := cfg.GetLatestWindow(); got != 25 {
		t.Errorf("GetLatestWindow() = %d, want 25", got)
	}
	// Untouched fields keep defaults.
	if got := cfg.GetHistoryCap(); got != 10000 {
		t.Errorf("GetHistoryCap() = %d, want default", got)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unparseable duration", `{"pref_poll_idle": "soon"}`},
		{"negative duration", `{"write_debounce": "-1s"}`},
		{"zero history cap", `{"history_cap": 0}`},
		{"negative latest window", `{"latest_window": -1}`},
		{"not json", `debounce = fast`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := LoadTuningConfig(path); err == nil {
				t.Error("expected load to fail")
			}
		})
	}
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTuningConfig(path); err == nil {
		t.Error("expected non-.json extension to be rejected")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadTuningConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected missing file to fail")
	}
}
