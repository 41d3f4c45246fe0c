// Package sim replays a recorded monitor CSV against the analysis backend
// as if a live sensor were producing it, batch by batch with a configurable
// delay. It drives the same ingestion endpoints the real pipeline uses, so
// the dashboard sees an authentic stream.
package sim

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/driftsight/internal/httputil"
	"github.com/banshee-data/driftsight/internal/monitoring"
	"github.com/banshee-data/driftsight/internal/timeutil"
)

// Dataset family detection. Store-D exports use freq_X.XX columns with long
// decimal suffixes; generic exports use f_N.
var (
	freqPattern    = regexp.MustCompile(`freq_\d+\.\d{2,}`)
	genericPattern = regexp.MustCompile(`\bf_\d+\b`)
)

const (
	FamilyStoreD  = "store_d"
	FamilyGeneric = "generic"
)

// Dataset is a loaded monitor CSV: cleaned headers, the feature column
// subset, and the raw records.
type Dataset struct {
	Family   string
	Headers  []string
	Features []string
	Records  [][]string
}

// Len returns the number of monitor rows.
func (d *Dataset) Len() int { return len(d.Records) }

// DetectFamily classifies the CSV schema by its header patterns.
func DetectFamily(headers []string) string {
	joined := strings.ToLower(strings.Join(headers, ","))
	freqMatches := len(freqPattern.FindAllString(joined, -1))
	fMatches := len(genericPattern.FindAllString(joined, -1))
	// Store-D exports carry hundreds of freq_ columns.
	if freqMatches > fMatches && freqMatches > 50 {
		return FamilyStoreD
	}
	return FamilyGeneric
}

// featureColumns returns the headers carrying feature values.
func featureColumns(headers []string) []string {
	var out []string
	for _, h := range headers {
		lower := strings.ToLower(strings.TrimSpace(h))
		if strings.HasPrefix(lower, "f_") || strings.HasPrefix(lower, "freq_") {
			out = append(out, h)
		}
	}
	return out
}

// cleanHeader strips whitespace and a UTF-8 BOM, preserving case: the
// backend matches baseline and monitor columns case-sensitively.
func cleanHeader(h string) string {
	h = strings.TrimSpace(h)
	return strings.TrimPrefix(h, "\ufeff")
}

// LoadMonitorCSV reads and validates a monitor CSV. The first rows are
// checked for feature-vector length consistency so a malformed file fails
// before any batch reaches the backend.
func LoadMonitorCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open monitor file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	raw, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse monitor CSV: %w", err)
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("monitor CSV has no data rows")
	}

	headers := make([]string, len(raw[0]))
	for i, h := range raw[0] {
		headers[i] = cleanHeader(h)
	}

	d := &Dataset{
		Family:   DetectFamily(headers),
		Headers:  headers,
		Features: featureColumns(headers),
		Records:  raw[1:],
	}

	featureIdx := make([]int, 0, len(d.Features))
	for i, h := range headers {
		lower := strings.ToLower(h)
		if strings.HasPrefix(lower, "f_") || strings.HasPrefix(lower, "freq_") {
			featureIdx = append(featureIdx, i)
		}
	}
	checkRows := len(d.Records)
	if checkRows > 3 {
		checkRows = 3
	}
	for row := 0; row < checkRows; row++ {
		for _, idx := range featureIdx {
			if idx >= len(d.Records[row]) {
				return nil, fmt.Errorf("row %d: feature vector shorter than header (%d columns)", row+1, len(d.Records[row]))
			}
			if _, err := strconv.ParseFloat(d.Records[row][idx], 64); err != nil {
				return nil, fmt.Errorf("row %d: invalid feature value %q in column %s", row+1, d.Records[row][idx], headers[idx])
			}
		}
	}
	return d, nil
}

// Options tunes a streaming run.
type Options struct {
	BatchSize int           // points per upload, default 1
	Delay     time.Duration // pause between batches, default 2s
	GlowCount int           // latest-point highlight window, default 10
}

// Simulator streams a dataset to the backend.
type Simulator struct {
	hc      httputil.HTTPClient
	baseURL string
	clock   timeutil.Clock
	logf    func(format string, v ...interface{})

	opts     Options
	progress int
	total    int
	active   bool
}

// New creates a simulator against the backend at baseURL.
func New(hc httputil.HTTPClient, baseURL string, clock timeutil.Clock, opts Options) *Simulator {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.Delay <= 0 {
		opts.Delay = 2 * time.Second
	}
	if opts.GlowCount <= 0 {
		opts.GlowCount = 10
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Simulator{
		hc:      hc,
		baseURL: baseURL,
		clock:   clock,
		logf:    monitoring.Scoped("sim"),
		opts:    opts,
	}
}

// Progress reports streamed and total point counts.
func (s *Simulator) Progress() (streamed, total int, active bool) {
	return s.progress, s.total, s.active
}

// WaitForBaseline polls until the baseline projection for datasetID has
// coordinates, i.e. backend processing finished.
func (s *Simulator) WaitForBaseline(ctx context.Context, datasetID int64, maxAttempts int) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var payload struct {
			Data struct {
				X []float64 `json:"dinsight_x"`
				Y []float64 `json:"dinsight_y"`
			} `json:"data"`
		}
		url := fmt.Sprintf("%s/dinsight/%d", s.baseURL, datasetID)
		if err := httputil.GetJSON(ctx, s.hc, url, &payload); err == nil {
			if len(payload.Data.X) > 0 && len(payload.Data.Y) > 0 {
				s.logf("baseline %d ready with %d points", datasetID, len(payload.Data.X))
				return nil
			}
		}
		if (attempt+1)%10 == 0 {
			s.logf("still waiting for baseline processing (%d/%d attempts)", attempt+1, maxAttempts)
		}
		select {
		case <-s.clock.After(2 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("baseline %d did not become ready after %d attempts", datasetID, maxAttempts)
}

// pushConfig publishes the glow/batch/delay settings. Failure is non-fatal:
// the backend falls back to its own defaults.
func (s *Simulator) pushConfig(ctx context.Context, datasetID int64) {
	body := map[string]interface{}{
		"latest_glow_count": s.opts.GlowCount,
		"batch_size":        s.opts.BatchSize,
		"delay_seconds":     s.opts.Delay.Seconds(),
	}
	url := fmt.Sprintf("%s/streaming/%d/config", s.baseURL, datasetID)
	if err := httputil.PutJSON(ctx, s.hc, url, body, nil); err != nil {
		s.logf("could not update streaming config: %v", err)
		return
	}
	s.logf("streaming config updated: glow=%d batch=%d delay=%s",
		s.opts.GlowCount, s.opts.BatchSize, s.opts.Delay)
}

// batchCSV renders a slice of records back into a standalone CSV document.
func (s *Simulator) batchCSV(d *Dataset, records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(d.Headers); err != nil {
		return nil, err
	}
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// sendBatch uploads one CSV batch as a multipart form to the monitor
// ingestion endpoint.
func (s *Simulator) sendBatch(ctx context.Context, datasetID int64, name string, doc []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := part.Write(doc); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/monitor/%d", s.baseURL, datasetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.hc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send monitor batch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("monitor batch rejected (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Stream replays the dataset in batches, pausing Delay between them. It
// respects context cancellation between batches.
func (s *Simulator) Stream(ctx context.Context, datasetID int64, d *Dataset) error {
	s.total = d.Len()
	s.progress = 0
	s.active = true
	defer func() { s.active = false }()

	s.pushConfig(ctx, datasetID)

	totalBatches := (d.Len() + s.opts.BatchSize - 1) / s.opts.BatchSize
	s.logf("streaming %d points to dataset %d in %d batches", d.Len(), datasetID, totalBatches)

	for i := 0; i < d.Len(); i += s.opts.BatchSize {
		end := i + s.opts.BatchSize
		if end > d.Len() {
			end = d.Len()
		}
		batchNum := i/s.opts.BatchSize + 1

		doc, err := s.batchCSV(d, d.Records[i:end])
		if err != nil {
			return fmt.Errorf("failed to render batch %d: %w", batchNum, err)
		}
		name := fmt.Sprintf("monitor_batch_%d.csv", batchNum)
		if err := s.sendBatch(ctx, datasetID, name, doc); err != nil {
			return fmt.Errorf("batch %d/%d: %w", batchNum, totalBatches, err)
		}

		s.progress = end
		s.logf("progress: %d/%d points (%.1f%%)", end, d.Len(), float64(end)/float64(d.Len())*100)

		if end < d.Len() {
			select {
			case <-s.clock.After(s.opts.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	s.logf("streaming completed: %d points", d.Len())
	return nil
}
