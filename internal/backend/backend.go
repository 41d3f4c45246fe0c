// Package backend is the client for the analysis backend's read-side APIs:
// baseline and monitor coordinate fetches plus the streaming status used to
// adapt poll intervals. The backend computes the drift projection; this
// client only consumes it.
package backend

import (
	"context"
	"fmt"

	"github.com/banshee-data/driftsight/internal/httputil"
	"github.com/banshee-data/driftsight/internal/stream"
)

// Client issues requests against the backend API at a fixed base URL,
// e.g. "http://localhost:8080/api/v1".
type Client struct {
	hc      httputil.HTTPClient
	baseURL string
}

// NewClient creates a backend client using the given HTTP client.
func NewClient(hc httputil.HTTPClient, baseURL string) *Client {
	return &Client{hc: hc, baseURL: baseURL}
}

// Status is the backend's view of an in-progress monitor stream.
type Status struct {
	TotalPoints        int     `json:"total_points"`
	StreamedPoints     int     `json:"streamed_points"`
	ProgressPercentage float64 `json:"progress_percentage"`
	IsActive           bool    `json:"is_active"`
	LatestGlowCount    int     `json:"latest_glow_count"`
	Status             string  `json:"status"`
}

type coordinatePayload struct {
	Data struct {
		X        []float64           `json:"dinsight_x"`
		Y        []float64           `json:"dinsight_y"`
		Metadata map[string][]string `json:"metadata,omitempty"`
	} `json:"data"`
}

// BaselineCoordinates fetches the full baseline projection for a dataset.
func (c *Client) BaselineCoordinates(ctx context.Context, datasetID int64) (stream.Series, error) {
	return c.coordinates(ctx, fmt.Sprintf("%s/dinsight/%d", c.baseURL, datasetID))
}

// MonitorCoordinates fetches everything streamed so far for a dataset. The
// backend returns cumulative arrays; stream.Merge folds them into the
// retained series.
func (c *Client) MonitorCoordinates(ctx context.Context, datasetID int64) (stream.Series, error) {
	return c.coordinates(ctx, fmt.Sprintf("%s/monitor/%d/coordinates", c.baseURL, datasetID))
}

func (c *Client) coordinates(ctx context.Context, url string) (stream.Series, error) {
	var payload coordinatePayload
	if err := httputil.GetJSON(ctx, c.hc, url, &payload); err != nil {
		return stream.Series{}, err
	}
	s := stream.Series{
		X:    payload.Data.X,
		Y:    payload.Data.Y,
		Meta: payload.Data.Metadata,
	}
	if err := s.Validate(); err != nil {
		return stream.Series{}, fmt.Errorf("backend returned misaligned coordinates: %w", err)
	}
	return s, nil
}

// StreamStatus fetches the streaming progress for a dataset.
func (c *Client) StreamStatus(ctx context.Context, datasetID int64) (Status, error) {
	var status Status
	url := fmt.Sprintf("%s/streaming/%d/status", c.baseURL, datasetID)
	if err := httputil.GetJSON(ctx, c.hc, url, &status); err != nil {
		return Status{}, err
	}
	return status, nil
}
