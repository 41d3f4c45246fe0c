package replica

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/banshee-data/driftsight/internal/httputil"
	"github.com/banshee-data/driftsight/internal/prefs"
)

// RemoteStore talks to the account-scoped preference API: one opaque JSON
// document per account, with a server-observed timestamp reported on every
// read and echoed on every write.
type RemoteStore struct {
	client    httputil.HTTPClient
	baseURL   string
	accountID string
}

// NewRemoteStore creates a store for one account against the preference API
// at baseURL (e.g. "http://backend:8080/api/v1").
func NewRemoteStore(client httputil.HTTPClient, baseURL, accountID string) *RemoteStore {
	return &RemoteStore{client: client, baseURL: baseURL, accountID: accountID}
}

func (r *RemoteStore) endpoint() string {
	return fmt.Sprintf("%s/preferences/%s", r.baseURL, url.PathEscape(r.accountID))
}

// preferenceDoc is the wire envelope around the opaque document. Data stays
// raw so the snapshot can be decoded tolerantly, field by field.
type preferenceDoc struct {
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Get fetches the shared snapshot. A missing document (404) is not an
// error: it returns a nil snapshot so a fresh account can bootstrap.
// The returned time is the server-observed updatedAt.
func (r *RemoteStore) Get(ctx context.Context) (*prefs.Snapshot, time.Time, error) {
	var doc preferenceDoc
	err := httputil.GetJSON(ctx, r.client, r.endpoint(), &doc)
	var se *httputil.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("remote preference read failed: %w", err)
	}
	if len(doc.Data) == 0 || string(doc.Data) == "null" {
		return nil, time.Time{}, nil
	}
	return prefs.Decode(doc.Data), doc.UpdatedAt, nil
}

// Put publishes the snapshot and returns the server-observed updatedAt
// echoed in the response. On failure the caller stays Dirty and retries on
// the next debounce trigger.
func (r *RemoteStore) Put(ctx context.Context, snap *prefs.Snapshot) (time.Time, error) {
	var out struct {
		UpdatedAt time.Time `json:"updated_at"`
	}
	if err := httputil.PutJSON(ctx, r.client, r.endpoint(), snap, &out); err != nil {
		return time.Time{}, fmt.Errorf("remote preference write failed: %w", err)
	}
	return out.UpdatedAt, nil
}
