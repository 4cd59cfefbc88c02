package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/hybridtracker/internal/domain"
)

// fakePostgREST keeps one row per device and mimics the upsert and
// point-lookup behaviour of the real endpoint.
type fakePostgREST struct {
	mu     sync.Mutex
	rows   map[string]json.RawMessage
	status int
	key    string
	pushes int
	bodies []string
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("apikey") != f.key || r.Header.Get("Authorization") != "Bearer "+f.key {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid API key"}`))
		return
	}
	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}
	if r.URL.Path != "/rest/v1/workout_data" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var rows []map[string]json.RawMessage
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &rows); err != nil || len(rows) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if _, ok := rows[0]["updated_at"]; ok {
			// The server owns the update timestamp.
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"client supplied updated_at"}`))
			return
		}
		var device string
		if err := json.Unmarshal(rows[0]["device_id"], &device); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.rows[device] = rows[0]["data"]
		f.bodies = append(f.bodies, string(body))
		f.pushes++
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		device := r.URL.Query().Get("device_id")
		data, ok := f.rows[device[len("eq."):]]
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{{
			"data":       data,
			"updated_at": "2024-06-11T10:00:00+00:00",
		}})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeServer(t *testing.T) (*fakePostgREST, *REST) {
	t.Helper()
	fake := &fakePostgREST{rows: make(map[string]json.RawMessage), key: "anon-key"}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	client := NewREST(Config{Endpoint: srv.URL + "/", Credential: "anon-key", Timeout: time.Second})
	return fake, client
}

func TestRESTPushThenPull(t *testing.T) {
	ctx := context.Background()
	fake, client := newFakeServer(t)

	absent, err := client.Pull(ctx, "device_1")
	require.NoError(t, err)
	require.Nil(t, absent)

	ts := time.Date(2024, time.June, 10, 8, 0, 0, 0, time.UTC)
	snapshot := domain.Snapshot{
		"2024-06-10": {DateKey: "2024-06-10", Kind: domain.KindLift, Completed: true, UpdatedAt: &ts},
	}
	require.NoError(t, client.Push(ctx, "device_1", snapshot))
	require.NoError(t, client.Push(ctx, "device_1", snapshot))
	require.Equal(t, 2, fake.pushes)
	require.Len(t, fake.rows, 1, "upsert keeps one row per device")
	require.NotContains(t, fake.bodies[0], "updated_at")

	pulled, err := client.Pull(ctx, "device_1")
	require.NoError(t, err)
	require.NotNil(t, pulled)
	require.Len(t, pulled.Records, 1)
	require.True(t, pulled.Records["2024-06-10"].Completed)
	require.True(t, pulled.UpdatedAt.Equal(time.Date(2024, time.June, 11, 10, 0, 0, 0, time.UTC)))
}

func TestRESTClassifiesFailures(t *testing.T) {
	ctx := context.Background()
	fake, client := newFakeServer(t)

	fake.key = "rotated"
	err := client.Push(ctx, "device_1", domain.Snapshot{})
	require.ErrorIs(t, err, domain.ErrRemoteRejected)
	require.True(t, IsRejected(err))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.Status)

	fake.key = "anon-key"
	fake.status = http.StatusServiceUnavailable
	_, err = client.Pull(ctx, "device_1")
	require.ErrorIs(t, err, domain.ErrRemoteUnavailable)

	fake.status = http.StatusTooManyRequests
	err = client.Push(ctx, "device_1", domain.Snapshot{})
	require.True(t, IsUnavailable(err))
}

func TestRESTTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	client := NewREST(Config{Endpoint: srv.URL, Credential: "k", Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := client.Pull(context.Background(), "device_1")
	require.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestRESTConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	client := NewREST(Config{Endpoint: endpoint, Credential: "k", Timeout: time.Second})
	err := client.Push(context.Background(), "device_1", domain.Snapshot{})
	require.ErrorIs(t, err, domain.ErrRemoteUnavailable)
}
