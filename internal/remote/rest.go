package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"example.com/hybridtracker/internal/domain"
)

// REST talks to a PostgREST-compatible endpoint (e.g. Supabase) exposing the
// snapshot table under /rest/v1/<table>.
type REST struct {
	client  *http.Client
	baseURL string
	key     string
	table   string
}

// NewREST constructs a REST client whose http.Client enforces cfg.Timeout.
func NewREST(cfg Config) *REST {
	cfg = cfg.withDefaults()
	return &REST{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.Endpoint, "/"),
		key:     cfg.Credential,
		table:   cfg.Table,
	}
}

// IsConfigured implements Client.
func (r *REST) IsConfigured() bool { return true }

// pushRow omits updated_at; the table stamps it on every insert and update.
type pushRow struct {
	DeviceID string          `json:"device_id"`
	Data     domain.Snapshot `json:"data"`
}

type pullRow struct {
	Data      domain.Snapshot `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Push implements Client.
func (r *REST) Push(ctx context.Context, deviceID string, snapshot domain.Snapshot) (err error) {
	start := time.Now()
	defer func() { observe("push", start, err) }()

	if snapshot == nil {
		snapshot = domain.Snapshot{}
	}
	body, err := json.Marshal([]pushRow{{DeviceID: deviceID, Data: snapshot}})
	if err != nil {
		return rejected("push", err)
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s?on_conflict=device_id", r.baseURL, url.PathEscape(r.table))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return unavailable("push", err)
	}
	r.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	resp, err := r.client.Do(req)
	if err != nil {
		return unavailable("push", err)
	}
	defer resp.Body.Close()

	return statusError("push", resp)
}

// Pull implements Client.
func (r *REST) Pull(ctx context.Context, deviceID string) (_ *Snapshot, err error) {
	start := time.Now()
	defer func() { observe("pull", start, err) }()

	query := url.Values{}
	query.Set("select", "data,updated_at")
	query.Set("device_id", "eq."+deviceID)
	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", r.baseURL, url.PathEscape(r.table), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, unavailable("pull", err)
	}
	r.authorize(req)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, unavailable("pull", err)
	}
	defer resp.Body.Close()

	if err = statusError("pull", resp); err != nil {
		return nil, err
	}

	var rows []pullRow
	if err = json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, rejected("pull", fmt.Errorf("decode remote snapshot: %w", err))
	}
	if len(rows) == 0 {
		return nil, nil
	}
	records := rows[0].Data
	if records == nil {
		records = domain.Snapshot{}
	}
	return &Snapshot{Records: records, UpdatedAt: rows[0].UpdatedAt}, nil
}

func (r *REST) authorize(req *http.Request) {
	req.Header.Set("apikey", r.key)
	req.Header.Set("Authorization", "Bearer "+r.key)
}

// StatusError is a non-successful HTTP response from the remote.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote responded %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("remote responded %d %s: %s", e.Status, http.StatusText(e.Status), e.Body)
}

// statusError maps 4xx (except 408 and 429) to rejections and everything
// else non-2xx to unavailability.
func statusError(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
		return rejected(op, err)
	}
	return unavailable(op, err)
}
