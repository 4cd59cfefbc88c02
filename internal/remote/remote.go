// Package remote talks to the optional durable store that keeps one
// snapshot per device.
//
// The store is a single table keyed by device_id holding
// {device_id, data, updated_at}. Writes upsert on device_id; reads are a
// point lookup returning zero or one row. Every call carries its own
// timeout so a dead endpoint surfaces as ErrRemoteUnavailable instead of
// hanging the caller.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/hybridtracker/internal/domain"
	"example.com/hybridtracker/internal/observability"
)

// DefaultTable is the remote table holding device snapshots.
const DefaultTable = "workout_data"

// DefaultTimeout bounds each remote call when Config.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// Client is the remote sync contract.
type Client interface {
	// IsConfigured reports whether both endpoint and credential are present.
	IsConfigured() bool
	// Push upserts snapshot under deviceID.
	Push(ctx context.Context, deviceID string, snapshot domain.Snapshot) error
	// Pull fetches the device's snapshot. A device that never pushed yields
	// (nil, nil).
	Pull(ctx context.Context, deviceID string) (*Snapshot, error)
}

// Snapshot is a pulled remote row.
type Snapshot struct {
	Records   domain.Snapshot
	UpdatedAt time.Time
}

// Config selects and tunes the remote backend.
type Config struct {
	Endpoint   string
	Credential string
	Table      string
	Timeout    time.Duration
}

// Configured reports whether endpoint and credential are both non-empty.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.Endpoint) != "" && strings.TrimSpace(c.Credential) != ""
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Table) == "" {
		c.Table = DefaultTable
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.Credential = strings.TrimSpace(c.Credential)
	return c
}

// New picks a backend from the endpoint scheme. Missing endpoint or
// credential yields a Disabled client.
func New(cfg Config) (Client, error) {
	if !cfg.Configured() {
		return Disabled{}, nil
	}
	cfg = cfg.withDefaults()

	switch {
	case strings.HasPrefix(cfg.Endpoint, "postgres://"), strings.HasPrefix(cfg.Endpoint, "postgresql://"):
		return NewPostgres(cfg)
	case strings.HasPrefix(cfg.Endpoint, "https://"), strings.HasPrefix(cfg.Endpoint, "http://"):
		return NewREST(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported remote endpoint scheme: %q", cfg.Endpoint)
	}
}

// Disabled is the client used when no remote is configured.
type Disabled struct{}

// IsConfigured implements Client.
func (Disabled) IsConfigured() bool { return false }

// Push implements Client.
func (Disabled) Push(context.Context, string, domain.Snapshot) error { return domain.ErrNotConfigured }

// Pull implements Client.
func (Disabled) Pull(context.Context, string) (*Snapshot, error) { return nil, domain.ErrNotConfigured }

// Error describes a failed remote call. Kind is ErrRemoteUnavailable or
// ErrRemoteRejected.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func unavailable(op string, err error) error {
	return &Error{Op: op, Kind: domain.ErrRemoteUnavailable, Err: err}
}

func rejected(op string, err error) error {
	return &Error{Op: op, Kind: domain.ErrRemoteRejected, Err: err}
}

// IsUnavailable reports whether err is a connectivity failure.
func IsUnavailable(err error) bool { return errors.Is(err, domain.ErrRemoteUnavailable) }

// IsRejected reports whether err is a server-side rejection.
func IsRejected(err error) bool { return errors.Is(err, domain.ErrRemoteRejected) }

func observe(op string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case IsRejected(err):
		outcome = "rejected"
	default:
		outcome = "unavailable"
	}
	observability.RecordRemoteCall(op, outcome, time.Since(start))
}
