// Package kv provides the string-keyed, string-valued durable store that
// backs the local record store, device identity and sync metadata.
package kv

import (
	"context"
	"errors"
)

// Fixed keys shared by every component persisting through the store.
const (
	KeyRecords  = "hybrid-workout-data"
	KeyDeviceID = "hybrid-workout-device-id"
	KeyLastSync = "hybrid-workout-sync-timestamp"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv store closed")

// Store is the local persistence primitive. Get reports a missing key with
// ok=false and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
