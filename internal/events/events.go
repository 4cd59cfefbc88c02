// Package events publishes sync lifecycle notifications.
package events

import (
	"context"
	"time"
)

// Type names a sync lifecycle event.
type Type string

const (
	TypePushed     Type = "sync.pushed"
	TypePushFailed Type = "sync.push_failed"
	TypePulled     Type = "sync.pulled"
	TypeMerged     Type = "sync.merged"
)

// SyncEvent is emitted by the reconciliation engine.
type SyncEvent struct {
	Type       Type      `json:"type"`
	DeviceID   string    `json:"deviceId"`
	Records    int       `json:"records"`
	LocalWins  int       `json:"localWins,omitempty"`
	RemoteWins int       `json:"remoteWins,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher delivers sync events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event SyncEvent) error
	Close() error
}

// Noop discards events.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, SyncEvent) error { return nil }

// Close implements Publisher.
func (Noop) Close() error { return nil }
