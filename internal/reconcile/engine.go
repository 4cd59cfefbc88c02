// Package reconcile keeps the local snapshot and the remote copy in step.
//
// Startup reconciliation pulls the device's remote snapshot once and merges
// it into the local store. After that, every local write schedules a
// background push of the full snapshot through a single worker. A push
// requested while another is pending is folded into it; the worker reads
// the snapshot when it runs, so the folded push still carries the latest
// data.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"example.com/hybridtracker/internal/domain"
	"example.com/hybridtracker/internal/events"
	"example.com/hybridtracker/internal/identity"
	"example.com/hybridtracker/internal/kv"
	"example.com/hybridtracker/internal/observability"
	"example.com/hybridtracker/internal/remote"
	"example.com/hybridtracker/internal/store"
)

// SyncMetadata is what the UI shows about sync health.
type SyncMetadata struct {
	Configured bool       `json:"configured"`
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`
}

// Result is the outcome of a user-initiated sync.
type Result struct {
	Success  bool       `json:"success"`
	Error    string     `json:"error,omitempty"`
	SyncedAt *time.Time `json:"syncedAt,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger overrides the engine logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the time source used for lastSyncAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithPublisher sets the sync event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// Engine reconciles the local store with the remote client.
type Engine struct {
	store     *store.Store
	client    remote.Client
	devices   *identity.Provider
	meta      kv.Store
	publisher events.Publisher
	logger    *log.Logger
	now       func() time.Time

	pushes           chan struct{}
	shutdownComplete chan struct{}
}

// New constructs an Engine and registers it as a write observer on st.
// meta holds the last sync timestamp.
func New(st *store.Store, client remote.Client, devices *identity.Provider, meta kv.Store, opts ...Option) *Engine {
	e := &Engine{
		store:            st,
		client:           client,
		devices:          devices,
		meta:             meta,
		publisher:        events.Noop{},
		logger:           log.New(log.Writer(), "[reconcile] ", log.LstdFlags|log.Lshortfile),
		now:              time.Now,
		pushes:           make(chan struct{}, 1),
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	st.Observe(e)
	return e
}

// Initialize runs startup reconciliation and returns the effective snapshot
// for the session. It never fails: remote trouble leaves the local snapshot
// in charge.
func (e *Engine) Initialize(ctx context.Context) domain.Snapshot {
	if !e.client.IsConfigured() {
		return e.store.GetAll(ctx)
	}

	deviceID := e.devices.GetOrCreate(ctx)
	pulled, err := e.client.Pull(ctx, deviceID)
	if err != nil {
		e.logger.Printf("startup pull failed, continuing with local data: %v", err)
		return e.store.GetAll(ctx)
	}
	if pulled == nil || len(pulled.Records) == 0 {
		return e.store.GetAll(ctx)
	}

	e.markSynced(ctx, pulled.UpdatedAt)
	e.publish(ctx, events.SyncEvent{Type: events.TypePulled, DeviceID: deviceID, Records: len(pulled.Records)})

	// The merge runs against the snapshot as it is now, not as it was before
	// the pull, so writes accepted meanwhile take part in it.
	var localWins, remoteWins int
	merged, err := e.store.Reconcile(ctx, func(local domain.Snapshot) domain.Snapshot {
		var out domain.Snapshot
		out, localWins, remoteWins = merge(local, pulled.Records)
		return out
	})
	if err != nil {
		e.logger.Printf("error persisting merged snapshot: %v", err)
	}
	observability.RecordMerged(localWins, remoteWins)

	e.publish(ctx, events.SyncEvent{
		Type:       events.TypeMerged,
		DeviceID:   deviceID,
		Records:    len(merged),
		LocalWins:  localWins,
		RemoteWins: remoteWins,
	})
	return merged
}

// AfterWrite schedules a background push. It never blocks.
func (e *Engine) AfterWrite() {
	if !e.client.IsConfigured() {
		return
	}
	select {
	case e.pushes <- struct{}{}:
	default:
		observability.RecordPushCoalesced()
	}
}

// Start runs the push worker until ctx is cancelled. It should be called in
// a goroutine. A push still pending at shutdown is attempted once more.
// Pushes never inherit ctx's cancellation.
func (e *Engine) Start(ctx context.Context) {
	defer close(e.shutdownComplete)

	for {
		select {
		case <-ctx.Done():
			select {
			case <-e.pushes:
				e.backgroundPush(context.WithoutCancel(ctx))
			default:
			}
			return
		case <-e.pushes:
			// Both cases may be ready at shutdown; a push taken here must
			// still reach the remote. Each call is bounded by the client
			// timeout.
			e.backgroundPush(context.WithoutCancel(ctx))
		}
	}
}

// Wait blocks until the worker started by Start has stopped.
func (e *Engine) Wait() {
	<-e.shutdownComplete
}

func (e *Engine) backgroundPush(ctx context.Context) {
	if _, err := e.push(ctx); err != nil {
		e.logger.Printf("background push failed: %v", err)
	}
}

// ManualSync pushes the current snapshot and reports the outcome. Without a
// configured remote it fails without any network call.
func (e *Engine) ManualSync(ctx context.Context) Result {
	syncedAt, err := e.push(ctx)
	if err != nil {
		return Result{Success: false, Error: describe(err)}
	}
	return Result{Success: true, SyncedAt: &syncedAt}
}

func (e *Engine) push(ctx context.Context) (time.Time, error) {
	if !e.client.IsConfigured() {
		return time.Time{}, domain.ErrNotConfigured
	}

	deviceID := e.devices.GetOrCreate(ctx)
	snapshot := e.store.GetAll(ctx)
	if err := e.client.Push(ctx, deviceID, snapshot); err != nil {
		e.publish(ctx, events.SyncEvent{Type: events.TypePushFailed, DeviceID: deviceID, Records: len(snapshot), Error: err.Error()})
		return time.Time{}, err
	}

	syncedAt := e.now().UTC()
	e.markSynced(ctx, syncedAt)
	e.publish(ctx, events.SyncEvent{Type: events.TypePushed, DeviceID: deviceID, Records: len(snapshot), OccurredAt: syncedAt})
	return syncedAt, nil
}

// Status reports whether sync is configured and when it last succeeded.
func (e *Engine) Status(ctx context.Context) SyncMetadata {
	return SyncMetadata{
		Configured: e.client.IsConfigured(),
		LastSyncAt: e.lastSync(ctx),
	}
}

func (e *Engine) lastSync(ctx context.Context) *time.Time {
	raw, ok, err := e.meta.Get(ctx, kv.KeyLastSync)
	if err != nil {
		e.logger.Printf("error reading last sync time: %v", err)
		return nil
	}
	if !ok || raw == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		e.logger.Printf("ignoring malformed last sync time %q: %v", raw, err)
		return nil
	}
	return &ts
}

func (e *Engine) markSynced(ctx context.Context, ts time.Time) {
	if ts.IsZero() {
		return
	}
	if err := e.meta.Set(ctx, kv.KeyLastSync, ts.UTC().Format(time.RFC3339Nano)); err != nil {
		e.logger.Printf("error saving last sync time: %v", err)
	}
	observability.RecordSynced(ts)
}

func (e *Engine) publish(ctx context.Context, event events.SyncEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.now().UTC()
	}
	if err := e.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		e.logger.Printf("error publishing %s: %v", event.Type, err)
	}
}

// describe turns a sync failure into a reason fit for display.
func describe(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotConfigured):
		return "Remote sync not configured"
	case errors.Is(err, domain.ErrRemoteRejected):
		return fmt.Sprintf("Remote rejected the sync: %v", unwrapCause(err))
	case errors.Is(err, domain.ErrRemoteUnavailable):
		return fmt.Sprintf("Remote unavailable: %v", unwrapCause(err))
	default:
		return err.Error()
	}
}

func unwrapCause(err error) error {
	var remoteErr *remote.Error
	if errors.As(err, &remoteErr) && remoteErr.Err != nil {
		return remoteErr.Err
	}
	return err
}
