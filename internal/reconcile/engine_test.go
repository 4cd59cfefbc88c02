package reconcile

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/hybridtracker/internal/domain"
	"example.com/hybridtracker/internal/events"
	"example.com/hybridtracker/internal/identity"
	"example.com/hybridtracker/internal/kv"
	"example.com/hybridtracker/internal/remote"
	"example.com/hybridtracker/internal/store"
)

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}

type stubClient struct {
	mu         sync.Mutex
	configured bool
	pulled     *remote.Snapshot
	pullErr    error
	pushErr    error
	pulls      int
	pushes     []domain.Snapshot
	pushedIDs  []string
	pushed     chan struct{}
	onPull     func()
}

func newStubClient() *stubClient {
	return &stubClient{configured: true, pushed: make(chan struct{}, 16)}
}

func (s *stubClient) IsConfigured() bool { return s.configured }

func (s *stubClient) Push(ctx context.Context, deviceID string, snapshot domain.Snapshot) error {
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.pushed <- struct{}{}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.pushErr != nil {
		return s.pushErr
	}
	s.pushes = append(s.pushes, snapshot.Clone())
	s.pushedIDs = append(s.pushedIDs, deviceID)
	return nil
}

func (s *stubClient) Pull(context.Context, string) (*remote.Snapshot, error) {
	if s.onPull != nil {
		s.onPull()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulls++
	return s.pulled, s.pullErr
}

func (s *stubClient) pushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pushes)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.SyncEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event events.SyncEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	backend   *kv.Memory
	store     *store.Store
	client    *stubClient
	publisher *recordingPublisher
	engine    *Engine
	now       time.Time
}

// newFixture seeds the local store before the engine subscribes to writes so
// seeding never schedules a push.
func newFixture(t *testing.T, client remote.Client, seed domain.Snapshot) *fixture {
	t.Helper()
	logger := log.New(testWriter{t}, "", 0)
	f := &fixture{
		backend:   kv.NewMemory(),
		publisher: &recordingPublisher{},
		now:       time.Date(2024, time.June, 12, 18, 30, 0, 0, time.UTC),
	}
	if stub, ok := client.(*stubClient); ok {
		f.client = stub
	}
	f.store = store.New(f.backend, store.WithLogger(logger))
	if seed != nil {
		require.NoError(t, f.store.PutAll(context.Background(), seed))
	}
	devices := identity.NewProvider(f.backend, identity.WithLogger(logger))
	f.engine = New(f.store, client, devices, f.backend,
		WithLogger(logger),
		WithClock(func() time.Time { return f.now }),
		WithPublisher(f.publisher),
	)
	return f
}

func TestInitializeRemoteNewerWins(t *testing.T) {
	ctx := context.Background()
	t1 := time.Date(2024, time.June, 10, 8, 0, 0, 0, time.UTC)
	t2 := t1.Add(2 * time.Hour)

	client := newStubClient()
	client.pulled = &remote.Snapshot{
		Records:   domain.Snapshot{"2024-06-10": {DateKey: "2024-06-10", Kind: domain.KindRun, Completed: true, UpdatedAt: &t2}},
		UpdatedAt: t2,
	}
	f := newFixture(t, client, domain.Snapshot{
		"2024-06-10": {DateKey: "2024-06-10", Kind: domain.KindRun, Completed: false, UpdatedAt: &t1},
		"2024-06-09": {DateKey: "2024-06-09", Kind: domain.KindLift, UpdatedAt: &t1},
	})

	merged := f.engine.Initialize(ctx)
	require.True(t, merged["2024-06-10"].Completed)
	require.Contains(t, merged, "2024-06-09", "local-only records survive")

	persisted := f.store.GetAll(ctx)
	require.True(t, persisted["2024-06-10"].Completed)
	require.Len(t, persisted, 2)

	status := f.engine.Status(ctx)
	require.True(t, status.Configured)
	require.NotNil(t, status.LastSyncAt)
	require.True(t, status.LastSyncAt.Equal(t2), "a successful pull records the remote row time")

	require.Empty(t, f.engine.pushes, "reconciliation does not schedule a push")
	require.Equal(t, []events.Type{events.TypePulled, events.TypeMerged}, f.publisher.types())
}

func TestInitializePullFailureKeepsLocal(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2024, time.June, 10, 8, 0, 0, 0, time.UTC)
	seed := domain.Snapshot{"2024-06-10": {DateKey: "2024-06-10", Kind: domain.KindRun, UpdatedAt: &ts}}

	client := newStubClient()
	client.pullErr = &remote.Error{Op: "pull", Kind: domain.ErrRemoteUnavailable, Err: errors.New("dial tcp: timeout")}
	f := newFixture(t, client, seed)

	snapshot := f.engine.Initialize(ctx)
	require.Len(t, snapshot, 1)
	require.True(t, snapshot["2024-06-10"].UpdatedAt.Equal(ts))
	require.Equal(t, 1, client.pulls)
	require.Nil(t, f.engine.Status(ctx).LastSyncAt)
}

func TestInitializeNotConfiguredSkipsRemote(t *testing.T) {
	ctx := context.Background()
	seed := domain.Snapshot{"2024-06-10": {DateKey: "2024-06-10", Kind: domain.KindRun}}

	client := newStubClient()
	client.configured = false
	f := newFixture(t, client, seed)

	snapshot := f.engine.Initialize(ctx)
	require.Len(t, snapshot, 1)
	require.Zero(t, client.pulls)
	require.False(t, f.engine.Status(ctx).Configured)
}

func TestInitializeEmptyRemoteKeepsLocal(t *testing.T) {
	ctx := context.Background()
	seed := domain.Snapshot{"2024-06-10": {DateKey: "2024-06-10", Kind: domain.KindRun}}

	for _, pulled := range []*remote.Snapshot{nil, {Records: domain.Snapshot{}, UpdatedAt: time.Now()}} {
		client := newStubClient()
		client.pulled = pulled
		f := newFixture(t, client, seed)

		snapshot := f.engine.Initialize(ctx)
		require.Len(t, snapshot, 1)
		require.Nil(t, f.engine.Status(ctx).LastSyncAt)
		require.Empty(t, f.publisher.types())
	}
}

func TestInitializePersistFailureStillReturnsMerged(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2024, time.June, 10, 8, 0, 0, 0, time.UTC)

	client := newStubClient()
	client.pulled = &remote.Snapshot{
		Records:   domain.Snapshot{"2024-06-11": {DateKey: "2024-06-11", Kind: domain.KindLift, UpdatedAt: &ts}},
		UpdatedAt: ts,
	}
	f := newFixture(t, client, nil)
	f.backend.FailWith(errors.New("quota exceeded"))

	merged := f.engine.Initialize(ctx)
	require.Contains(t, merged, "2024-06-11")
}

func TestManualSyncNotConfigured(t *testing.T) {
	client := newStubClient()
	client.configured = false
	f := newFixture(t, client, nil)

	result := f.engine.ManualSync(context.Background())
	require.False(t, result.Success)
	require.Equal(t, "Remote sync not configured", result.Error)
	require.Nil(t, result.SyncedAt)
	require.Zero(t, client.pushCount())
}

func TestManualSyncWithDisabledClient(t *testing.T) {
	f := newFixture(t, remote.Disabled{}, nil)

	result := f.engine.ManualSync(context.Background())
	require.False(t, result.Success)
	require.NotEmpty(t, result.Error)
}

func TestManualSyncPushesCurrentSnapshot(t *testing.T) {
	ctx := context.Background()
	seed := domain.Snapshot{"2024-06-10": {DateKey: "2024-06-10", Kind: domain.KindRun}}
	client := newStubClient()
	f := newFixture(t, client, seed)

	result := f.engine.ManualSync(ctx)
	require.True(t, result.Success)
	require.Empty(t, result.Error)
	require.NotNil(t, result.SyncedAt)
	require.True(t, result.SyncedAt.Equal(f.now))

	require.Equal(t, 1, client.pushCount())
	require.Contains(t, client.pushes[0], "2024-06-10")
	require.True(t, strings.HasPrefix(client.pushedIDs[0], "device_"))

	status := f.engine.Status(ctx)
	require.NotNil(t, status.LastSyncAt)
	require.True(t, status.LastSyncAt.Equal(f.now))
	require.Equal(t, []events.Type{events.TypePushed}, f.publisher.types())
}

func TestManualSyncSurfacesRemoteFailures(t *testing.T) {
	ctx := context.Background()
	client := newStubClient()
	f := newFixture(t, client, nil)

	client.pushErr = &remote.Error{Op: "push", Kind: domain.ErrRemoteRejected, Err: errors.New("invalid api key")}
	result := f.engine.ManualSync(ctx)
	require.False(t, result.Success)
	require.Equal(t, "Remote rejected the sync: invalid api key", result.Error)

	client.pushErr = &remote.Error{Op: "push", Kind: domain.ErrRemoteUnavailable, Err: errors.New("timeout")}
	result = f.engine.ManualSync(ctx)
	require.Equal(t, "Remote unavailable: timeout", result.Error)

	require.Nil(t, f.engine.Status(ctx).LastSyncAt)
	require.Equal(t, []events.Type{events.TypePushFailed, events.TypePushFailed}, f.publisher.types())
}

func TestAfterWriteCollapsesPendingPushes(t *testing.T) {
	client := newStubClient()
	f := newFixture(t, client, nil)

	f.engine.AfterWrite()
	f.engine.AfterWrite()
	f.engine.AfterWrite()
	require.Len(t, f.engine.pushes, 1)
}

func TestAfterWriteIgnoredWhenNotConfigured(t *testing.T) {
	client := newStubClient()
	client.configured = false
	f := newFixture(t, client, nil)

	f.engine.AfterWrite()
	require.Empty(t, f.engine.pushes)
}

func TestPutRecordTriggersBackgroundPush(t *testing.T) {
	client := newStubClient()
	f := newFixture(t, client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go f.engine.Start(ctx)

	before := time.Now()
	_, err := f.store.PutRecord(ctx, "2024-06-11", domain.Record{Kind: domain.KindRun, Payload: map[string]any{"distance": "4"}})
	require.NoError(t, err)

	select {
	case <-client.pushed:
	case <-time.After(2 * time.Second):
		t.Fatal("background push did not run")
	}

	cancel()
	f.engine.Wait()

	client.mu.Lock()
	defer client.mu.Unlock()
	require.NotEmpty(t, client.pushes)
	last := client.pushes[len(client.pushes)-1]
	require.Contains(t, last, "2024-06-11")
	require.False(t, last["2024-06-11"].UpdatedAt.Before(before.Truncate(time.Millisecond)))
}

func TestBackgroundPushFailureDoesNotAffectWrites(t *testing.T) {
	client := newStubClient()
	client.pushErr = &remote.Error{Op: "push", Kind: domain.ErrRemoteUnavailable, Err: errors.New("offline")}
	f := newFixture(t, client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go f.engine.Start(ctx)

	_, err := f.store.PutRecord(ctx, "2024-06-11", domain.Record{Kind: domain.KindRun})
	require.NoError(t, err)

	select {
	case <-client.pushed:
	case <-time.After(2 * time.Second):
		t.Fatal("background push did not run")
	}
	cancel()
	f.engine.Wait()

	_, ok := f.store.GetRecord(context.Background(), "2024-06-11")
	require.True(t, ok)
	require.Nil(t, f.engine.Status(context.Background()).LastSyncAt)
}

func TestStartFlushesPendingPushOnShutdown(t *testing.T) {
	// Start sees a cancelled context and a pending push together; whichever
	// select case wins, the push must go out.
	for i := 0; i < 50; i++ {
		client := newStubClient()
		f := newFixture(t, client, nil)

		f.engine.AfterWrite()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		f.engine.Start(ctx)
		f.engine.Wait()
		require.Equal(t, 1, client.pushCount(), "run %d", i)
	}
}

func TestInitializeKeepsWritesMadeDuringPull(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2024, time.June, 10, 8, 0, 0, 0, time.UTC)

	client := newStubClient()
	client.pulled = &remote.Snapshot{
		Records:   domain.Snapshot{"2024-06-10": {DateKey: "2024-06-10", Kind: domain.KindLift, UpdatedAt: &ts}},
		UpdatedAt: ts,
	}
	f := newFixture(t, client, nil)
	client.onPull = func() {
		_, err := f.store.PutRecord(ctx, "2024-06-11", domain.Record{Kind: domain.KindRun, Completed: true})
		require.NoError(t, err)
	}

	merged := f.engine.Initialize(ctx)
	require.Contains(t, merged, "2024-06-11")
	require.Contains(t, merged, "2024-06-10")

	rec, ok := f.store.GetRecord(ctx, "2024-06-11")
	require.True(t, ok, "write accepted during the pull survives reconciliation")
	require.True(t, rec.Completed)
	require.Len(t, f.engine.pushes, 1, "the write still schedules its push")
}

func TestStatusIgnoresMalformedLastSync(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newStubClient(), nil)

	require.NoError(t, f.backend.Set(ctx, kv.KeyLastSync, "yesterday"))
	require.Nil(t, f.engine.Status(ctx).LastSyncAt)
}
