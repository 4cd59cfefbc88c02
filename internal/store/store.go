// Package store holds the local snapshot of day records.
//
// The whole snapshot is serialised as one value in the kv primitive, so
// every per-key write is a read-modify-write of the full snapshot. A single
// mutex serialises all access from this process.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"example.com/hybridtracker/internal/domain"
	"example.com/hybridtracker/internal/kv"
	"example.com/hybridtracker/internal/observability"
)

// WriteObserver is notified after every successful mutation.
type WriteObserver interface {
	AfterWrite()
}

// WriteObserverFunc adapts a function to WriteObserver.
type WriteObserverFunc func()

// AfterWrite implements WriteObserver.
func (f WriteObserverFunc) AfterWrite() { f() }

// Option configures a Store.
type Option func(*Store)

// WithLogger overrides the logger used to report swallowed failures.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock overrides the time source used to stamp UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is the local record store.
type Store struct {
	mu        sync.Mutex
	kv        kv.Store
	now       func() time.Time
	logger    *log.Logger
	observers []WriteObserver
}

// New constructs a Store over the provided kv primitive.
func New(backend kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:     backend,
		now:    time.Now,
		logger: log.New(log.Writer(), "[store] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Observe registers an observer called after each successful write.
func (s *Store) Observe(o WriteObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// GetAll returns the current snapshot. Read failures and corrupt data are
// logged and reported as an empty snapshot.
func (s *Store) GetAll(ctx context.Context) domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

// GetRecord returns the record stored under dateKey; ok is false when absent.
func (s *Store) GetRecord(ctx context.Context, dateKey string) (domain.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.loadLocked(ctx)[dateKey]
	return rec, ok
}

// GetOrDefault returns the stored record or, when absent, the plan's default
// record for dayName. The default is not persisted.
func (s *Store) GetOrDefault(ctx context.Context, dateKey, weekKey, dayName string) (domain.Record, bool) {
	if rec, ok := s.GetRecord(ctx, dateKey); ok {
		return rec, true
	}
	return domain.NewDefaultRecord(dateKey, weekKey, dayName), false
}

// PutAll atomically replaces the persisted snapshot. On failure nothing is
// mutated.
func (s *Store) PutAll(ctx context.Context, snapshot domain.Snapshot) error {
	s.mu.Lock()
	err := s.saveLocked(ctx, snapshot)
	observers := s.observers
	s.mu.Unlock()

	if err != nil {
		return err
	}
	notify(observers)
	return nil
}

// Reconcile replaces the snapshot with fn applied to the current one, in a
// single critical section so no concurrent write is lost. Observers are not
// notified because the result already reflects the remote side. The computed
// snapshot is returned even when saving it fails.
func (s *Store) Reconcile(ctx context.Context, fn func(local domain.Snapshot) domain.Snapshot) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(s.loadLocked(ctx))
	return next, s.saveLocked(ctx, next)
}

// PutRecord stamps the record's UpdatedAt with the current time and stores it
// under dateKey.
func (s *Store) PutRecord(ctx context.Context, dateKey string, rec domain.Record) (domain.Record, error) {
	if rec.DateKey == "" {
		rec.DateKey = dateKey
	}
	if rec.DateKey != dateKey {
		return domain.Record{}, fmt.Errorf("%w: %q stored under %q", domain.ErrKeyMismatch, rec.DateKey, dateKey)
	}

	s.mu.Lock()
	snapshot := s.loadLocked(ctx)
	existing, exists := snapshot[dateKey]
	if exists && existing.Kind != "" && rec.Kind != existing.Kind {
		s.mu.Unlock()
		return domain.Record{}, fmt.Errorf("%w: %s is %q", domain.ErrKindChanged, dateKey, existing.Kind)
	}

	stamped := rec.Clone()
	now := s.now()
	// Keep UpdatedAt non-decreasing per key even if the wall clock steps back.
	if exists && existing.UpdatedAt != nil && now.Before(*existing.UpdatedAt) {
		now = *existing.UpdatedAt
	}
	stamped.UpdatedAt = &now
	snapshot[dateKey] = stamped

	err := s.saveLocked(ctx, snapshot)
	observers := s.observers
	s.mu.Unlock()

	if err != nil {
		return domain.Record{}, err
	}
	observability.RecordLocalWrite(now)
	notify(observers)
	return stamped, nil
}

// Clear removes the whole local snapshot.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, kv.KeyRecords); err != nil {
		s.logger.Printf("clear failed: %v", err)
		return fmt.Errorf("%w: %v", domain.ErrLocalPersistence, err)
	}
	return nil
}

// Weeks returns the distinct week keys present in the snapshot, newest first.
func (s *Store) Weeks(ctx context.Context) []string {
	seen := make(map[string]struct{})
	for _, rec := range s.GetAll(ctx) {
		if rec.WeekKey != "" {
			seen[rec.WeekKey] = struct{}{}
		}
	}
	weeks := make([]string, 0, len(seen))
	for w := range seen {
		weeks = append(weeks, w)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(weeks)))
	return weeks
}

// Week returns the records grouped under weekKey.
func (s *Store) Week(ctx context.Context, weekKey string) domain.Snapshot {
	out := make(domain.Snapshot)
	for key, rec := range s.GetAll(ctx) {
		if rec.WeekKey == weekKey {
			out[key] = rec
		}
	}
	return out
}

func (s *Store) loadLocked(ctx context.Context) domain.Snapshot {
	raw, ok, err := s.kv.Get(ctx, kv.KeyRecords)
	if err != nil {
		s.logger.Printf("error reading workout data: %v", err)
		observability.RecordLocalFailure("read")
		return make(domain.Snapshot)
	}
	if !ok || raw == "" {
		return make(domain.Snapshot)
	}

	var snapshot domain.Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		s.logger.Printf("error decoding workout data: %v", err)
		observability.RecordLocalFailure("decode")
		return make(domain.Snapshot)
	}
	if snapshot == nil {
		snapshot = make(domain.Snapshot)
	}
	return snapshot
}

func (s *Store) saveLocked(ctx context.Context, snapshot domain.Snapshot) error {
	if snapshot == nil {
		snapshot = make(domain.Snapshot)
	}
	body, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.Printf("error encoding workout data: %v", err)
		return fmt.Errorf("%w: %v", domain.ErrLocalPersistence, err)
	}
	if err := s.kv.Set(ctx, kv.KeyRecords, string(body)); err != nil {
		s.logger.Printf("error saving workout data: %v", err)
		observability.RecordLocalFailure("write")
		return fmt.Errorf("%w: %v", domain.ErrLocalPersistence, err)
	}
	return nil
}

func notify(observers []WriteObserver) {
	for _, o := range observers {
		o.AfterWrite()
	}
}
