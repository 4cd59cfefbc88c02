// Package identity issues the per-installation device identifier used as the
// remote store's partition key.
package identity

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/hybridtracker/internal/kv"
)

// Option configures a Provider.
type Option func(*Provider)

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithClock overrides the time source embedded in generated identifiers.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// Provider returns a stable device identifier. It never fails: when the kv
// primitive is unusable it hands out an ephemeral identifier that lives for
// the process lifetime.
type Provider struct {
	kv     kv.Store
	now    func() time.Time
	logger *log.Logger

	mu        sync.Mutex
	ephemeral string
}

// NewProvider constructs a Provider over the kv primitive.
func NewProvider(backend kv.Store, opts ...Option) *Provider {
	p := &Provider{
		kv:     backend,
		now:    time.Now,
		logger: log.New(log.Writer(), "[identity] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetOrCreate returns the persisted identifier, generating and persisting a
// new one if none exists.
func (p *Provider) GetOrCreate(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getOrCreateLocked(ctx)
}

// Reset discards the persisted identifier and returns a fresh one.
func (p *Provider) Reset(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.kv.Delete(ctx, kv.KeyDeviceID); err != nil {
		p.logger.Printf("error deleting device id: %v", err)
	}
	p.ephemeral = ""
	return p.getOrCreateLocked(ctx)
}

func (p *Provider) getOrCreateLocked(ctx context.Context) string {
	id, ok, err := p.kv.Get(ctx, kv.KeyDeviceID)
	if err != nil {
		p.logger.Printf("error reading device id: %v", err)
		return p.ephemeralLocked()
	}
	if ok && id != "" {
		return id
	}

	id = p.generate()
	if err := p.kv.Set(ctx, kv.KeyDeviceID, id); err != nil {
		p.logger.Printf("error persisting device id: %v", err)
		return p.ephemeralLocked()
	}
	return id
}

func (p *Provider) ephemeralLocked() string {
	if p.ephemeral == "" {
		p.ephemeral = p.generate()
		p.logger.Printf("using ephemeral device id %s", p.ephemeral)
	}
	return p.ephemeral
}

// generate produces device_<unix-millis>_<9 random chars>.
func (p *Provider) generate() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("device_%d_%s", p.now().UnixMilli(), suffix)
}
