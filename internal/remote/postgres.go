package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/hybridtracker/internal/domain"
)

// Postgres stores snapshots in a Postgres table through a pgx pool.
type Postgres struct {
	pool    *pgxpool.Pool
	table   string
	timeout time.Duration
}

// NewPostgres builds a lazily connecting pool. The credential is used as the
// connection password.
func NewPostgres(cfg Config) (*Postgres, error) {
	cfg = cfg.withDefaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse remote endpoint: %w", err)
	}
	poolCfg.ConnConfig.Password = cfg.Credential
	poolCfg.ConnConfig.ConnectTimeout = cfg.Timeout
	poolCfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create remote pool: %w", err)
	}
	return NewPostgresWithPool(pool, cfg.Table, cfg.Timeout), nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool *pgxpool.Pool, table string, timeout time.Duration) *Postgres {
	if strings.TrimSpace(table) == "" {
		table = DefaultTable
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Postgres{pool: pool, table: pgx.Identifier{table}.Sanitize(), timeout: timeout}
}

// IsConfigured implements Client.
func (p *Postgres) IsConfigured() bool { return true }

// Push implements Client.
func (p *Postgres) Push(ctx context.Context, deviceID string, snapshot domain.Snapshot) (err error) {
	start := time.Now()
	defer func() { observe("push", start, err) }()

	if snapshot == nil {
		snapshot = domain.Snapshot{}
	}
	body, err := json.Marshal(snapshot)
	if err != nil {
		return rejected("push", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	stmt := fmt.Sprintf(`INSERT INTO %s (device_id, data, updated_at) VALUES ($1, $2::jsonb, NOW())
        ON CONFLICT (device_id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`, p.table)

	if _, err = p.pool.Exec(ctx, stmt, deviceID, string(body)); err != nil {
		return classify("push", err)
	}
	return nil
}

// Pull implements Client.
func (p *Postgres) Pull(ctx context.Context, deviceID string) (_ *Snapshot, err error) {
	start := time.Now()
	defer func() { observe("pull", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT data, updated_at FROM %s WHERE device_id = $1`, p.table)

	var (
		body      []byte
		updatedAt time.Time
	)
	if err = p.pool.QueryRow(ctx, query, deviceID).Scan(&body, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("pull", err)
	}

	var records domain.Snapshot
	if err = json.Unmarshal(body, &records); err != nil {
		return nil, rejected("pull", fmt.Errorf("decode remote snapshot: %w", err))
	}
	if records == nil {
		records = domain.Snapshot{}
	}
	return &Snapshot{Records: records, UpdatedAt: updatedAt}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// classify maps pgx failures onto the remote error taxonomy. Auth,
// privilege, syntax, data and constraint errors are rejections; everything
// else (dial failures, timeouts, server shutdown) means unavailable.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "28", "42", "22", "23":
			return rejected(op, err)
		}
	}
	return unavailable(op, err)
}
