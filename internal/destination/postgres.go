package destination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"aeroport/internal/payload"
)

const (
	defaultPayloadTable = "aeroport_payloads"
	defaultBatchSize    = 100
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// Postgres stores payloads as jsonb rows. Inserts are queued and sent in
// batches; Release flushes the remainder.
type Postgres struct {
	name      string
	dsn       string
	table     string
	batchSize int
	maxConns  int32
	open      func(ctx context.Context, dsn string, maxConns int32) (pgPool, error)
	pool      pgPool
	pending   *pgx.Batch
}

func newPostgresFromSettings(name string, settings map[string]string, _ Deps) (Destination, error) {
	dsn := settings["dsn"]
	if dsn == "" {
		return nil, errors.New("dsn is required")
	}
	table := setting(settings, "table", defaultPayloadTable)
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	batch, err := intSetting(settings, "batch_size", defaultBatchSize)
	if err != nil {
		return nil, err
	}
	maxConns, err := intSetting(settings, "max_conns", 2)
	if err != nil {
		return nil, err
	}
	return &Postgres{
		name:      name,
		dsn:       dsn,
		table:     table,
		batchSize: max(batch, 1),
		maxConns:  int32(maxConns),
		open:      openPool,
	}, nil
}

func openPool(ctx context.Context, dsn string, maxConns int32) (pgPool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

func (p *Postgres) Name() string { return p.name }

func (p *Postgres) Prepare(ctx context.Context) error {
	pool, err := p.open(ctx, p.dsn, p.maxConns)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	_, err = pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+p.table+` (
		id         BIGSERIAL PRIMARY KEY,
		kind       TEXT NOT NULL,
		payload    JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		pool.Close()
		return fmt.Errorf("ensure table %s: %w", p.table, err)
	}
	p.pool = pool
	p.pending = &pgx.Batch{}
	return nil
}

func (p *Postgres) ProcessPayload(ctx context.Context, pl *payload.Payload) error {
	if p.pool == nil {
		return errors.New("postgres destination not prepared")
	}
	data, err := json.Marshal(pl)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	p.pending.Queue(`INSERT INTO `+p.table+` (kind, payload) VALUES ($1, $2)`, pl.Kind(), data)
	if p.pending.Len() >= p.batchSize {
		return p.flush(ctx)
	}
	return nil
}

func (p *Postgres) flush(ctx context.Context) error {
	n := p.pending.Len()
	if n == 0 {
		return nil
	}
	br := p.pool.SendBatch(ctx, p.pending)
	p.pending = &pgx.Batch{}
	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert payload batch: %w", err)
		}
	}
	return br.Close()
}

func (p *Postgres) Release(ctx context.Context) error {
	if p.pool == nil {
		return nil
	}
	err := p.flush(ctx)
	p.pool.Close()
	p.pool = nil
	return err
}
