package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultMinConns       = 1
	DefaultMaxConns       = 10
	DefaultAcquireTimeout = 5 * time.Second
)

// Config holds the pool bounds and the connection target
type Config struct {
	DSN            string
	MinConns       int
	MaxConns       int
	AcquireTimeout time.Duration
}

// Stats is a point-in-time view of the pool
type Stats struct {
	Max       int    `json:"max"`
	InUse     int    `json:"in_use"`
	Idle      int    `json:"idle"`
	Peak      int    `json:"peak"`
	Acquired  uint64 `json:"acquired"`
	Exhausted uint64 `json:"exhausted"`
	Closed    bool   `json:"closed"`
}

// Pool lends out at most MaxConns connections to the backing store.
// database/sql owns the physical connections; the pool owns the leases.
type Pool struct {
	db             *sql.DB
	dialect        Dialect
	sem            *semaphore.Weighted
	max            int
	acquireTimeout time.Duration

	mu        sync.Mutex
	leases    map[*Lease]struct{}
	closed    bool
	peak      int
	acquired  uint64
	exhausted uint64
}

// Lease is a connection checked out of a Pool. It must be released exactly once.
type Lease struct {
	pool     *Pool
	conn     *sql.Conn
	acquired time.Time
}

// Conn returns the leased connection
func (l *Lease) Conn() *sql.Conn {
	return l.conn
}

// discard closes the physical connection so Release cannot return it to the
// idle set. Used when a transaction could not be ended cleanly.
func (l *Lease) discard() {
	_ = l.conn.Raw(func(any) error { return driver.ErrBadConn })
	log.Warn().Msg("Discarded connection left in an unknown transaction state")
}

// Open validates cfg, connects to the backing store and warms MinConns connections.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.MaxConns < 1 {
		return nil, configError("max connections must be at least 1, got %d", cfg.MaxConns)
	}
	if cfg.MinConns < 0 || cfg.MinConns > cfg.MaxConns {
		return nil, configError("min connections must be between 0 and %d, got %d", cfg.MaxConns, cfg.MinConns)
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}

	db, dialect, err := openDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}

	memory := dialect.Name == SQLite.Name && isSQLiteMemory(cfg.DSN)
	if memory && cfg.MaxConns > 1 {
		db.Close()
		return nil, configError("in-memory sqlite databases are private to one connection; max connections must be 1, got %d", cfg.MaxConns)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)
	// Closing the only connection to an in-memory database drops its contents.
	if !memory {
		db.SetConnMaxIdleTime(10 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, configError("failed to reach %s database: %v", dialect.Name, err)
	}

	p := &Pool{
		db:             db,
		dialect:        dialect,
		sem:            semaphore.NewWeighted(int64(cfg.MaxConns)),
		max:            cfg.MaxConns,
		acquireTimeout: cfg.AcquireTimeout,
		leases:         make(map[*Lease]struct{}),
	}

	if err := p.warm(ctx, cfg.MinConns); err != nil {
		db.Close()
		return nil, configError("failed to open initial connections: %v", err)
	}

	log.Debug().
		Str("dialect", dialect.Name).
		Int("min_conns", cfg.MinConns).
		Int("max_conns", cfg.MaxConns).
		Dur("acquire_timeout", cfg.AcquireTimeout).
		Msg("Database pool established")

	return p, nil
}

// warm opens n connections at once so they all land in the idle set.
func (p *Pool) warm(ctx context.Context, n int) error {
	conns := make([]*sql.Conn, 0, n)
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	for range n {
		c, err := p.db.Conn(ctx)
		if err != nil {
			return err
		}
		conns = append(conns, c)
	}
	return nil
}

// Dialect returns the dialect of the backing store
func (p *Pool) Dialect() Dialect {
	return p.dialect
}

// Acquire blocks until a connection is free. It fails with ErrPoolExhausted
// once the acquire timeout elapses, and with ErrPoolClosed after Shutdown.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		// Caller gave up first: report their reason, not ours.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.mu.Lock()
		p.exhausted++
		p.mu.Unlock()
		log.Warn().Int("max_conns", p.max).Dur("waited", p.acquireTimeout).Msg("Connection pool exhausted")
		return nil, fmt.Errorf("%w: no connection available after %s", ErrPoolExhausted, p.acquireTimeout)
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		p.sem.Release(1)
		if p.isClosed() {
			return nil, ErrPoolClosed
		}
		return nil, StorageError("acquire connection", err)
	}

	lease := &Lease{pool: p, conn: conn, acquired: time.Now()}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		p.sem.Release(1)
		return nil, ErrPoolClosed
	}
	p.leases[lease] = struct{}{}
	p.acquired++
	if n := len(p.leases); n > p.peak {
		p.peak = n
	}
	p.mu.Unlock()

	return lease, nil
}

// Release returns a lease to the pool. Releasing the same lease twice is a
// programming error and reports ErrProtocolViolation without touching pool state.
func (p *Pool) Release(l *Lease) error {
	if l == nil {
		return fmt.Errorf("%w: release of nil lease", ErrProtocolViolation)
	}

	p.mu.Lock()
	if l.pool != p {
		p.mu.Unlock()
		log.Error().Msg("Lease released to a pool that did not issue it")
		return fmt.Errorf("%w: lease belongs to another pool", ErrProtocolViolation)
	}
	if _, ok := p.leases[l]; !ok {
		p.mu.Unlock()
		log.Error().Time("acquired", l.acquired).Msg("Lease released more than once")
		return fmt.Errorf("%w: lease already released", ErrProtocolViolation)
	}
	delete(p.leases, l)
	p.mu.Unlock()

	// Closing a *sql.Conn hands the physical connection back to the idle set.
	err := l.conn.Close()
	p.sem.Release(1)

	log.Trace().Dur("held", time.Since(l.acquired)).Msg("Connection released")

	if err != nil && !errors.Is(err, sql.ErrConnDone) {
		return StorageError("release connection", err)
	}
	return nil
}

// Shutdown closes the pool to new leases, waits for outstanding leases until
// ctx ends and then closes every connection. It is safe to call more than once.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	outstanding := len(p.leases)
	p.mu.Unlock()

	var drainErr error
	if outstanding > 0 {
		log.Info().Int("outstanding", outstanding).Msg("Waiting for leased connections to drain")
		// Holding every slot means every lease has come back.
		if err := p.sem.Acquire(ctx, int64(p.max)); err != nil {
			drainErr = fmt.Errorf("pool shutdown with leases outstanding: %w", err)
		} else {
			p.sem.Release(int64(p.max))
		}
	}

	if err := p.db.Close(); err != nil {
		return errors.Join(drainErr, fmt.Errorf("failed to close database: %w", err))
	}

	log.Debug().Msg("Database pool closed")
	return drainErr
}

// Stats reports lease counters together with database/sql's idle count.
func (p *Pool) Stats() Stats {
	dbStats := p.db.Stats()

	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Max:       p.max,
		InUse:     len(p.leases),
		Idle:      dbStats.Idle,
		Peak:      p.peak,
		Acquired:  p.acquired,
		Exhausted: p.exhausted,
		Closed:    p.closed,
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
