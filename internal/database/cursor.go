package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/zerolog/log"
)

// Cursor runs statements inside the transaction opened by WithCursor.
// Queries use ? placeholders; they are rewritten for the pool's dialect.
type Cursor struct {
	tx      *sql.Tx
	dialect Dialect
}

// Exec runs a statement that returns no rows
func (c *Cursor) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.tx.ExecContext(ctx, c.dialect.Rebind(query), args...)
}

// Query runs a statement that returns rows
func (c *Cursor) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.tx.QueryContext(ctx, c.dialect.Rebind(query), args...)
}

// QueryRow runs a statement that returns at most one row
func (c *Cursor) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.tx.QueryRowContext(ctx, c.dialect.Rebind(query), args...)
}

// Dialect returns the dialect the cursor rewrites queries for
func (c *Cursor) Dialect() Dialect {
	return c.dialect
}

// WithCursor leases a connection, opens a transaction on it and runs fn.
// When fn succeeds the transaction is committed if commit is true and rolled
// back otherwise. When fn fails or panics the transaction is rolled back.
// The lease is always released before WithCursor returns or re-panics.
func (p *Pool) WithCursor(ctx context.Context, commit bool, fn func(*Cursor) error) (err error) {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := p.Release(lease); relErr != nil {
			log.Error().Err(relErr).Msg("Failed to release connection")
			if err == nil {
				err = relErr
			}
		}
	}()

	tx, err := lease.conn.BeginTx(ctx, nil)
	if err != nil {
		return StorageError("begin transaction", err)
	}

	done := false
	defer func() {
		if done {
			return
		}
		// fn panicked
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to rollback transaction after panic")
			lease.discard()
		}
	}()

	if err := fn(&Cursor{tx: tx, dialect: p.dialect}); err != nil {
		done = true
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Error().Err(rbErr).Msg("Failed to rollback transaction")
			lease.discard()
		}
		return err
	}
	done = true

	if !commit {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			lease.discard()
			return StorageError("end read-only transaction", err)
		}
		return nil
	}

	// A failed COMMIT can leave the driver connection inside the transaction.
	if err := tx.Commit(); err != nil {
		lease.discard()
		return StorageError("commit transaction", err)
	}
	return nil
}
