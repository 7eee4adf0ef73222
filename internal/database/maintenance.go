package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Optimize refreshes the query planner statistics of the backing store.
// It runs outside a transaction on a leased connection.
func (p *Pool) Optimize(ctx context.Context) (err error) {
	stmt := "PRAGMA optimize"
	if p.dialect.Name == Postgres.Name {
		stmt = "ANALYZE guest_list, oauth_sessions"
	}

	lease, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := p.Release(lease); relErr != nil {
			log.Error().Err(relErr).Msg("Failed to release connection after optimize")
			if err == nil {
				err = relErr
			}
		}
	}()

	if _, err := lease.conn.ExecContext(ctx, stmt); err != nil {
		return StorageError("optimize", fmt.Errorf("%s: %w", stmt, err))
	}
	return nil
}
