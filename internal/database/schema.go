package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// EnsureSchema creates the guestbook tables if they do not exist yet.
// There is no versioning; statements must stay idempotent.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	statements := splitSQLStatements(p.dialect.Schema)

	err := p.WithCursor(ctx, true, func(c *Cursor) error {
		for i, stmt := range statements {
			if _, err := c.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("schema statement %d failed: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return StorageError("ensure schema", err)
	}

	log.Debug().Str("dialect", p.dialect.Name).Int("statements", len(statements)).Msg("Database schema ready")
	return nil
}

// splitSQLStatements splits a SQL string into individual statements.
// It handles comments and only returns non-empty statements.
func splitSQLStatements(sql string) []string {
	var statements []string
	var current strings.Builder

	for line := range strings.SplitSeq(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(current.String())
			if stmt != "" && stmt != ";" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	if remaining := strings.TrimSpace(current.String()); remaining != "" {
		statements = append(statements, remaining)
	}

	return statements
}
