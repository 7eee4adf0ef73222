package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect describes the differences between the supported backing stores.
type Dialect struct {
	Name string
	// Numbered is true when the driver expects $1, $2, ... instead of ?.
	Numbered bool
	Schema   string
}

var (
	// SQLite is the default dialect, backed by modernc.org/sqlite.
	SQLite = Dialect{
		Name: "sqlite",
		Schema: `
			CREATE TABLE IF NOT EXISTS guest_list (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				message TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS oauth_sessions (
				id TEXT PRIMARY KEY,
				subject TEXT NOT NULL,
				display_name TEXT NOT NULL,
				token BLOB NOT NULL,
				expires_at INTEGER NOT NULL,
				created_at INTEGER NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_oauth_sessions_expires ON oauth_sessions(expires_at);
		`,
	}

	// Postgres is used for postgres:// and postgresql:// DSNs through pgx.
	Postgres = Dialect{
		Name:     "postgres",
		Numbered: true,
		Schema: `
			CREATE TABLE IF NOT EXISTS guest_list (
				id BIGSERIAL PRIMARY KEY,
				name TEXT NOT NULL,
				message TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS oauth_sessions (
				id TEXT PRIMARY KEY,
				subject TEXT NOT NULL,
				display_name TEXT NOT NULL,
				token BYTEA NOT NULL,
				expires_at BIGINT NOT NULL,
				created_at BIGINT NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_oauth_sessions_expires ON oauth_sessions(expires_at);
		`,
	}
)

// Rebind rewrites ? placeholders for dialects that use numbered parameters.
// Queries must not contain a literal question mark.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// openDSN resolves a DSN into a dialect and an unopened-but-configured *sql.DB.
// Nothing is dialed here; Open pings afterwards.
func openDSN(dsn string) (*sql.DB, Dialect, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, Dialect{}, configError("empty database DSN")
	}

	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		cfg, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, Dialect{}, configError("invalid postgres DSN: %v", err)
		}
		return stdlib.OpenDB(*cfg), Postgres, nil

	case strings.HasPrefix(dsn, "sqlite://"), strings.HasPrefix(dsn, "sqlite:"), strings.HasPrefix(dsn, "file:"):
		path := strings.TrimPrefix(strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite://"), "sqlite:"), "file:")
		if path == "" {
			return nil, Dialect{}, configError("sqlite DSN %q has no path", dsn)
		}
		db, err := sql.Open("sqlite", sqliteDSN(path))
		if err != nil {
			return nil, Dialect{}, configError("failed to open sqlite database: %v", err)
		}
		return db, SQLite, nil

	default:
		return nil, Dialect{}, configError("unsupported DSN %q (expected postgres://, sqlite:// or file:)", redactDSN(dsn))
	}
}

// isSQLiteMemory reports whether dsn names an in-memory sqlite database.
func isSQLiteMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// sqliteDSN adds the pragmas every pooled connection needs. WAL allows readers
// alongside the single writer and busy_timeout makes writers queue instead of failing.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path, sep)
}

func redactDSN(dsn string) string {
	if i := strings.Index(dsn, "@"); i >= 0 {
		if j := strings.Index(dsn, "://"); j >= 0 && j < i {
			return dsn[:j+3] + "redacted" + dsn[i:]
		}
	}
	return dsn
}
