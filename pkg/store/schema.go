package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// dialect captures the differences between SQLite and PostgreSQL that the
// shared queries care about.
type dialect struct {
	name   string
	driver string
	blob   string // binary column type
	dollar bool   // $n placeholders instead of ?
}

var (
	sqliteDialect   = dialect{name: "sqlite", driver: "sqlite", blob: "BLOB"}
	postgresDialect = dialect{name: "postgres", driver: "pgx", blob: "BYTEA", dollar: true}
)

// rebind rewrites ? placeholders for the dialect.
func (d dialect) rebind(query string) string {
	if !d.dollar {
		return query
	}
	var b strings.Builder
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

// createSchema creates the tables if they don't exist.
func createSchema(db *sql.DB, d dialect) error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"schema_version", `CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)`},
		{"runs", `CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL DEFAULT '',
			mode TEXT NOT NULL,
			backend TEXT NOT NULL,
			outcome TEXT NOT NULL DEFAULT ''
		)`},
		{"patterns", `CREATE TABLE IF NOT EXISTS patterns (
			run_id TEXT NOT NULL REFERENCES runs(id),
			pattern_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			expression TEXT NOT NULL,
			flags BIGINT NOT NULL,
			structural_id TEXT NOT NULL,
			PRIMARY KEY (run_id, pattern_id)
		)`},
		{"inputs", `CREATE TABLE IF NOT EXISTS inputs (
			run_id TEXT NOT NULL REFERENCES runs(id),
			name TEXT NOT NULL,
			input_id TEXT NOT NULL,
			size BIGINT NOT NULL,
			PRIMARY KEY (run_id, name)
		)`},
		{"matches", fmt.Sprintf(`CREATE TABLE IF NOT EXISTS matches (
			run_id TEXT NOT NULL REFERENCES runs(id),
			input_name TEXT NOT NULL,
			input_id TEXT NOT NULL,
			pattern_id BIGINT NOT NULL,
			offset_start BIGINT NOT NULL,
			offset_end BIGINT NOT NULL,
			snippet %s,
			PRIMARY KEY (run_id, input_name, pattern_id, offset_start, offset_end)
		)`, d.blob)},
		{"inputs index", `CREATE INDEX IF NOT EXISTS idx_inputs_input_id ON inputs(input_id)`},
	}

	for _, s := range stmts {
		if _, err := db.Exec(s.sql); err != nil {
			return fmt.Errorf("creating %s: %w", s.name, err)
		}
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec(d.rebind("INSERT INTO schema_version (version) VALUES (?)"), SchemaVersion); err != nil {
			return fmt.Errorf("writing schema version: %w", err)
		}
		return nil
	}

	var version int
	if err := db.QueryRow("SELECT version FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("unsupported schema version %d (want %d)", version, SchemaVersion)
	}
	return nil
}
