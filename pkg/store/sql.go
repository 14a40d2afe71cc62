package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/praetorian-inc/scanrt/pkg/types"
	_ "modernc.org/sqlite"
)

// SQLStore implements Store on database/sql. SQLite and PostgreSQL share
// the schema and queries.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// NewSQLite opens or creates a SQLite database file.
func NewSQLite(path string) (*SQLStore, error) {
	s, err := openSQL(sqliteDialect, path)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also keeps
	// ":memory:"-style DSNs on one database.
	s.db.SetMaxOpenConns(1)
	return s, nil
}

// NewPostgres connects to PostgreSQL with a pgx connection URL.
func NewPostgres(dsn string) (*SQLStore, error) {
	return openSQL(postgresDialect, dsn)
}

func openSQL(d dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", d.name, err)
	}
	if err := createSchema(db, d); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLStore{db: db, dialect: d}, nil
}

func (s *SQLStore) exec(query string, args ...any) error {
	_, err := s.db.Exec(s.dialect.rebind(query), args...)
	return err
}

// AddRun creates or replaces the run record.
func (s *SQLStore) AddRun(r *Run) error {
	err := s.exec(`
		INSERT INTO runs (id, started_at, finished_at, mode, backend, outcome)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			mode = excluded.mode,
			backend = excluded.backend,
			outcome = excluded.outcome
	`, r.ID, formatTime(r.StartedAt), formatTime(r.FinishedAt), r.Mode.String(), r.Backend, r.Outcome)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// FinishRun records the end of a run.
func (s *SQLStore) FinishRun(runID string, finishedAt time.Time, outcome string) error {
	res, err := s.db.Exec(s.dialect.rebind(`UPDATE runs SET finished_at = ?, outcome = ? WHERE id = ?`),
		formatTime(finishedAt), outcome, runID)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("unknown run %s", runID)
	}
	return nil
}

// AddPattern stores a pattern of a run.
func (s *SQLStore) AddPattern(p *PatternRecord) error {
	err := s.exec(`
		INSERT INTO patterns (run_id, pattern_id, name, expression, flags, structural_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, p.RunID, int64(p.PatternID), p.Name, p.Expression, int64(p.Flags), p.StructuralID)
	if err != nil {
		return fmt.Errorf("inserting pattern: %w", err)
	}
	return nil
}

// AddInput stores a scanned input.
func (s *SQLStore) AddInput(in *InputRecord) error {
	err := s.exec(`
		INSERT INTO inputs (run_id, name, input_id, size)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, in.RunID, in.Name, in.ID.Hex(), in.Size)
	if err != nil {
		return fmt.Errorf("inserting input: %w", err)
	}
	return nil
}

// AddMatch stores a match record.
func (s *SQLStore) AddMatch(m *Match) error {
	err := s.exec(`
		INSERT INTO matches (run_id, input_name, input_id, pattern_id, offset_start, offset_end, snippet)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, m.RunID, m.Input, m.InputID.Hex(), int64(m.PatternID), int64(m.From), int64(m.To), m.Snippet)
	if err != nil {
		return fmt.Errorf("inserting match: %w", err)
	}
	return nil
}

// GetRuns returns all runs, oldest first.
func (s *SQLStore) GetRuns() ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, mode, backend, outcome
		FROM runs
		ORDER BY started_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		var started, finished, mode string
		if err := rows.Scan(&r.ID, &started, &finished, &mode, &r.Backend, &r.Outcome); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("parsing start time: %w", err)
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, fmt.Errorf("parsing finish time: %w", err)
		}
		if r.Mode, err = types.ParseMode(mode); err != nil {
			return nil, err
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// GetPatterns returns a run's patterns ordered by ID.
func (s *SQLStore) GetPatterns(runID string) ([]*PatternRecord, error) {
	rows, err := s.db.Query(s.dialect.rebind(`
		SELECT pattern_id, name, expression, flags, structural_id
		FROM patterns
		WHERE run_id = ?
		ORDER BY pattern_id
	`), runID)
	if err != nil {
		return nil, fmt.Errorf("querying patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*PatternRecord
	for rows.Next() {
		p := PatternRecord{RunID: runID}
		var id, flags int64
		if err := rows.Scan(&id, &p.Name, &p.Expression, &flags, &p.StructuralID); err != nil {
			return nil, fmt.Errorf("scanning pattern: %w", err)
		}
		p.PatternID, p.Flags = uint32(id), types.CompileFlag(flags)
		patterns = append(patterns, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating patterns: %w", err)
	}
	return patterns, nil
}

// GetInputs returns a run's inputs ordered by name.
func (s *SQLStore) GetInputs(runID string) ([]*InputRecord, error) {
	rows, err := s.db.Query(s.dialect.rebind(`
		SELECT name, input_id, size
		FROM inputs
		WHERE run_id = ?
		ORDER BY name
	`), runID)
	if err != nil {
		return nil, fmt.Errorf("querying inputs: %w", err)
	}
	defer rows.Close()

	var inputs []*InputRecord
	for rows.Next() {
		in := InputRecord{RunID: runID}
		if err := rows.Scan(&in.Name, &in.ID, &in.Size); err != nil {
			return nil, fmt.Errorf("scanning input: %w", err)
		}
		inputs = append(inputs, &in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating inputs: %w", err)
	}
	return inputs, nil
}

// GetMatches returns a run's matches in delivery order per input.
func (s *SQLStore) GetMatches(runID string) ([]*Match, error) {
	rows, err := s.db.Query(s.dialect.rebind(`
		SELECT input_name, input_id, pattern_id, offset_start, offset_end, snippet
		FROM matches
		WHERE run_id = ?
		ORDER BY input_name, offset_end, pattern_id, offset_start
	`), runID)
	if err != nil {
		return nil, fmt.Errorf("querying matches: %w", err)
	}
	defer rows.Close()

	var matches []*Match
	for rows.Next() {
		m := Match{RunID: runID}
		var id, from, to int64
		if err := rows.Scan(&m.Input, &m.InputID, &id, &from, &to, &m.Snippet); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		m.PatternID, m.From, m.To = uint32(id), uint64(from), uint64(to)
		matches = append(matches, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating matches: %w", err)
	}
	return matches, nil
}

// InputScanned reports whether any run stored an input with this ID.
func (s *SQLStore) InputScanned(id types.InputID) (bool, error) {
	var one int
	err := s.db.QueryRow(s.dialect.rebind(`SELECT 1 FROM inputs WHERE input_id = ? LIMIT 1`), id.Hex()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying input: %w", err)
	}
	return true, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
