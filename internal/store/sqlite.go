package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seantiz/aigrace/internal/model"
	"github.com/seantiz/aigrace/internal/verdict"

	_ "modernc.org/sqlite"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    status      TEXT NOT NULL,
    dataset     TEXT NOT NULL,
    engines     TEXT NOT NULL,
    timeout_s   INTEGER NOT NULL,
    inputs      INTEGER,
    latches     INTEGER,
    ands        INTEGER,
    verdict     TEXT NOT NULL DEFAULT '',
    engine      TEXT NOT NULL DEFAULT '',
    elapsed_ms  INTEGER,
    error       TEXT NOT NULL DEFAULT '',
    created_at  DATETIME NOT NULL,
    started_at  DATETIME,
    finished_at DATETIME
)`

const createEngineResultsTable = `
CREATE TABLE IF NOT EXISTS engine_results (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT NOT NULL,
    seq         INTEGER NOT NULL,
    engine      TEXT NOT NULL,
    verdict     TEXT NOT NULL,
    elapsed_ms  INTEGER,
    created_at  DATETIME NOT NULL
)`

const createLogLinesTable = `
CREATE TABLE IF NOT EXISTS log_lines (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT NOT NULL,
    seq         INTEGER NOT NULL,
    line        TEXT NOT NULL,
    created_at  DATETIME NOT NULL
)`

var createIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_engine_results_run ON engine_results(run_id, seq)",
	"CREATE INDEX IF NOT EXISTS idx_log_lines_run ON log_lines(run_id, seq)",
}

const runColumns = `id, status, dataset, engines, timeout_s, inputs, latches, ands,
	verdict, engine, elapsed_ms, error, created_at, started_at, finished_at`

// ErrNotFound is returned when a run is not found.
var ErrNotFound = errors.New("run not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// connParams is applied by the driver to every pooled connection. Writers
// begin transactions with BEGIN IMMEDIATE so they queue on busy_timeout
// instead of failing when a read lock cannot be upgraded.
const connParams = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	for name, stmt := range map[string]string{
		"runs":           createRunsTable,
		"engine_results": createEngineResultsTable,
		"log_lines":      createLogLinesTable,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create %s table: %w", name, err)
		}
	}
	for _, stmt := range createIndexes {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create index: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + connParams
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, r *model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Status, r.Dataset, joinEngines(r.Engines), r.TimeoutS,
		r.Inputs, r.Latches, r.Ands,
		string(r.Verdict), r.Engine.String(), r.ElapsedMS, r.Error,
		r.CreatedAt, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	r := &model.Run{}
	var engines, v, engine string
	if err := row.Scan(
		&r.ID, &r.Status, &r.Dataset, &engines, &r.TimeoutS,
		&r.Inputs, &r.Latches, &r.Ands,
		&v, &engine, &r.ElapsedMS, &r.Error,
		&r.CreatedAt, &r.StartedAt, &r.FinishedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if r.Engines, err = splitEngines(engines); err != nil {
		return nil, fmt.Errorf("run %s: %w", r.ID, err)
	}
	if err := r.Engine.UnmarshalText([]byte(engine)); err != nil {
		return nil, fmt.Errorf("run %s: %w", r.ID, err)
	}
	r.Verdict = verdict.Verdict(v)
	return r, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns a paginated list of runs ordered by created_at DESC,
// along with the total count of all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, total, nil
}

// UpdateRunStatus moves a run to status. Entering running sets started_at;
// entering a terminal status sets finished_at.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id, status string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := currentStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if !model.ValidTransition(current, status) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current, status)
	}

	now := time.Now().UTC()
	switch {
	case status == model.StatusRunning:
		_, err = tx.ExecContext(ctx,
			"UPDATE runs SET status = ?, started_at = ? WHERE id = ?", status, now, id)
	case model.Terminal(status):
		_, err = tx.ExecContext(ctx,
			"UPDATE runs SET status = ?, finished_at = ? WHERE id = ?", status, now, id)
	default:
		_, err = tx.ExecContext(ctx,
			"UPDATE runs SET status = ? WHERE id = ?", status, id)
	}
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit status update: %w", err)
	}
	return nil
}

// UpdateRun writes every mutable field of r. A status change must be a
// valid transition from the stored status.
func (s *SQLiteStore) UpdateRun(ctx context.Context, r *model.Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := currentStatus(ctx, tx, r.ID)
	if err != nil {
		return err
	}
	if current != r.Status && !model.ValidTransition(current, r.Status) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current, r.Status)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, inputs = ?, latches = ?, ands = ?,
			verdict = ?, engine = ?, elapsed_ms = ?, error = ?,
			started_at = ?, finished_at = ?
		WHERE id = ?`,
		r.Status, r.Inputs, r.Latches, r.Ands,
		string(r.Verdict), r.Engine.String(), r.ElapsedMS, r.Error,
		r.StartedAt, r.FinishedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run update: %w", err)
	}
	return nil
}

func currentStatus(ctx context.Context, tx *sql.Tx, id string) (string, error) {
	var status string
	err := tx.QueryRowContext(ctx, "SELECT status FROM runs WHERE id = ?", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read run status: %w", err)
	}
	return status, nil
}

// GetRunStats aggregates counts by status, verdict and winning engine, and
// the mean elapsed time of conclusive runs.
func (s *SQLiteStore) GetRunStats(ctx context.Context) (*RunStats, error) {
	st := &RunStats{
		CountByStatus:  make(map[string]int),
		CountByVerdict: make(map[string]int),
		WinsByEngine:   make(map[string]int),
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&st.Total); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}

	groups := []struct {
		query string
		into  map[string]int
	}{
		{"SELECT status, COUNT(*) FROM runs GROUP BY status", st.CountByStatus},
		{"SELECT verdict, COUNT(*) FROM runs WHERE verdict != '' GROUP BY verdict", st.CountByVerdict},
		{"SELECT engine, COUNT(*) FROM runs WHERE engine != '' GROUP BY engine", st.WinsByEngine},
	}
	for _, g := range groups {
		if err := countInto(ctx, s.db, g.query, g.into); err != nil {
			return nil, err
		}
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT AVG(elapsed_ms) FROM runs WHERE elapsed_ms IS NOT NULL AND engine != ''",
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average elapsed: %w", err)
	}
	if avg.Valid {
		st.AvgElapsedMS = avg.Float64
	}

	return st, nil
}

func countInto(ctx context.Context, db *sql.DB, query string, into map[string]int) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("aggregate runs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan aggregate: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}

// InsertEngineResult records one engine result consumed by a run's race.
func (s *SQLiteStore) InsertEngineResult(ctx context.Context, runID string, seq int, res model.EngineResult) error {
	var elapsedMS *int
	if res.Elapsed != nil {
		ms := int(res.Elapsed.Milliseconds())
		elapsedMS = &ms
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO engine_results (run_id, seq, engine, verdict, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, seq, res.Engine.String(), string(res.Verdict), elapsedMS, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert engine result: %w", err)
	}
	return nil
}

// GetEngineResults returns a run's engine results in arrival order.
func (s *SQLiteStore) GetEngineResults(ctx context.Context, runID string) ([]model.ResultRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, engine, verdict, elapsed_ms, created_at
		FROM engine_results WHERE run_id = ? ORDER BY seq ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get engine results: %w", err)
	}
	defer rows.Close()

	records := []model.ResultRecord{}
	for rows.Next() {
		var rec model.ResultRecord
		var engine, v string
		if err := rows.Scan(&rec.RunID, &rec.Seq, &engine, &v, &rec.ElapsedMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan engine result: %w", err)
		}
		if err := rec.Engine.UnmarshalText([]byte(engine)); err != nil {
			return nil, fmt.Errorf("engine result %d: %w", rec.Seq, err)
		}
		rec.Verdict = verdict.Verdict(v)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate engine results: %w", err)
	}
	return records, nil
}

// InsertLogLine persists one line of tool output for a run.
func (s *SQLiteStore) InsertLogLine(ctx context.Context, runID string, seq int, line string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO log_lines (run_id, seq, line, created_at) VALUES (?, ?, ?, ?)",
		runID, seq, line, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert log line: %w", err)
	}
	return nil
}

// GetLogLines returns a run's log lines ordered by seq.
func (s *SQLiteStore) GetLogLines(ctx context.Context, runID string) ([]model.LogLine, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, run_id, seq, line, created_at FROM log_lines WHERE run_id = ? ORDER BY seq ASC",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get log lines: %w", err)
	}
	defer rows.Close()

	lines := []model.LogLine{}
	for rows.Next() {
		var l model.LogLine
		if err := rows.Scan(&l.ID, &l.RunID, &l.Seq, &l.Line, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log lines: %w", err)
	}
	return lines, nil
}

func joinEngines(engines []model.Engine) string {
	names := make([]string, len(engines))
	for i, e := range engines {
		names[i] = e.String()
	}
	return strings.Join(names, ",")
}

func splitEngines(s string) ([]model.Engine, error) {
	if s == "" {
		return []model.Engine{}, nil
	}
	return model.ParseEngines(strings.Split(s, ","))
}
