// Package sqlitestore keeps published records in a SQLite database for
// later analysis and serves it over the debug admin routes.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/modes1090/internal/modes/l4frames"
	"github.com/banshee-data/modes1090/internal/modes/l6publish"
)

// Store is a Sink writing one row per record.
type Store struct {
	db   *sql.DB
	path string
	ins  *sql.Stmt
}

// Open opens or creates the database at path and migrates it to the
// latest schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, path: path}
	if err := s.applyPragmas(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	s.ins, err = db.Prepare(`INSERT INTO records (
		run_id, source_id, wall_time_ns, monotonic_ns, frame_class, integrity,
		corrected_bit, downlink_format, address, signal_level, payload, raw
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	return s, nil
}

func (s *Store) applyPragmas() error {
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return nil
}

// DB exposes the underlying handle for read-only tooling.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Name() string { return "sqlite:" + s.path }

// Send decodes record and inserts it.
func (s *Store) Send(ctx context.Context, record []byte) error {
	r, err := l6publish.Decode(record)
	if err != nil {
		return err
	}
	var bit, addr sql.NullInt64
	if r.Integrity.Status == l4frames.StatusCorrected {
		bit = sql.NullInt64{Int64: int64(r.Integrity.BitIndex), Valid: true}
	}
	if r.Address != 0 {
		addr = sql.NullInt64{Int64: int64(r.Address), Valid: true}
	}
	// Cancellation must not lose a record already handed to the sink.
	_, err = s.ins.ExecContext(context.WithoutCancel(ctx),
		r.RunID, r.SourceID, r.WallTime.UnixNano(), int64(r.Monotonic),
		int(r.Class), int(r.Integrity.Status), bit, int(r.DownlinkFormat), addr,
		float64(r.SignalLevel), r.Payload, record,
	)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	if s.ins != nil {
		s.ins.Close()
	}
	return s.db.Close()
}

// RunSummary describes one pipeline run.
type RunSummary struct {
	RunID     string
	Records   int
	Corrected int
	Aircraft  int
	First     time.Time
	Last      time.Time
}

// Runs lists the runs in the store, most recent first.
func (s *Store) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, records, corrected, aircraft, first_ns, last_ns FROM run_summary ORDER BY last_ns DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var first, last int64
		if err := rows.Scan(&r.RunID, &r.Records, &r.Corrected, &r.Aircraft, &first, &last); err != nil {
			return nil, err
		}
		r.First, r.Last = time.Unix(0, first).UTC(), time.Unix(0, last).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// FormatCount is the number of records of one downlink format.
type FormatCount struct {
	DownlinkFormat int
	Valid          int
	Corrected      int
}

// FormatCounts groups a run's records by downlink format. An empty runID
// covers every run.
func (s *Store) FormatCounts(ctx context.Context, runID string) ([]FormatCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT downlink_format,
		       SUM(CASE WHEN integrity = ? THEN 1 ELSE 0 END),
		       SUM(CASE WHEN integrity = ? THEN 1 ELSE 0 END)
		FROM records
		WHERE ? = '' OR run_id = ?
		GROUP BY downlink_format
		ORDER BY downlink_format`,
		int(l4frames.StatusValid), int(l4frames.StatusCorrected), runID, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FormatCount
	for rows.Next() {
		var c FormatCount
		if err := rows.Scan(&c.DownlinkFormat, &c.Valid, &c.Corrected); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SignalLevels returns the signal level of each record in a run, in
// insertion order. An empty runID covers every run.
func (s *Store) SignalLevels(ctx context.Context, runID string) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT signal_level FROM records WHERE (? = '' OR run_id = ?) AND signal_level IS NOT NULL ORDER BY record_id`,
		runID, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Records returns up to limit raw records of a run in insertion order.
func (s *Store) Records(ctx context.Context, runID string, limit int) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT raw FROM records WHERE run_id = ? ORDER BY record_id LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, rows.Err()
}

// AttachAdminRoutes mounts a tailsql console over the store under the
// /debug/ pages. These routes are accessible only over localhost/via
// Tailscale.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+s.path, s.db, &tailsql.DBOptions{
		Label: "Mode S records",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	return nil
}
