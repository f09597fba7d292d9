// Package store persists backend sessions and eye-activity samples.
// SQLite is the default; a postgres:// URL selects PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("session not found")

// Session is one backend session row. EndTime, Duration and Score are nil
// until the session is ended; Score stays nil when nothing was measured.
type Session struct {
	ID        string     `json:"session_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Duration  *int       `json:"duration,omitempty"` // seconds
	Score     *float64   `json:"eye_activity_score,omitempty"`
}

// Stats aggregates completed sessions.
type Stats struct {
	TotalSessions     int
	TotalFocusSeconds int
	AverageMinutes    float64
	TodaySessions     int
	AverageScore      float64 // 0..1
	BestScore         float64 // 0..1
}

// Store is a database/sql handle with placeholder rebinding.
type Store struct {
	db       *sql.DB
	postgres bool
}

// DefaultPath returns $XDG_DATA_HOME/focuspet/focuspet.db.
func DefaultPath() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "focuspet", "focuspet.db"), nil
}

// Open connects to dsn and creates the schema. An empty dsn opens the
// default SQLite file.
func Open(dsn string) (*Store, error) {
	driver := "sqlite"
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		driver = "postgres"
	case dsn == "":
		path, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolving database path: %w", err)
		}
		dsn = path
		fallthrough
	default:
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == "sqlite" {
		// One writer at a time; also keeps :memory: on a single connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}
	s := &Store{db: db, postgres: driver == "postgres"}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}
	return s, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			start_time BIGINT NOT NULL,
			end_time BIGINT,
			duration INTEGER,
			eye_activity_score DOUBLE PRECISION
		)`,
		`CREATE TABLE IF NOT EXISTS eye_activity (
			session_id TEXT NOT NULL REFERENCES sessions (id),
			ts BIGINT NOT NULL,
			gaze_focused BOOLEAN NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS eye_activity_session_idx ON eye_activity (session_id)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (s *Store) rebind(query string) string {
	if !s.postgres {
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

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// CreateSession inserts a new, open session.
func (s *Store) CreateSession(ctx context.Context, id string, start time.Time) error {
	if id == "" {
		return errors.New("session id is required")
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO sessions (id, start_time) VALUES (?, ?)`), id, toMillis(start))
	if err != nil {
		return fmt.Errorf("create session %s: %w", id, err)
	}
	return nil
}

// Session looks up id.
func (s *Store) Session(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, start_time, end_time, duration, eye_activity_score FROM sessions WHERE id = ?`), id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return sess, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		sess     Session
		start    int64
		end      sql.NullInt64
		duration sql.NullInt64
		score    sql.NullFloat64
	)
	if err := row.Scan(&sess.ID, &start, &end, &duration, &score); err != nil {
		return nil, err
	}
	sess.StartTime = fromMillis(start)
	if end.Valid {
		t := fromMillis(end.Int64)
		sess.EndTime = &t
	}
	if duration.Valid {
		d := int(duration.Int64)
		sess.Duration = &d
	}
	if score.Valid {
		v := score.Float64
		sess.Score = &v
	}
	return &sess, nil
}

// EndSession completes id at end. The score is focusPct/100 when given,
// otherwise the focused share of logged eye activity, otherwise unset.
func (s *Store) EndSession(ctx context.Context, id string, end time.Time, focusPct *float64) (*Session, error) {
	sess, err := s.Session(ctx, id)
	if err != nil {
		return nil, err
	}

	var score sql.NullFloat64
	if focusPct != nil {
		score = sql.NullFloat64{Float64: math.Min(math.Max(*focusPct, 0), 100) / 100, Valid: true}
	} else {
		var total, focused int64
		err := s.db.QueryRowContext(ctx, s.rebind(
			`SELECT COUNT(*), COALESCE(SUM(CASE WHEN gaze_focused THEN 1 ELSE 0 END), 0)
			 FROM eye_activity WHERE session_id = ?`), id).Scan(&total, &focused)
		if err != nil {
			return nil, fmt.Errorf("score session %s: %w", id, err)
		}
		if total > 0 {
			score = sql.NullFloat64{Float64: float64(focused) / float64(total), Valid: true}
		}
	}

	duration := int(end.Sub(sess.StartTime) / time.Second)
	if duration < 0 {
		duration = 0
	}
	_, err = s.db.ExecContext(ctx, s.rebind(
		`UPDATE sessions SET end_time = ?, duration = ?, eye_activity_score = ? WHERE id = ?`),
		toMillis(end), duration, score, id)
	if err != nil {
		return nil, fmt.Errorf("end session %s: %w", id, err)
	}

	endUTC := end.UTC()
	sess.EndTime = &endUTC
	sess.Duration = &duration
	sess.Score = nil
	if score.Valid {
		v := score.Float64
		sess.Score = &v
	}
	return sess, nil
}

// LogEyeActivity records one gaze sample for id.
func (s *Store) LogEyeActivity(ctx context.Context, id string, at time.Time, focused bool) error {
	if _, err := s.Session(ctx, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO eye_activity (session_id, ts, gaze_focused) VALUES (?, ?, ?)`), id, toMillis(at), focused)
	if err != nil {
		return fmt.Errorf("log eye activity for %s: %w", id, err)
	}
	return nil
}

// Stats aggregates completed sessions. Today is the local calendar day
// containing now.
func (s *Store) Stats(ctx context.Context, now time.Time) (Stats, error) {
	var (
		st       Stats
		total    sql.NullInt64
		avgDur   sql.NullFloat64
		avgScore sql.NullFloat64
		maxScore sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), SUM(duration), AVG(duration), AVG(eye_activity_score), MAX(eye_activity_score)
		FROM sessions WHERE end_time IS NOT NULL`).Scan(&st.TotalSessions, &total, &avgDur, &avgScore, &maxScore)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	st.TotalFocusSeconds = int(total.Int64)
	st.AverageMinutes = math.Round(avgDur.Float64/60*10) / 10
	st.AverageScore = avgScore.Float64
	st.BestScore = maxScore.Float64

	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	err = s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM sessions WHERE end_time IS NOT NULL AND start_time >= ?`),
		toMillis(midnight)).Scan(&st.TodaySessions)
	if err != nil {
		return Stats{}, fmt.Errorf("query today's sessions: %w", err)
	}
	return st, nil
}

// Completed returns every ended session, oldest first.
func (s *Store) Completed(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, start_time, end_time, duration, eye_activity_score
		FROM sessions WHERE end_time IS NOT NULL ORDER BY start_time`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}
