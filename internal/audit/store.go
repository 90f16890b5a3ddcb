// Package audit records console actions (key and model changes, chat sends,
// logins) in a SQL action log. Writes are asynchronous; a full buffer drops
// entries rather than blocking the request that produced them.
package audit

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS action_log (
	id TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	session TEXT NOT NULL,
	action TEXT NOT NULL,
	target TEXT,
	outcome TEXT NOT NULL,
	message TEXT,
	latency_ms BIGINT
);

CREATE INDEX IF NOT EXISTS idx_action_log_action ON action_log(action);
CREATE INDEX IF NOT EXISTS idx_action_log_outcome ON action_log(outcome);
CREATE INDEX IF NOT EXISTS idx_action_log_timestamp ON action_log(timestamp);
`

// Drivers accepted by NewStore.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type writeReq struct {
	entry Entry
	done  chan struct{} // set for flush markers
}

// Store manages the action log.
type Store struct {
	db       *sql.DB
	postgres bool
	logger   *slog.Logger

	mu     sync.RWMutex // guards closed and sends on writes
	closed bool
	writes chan writeReq
	done   chan struct{}
}

// NewStore opens (or creates) the action log. driver is "sqlite" with a file
// path DSN or "postgres" with a pgx connection string.
func NewStore(driver, dsn string, logger *slog.Logger) (*Store, error) {
	var sqlDriver string
	switch driver {
	case DriverSQLite, "":
		sqlDriver = "sqlite"
	case DriverPostgres:
		sqlDriver = "pgx"
	default:
		return nil, fmt.Errorf("unknown audit driver %q", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening audit db: %w", err)
	}

	if sqlDriver == "sqlite" {
		// WAL lets the CLI read while the server writes
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			if cerr := db.Close(); cerr != nil {
				return nil, fmt.Errorf("setting WAL mode: %w (also: close: %v)", err, cerr)
			}
			return nil, fmt.Errorf("setting WAL mode: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("creating schema: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &Store{
		db:       db,
		postgres: sqlDriver == "pgx",
		writes:   make(chan writeReq, 256),
		done:     make(chan struct{}),
		logger:   logger,
	}

	go s.writeLoop()
	return s, nil
}

// rebind rewrites ? placeholders to $n for postgres.
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

// Log enqueues an entry for async writing. Entries logged after Close are
// dropped.
func (s *Store) Log(entry Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Debug("audit store closed, dropping entry", "id", entry.ID, "action", entry.Action)
		return
	}
	select {
	case s.writes <- writeReq{entry: entry}:
	default:
		s.logger.Warn("audit write buffer full, dropping entry", "id", entry.ID, "action", entry.Action)
	}
}

// Record stamps a new entry with an id and the current time and logs it.
func (s *Store) Record(session, action, target, outcome, message string, latency time.Duration) {
	s.Log(Entry{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Session:   session,
		Action:    action,
		Target:    target,
		Outcome:   outcome,
		Message:   message,
		LatencyMs: latency.Milliseconds(),
	})
}

// Flush blocks until every entry logged before the call has been written.
func (s *Store) Flush() {
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	s.writes <- writeReq{done: done}
	s.mu.RUnlock()
	<-done
}

// Query returns entries matching the given filters, newest first.
func (s *Store) Query(opts QueryOpts) ([]Entry, error) {
	query := "SELECT id, timestamp, session, action, target, outcome, message, latency_ms FROM action_log WHERE 1=1"
	var args []any

	if opts.Action != "" {
		query += " AND action = ?"
		args = append(args, opts.Action)
	}
	if opts.Outcome != "" {
		query += " AND outcome = ?"
		args = append(args, opts.Outcome)
	}
	if opts.Session != "" {
		query += " AND session = ?"
		args = append(args, opts.Session)
	}
	if opts.Since != "" {
		query += " AND timestamp >= ?"
		args = append(args, opts.Since)
	}

	query += " ORDER BY timestamp DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	} else {
		query += " LIMIT 50"
	}

	rows, err := s.db.Query(s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying action log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var target, msg sql.NullString
		var latency sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Session, &e.Action, &target, &e.Outcome, &msg, &latency); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		e.Target = target.String
		e.Message = msg.String
		e.LatencyMs = latency.Int64
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats aggregates the log per action.
func (s *Store) Stats() ([]ActionStat, error) {
	rows, err := s.db.Query(s.rebind(`SELECT action, COUNT(*),
		SUM(CASE WHEN outcome != ? THEN 1 ELSE 0 END), MAX(timestamp)
		FROM action_log GROUP BY action ORDER BY COUNT(*) DESC, action`), OutcomeOK)
	if err != nil {
		return nil, fmt.Errorf("querying action stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []ActionStat
	for rows.Next() {
		var st ActionStat
		if err := rows.Scan(&st.Action, &st.Total, &st.Failed, &st.LastAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// Purge deletes entries older than the retention window and returns how many
// were removed. A non-positive retention keeps everything.
func (s *Store) Purge(retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339)
	res, err := s.db.Exec(s.rebind("DELETE FROM action_log WHERE timestamp < ?"), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging action log: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes pending writes and closes the database. Later calls are
// no-ops.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.writes)
	s.mu.Unlock()

	<-s.done
	return s.db.Close()
}

func (s *Store) writeLoop() {
	defer close(s.done)
	insert := s.rebind(`INSERT INTO action_log (id, timestamp, session, action, target, outcome, message, latency_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	for req := range s.writes {
		if req.done != nil {
			close(req.done)
			continue
		}
		e := req.entry
		_, err := s.db.Exec(insert,
			e.ID, e.Timestamp, e.Session, e.Action, e.Target, e.Outcome, e.Message, e.LatencyMs,
		)
		if err != nil {
			s.logger.Error("audit write failed", "id", e.ID, "action", e.Action, "error", err)
		}
	}
}
