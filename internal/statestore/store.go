// Package statestore persists sessions and raw events in per-day SQLite
// partitions. Each broadcast day gets its own database file, so old days can
// be archived or inspected without touching the live one.
package statestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	apperrors "github.com/liverelay/liverelay/internal/errors"
	"github.com/liverelay/liverelay/internal/logging"
	"github.com/liverelay/liverelay/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS stream_sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	streamer_username TEXT NOT NULL,
	session_date TEXT NOT NULL,
	part_number INTEGER NOT NULL DEFAULT 1,
	start_time TEXT NOT NULL,
	end_time TEXT,
	is_active INTEGER NOT NULL DEFAULT 1,
	total_events INTEGER NOT NULL DEFAULT 0,
	notes TEXT NOT NULL DEFAULT '',
	UNIQUE(streamer_username, session_date, part_number)
);

CREATE TABLE IF NOT EXISTS raw_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	event_type TEXT NOT NULL,
	user_nickname TEXT,
	streamer_username TEXT NOT NULL,
	stream_session_id INTEGER NOT NULL,
	stream_part_number INTEGER NOT NULL,
	simple_data_json TEXT,
	raw_data_json_str TEXT,
	FOREIGN KEY (stream_session_id) REFERENCES stream_sessions(id)
);

CREATE INDEX IF NOT EXISTS idx_raw_events_session ON raw_events(stream_session_id);
CREATE INDEX IF NOT EXISTS idx_raw_events_type ON raw_events(event_type);
CREATE INDEX IF NOT EXISTS idx_sessions_active ON stream_sessions(streamer_username, is_active);
`

// Store manages one SQLite handle per day-partition. Handles are opened
// lazily and cached for the life of the process.
type Store struct {
	dir         string
	busyTimeout time.Duration
	maxRetries  int
	retryBase   time.Duration
	logger      *logging.Logger

	mu      sync.Mutex
	handles map[string]*sql.DB
}

// Options tunes lock-retry behavior. Zero values fall back to defaults.
type Options struct {
	BusyTimeout time.Duration
	MaxRetries  int
	RetryBase   time.Duration
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string, opts Options, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Get()
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 10 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 100 * time.Millisecond
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to create state directory", err)
	}
	return &Store{
		dir:         dir,
		busyTimeout: opts.BusyTimeout,
		maxRetries:  opts.MaxRetries,
		retryBase:   opts.RetryBase,
		logger:      logger,
		handles:     make(map[string]*sql.DB),
	}, nil
}

// PathFor returns the partition file for a broadcast day (YYYY-MM-DD).
func (s *Store) PathFor(day string) string {
	return filepath.Join(s.dir, "events_"+day+".db")
}

// Exists reports whether the partition file for day is already on disk.
func (s *Store) Exists(day string) bool {
	_, err := os.Stat(s.PathFor(day))
	return err == nil
}

// handle returns the cached connection for day, opening and migrating the
// partition on first use.
func (s *Store) handle(day string) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.handles[day]; ok {
		return db, nil
	}

	db, err := sql.Open("sqlite", s.PathFor(day))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to open partition "+day, err)
	}
	// one connection per partition keeps the writer serialized; readers from
	// other processes coexist through WAL
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", s.busyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to configure partition "+day, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to migrate partition "+day, err)
	}

	s.handles[day] = db
	return db, nil
}

// lockedError reports whether err looks like SQLite lock contention.
func lockedError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// withRetry runs fn, retrying on lock contention with exponential backoff.
// Other errors return immediately.
func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !lockedError(err) {
			return err
		}
		delay := s.retryBase * (1 << attempt)
		s.logger.Warn("partition locked, backing off", map[string]any{
			"attempt": attempt + 1, "max": s.maxRetries, "delay": delay.String(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return apperrors.Wrap(apperrors.ErrStorageLocked, "partition stayed locked", err)
}

// InsertEvent appends one event row and bumps its session's event counter in
// the same transaction.
func (s *Store) InsertEvent(ctx context.Context, day string, rec *models.EventRecord) error {
	db, err := s.handle(day)
	if err != nil {
		return err
	}

	return s.withRetry(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(ctx, `
			INSERT INTO raw_events
				(timestamp, event_type, user_nickname, streamer_username,
				 stream_session_id, stream_part_number, simple_data_json, raw_data_json_str)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.Timestamp.UTC().Format(time.RFC3339Nano),
			string(rec.Kind),
			rec.ActorName,
			rec.StreamerUsername,
			rec.SessionID,
			rec.PartNumber,
			string(rec.Payload),
			string(rec.Raw),
		)
		if err != nil {
			return err
		}
		if id, err := res.LastInsertId(); err == nil {
			rec.ID = id
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE stream_sessions SET total_events = total_events + 1 WHERE id = ?`,
			rec.SessionID,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
}

const sessionColumns = `id, streamer_username, session_date, part_number,
	start_time, end_time, is_active, total_events, notes`

func scanSession(row interface{ Scan(...any) error }) (*models.Session, error) {
	var (
		sess   models.Session
		start  string
		end    sql.NullString
		active int
	)
	err := row.Scan(&sess.ID, &sess.StreamerUsername, &sess.SessionDate, &sess.PartNumber,
		&start, &end, &active, &sess.TotalEvents, &sess.Notes)
	if err != nil {
		return nil, err
	}
	if sess.StartTime, err = time.Parse(time.RFC3339Nano, start); err != nil {
		return nil, fmt.Errorf("bad start_time %q: %w", start, err)
	}
	if end.Valid && end.String != "" {
		t, err := time.Parse(time.RFC3339Nano, end.String)
		if err != nil {
			return nil, fmt.Errorf("bad end_time %q: %w", end.String, err)
		}
		sess.EndTime = &t
	}
	sess.IsActive = active != 0
	return &sess, nil
}

// FindActiveSession scans the given days in order and returns the first
// active session for the streamer, highest part number first, together with
// the day it was found in. Days whose partition file does not exist are
// skipped without opening them. Returns SESSION_NOT_FOUND when no day holds
// an active session.
func (s *Store) FindActiveSession(ctx context.Context, days []string, streamer string) (*models.Session, string, error) {
	for _, day := range days {
		if !s.Exists(day) {
			continue
		}
		db, err := s.handle(day)
		if err != nil {
			// a damaged old partition must not block newer days
			s.logger.Warn("skipping unreadable partition", map[string]any{
				"day": day, "error": err.Error(),
			})
			continue
		}

		var found *models.Session
		err = s.withRetry(ctx, func() error {
			row := db.QueryRowContext(ctx, `
				SELECT `+sessionColumns+`
				FROM stream_sessions
				WHERE streamer_username = ? AND is_active = 1
				ORDER BY part_number DESC
				LIMIT 1`, streamer)
			sess, err := scanSession(row)
			if err == sql.ErrNoRows {
				found = nil
				return nil
			}
			if err != nil {
				return err
			}
			found = sess
			return nil
		})
		if err != nil {
			return nil, "", err
		}
		if found != nil {
			return found, day, nil
		}
	}
	return nil, "", apperrors.New(apperrors.ErrSessionNotFound, "no active session for "+streamer)
}

// GetSession loads one session by id from the given day-partition.
func (s *Store) GetSession(ctx context.Context, day string, id int64) (*models.Session, error) {
	if !s.Exists(day) {
		return nil, apperrors.New(apperrors.ErrSessionNotFound, fmt.Sprintf("no partition for %s", day))
	}
	db, err := s.handle(day)
	if err != nil {
		return nil, err
	}

	var found *models.Session
	err = s.withRetry(ctx, func() error {
		row := db.QueryRowContext(ctx,
			`SELECT `+sessionColumns+` FROM stream_sessions WHERE id = ?`, id)
		sess, err := scanSession(row)
		if err == sql.ErrNoRows {
			return apperrors.New(apperrors.ErrSessionNotFound, fmt.Sprintf("session %d not in %s", id, day))
		}
		if err != nil {
			return err
		}
		found = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// FindSessionDay locates the day-partition holding the given session,
// scanning the provided days in order.
func (s *Store) FindSessionDay(ctx context.Context, days []string, id int64) (string, error) {
	for _, day := range days {
		if !s.Exists(day) {
			continue
		}
		if _, err := s.GetSession(ctx, day, id); err == nil {
			return day, nil
		} else if !apperrors.Is(err, apperrors.ErrSessionNotFound) {
			return "", err
		}
	}
	return "", apperrors.New(apperrors.ErrSessionNotFound, fmt.Sprintf("session %d not found", id))
}

// CreateSession opens a fresh session part in day. Any stray active rows for
// the streamer are closed first, and the new part number is one past the
// highest ever used in that day, so closed parts are never reused.
func (s *Store) CreateSession(ctx context.Context, day, streamer string, start time.Time) (*models.Session, error) {
	db, err := s.handle(day)
	if err != nil {
		return nil, err
	}

	var created *models.Session
	err = s.withRetry(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		now := start.UTC().Format(time.RFC3339Nano)
		if _, err := tx.ExecContext(ctx, `
			UPDATE stream_sessions SET is_active = 0, end_time = ?
			WHERE streamer_username = ? AND is_active = 1`, now, streamer); err != nil {
			return err
		}

		var maxPart sql.NullInt64
		if err := tx.QueryRowContext(ctx, `
			SELECT MAX(part_number) FROM stream_sessions
			WHERE streamer_username = ? AND session_date = ?`, streamer, day).Scan(&maxPart); err != nil {
			return err
		}
		part := int(maxPart.Int64) + 1

		res, err := tx.ExecContext(ctx, `
			INSERT INTO stream_sessions
				(streamer_username, session_date, part_number, start_time, is_active)
			VALUES (?, ?, ?, ?, 1)`, streamer, day, part, now)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		created = &models.Session{
			ID:               id,
			StreamerUsername: streamer,
			SessionDate:      day,
			PartNumber:       part,
			StartTime:        start.UTC(),
			IsActive:         true,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("session part created", map[string]any{
		"day": day, "streamer": streamer, "part": created.PartNumber, "session_id": created.ID,
	})
	return created, nil
}

// CreateContinuationPart closes prev and opens the next part in the SAME
// day-partition prev lives in, in one transaction. A broadcast that restarts
// after the cutover keeps accumulating parts under its original day.
func (s *Store) CreateContinuationPart(ctx context.Context, day string, prev *models.Session, start time.Time) (*models.Session, error) {
	db, err := s.handle(day)
	if err != nil {
		return nil, err
	}

	var created *models.Session
	err = s.withRetry(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		now := start.UTC().Format(time.RFC3339Nano)
		if _, err := tx.ExecContext(ctx, `
			UPDATE stream_sessions SET is_active = 0, end_time = ?
			WHERE id = ? AND is_active = 1`, now, prev.ID); err != nil {
			return err
		}

		part := prev.PartNumber + 1
		res, err := tx.ExecContext(ctx, `
			INSERT INTO stream_sessions
				(streamer_username, session_date, part_number, start_time, is_active)
			VALUES (?, ?, ?, ?, 1)`,
			prev.StreamerUsername, prev.SessionDate, part, now)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		created = &models.Session{
			ID:               id,
			StreamerUsername: prev.StreamerUsername,
			SessionDate:      prev.SessionDate,
			PartNumber:       part,
			StartTime:        start.UTC(),
			IsActive:         true,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("continuation part created", map[string]any{
		"day": day, "streamer": prev.StreamerUsername, "part": created.PartNumber,
		"previous_part": prev.PartNumber,
	})
	return created, nil
}

// CloseSession marks a session inactive and stamps its end time.
func (s *Store) CloseSession(ctx context.Context, day string, id int64, end time.Time) error {
	db, err := s.handle(day)
	if err != nil {
		return err
	}
	return s.withRetry(ctx, func() error {
		_, err := db.ExecContext(ctx, `
			UPDATE stream_sessions SET is_active = 0, end_time = ?
			WHERE id = ? AND is_active = 1`,
			end.UTC().Format(time.RFC3339Nano), id)
		return err
	})
}

// SessionsSummary lists every session in a day-partition, oldest part first.
func (s *Store) SessionsSummary(ctx context.Context, day string) ([]models.Session, error) {
	if !s.Exists(day) {
		return nil, nil
	}
	db, err := s.handle(day)
	if err != nil {
		return nil, err
	}

	var sessions []models.Session
	err = s.withRetry(ctx, func() error {
		rows, err := db.QueryContext(ctx, `
			SELECT `+sessionColumns+`
			FROM stream_sessions
			ORDER BY streamer_username, part_number`)
		if err != nil {
			return err
		}
		defer rows.Close()

		sessions = sessions[:0]
		for rows.Next() {
			sess, err := scanSession(rows)
			if err != nil {
				return err
			}
			sessions = append(sessions, *sess)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// Days lists the broadcast days that have a partition on disk, ascending.
func (s *Store) Days() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to list partitions", err)
	}
	var days []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "events_") && strings.HasSuffix(name, ".db") {
			days = append(days, strings.TrimSuffix(strings.TrimPrefix(name, "events_"), ".db"))
		}
	}
	sort.Strings(days)
	return days, nil
}

// Close closes every open partition handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for day, db := range s.handles {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.handles, day)
	}
	return firstErr
}
