package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	driverName         = "sqlite"
	maxAttempts        = 5
	defaultGroup       = "default"
	defaultBusyTimeout = 2 * time.Second
)

// Store records fusion runs in a local sqlite database.
type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	return OpenWithTimeout(path, defaultBusyTimeout)
}

func OpenWithTimeout(path string, busyTimeout time.Duration) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	// busy_timeout + WAL reduce lock conflicts when watch mode re-fuses quickly.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)",
		cleanPath, busyTimeout.Milliseconds())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun inserts run, or replaces the row with the same RunID. A missing
// RunID is generated and returned.
func (s *Store) SaveRun(run Run) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.Group = strings.TrimSpace(run.Group)
	if run.Group == "" {
		run.Group = defaultGroup
	}
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now().UTC()
	}
	if run.Strategy == "" {
		run.Strategy = "manual"
	}

	query := `
INSERT INTO fusion_runs (
  run_id, group_name, ts_utc, strategy, base_unit, unit_count, functions_added,
  classes_added, conflicts, pending, validated, success, merged_hash
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
  group_name=excluded.group_name,
  ts_utc=excluded.ts_utc,
  strategy=excluded.strategy,
  base_unit=excluded.base_unit,
  unit_count=excluded.unit_count,
  functions_added=excluded.functions_added,
  classes_added=excluded.classes_added,
  conflicts=excluded.conflicts,
  pending=excluded.pending,
  validated=excluded.validated,
  success=excluded.success,
  merged_hash=excluded.merged_hash
`
	err := s.withRetry("save run", func() error {
		_, err := s.db.Exec(
			query,
			run.RunID,
			run.Group,
			run.Timestamp.UTC().Format(time.RFC3339Nano),
			run.Strategy,
			run.BaseUnit,
			run.UnitCount,
			run.FunctionsAdded,
			run.ClassesAdded,
			run.Conflicts,
			run.Pending,
			boolInt(run.Validated),
			boolInt(run.Success),
			run.MergedHash,
		)
		return err
	})
	if err != nil {
		return "", err
	}
	return run.RunID, nil
}

// LoadRuns returns the runs of group recorded at or after since, oldest first.
// A zero since returns every run.
func (s *Store) LoadRuns(group string, since time.Time) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group = strings.TrimSpace(group)
	if group == "" {
		group = defaultGroup
	}

	base := `
SELECT
  run_id, group_name, ts_utc, strategy, base_unit, unit_count, functions_added,
  classes_added, conflicts, pending, validated, success, merged_hash
FROM fusion_runs
`
	base += " WHERE group_name = ?"
	args := make([]any, 0, 2)
	args = append(args, group)
	if !since.IsZero() {
		base += " AND ts_utc >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	base += " ORDER BY ts_utc ASC, run_id ASC"

	var rows *sql.Rows
	err := s.withRetry("load runs", func() error {
		var qErr error
		rows, qErr = s.db.Query(base, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var (
			tsRaw     string
			validated int
			success   int
			run       Run
		)
		if err := rows.Scan(
			&run.RunID,
			&run.Group,
			&tsRaw,
			&run.Strategy,
			&run.BaseUnit,
			&run.UnitCount,
			&run.FunctionsAdded,
			&run.ClassesAdded,
			&run.Conflicts,
			&run.Pending,
			&validated,
			&success,
			&run.MergedHash,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}

		ts, err := time.Parse(time.RFC3339Nano, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse run timestamp %q: %w", tsRaw, err)
		}
		run.Timestamp = ts.UTC()
		run.Validated = validated != 0
		run.Success = success != 0

		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}

	return runs, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}
