// Package store implements the durable, single-table key/value persistence
// layer (component C) backing the parameter engine. It follows
// internal/storage/sqlite.SQLiteStorage's shape: same pure-Go driver, same
// path-validation and pragma-tuning discipline, but a single
// parameters(key,value,timestamp) table instead of an alerts table, and the
// save/load/update semantics of original_source/econfmanager's
// database_utils.rs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/paramstore/paramstore/internal/paramtable"
	"github.com/paramstore/paramstore/internal/pvalue"
)

// Status mirrors the write() Status enum.
type Status int

const (
	StatusOkChanged Status = iota
	StatusOkNotChanged
	StatusOkNotChecked
	StatusOkOverflowFixed
)

// Store is a durable parameter store backed by a single SQLite-shaped
// database file. Safe for concurrent use; SQLite's own locking plus the
// mutex below serialize the compound read-modify-write in Write.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	path   string
	mu     sync.Mutex

	lastScan float64 // last_update_timestamp, see Update()
}

// Open creates or opens the live database at path, bootstrapping from
// backupPath when path does not yet exist (a failed open on a nonexistent
// file triggers a load from the backup path).
func Open(ctx context.Context, path, backupPath string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store: path cannot be empty")
	}
	if strings.Contains(path, "..") {
		return nil, fmt.Errorf("store: invalid path contains '..': %s", path)
	}
	for _, prefix := range []string{"/etc", "/sys", "/proc", "/dev"} {
		if strings.HasPrefix(path, prefix) {
			return nil, fmt.Errorf("store: forbidden path prefix %s: %s", prefix, path)
		}
	}

	_, statErr := os.Stat(path)
	needsBootstrap := os.IsNotExist(statErr) && backupPath != ""

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("store: failed to create directory: %w", err)
		}
	}

	if needsBootstrap {
		if _, err := os.Stat(backupPath); err == nil {
			if err := copyFile(backupPath, path); err != nil {
				logger.Warn("store: failed to bootstrap from backup", "backup", backupPath, "error", err)
			} else {
				logger.Info("store: bootstrapped live database from backup", "backup", backupPath)
			}
		}
	}

	s, err := open(ctx, path, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open sqlite: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: sqlite ping failed: %w", err)
	}

	pragmas := []string{
		"PRAGMA locking_mode = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA wal_autocheckpoint = 1000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: failed to set %q: %w", p, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to initialize schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
		logger.Warn("store: vacuum failed", "error", err)
	}

	s := &Store{db: db, logger: logger, path: path, lastScan: nowTimestamp()}

	logger.Info("store: opened", "path", path)
	return s, nil
}

// nowTimestamp returns seconds since epoch with millisecond fraction,
// matching original_source/econfmanager's get_timestamp().
func nowTimestamp() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Close closes the underlying database connection. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the live database file path.
func (s *Store) Path() string { return s.path }

// ReadOrCreate implements read_or_create(): on a hit it decodes
// into the descriptor's declared type; on a type mismatch or miss it
// returns the descriptor's default (materialising a Blob default from a
// path when set).
func (s *Store) ReadOrCreate(ctx context.Context, d *paramtable.Descriptor, loadDefault func(*paramtable.Descriptor) (pvalue.Value, error)) (pvalue.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `SELECT value, timestamp FROM parameters WHERE key = ?`, d.NameID)
	var raw []byte
	var ts float64
	err := row.Scan(&raw, &ts)
	switch {
	case err == sql.ErrNoRows:
		return s.defaultValue(d, loadDefault)
	case err != nil:
		s.logger.Warn("store: read failed, falling back to default", "key", d.NameID, "error", err)
		return s.defaultValue(d, loadDefault)
	}

	v, decodeErr := decodeScalar(d.ValueType, d.EnumName, raw)
	if decodeErr != nil {
		s.logger.Warn("store: stored value type mismatch, falling back to default",
			"key", d.NameID, "error", decodeErr)
		return s.defaultValue(d, loadDefault)
	}
	return v, nil
}

func (s *Store) defaultValue(d *paramtable.Descriptor, loadDefault func(*paramtable.Descriptor) (pvalue.Value, error)) (pvalue.Value, error) {
	if d.ValueType == pvalue.KindBlob && d.DefaultPath != "" && loadDefault != nil {
		return loadDefault(d)
	}
	return d.Default, nil
}

// Write implements write(id,v,force): a no-op when the stored
// value already equals v (unless force), else an atomic INSERT OR REPLACE
// stamping the current timestamp.
func (s *Store) Write(ctx context.Context, d *paramtable.Descriptor, v pvalue.Value, force bool) (Status, pvalue.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !force {
		row := s.db.QueryRowContext(ctx, `SELECT value FROM parameters WHERE key = ?`, d.NameID)
		var raw []byte
		if err := row.Scan(&raw); err == nil {
			if current, decErr := decodeScalar(d.ValueType, d.EnumName, raw); decErr == nil && current.Equal(v) {
				return StatusOkNotChanged, v, nil
			}
		}
	}

	raw, err := encodeScalar(v)
	if err != nil {
		return 0, pvalue.None, fmt.Errorf("store: encode failed: %w", err)
	}

	ts := nowTimestamp()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO parameters(key, value, timestamp) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, timestamp = excluded.timestamp`,
		d.NameID, raw, ts)
	if err != nil {
		return 0, pvalue.None, fmt.Errorf("store: write failed: %w", err)
	}

	return StatusOkChanged, v, nil
}

// Update implements update(): the poll fallback for missed
// multicasts. It captures the scan boundary BEFORE issuing the SELECT
// (original_source/econfmanager's database_utils.rs::update), tolerating
// the narrow duplicate-scan window as intentional.
func (s *Store) Update(ctx context.Context, lookup func(nameID string) (uint32, bool)) ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	checkStart := nowTimestamp()

	rows, err := s.db.QueryContext(ctx, `SELECT key FROM parameters WHERE timestamp >= ?`, s.lastScan)
	if err != nil {
		return nil, fmt.Errorf("store: update scan failed: %w", err)
	}
	defer rows.Close()

	var ids []uint32
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			continue
		}
		if id, ok := lookup(key); ok {
			ids = append(ids, id)
		}
	}

	s.lastScan = checkStart
	return ids, rows.Err()
}

// Save implements save(filter): copies rows for which filter
// returns true into a fresh backup database, stamping the backup's
// timestamp column at math.MaxFloat64, above every real timestamp, so a
// subsequent Load forces every reader to
// refresh (original_source/econfmanager's copy_database_with_filter).
func (s *Store) Save(ctx context.Context, backupPath string, filter func(nameID string) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(backupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: failed to remove stale backup: %w", err)
	}

	backup, err := open(ctx, backupPath, s.logger)
	if err != nil {
		return fmt.Errorf("store: failed to create backup database: %w", err)
	}
	defer backup.Close()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM parameters`)
	if err != nil {
		return fmt.Errorf("store: save scan failed: %w", err)
	}
	defer rows.Close()

	const forcedTimestamp = math.MaxFloat64
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			continue
		}
		if filter != nil && !filter(key) {
			continue
		}
		if _, err := backup.db.ExecContext(ctx,
			`INSERT INTO parameters(key, value, timestamp) VALUES (?, ?, ?)`,
			key, raw, forcedTimestamp); err != nil {
			return fmt.Errorf("store: backup insert failed: %w", err)
		}
	}
	return rows.Err()
}

// Load implements load(): deletes every row of the live table, then
// bulk-copies the backup database's content into it.
func (s *Store) Load(ctx context.Context, backupPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM parameters`); err != nil {
		return fmt.Errorf("store: load: failed to clear live table: %w", err)
	}

	backup, err := open(ctx, backupPath, s.logger)
	if err != nil {
		return fmt.Errorf("store: load: failed to open backup: %w", err)
	}
	defer backup.Close()

	rows, err := backup.db.QueryContext(ctx, `SELECT key, value, timestamp FROM parameters`)
	if err != nil {
		return fmt.Errorf("store: load: backup scan failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var raw []byte
		var ts float64
		if err := rows.Scan(&key, &raw, &ts); err != nil {
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO parameters(key, value, timestamp) VALUES (?, ?, ?)`,
			key, raw, ts); err != nil {
			return fmt.Errorf("store: load: live insert failed: %w", err)
		}
	}
	s.lastScan = 0 // force Update() to see everything on the next poll tick
	return rows.Err()
}

// DropDatabase implements drop_database() (factory reset).
func (s *Store) DropDatabase(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM parameters`); err != nil {
		return fmt.Errorf("store: factory reset failed: %w", err)
	}
	s.lastScan = nowTimestamp()
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0600)
}
