// Package memory implements the per-project memory store for devmem.
//
// A Store owns one SQLite file under the project's metadata directory and
// records conversations, architectural decisions, file changes and code
// patterns for exactly one project. Team-level relations live in the same
// database and are layered on top by package team.
package memory

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/HendryAvila/devmem/internal/derrors"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// MetaDirName is the per-project metadata directory.
const MetaDirName = ".devmem"

// DBFileName is the SQLite file inside the metadata directory.
const DBFileName = "memory.db"

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds memory store configuration.
type Config struct {
	// ProjectRoot is the project directory. The project id derives from it.
	ProjectRoot string
	// DataDir overrides <ProjectRoot>/.devmem when non-empty.
	DataDir string
	// MaxFileChanges caps the file-change history in GetProjectMemory.
	MaxFileChanges int
}

// DefaultConfig returns the default configuration for a project rooted at root.
func DefaultConfig(root string) Config {
	return Config{
		ProjectRoot:    root,
		MaxFileChanges: 100,
	}
}

// MetaDir returns the directory holding the database file.
func (c Config) MetaDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return filepath.Join(c.ProjectRoot, MetaDirName)
}

// DBPath returns the database file location for c.
func (c Config) DBPath() string {
	return filepath.Join(c.MetaDir(), DBFileName)
}

// ─── Options ─────────────────────────────────────────────────────────────────

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the default UUID generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// ClearFunc deletes rows bound to projectID inside tx. Packages that add
// relations to the store's database register one so ClearAllMemory covers
// their tables too.
type ClearFunc func(ctx context.Context, tx *sql.Tx, projectID string) error

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the per-project memory store backed by SQLite.
type Store struct {
	cfg    Config
	hooks  storeHooks
	now    func() time.Time
	newID  func() string
	logger *slog.Logger

	mu       sync.RWMutex
	db       *sql.DB
	project  Project
	clearers []ClearFunc
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

type sqlRowScanner struct {
	rows *sql.Rows
}

func (r sqlRowScanner) Next() bool             { return r.rows.Next() }
func (r sqlRowScanner) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r sqlRowScanner) Err() error             { return r.rows.Err() }
func (r sqlRowScanner) Close() error           { return r.rows.Close() }

type storeHooks struct {
	exec    func(ctx context.Context, db execer, query string, args ...any) (sql.Result, error)
	queryIt func(ctx context.Context, db queryer, query string, args ...any) (rowScanner, error)
	beginTx func(ctx context.Context, db *sql.DB) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func defaultStoreHooks() storeHooks {
	return storeHooks{
		exec: func(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
			return db.ExecContext(ctx, query, args...)
		},
		queryIt: func(ctx context.Context, db queryer, query string, args ...any) (rowScanner, error) {
			rows, err := db.QueryContext(ctx, query, args...)
			if err != nil {
				return nil, err
			}
			return sqlRowScanner{rows: rows}, nil
		},
		beginTx: func(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
			return db.BeginTx(ctx, nil)
		},
		commit: func(tx *sql.Tx) error {
			return tx.Commit()
		},
	}
}

func (s *Store) execHook(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
	if s.hooks.exec != nil {
		return s.hooks.exec(ctx, db, query, args...)
	}
	return db.ExecContext(ctx, query, args...)
}

func (s *Store) queryItHook(ctx context.Context, db queryer, query string, args ...any) (rowScanner, error) {
	if s.hooks.queryIt != nil {
		return s.hooks.queryIt(ctx, db, query, args...)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRowScanner{rows: rows}, nil
}

func (s *Store) beginTxHook(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
	if s.hooks.beginTx != nil {
		return s.hooks.beginTx(ctx, db)
	}
	return db.BeginTx(ctx, nil)
}

func (s *Store) commitHook(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// New creates a Store for cfg. It performs no I/O; call Initialize before
// any other operation.
func New(cfg Config, opts ...Option) *Store {
	if cfg.MaxFileChanges <= 0 {
		cfg.MaxFileChanges = 100
	}
	s := &Store{
		cfg:    cfg,
		hooks:  defaultStoreHooks(),
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize creates the metadata directory and database file if absent,
// applies pragmas, runs migrations and upserts the project row. Calling
// it again on an initialized store is a no-op.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}

	root, err := filepath.Abs(s.cfg.ProjectRoot)
	if err != nil {
		return derrors.Storage("initialize", fmt.Errorf("resolve project root: %w", err))
	}

	if err := os.MkdirAll(s.cfg.MetaDir(), 0o700); err != nil {
		return derrors.Storage("initialize", fmt.Errorf("create data dir: %w", err))
	}

	db, err := openDB("sqlite", s.cfg.DBPath())
	if err != nil {
		return derrors.Storage("initialize", fmt.Errorf("open database: %w", err))
	}
	// One connection keeps pragmas and transactions on the same handle.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.execHook(ctx, db, p); err != nil {
			_ = db.Close()
			return derrors.Storage("initialize", fmt.Errorf("pragma %q: %w", p, err))
		}
	}

	if err := s.migrate(ctx, db); err != nil {
		_ = db.Close()
		return derrors.Storage("initialize", fmt.Errorf("migration: %w", err))
	}

	project, err := s.upsertProject(ctx, db, filepath.Clean(root))
	if err != nil {
		_ = db.Close()
		return derrors.Storage("initialize", fmt.Errorf("upsert project: %w", err))
	}

	s.db = db
	s.project = project
	s.logger.Info("memory store initialized",
		"project_id", project.ID, "path", s.cfg.DBPath())
	return nil
}

// Close closes the underlying database connection. The store returns to
// the uninitialized state.
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

// DB returns the database handle, or NotInitialized.
func (s *Store) DB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, derrors.NotInitialized("db")
	}
	return s.db, nil
}

// Now returns the store clock's current time in UTC.
func (s *Store) Now() time.Time {
	return s.now().UTC()
}

// NewID returns a fresh identifier from the store's generator.
func (s *Store) NewID() string {
	return s.newID()
}

// Logger returns the store's logger.
func (s *Store) Logger() *slog.Logger {
	return s.logger
}

// Config returns the configuration the store was created with.
func (s *Store) Config() Config {
	return s.cfg
}

// ProjectID returns the path-derived project id, or NotInitialized.
func (s *Store) ProjectID() (string, error) {
	_, id, err := s.session("project id")
	return id, err
}

// RegisterClear adds fn to the set run by ClearAllMemory.
func (s *Store) RegisterClear(fn ClearFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearers = append(s.clearers, fn)
}

// WithTx runs fn inside a transaction. It commits when fn returns nil and
// rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	db, err := s.DB()
	if err != nil {
		return err
	}
	tx, err := s.beginTxHook(ctx, db)
	if err != nil {
		return derrors.Storage(op, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return derrors.Storage(op, err)
	}
	if err := s.commitHook(tx); err != nil {
		return derrors.Storage(op, fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate(ctx context.Context, db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS projects (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			root_path      TEXT NOT NULL,
			created_at     TEXT NOT NULL,
			last_active_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			assistant  TEXT NOT NULL,
			timestamp  TEXT NOT NULL,
			context    TEXT,
			summary    TEXT,
			FOREIGN KEY (project_id) REFERENCES projects(id)
		);

		CREATE INDEX IF NOT EXISTS idx_conv_project ON conversations(project_id, timestamp);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			timestamp       TEXT NOT NULL,
			metadata        TEXT,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_msg_conversation ON messages(conversation_id);
		CREATE INDEX IF NOT EXISTS idx_msg_timestamp    ON messages(timestamp DESC);

		CREATE TABLE IF NOT EXISTS decisions (
			id             TEXT PRIMARY KEY,
			project_id     TEXT NOT NULL,
			decision       TEXT NOT NULL,
			rationale      TEXT NOT NULL,
			alternatives   TEXT NOT NULL DEFAULT '[]',
			impact         TEXT NOT NULL DEFAULT '[]',
			affected_files TEXT NOT NULL DEFAULT '[]',
			timestamp      TEXT NOT NULL,
			FOREIGN KEY (project_id) REFERENCES projects(id)
		);

		CREATE INDEX IF NOT EXISTS idx_dec_project ON decisions(project_id, timestamp DESC);

		CREATE TABLE IF NOT EXISTS file_changes (
			id              TEXT PRIMARY KEY,
			project_id      TEXT NOT NULL,
			file_path       TEXT NOT NULL,
			change_kind     TEXT NOT NULL,
			timestamp       TEXT NOT NULL,
			conversation_id TEXT,
			FOREIGN KEY (project_id) REFERENCES projects(id)
		);

		CREATE INDEX IF NOT EXISTS idx_fc_project ON file_changes(project_id, timestamp DESC);

		CREATE TABLE IF NOT EXISTS code_patterns (
			id         TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			pattern    TEXT NOT NULL,
			frequency  INTEGER NOT NULL DEFAULT 1,
			context    TEXT,
			created_at TEXT NOT NULL,
			FOREIGN KEY (project_id) REFERENCES projects(id)
		);

		CREATE INDEX IF NOT EXISTS idx_pat_project ON code_patterns(project_id, frequency DESC);
	`
	_, err := s.execHook(ctx, db, schema)
	return err
}

func (s *Store) upsertProject(ctx context.Context, db *sql.DB, root string) (Project, error) {
	now := FormatTime(s.Now())
	id := ProjectIDFor(root)
	if _, err := s.execHook(ctx, db,
		`INSERT INTO projects (id, name, root_path, created_at, last_active_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     name = excluded.name,
		     root_path = excluded.root_path`,
		id, filepath.Base(root), root, now, now,
	); err != nil {
		return Project{}, err
	}
	return s.loadProject(ctx, db, id)
}

func (s *Store) loadProject(ctx context.Context, db queryer, id string) (Project, error) {
	rows, err := s.queryItHook(ctx, db,
		`SELECT id, name, root_path, created_at, last_active_at FROM projects WHERE id = ?`, id)
	if err != nil {
		return Project{}, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Project{}, err
		}
		return Project{}, derrors.NotFound("project", id)
	}
	var (
		p                   Project
		created, lastActive string
	)
	if err := rows.Scan(&p.ID, &p.Name, &p.RootPath, &created, &lastActive); err != nil {
		return Project{}, err
	}
	p.CreatedAt = ParseTime(created)
	p.LastActiveAt = ParseTime(lastActive)
	return p, rows.Err()
}

// touchProject bumps the project's last-active timestamp.
func (s *Store) touchProject(ctx context.Context, db execer, projectID string, at time.Time) error {
	_, err := s.execHook(ctx, db,
		`UPDATE projects SET last_active_at = ? WHERE id = ?`, FormatTime(at), projectID)
	return err
}

// session returns the open handle and project id, or NotInitialized.
func (s *Store) session(op string) (*sql.DB, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, "", derrors.NotInitialized(op)
	}
	return s.db, s.project.ID, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime parses a stored timestamp. Malformed values yield the zero time.
func ParseTime(v string) time.Time {
	if t, err := time.Parse(timeLayout, v); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// ProjectIDFor derives the project id from an absolute root path.
func ProjectIDFor(root string) string {
	h := sha256.Sum256([]byte(filepath.Clean(root)))
	return hex.EncodeToString(h[:])[:16]
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableRaw(b []byte) *string {
	if len(b) == 0 {
		return nil
	}
	v := string(b)
	return &v
}

// Truncate shortens s to max runes and appends "..." when cut.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}

// ContainsFold reports whether substr occurs in s, ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
