// Package store keeps named models in a SQLite database.
//
// Each model is stored as its persisted text form, so a store is portable
// between machines and versions that share the model format. Decoded models
// are kept in a small LRU cache; since models are immutable the cached value
// is shared by every caller.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	sberrors "github.com/adalundhe/sabir/core/errors"
	"github.com/adalundhe/sabir/core/model"
	"github.com/adalundhe/sabir/core/storage"
)

// MemoryPath opens a private in-memory store.
const MemoryPath = ":memory:"

const defaultCacheSize = 8

// ErrNotFound is matched by errors.Is when a named model does not exist.
var ErrNotFound = errors.New("model not found")

const schema = `
CREATE TABLE IF NOT EXISTS models (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	ngram_size INTEGER NOT NULL,
	table_size INTEGER NOT NULL,
	languages TEXT NOT NULL,
	size INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS model_blobs (
	model_id TEXT PRIMARY KEY,
	body BLOB NOT NULL
);
`

// Info describes a stored model without decoding it.
type Info struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	NGramSize int       `json:"ngram_size"`
	TableSize int       `json:"table_size"`
	Languages []string  `json:"languages"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Options configures Open.
type Options struct {
	// CacheSize is the number of decoded models kept in memory.
	CacheSize int
	Logger    *slog.Logger
}

// Store is safe for concurrent use.
type Store struct {
	db     *sql.DB
	path   string
	cache  *lru.Cache[string, *model.Model]
	logger *slog.Logger

	// mu orders cache fills against writes; writes counts committed writes.
	mu     sync.Mutex
	writes uint64
}

// Open opens or creates the store at path. Open(MemoryPath, ...) returns a
// store that vanishes on Close.
func Open(path string, opts Options) (*Store, error) {
	const op = "store.Open"

	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if path != MemoryPath {
		if err := storage.EnsureDir(filepath.Dir(path), 0755); err != nil {
			return nil, sberrors.Input(op, "cannot create store directory", err).WithContext("path", path)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, sberrors.Input(op, "cannot open store", err).WithContext("path", path)
	}
	if path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, sberrors.Input(op, "cannot enable WAL", err).WithContext("path", path)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, sberrors.Input(op, "cannot set busy timeout", err).WithContext("path", path)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, sberrors.Input(op, "cannot create schema", err).WithContext("path", path)
	}

	cache, err := lru.New[string, *model.Model](opts.CacheSize)
	if err != nil {
		db.Close()
		return nil, sberrors.Config(op, "invalid cache size", err)
	}

	return &Store{db: db, path: path, cache: cache, logger: opts.Logger}, nil
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// Put stores m under name, replacing any model of that name.
func (s *Store) Put(ctx context.Context, name string, m *model.Model) (Info, error) {
	const op = "store.Put"

	if err := storage.ValidateModelName(name); err != nil {
		return Info{}, err
	}
	if m == nil {
		return Info{}, sberrors.Model(op, "nil model", nil)
	}

	var body bytes.Buffer
	if err := model.Save(&body, m); err != nil {
		return Info{}, sberrors.Model(op, "cannot encode model", err)
	}

	info := Info{
		ID:        uuid.NewString(),
		Name:      name,
		NGramSize: m.NGramSize(),
		TableSize: m.TableSize(),
		Languages: m.Languages(),
		Size:      int64(body.Len()),
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Info{}, dbErr(op, err, name)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM model_blobs WHERE model_id IN (SELECT id FROM models WHERE name = ?)`, name); err != nil {
		return Info{}, dbErr(op, err, name)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM models WHERE name = ?`, name); err != nil {
		return Info{}, dbErr(op, err, name)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO models (id, name, ngram_size, table_size, languages, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.Name, info.NGramSize, info.TableSize,
		strings.Join(info.Languages, " "), info.Size, info.CreatedAt.UnixMilli()); err != nil {
		return Info{}, dbErr(op, err, name)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO model_blobs (model_id, body) VALUES (?, ?)`, info.ID, body.Bytes()); err != nil {
		return Info{}, dbErr(op, err, name)
	}
	if err := tx.Commit(); err != nil {
		return Info{}, dbErr(op, err, name)
	}

	s.invalidate(name)
	s.logger.Info("model stored",
		slog.String("name", name),
		slog.String("id", info.ID),
		slog.Int64("bytes", info.Size))
	return info, nil
}

// Get returns the named model. A missing name matches ErrNotFound; a stored
// body that no longer decodes is a KindModel error.
func (s *Store) Get(ctx context.Context, name string) (*model.Model, error) {
	const op = "store.Get"

	if m, ok := s.cache.Get(name); ok {
		return m, nil
	}
	since := s.writeCount()

	var body []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT b.body FROM model_blobs b JOIN models m ON m.id = b.model_id
		WHERE m.name = ?`, name).Scan(&body)
	if err != nil {
		return nil, dbErr(op, err, name)
	}

	m, err := model.Load(bytes.NewReader(body))
	if err != nil {
		return nil, sberrors.Wrap(sberrors.KindModel, op, "stored model is corrupt", err)
	}
	s.remember(name, m, since)
	return m, nil
}

func (s *Store) writeCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// remember caches m under name unless a write committed after since, in which
// case m may already be stale.
func (s *Store) remember(name string, m *model.Model, since uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writes == since {
		s.cache.Add(name, m)
	}
}

// invalidate drops name from the cache after a committed write.
func (s *Store) invalidate(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.cache.Remove(name)
}

// Info describes the named model.
func (s *Store) Info(ctx context.Context, name string) (Info, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, ngram_size, table_size, languages, size, created_at
		FROM models WHERE name = ?`, name)
	info, err := scanInfo(row)
	if err != nil {
		return Info{}, dbErr("store.Info", err, name)
	}
	return info, nil
}

// List describes every stored model ordered by name.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	const op = "store.List"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, ngram_size, table_size, languages, size, created_at
		FROM models ORDER BY name`)
	if err != nil {
		return nil, dbErr(op, err, "")
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, dbErr(op, err, "")
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr(op, err, "")
	}
	return out, nil
}

// Delete removes the named model. A missing name matches ErrNotFound.
func (s *Store) Delete(ctx context.Context, name string) error {
	const op = "store.Delete"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr(op, err, name)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM model_blobs WHERE model_id IN (SELECT id FROM models WHERE name = ?)`, name); err != nil {
		return dbErr(op, err, name)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM models WHERE name = ?`, name)
	if err != nil {
		return dbErr(op, err, name)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return dbErr(op, sql.ErrNoRows, name)
	}
	if err := tx.Commit(); err != nil {
		return dbErr(op, err, name)
	}

	s.invalidate(name)
	s.logger.Info("model deleted", slog.String("name", name))
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.cache.Purge()
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInfo(sc scanner) (Info, error) {
	var (
		info    Info
		langs   string
		created int64
	)
	if err := sc.Scan(&info.ID, &info.Name, &info.NGramSize, &info.TableSize, &langs, &info.Size, &created); err != nil {
		return Info{}, err
	}
	info.Languages = strings.Fields(langs)
	info.CreatedAt = time.UnixMilli(created).UTC()
	return info, nil
}

func dbErr(op string, err error, name string) error {
	if errors.Is(err, sql.ErrNoRows) {
		e := sberrors.Input(op, "no such model", ErrNotFound)
		if name != "" {
			e = e.WithContext("name", name)
		}
		return e
	}
	if ctxErr := contextErr(err); ctxErr != nil {
		return ctxErr
	}
	e := sberrors.Input(op, "store query failed", err)
	if name != "" {
		e = e.WithContext("name", name)
	}
	return e
}

func contextErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// Exists reports whether the store file exists, without creating it.
func Exists(path string) bool {
	if path == MemoryPath {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
