// Package cache stores compiled chunks in SQLite, keyed by the content hash
// of the tree file they were compiled from. A hit skips decoding and
// compilation entirely.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chazu/marte/ast"
	"github.com/chazu/marte/compiler"
	"github.com/chazu/marte/vm"
	"github.com/tliron/commonlog"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

var log = commonlog.GetLogger("marte.cache")

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	key        TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	image      BLOB NOT NULL,
	created_at INTEGER NOT NULL
)`

// Key identifies one compilation: the tree bytes plus the entry parameters.
type Key [32]byte

// KeyOf hashes a tree file's bytes together with the entry parameter names
// and the image version.
func KeyOf(tree []byte, params []string) Key {
	h := sha256.New()
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(vm.ImageVersion))
	h.Write(n[:])
	binary.BigEndian.PutUint32(n[:], uint32(len(params)))
	h.Write(n[:])
	for _, p := range params {
		binary.BigEndian.PutUint32(n[:], uint32(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	h.Write(tree)
	var k Key
	h.Sum(k[:0])
	return k
}

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// Store is a chunk cache backed by a SQLite database file.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	// One writer at a time; SQLite serializes anyway.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}
	log.Debugf("opened %s", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Get returns the cached chunk for key. A row written by a different image
// version, or one that no longer decodes, is dropped and reported as a miss.
func (s *Store) Get(ctx context.Context, key Key) (*vm.Chunk, bool, error) {
	var (
		version int
		image   []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, image FROM chunks WHERE key = ?`, key.String()).Scan(&version, &image)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", key, err)
	}

	if version == int(vm.ImageVersion) {
		c, err := vm.UnmarshalChunk(image)
		if err == nil {
			return c, true, nil
		}
		log.Warningf("dropping unreadable entry %s: %s", key, err)
	}
	if err := s.Delete(ctx, key); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}

// Put stores chunk under key, replacing any existing entry.
func (s *Store) Put(ctx context.Context, key Key, chunk *vm.Chunk) error {
	image, err := chunk.MarshalBinary()
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chunks (key, version, image, created_at) VALUES (?, ?, ?, ?)`,
		key.String(), int(vm.ImageVersion), image, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", key, err)
	}
	return nil
}

// Delete removes the entry for key, if any.
func (s *Store) Delete(ctx context.Context, key Key) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE key = ?`, key.String()); err != nil {
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	return nil
}

// Purge removes entries created before cutoff and returns how many were
// removed. A zero cutoff removes everything.
func (s *Store) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if cutoff.IsZero() {
		res, err = s.db.ExecContext(ctx, `DELETE FROM chunks`)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM chunks WHERE created_at < ?`, cutoff.Unix())
	}
	if err != nil {
		return 0, fmt.Errorf("cache: purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache: purge: %w", err)
	}
	log.Debugf("purged %d entries", n)
	return n, nil
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries int64
	Bytes   int64
}

// Stats counts entries and their total image size.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(image)), 0) FROM chunks`).Scan(&st.Entries, &st.Bytes)
	if err != nil {
		return Stats{}, fmt.Errorf("cache: stats: %w", err)
	}
	return st, nil
}

// CompileFile returns the chunk for the tree file at path, compiling and
// storing it on a miss. The second result reports a cache hit.
func (s *Store) CompileFile(ctx context.Context, path string, params []string) (*vm.Chunk, bool, error) {
	tree, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("cannot read %s: %w", path, err)
	}
	key := KeyOf(tree, params)

	if c, ok, err := s.Get(ctx, key); err != nil {
		return nil, false, err
	} else if ok {
		log.Debugf("hit %s for %s", key, path)
		return c, true, nil
	}

	parsed, err := ast.DecodeBytes(tree)
	if err != nil {
		return nil, false, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c, err := compiler.Compile(parsed, compiler.WithParams(params...))
	if err != nil {
		return nil, false, err
	}
	if err := s.Put(ctx, key, c); err != nil {
		return nil, false, err
	}
	log.Debugf("stored %s for %s", key, path)
	return c, false, nil
}
