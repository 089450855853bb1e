// Package imagestore keeps compiled program images in SQLite, keyed by
// their content hash, plus a cache from transcript keys to images.
package imagestore

import (
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chazu/quadra/image"
)

// ErrNotFound indicates the requested image doesn't exist.
var ErrNotFound = errors.New("image not found")

// Store handles SQLite storage for images.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Entry describes one stored image.
type Entry struct {
	Hash      [32]byte
	Name      string
	Quads     int
	Size      int64
	CreatedAt time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS images (
	hash       TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	data       BLOB NOT NULL,
	quads      INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sources (
	key   TEXT PRIMARY KEY,
	image TEXT NOT NULL REFERENCES images(hash) ON DELETE CASCADE
);
`

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Pragmas are per connection; keep exactly one.
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores an image and returns its hash. Storing the same image twice
// is a no-op.
func (s *Store) Put(p *image.Program) ([32]byte, error) {
	data, err := image.Marshal(p)
	if err != nil {
		return [32]byte{}, err
	}
	h := sha256.Sum256(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT OR IGNORE INTO images (hash, name, data, quads, created_at) VALUES (?, ?, ?, ?, ?)`,
		image.HashString(h), p.Name, data, len(p.Quads), time.Now().UnixNano(),
	)
	if err != nil {
		return [32]byte{}, fmt.Errorf("storing image %s: %w", image.HashString(h), err)
	}
	return h, nil
}

// Get loads the image with hash h. The stored bytes are re-hashed before
// decoding.
func (s *Store) Get(h [32]byte) (*image.Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	err := s.db.QueryRow(`SELECT data FROM images WHERE hash = ?`, image.HashString(h)).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", image.HashString(h), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading image: %w", err)
	}
	if sha256.Sum256(data) != h {
		return nil, fmt.Errorf("image %s is corrupt", image.HashString(h))
	}
	return image.Unmarshal(data)
}

// Has reports whether an image with hash h is stored.
func (s *Store) Has(h [32]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM images WHERE hash = ?`, image.HashString(h)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking image: %w", err)
	}
	return n > 0, nil
}

// Delete removes an image and any cache keys pointing at it.
func (s *Store) Delete(h [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM images WHERE hash = ?`, image.HashString(h))
	if err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", image.HashString(h), ErrNotFound)
	}
	return nil
}

// List returns all stored images, newest first.
func (s *Store) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT hash, name, quads, length(data), created_at FROM images ORDER BY created_at DESC, hash`)
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			hash    string
			e       Entry
			created int64
		)
		if err := rows.Scan(&hash, &e.Name, &e.Quads, &e.Size, &created); err != nil {
			return nil, fmt.Errorf("scanning image row: %w", err)
		}
		if e.Hash, err = image.ParseHash(hash); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(0, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ---------------------------------------------------------------------------
// Compile cache
// ---------------------------------------------------------------------------

// SourceKey derives a cache key from transcript bytes and anything else
// that influences the compiled output, such as optimizer settings.
func SourceKey(source []byte, salt ...string) string {
	h := sha256.New()
	h.Write(source)
	for _, s := range salt {
		h.Write([]byte{0})
		h.Write([]byte(s))
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return image.HashString(sum)
}

// Remember records that key compiles to the stored image h.
func (s *Store) Remember(key string, h [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO sources (key, image) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET image = excluded.image`,
		key, image.HashString(h),
	)
	if err != nil {
		return fmt.Errorf("caching %s: %w", key, err)
	}
	return nil
}

// Lookup returns the image cached for key. ok is false on a cache miss.
func (s *Store) Lookup(key string) (p *image.Program, ok bool, err error) {
	s.mu.Lock()
	var hash string
	err = s.db.QueryRow(`SELECT image FROM sources WHERE key = ?`, key).Scan(&hash)
	s.mu.Unlock()

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("looking up %s: %w", key, err)
	}
	h, err := image.ParseHash(hash)
	if err != nil {
		return nil, false, err
	}
	p, err = s.Get(h)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}
