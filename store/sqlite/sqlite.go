// Package sqlite provides a durable store.TokenStore on SQLite
// (modernc.org/sqlite, no cgo).
//
// Connections are opened with production-safe pragmas:
//
//	foreign_keys = ON
//	journal_mode = WAL
//	busy_timeout = 10000
//	synchronous  = NORMAL
//
// Write transactions take the write lock up front (_txlock=immediate), so
// the checksum conflict check and the upsert are atomic across processes.
//
// Usage:
//
//	codec, _ := token.NewCodec(4)
//	st, err := sqlite.Open("products.db", codec)
//	defer st.Close()
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/otic/vision/feature"
	"github.com/otic/vision/store"
	"github.com/otic/vision/token"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	product_id    TEXT PRIMARY KEY,
	brand_name    TEXT NOT NULL,
	product_name  TEXT NOT NULL,
	price         INTEGER NOT NULL,
	checksum      INTEGER NOT NULL UNIQUE,
	token         BLOB NOT NULL,
	registered_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS product_buckets (
	bucket     INTEGER NOT NULL,
	product_id TEXT NOT NULL REFERENCES products(product_id) ON DELETE CASCADE,
	PRIMARY KEY (bucket, product_id)
) WITHOUT ROWID;
CREATE INDEX IF NOT EXISTS product_buckets_product ON product_buckets(product_id);
`

const selectColumns = `SELECT product_id, brand_name, product_name, price, token, registered_at FROM products`

type config struct {
	busyTimeout int
	cacheSize   int
	synchronous string
	mkdirAll    bool
}

func defaults() config {
	return config{
		busyTimeout: 10_000,
		synchronous: "NORMAL",
	}
}

// Option customises Open behaviour.
type Option func(*config)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithCacheSize sets PRAGMA cache_size. 0 (default) keeps the SQLite default.
// Negative values are KiB (e.g. -64000 = 64 MB).
func WithCacheSize(pages int) Option { return func(c *config) { c.cacheSize = pages } }

// WithSynchronous sets PRAGMA synchronous. Default: "NORMAL".
func WithSynchronous(mode string) Option { return func(c *config) { c.synchronous = mode } }

// WithMkdirAll creates parent directories of the database path before opening.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// Store is a TokenStore on an SQLite database. It is safe for concurrent use.
type Store struct {
	db    *sql.DB
	codec *token.Codec
}

var (
	_ store.TokenStore   = (*Store)(nil)
	_ store.BucketReader = (*Store)(nil)
)

// Open opens (and if needed creates) the database at path. Use ":memory:"
// for a private in-memory database.
func Open(path string, codec *token.Codec, opts ...Option) (*Store, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}

	memory := path == ":memory:"
	if cfg.mkdirAll && !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path, &cfg))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if memory {
		// Every connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}

	s, err := New(db, codec)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// dsn encodes the pragmas as modernc.org/sqlite connection parameters so
// every pooled connection gets them.
func dsn(path string, cfg *config) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.busyTimeout))
	q.Add("_pragma", fmt.Sprintf("synchronous(%s)", cfg.synchronous))
	if cfg.cacheSize != 0 {
		q.Add("_pragma", fmt.Sprintf("cache_size(%d)", cfg.cacheSize))
	}
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

// New wraps an open database and creates the schema if needed.
func New(db *sql.DB, codec *token.Codec) (*Store, error) {
	if codec == nil {
		return nil, fmt.Errorf("%w: nil token codec", feature.ErrInvalidInput)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("sqlite: exec schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Store{db: db, codec: codec}, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// ReadAll implements store.TokenStore.
func (s *Store) ReadAll(ctx context.Context) ([]store.ProductMatch, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY product_id`)
	if err != nil {
		return nil, s.wrap(ctx, "read all", err)
	}
	return s.collect(ctx, rows)
}

// ReadByBucket implements store.BucketReader. Every product is listed in
// product_buckets once per distinct bin of its spatial signature.
func (s *Store) ReadByBucket(ctx context.Context, bucket int) ([]store.ProductMatch, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
WHERE product_id IN (SELECT product_id FROM product_buckets WHERE bucket = ?)
ORDER BY product_id`, bucket)
	if err != nil {
		return nil, s.wrap(ctx, "read bucket", err)
	}
	return s.collect(ctx, rows)
}

// ReadByID implements store.TokenStore.
func (s *Store) ReadByID(ctx context.Context, productID string) (store.ProductMatch, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE product_id = ?`, productID)
	m, err := s.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ProductMatch{}, fmt.Errorf("%w: %s", store.ErrNotFound, productID)
	}
	if err != nil {
		return store.ProductMatch{}, s.wrap(ctx, "read by id", err)
	}
	return m, nil
}

// Write implements store.TokenStore.
func (s *Store) Write(ctx context.Context, m store.ProductMatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.ProductID == "" {
		return fmt.Errorf("%w: empty product id", feature.ErrInvalidInput)
	}
	if m.Token.Descriptor.Bins != s.codec.BinsPerChannel() {
		return fmt.Errorf("%w: token has %d bins per channel, store expects %d",
			feature.ErrInvalidInput, m.Token.Descriptor.Bins, s.codec.BinsPerChannel())
	}
	blob := s.codec.Marshal(m.Token)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap(ctx, "begin", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var owner string
	err = tx.QueryRowContext(ctx, `SELECT product_id FROM products WHERE checksum = ?`, int64(m.Token.Checksum)).Scan(&owner)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return s.wrap(ctx, "check checksum", err)
	case owner != m.ProductID:
		return fmt.Errorf("%w: checksum %08x belongs to %s", store.ErrConflict, m.Token.Checksum, owner)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO products (product_id, brand_name, product_name, price, checksum, token, registered_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(product_id) DO UPDATE SET
	brand_name    = excluded.brand_name,
	product_name  = excluded.product_name,
	price         = excluded.price,
	checksum      = excluded.checksum,
	token         = excluded.token,
	registered_at = excluded.registered_at`,
		m.ProductID, m.BrandName, m.ProductName, m.Price,
		int64(m.Token.Checksum), blob, m.RegisteredAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: checksum %08x: %v", store.ErrConflict, m.Token.Checksum, err)
		}
		return s.wrap(ctx, "upsert", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM product_buckets WHERE product_id = ?`, m.ProductID); err != nil {
		return s.wrap(ctx, "clear buckets", err)
	}
	for _, bucket := range m.Buckets() {
		_, err := tx.ExecContext(ctx, `INSERT INTO product_buckets (bucket, product_id) VALUES (?, ?)`, bucket, m.ProductID)
		if err != nil {
			return s.wrap(ctx, "file bucket", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return s.wrap(ctx, "commit", err)
	}
	return nil
}

// Delete removes a product. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, productID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap(ctx, "begin", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Databases handed to New may run without foreign_keys, so no cascade.
	if _, err := tx.ExecContext(ctx, `DELETE FROM product_buckets WHERE product_id = ?`, productID); err != nil {
		return s.wrap(ctx, "delete buckets", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE product_id = ?`, productID); err != nil {
		return s.wrap(ctx, "delete", err)
	}
	if err := tx.Commit(); err != nil {
		return s.wrap(ctx, "commit", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scan(row scanner) (store.ProductMatch, error) {
	var (
		m    store.ProductMatch
		blob []byte
		at   int64
	)
	if err := row.Scan(&m.ProductID, &m.BrandName, &m.ProductName, &m.Price, &blob, &at); err != nil {
		return store.ProductMatch{}, err
	}

	tok, err := s.codec.Decode(blob)
	if err != nil {
		return store.ProductMatch{}, fmt.Errorf("sqlite: product %s: %w", m.ProductID, err)
	}
	m.Token = tok
	m.RegisteredAt = time.Unix(0, at).UTC()
	return m, nil
}

func (s *Store) collect(ctx context.Context, rows *sql.Rows) ([]store.ProductMatch, error) {
	defer rows.Close()

	var out []store.ProductMatch
	for rows.Next() {
		m, err := s.scan(rows)
		if err != nil {
			return nil, s.wrap(ctx, "scan", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(ctx, "rows", err)
	}
	return out, nil
}

// wrap marks driver failures as store.ErrUnavailable. Corrupt tokens and
// context errors pass through.
func (s *Store) wrap(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, token.ErrCorruptToken) {
		return err
	}
	return fmt.Errorf("sqlite: %s: %w: %w", op, store.ErrUnavailable, err)
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint")
}
