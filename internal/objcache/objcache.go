// Package objcache caches compiled objects keyed by the expression
// text and the image shape/stride tuple that produced them, since
// compileEval is deterministic and compilation is the expensive step.
package objcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"pixc/internal/image"
)

// Cache is a compiled-object store backed by any of the registered
// database/sql drivers, selected by the DSN's scheme prefix.
type Cache struct {
	db *sql.DB
}

// Open connects to the store named by dsn and ensures its schema
// exists. The DSN's scheme prefix picks the driver, matching
// internal/database's blank-import registration pattern:
//
//	sqlite://path/to/file.db   (default when no scheme is present)
//	postgres://...
//	mysql://...
//	sqlserver://...
//
// The schema created by migrate, and the statements in Get and Put, are
// written in SQLite's dialect (BLOB column, TEXT primary key, ON
// CONFLICT upsert); they are not rewritten for the other drivers.
func Open(dsn string) (*Cache, error) {
	driver, dataSource := splitDSN(dsn)

	conn, err := sql.Open(driver, dataSource)
	if err != nil {
		return nil, fmt.Errorf("objcache: open %s: %w", driver, err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("objcache: ping %s: %w", driver, err)
	}

	c := &Cache{db: conn}
	if err := c.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func splitDSN(dsn string) (driver, dataSource string) {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return "sqlite", dsn
	}
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return "postgres", dsn
	case "mysql":
		return "mysql", rest
	case "sqlserver", "mssql":
		return "sqlserver", dsn
	default:
		return "sqlite", rest
	}
}

func (c *Cache) migrate() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS compiled_objects (
			cache_key TEXT PRIMARY KEY,
			object    BLOB NOT NULL
		)
	`)
	return err
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error { return c.db.Close() }

// Key derives the cache key for one (expression, shape, strides)
// combination: a dimension change is a fresh key, never a patched
// recompilation.
func Key(expr string, img *image.Buffer) string {
	h := sha256.New()
	h.Write([]byte(expr))
	for _, field := range []int{
		img.Width, img.Height, img.Frames, img.Channels,
		img.XStride, img.YStride, img.TStride, img.CStride,
	} {
		h.Write([]byte(strconv.Itoa(field)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get and Put use `?` placeholders, matching modernc.org/sqlite (the
// default driver); lib/pq's `$1` positional syntax needs a rewritten
// query string, not handled here since sqlite is what pixc ships with.

// Get returns the cached object for key, if present.
func (c *Cache) Get(ctx context.Context, key string) (object []byte, found bool, err error) {
	row := c.db.QueryRowContext(ctx, `SELECT object FROM compiled_objects WHERE cache_key = ?`, key)
	if err := row.Scan(&object); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return object, true, nil
}

// Put stores object under key, replacing any prior entry.
func (c *Cache) Put(ctx context.Context, key string, object []byte) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO compiled_objects (cache_key, object) VALUES (?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET object = excluded.object
	`, key, object)
	return err
}
