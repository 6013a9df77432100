package describecache

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"scribe/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS descriptions (
    content_hash TEXT NOT NULL,
    producer     TEXT NOT NULL,
    description  TEXT NOT NULL,
    created_at   INTEGER NOT NULL,
    PRIMARY KEY (content_hash, producer)
);
`

// Stats summarizes cache contents.
type Stats struct {
	Entries   int
	Producers int
	Oldest    time.Time
	Newest    time.Time
}

// Cache is a sqlite-backed description store. A nil Cache is valid and
// behaves as a permanent miss, which keeps callers free of enabled checks.
type Cache struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open initializes or connects to the cache database at path.
func Open(path string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "describecache")

	if strings.TrimSpace(path) == "" {
		return nil, errors.New("cache path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Debug("description cache opened", logging.String("path", path))
	return &Cache{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Lookup returns the cached description for a content hash and producer.
func (c *Cache) Lookup(contentHash, producer string) (string, bool, error) {
	if c == nil || c.db == nil {
		return "", false, nil
	}
	if contentHash == "" || producer == "" {
		return "", false, nil
	}

	var description string
	err := c.db.QueryRow(
		"SELECT description FROM descriptions WHERE content_hash = ? AND producer = ?",
		contentHash, producer,
	).Scan(&description)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup description: %w", err)
	}
	return description, true, nil
}

// Store inserts or replaces the description for a content hash and producer.
func (c *Cache) Store(contentHash, producer, description string) error {
	if c == nil || c.db == nil {
		return nil
	}
	if contentHash == "" {
		return errors.New("content hash required")
	}
	if producer == "" {
		return errors.New("producer required")
	}

	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO descriptions (content_hash, producer, description, created_at) VALUES (?, ?, ?, ?)",
		contentHash, producer, description, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("store description: %w", err)
	}
	c.logger.Debug("cached description",
		logging.String("content_hash", contentHash),
		logging.String("producer", producer))
	return nil
}

// Stats reports entry counts and age bounds.
func (c *Cache) Stats() (Stats, error) {
	if c == nil || c.db == nil {
		return Stats{}, nil
	}

	var stats Stats
	row := c.db.QueryRow("SELECT COUNT(*), COUNT(DISTINCT producer) FROM descriptions")
	if err := row.Scan(&stats.Entries, &stats.Producers); err != nil {
		return Stats{}, fmt.Errorf("count descriptions: %w", err)
	}
	if stats.Entries == 0 {
		return stats, nil
	}

	var oldest, newest int64
	row = c.db.QueryRow("SELECT MIN(created_at), MAX(created_at) FROM descriptions")
	if err := row.Scan(&oldest, &newest); err != nil {
		return Stats{}, fmt.Errorf("age bounds: %w", err)
	}
	stats.Oldest = time.Unix(oldest, 0).UTC()
	stats.Newest = time.Unix(newest, 0).UTC()
	return stats, nil
}

// Clear removes every cached description.
func (c *Cache) Clear() error {
	if c == nil || c.db == nil {
		return nil
	}
	if _, err := c.db.Exec("DELETE FROM descriptions"); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	c.logger.Debug("description cache cleared")
	return nil
}
