package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

var sqliteDialect = dialect{
	name: "sqlite",
	upsert: `
		INSERT INTO kv_store (bucket, item_key, item_value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(bucket, item_key) DO UPDATE SET
			item_value = excluded.item_value,
			updated_at = excluded.updated_at`,
	get:    `SELECT item_value FROM kv_store WHERE bucket = ? AND item_key = ?`,
	delete: `DELETE FROM kv_store WHERE bucket = ? AND item_key = ?`,
	list:   `SELECT item_key, item_value, updated_at FROM kv_store WHERE bucket = ? ORDER BY item_key`,
}

// NewSQLiteKV opens (and creates) a SQLite key/value store.
// dbPath is the path to the SQLite database file (e.g., "./data/accounts.db").
func NewSQLiteKV(dbPath string, logger *zap.Logger) (KV, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite dir: %w", err)
		}
	}

	// Open with WAL mode and other optimizations
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS kv_store (
		bucket TEXT NOT NULL,
		item_key TEXT NOT NULL,
		item_value BLOB NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (bucket, item_key)
	);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if logger != nil {
		logger.Info("sqlite kv store ready", zap.String("path", dbPath))
	}
	return &sqlKV{db: db, dialect: sqliteDialect, writeMu: &sync.Mutex{}}, nil
}
