package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"go.uber.org/zap"
)

var mysqlDialect = dialect{
	name: "mysql",
	upsert: `
		INSERT INTO kv_store (bucket, item_key, item_value, updated_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			item_value = VALUES(item_value),
			updated_at = VALUES(updated_at)`,
	get:    `SELECT item_value FROM kv_store WHERE bucket = ? AND item_key = ?`,
	delete: `DELETE FROM kv_store WHERE bucket = ? AND item_key = ?`,
	list:   `SELECT item_key, item_value, updated_at FROM kv_store WHERE bucket = ? ORDER BY item_key`,
}

// NewMySQLKV connects to MySQL and creates the kv_store table if needed.
func NewMySQLKV(dsn string, logger *zap.Logger) (KV, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS kv_store (
		bucket VARCHAR(64) NOT NULL,
		item_key VARCHAR(191) NOT NULL,
		item_value LONGBLOB NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (bucket, item_key)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if logger != nil {
		logger.Info("mysql kv store ready")
	}
	return &sqlKV{db: db, dialect: mysqlDialect}, nil
}
