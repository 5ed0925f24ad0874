package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS run_records (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			execution_id VARCHAR(64) NOT NULL,
			session_id VARCHAR(255) NOT NULL,
			start_node VARCHAR(255) NOT NULL,
			status VARCHAR(16) NOT NULL,
			start_time BIGINT NOT NULL,
			duration_ms BIGINT NOT NULL,
			record JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY unique_execution (execution_id),
			INDEX idx_session (session_id),
			INDEX idx_start (start_time)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	},
	upsert: `INSERT INTO run_records
		(execution_id, session_id, start_node, status, start_time, duration_ms, record)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			duration_ms = VALUES(duration_ms),
			record = VALUES(record)`,
}

// MySQLArchive stores records in MySQL.
type MySQLArchive struct {
	*sqlArchive
}

// NewMySQLArchive connects with dsn, for example
// "user:pass@tcp(localhost:3306)/reviews".
func NewMySQLArchive(dsn string) (*MySQLArchive, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	base, err := newSQLArchive(ctx, db, mysqlDialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &MySQLArchive{sqlArchive: base}, nil
}
