package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates a SQLite database at the specified path
func Open(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(1) // SQLite works best with single connection
	conn.SetMaxIdleConns(1)

	db := &DB{
		conn: conn,
		path: dbPath,
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// ExecTx executes a function within a transaction
func (db *DB) ExecTx(fn func(*sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// GetVersion returns the current database schema version
func (db *DB) GetVersion() (int, error) {
	return db.getCurrentVersion()
}

// Backup writes a consistent copy of the database to backupPath
func (db *DB) Backup(backupPath string) error {
	if err := os.MkdirAll(filepath.Dir(backupPath), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	if _, err := os.Stat(backupPath); err == nil {
		return fmt.Errorf("backup target already exists: %s", backupPath)
	}
	if _, err := db.conn.Exec("VACUUM INTO ?", backupPath); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return nil
}

// PruneResult counts what Prune removed
type PruneResult struct {
	Cycles int64
	Errors int64
}

// Prune deletes finished cycles (with their runs and results) and error log
// entries older than cutoff, then compacts the file. Running cycles are kept.
func (db *DB) Prune(cutoff time.Time) (PruneResult, error) {
	var result PruneResult

	res, err := db.conn.Exec(`
		DELETE FROM cycles
		WHERE status != ? AND started_at < ?
	`, CycleRunning, cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to prune cycles: %w", err)
	}
	result.Cycles, _ = res.RowsAffected()

	if result.Errors, err = db.DeleteOldErrors(cutoff); err != nil {
		return result, err
	}

	if result.Cycles+result.Errors > 0 {
		if _, err := db.conn.Exec("VACUUM"); err != nil {
			return result, fmt.Errorf("failed to vacuum: %w", err)
		}
	}
	return result, nil
}

// GetStats returns database statistics
func (db *DB) GetStats() (map[string]int64, error) {
	stats := make(map[string]int64)

	tables := []string{
		"cycles",
		"account_runs",
		"game_results",
		"game_metrics",
		"error_log",
	}

	for _, table := range tables {
		var count int64
		err := db.conn.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			// Table might not exist yet, skip
			continue
		}
		stats[table] = count
	}

	return stats, nil
}
