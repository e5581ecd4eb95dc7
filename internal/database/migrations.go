package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration
type Migration struct {
	Version     int
	Description string
	Up          func(*sql.Tx) error
	Down        func(*sql.Tx) error
}

// migrations is the ordered list of all database migrations
var migrations = []Migration{
	{
		Version:     1,
		Description: "Create schema_version table",
		Up:          migration001Up,
		Down:        migration001Down,
	},
	{
		Version:     2,
		Description: "Create cycles table",
		Up:          migration002Up,
		Down:        migration002Down,
	},
	{
		Version:     3,
		Description: "Create account_runs, game_results and game_metrics tables",
		Up:          migration003Up,
		Down:        migration003Down,
	},
	{
		Version:     4,
		Description: "Create error_log table",
		Up:          migration004Up,
		Down:        migration004Down,
	},
}

// RunMigrations runs all pending database migrations
func (db *DB) RunMigrations() error {
	// Get current version
	currentVersion, err := db.getCurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	fmt.Printf("Current database version: %d\n", currentVersion)

	// Run pending migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		fmt.Printf("Running migration %d: %s\n", migration.Version, migration.Description)

		err := db.ExecTx(func(tx *sql.Tx) error {
			// Run migration
			if err := migration.Up(tx); err != nil {
				return fmt.Errorf("migration %d failed: %w", migration.Version, err)
			}

			// Record migration
			_, err := tx.Exec(`
				INSERT INTO schema_version (version, description, applied_at)
				VALUES (?, ?, ?)
			`, migration.Version, migration.Description, time.Now())

			return err
		})

		if err != nil {
			return err
		}

		fmt.Printf("Migration %d completed successfully\n", migration.Version)
	}

	fmt.Println("All migrations completed")
	return nil
}

// RollbackTo reverts applied migrations newer than target, newest first
func (db *DB) RollbackTo(target int) error {
	currentVersion, err := db.getCurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for i := len(migrations) - 1; i >= 0; i-- {
		migration := migrations[i]
		if migration.Version > currentVersion || migration.Version <= target {
			continue
		}
		// Version 1 owns schema_version and is never reverted
		if migration.Version == 1 {
			break
		}

		fmt.Printf("Reverting migration %d: %s\n", migration.Version, migration.Description)

		err := db.ExecTx(func(tx *sql.Tx) error {
			if err := migration.Down(tx); err != nil {
				return fmt.Errorf("revert of migration %d failed: %w", migration.Version, err)
			}
			_, err := tx.Exec(`DELETE FROM schema_version WHERE version = ?`, migration.Version)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// getCurrentVersion returns the current schema version
func (db *DB) getCurrentVersion() (int, error) {
	// Check if schema_version table exists
	var tableExists bool
	err := db.conn.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableExists)

	if err != nil {
		return 0, err
	}

	if !tableExists {
		return 0, nil
	}

	// Get latest version
	var version int
	err = db.conn.QueryRow(`
		SELECT COALESCE(MAX(version), 0)
		FROM schema_version
	`).Scan(&version)

	if err != nil {
		return 0, err
	}

	return version, nil
}

// Migration 001: Schema version tracking table
func migration001Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL UNIQUE,
			description TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	return err
}

func migration001Down(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS schema_version`)
	return err
}

// Migration 002: Cycles table
func migration002Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE cycles (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'running',
			active_accounts INTEGER NOT NULL DEFAULT 0,
			processed_accounts INTEGER NOT NULL DEFAULT 0,
			passes INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		);

		CREATE INDEX idx_cycles_started ON cycles(started_at);
		CREATE INDEX idx_cycles_status ON cycles(status);
	`)
	return err
}

func migration002Down(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS cycles`)
	return err
}

// Migration 003: Account runs and per-game results
func migration003Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE account_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id TEXT NOT NULL,
			pass INTEGER NOT NULL,
			account_id TEXT NOT NULL,
			username TEXT,
			status TEXT NOT NULL,
			reason TEXT,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			FOREIGN KEY (cycle_id) REFERENCES cycles(id) ON DELETE CASCADE
		);

		CREATE INDEX idx_account_runs_cycle ON account_runs(cycle_id);
		CREATE INDEX idx_account_runs_account ON account_runs(account_id, finished_at);

		CREATE TABLE game_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_run_id INTEGER NOT NULL,
			game TEXT NOT NULL,
			failure TEXT,
			FOREIGN KEY (account_run_id) REFERENCES account_runs(id) ON DELETE CASCADE
		);

		CREATE INDEX idx_game_results_run ON game_results(account_run_id);

		CREATE TABLE game_metrics (
			game_result_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			value INTEGER,
			PRIMARY KEY (game_result_id, name),
			FOREIGN KEY (game_result_id) REFERENCES game_results(id) ON DELETE CASCADE
		);
	`)
	return err
}

func migration003Down(tx *sql.Tx) error {
	_, err := tx.Exec(`
		DROP TABLE IF EXISTS game_metrics;
		DROP TABLE IF EXISTS game_results;
		DROP TABLE IF EXISTS account_runs;
	`)
	return err
}

// Migration 004: Error log
func migration004Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE error_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id TEXT,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			component TEXT NOT NULL,
			message TEXT NOT NULL,
			cause TEXT,
			occurred_at DATETIME NOT NULL
		);

		CREATE INDEX idx_error_log_occurred ON error_log(occurred_at);
		CREATE INDEX idx_error_log_severity ON error_log(severity);
	`)
	return err
}

func migration004Down(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS error_log`)
	return err
}
