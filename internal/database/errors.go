package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Error logging operations

// LogError creates a new error log entry. cycleID and cause may be empty.
func (db *DB) LogError(cycleID, category, severity, component, message string, cause error) (int64, error) {
	var cycle, causeText *string
	if cycleID != "" {
		cycle = &cycleID
	}
	if cause != nil {
		text := cause.Error()
		causeText = &text
	}

	var errorID int64
	err := db.ExecTx(func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			INSERT INTO error_log (
				cycle_id, category, severity, component, message, cause, occurred_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`, cycle, category, severity, component, message, causeText, time.Now())

		if err != nil {
			return fmt.Errorf("failed to insert error log: %w", err)
		}

		errorID, err = result.LastInsertId()
		return err
	})

	if err != nil {
		return 0, err
	}

	return errorID, nil
}

// GetRecentErrors returns the most recent errors, newest first
func (db *DB) GetRecentErrors(limit int) ([]*ErrorLog, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.conn.Query(`
		SELECT id, cycle_id, category, severity, component, message, cause, occurred_at
		FROM error_log
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?
	`, limit)

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	errors := []*ErrorLog{}
	for rows.Next() {
		errorLog := &ErrorLog{}
		err := rows.Scan(
			&errorLog.ID, &errorLog.CycleID, &errorLog.Category, &errorLog.Severity,
			&errorLog.Component, &errorLog.Message, &errorLog.Cause, &errorLog.OccurredAt,
		)
		if err != nil {
			return nil, err
		}
		errors = append(errors, errorLog)
	}

	return errors, rows.Err()
}

// GetErrorStatsBySeverity counts errors per severity since the given time
func (db *DB) GetErrorStatsBySeverity(since time.Time) (map[string]int, error) {
	rows, err := db.conn.Query(`
		SELECT severity, COUNT(*)
		FROM error_log
		WHERE occurred_at >= ?
		GROUP BY severity
	`, since)

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, err
		}
		stats[severity] = count
	}

	return stats, rows.Err()
}

// DeleteOldErrors removes error log entries older than the given time
func (db *DB) DeleteOldErrors(olderThan time.Time) (int64, error) {
	result, err := db.conn.Exec(`
		DELETE FROM error_log
		WHERE occurred_at < ?
	`, olderThan)

	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
