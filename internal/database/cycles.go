package database

import (
	"database/sql"
	"fmt"
	"time"
)

// StartCycle records the start of a cycle
func (db *DB) StartCycle(cycleID string, activeAccounts int) error {
	_, err := db.conn.Exec(`
		INSERT INTO cycles (id, status, active_accounts, started_at)
		VALUES (?, ?, ?, ?)
	`, cycleID, CycleRunning, activeAccounts, time.Now())

	if err != nil {
		return fmt.Errorf("failed to start cycle: %w", err)
	}
	return nil
}

// FinishCycle stores the final status of a cycle. cause may be nil.
func (db *DB) FinishCycle(cycleID, status string, passes, processed int, cause error) error {
	var message *string
	if cause != nil {
		text := cause.Error()
		message = &text
	}

	result, err := db.conn.Exec(`
		UPDATE cycles
		SET status = ?,
		    passes = ?,
		    processed_accounts = ?,
		    error_message = ?,
		    finished_at = ?
		WHERE id = ?
	`, status, passes, processed, message, time.Now(), cycleID)

	if err != nil {
		return fmt.Errorf("failed to finish cycle: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("cycle not found: %s", cycleID)
	}
	return nil
}

// GetCycle retrieves a cycle by ID
func (db *DB) GetCycle(cycleID string) (*CycleRecord, error) {
	row := db.conn.QueryRow(`
		SELECT id, status, active_accounts, processed_accounts, passes,
		       error_message, started_at, finished_at
		FROM cycles
		WHERE id = ?
	`, cycleID)

	cycle, err := scanCycle(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cycle not found: %s", cycleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle: %w", err)
	}
	return cycle, nil
}

// ListRecentCycles returns the newest cycles first
func (db *DB) ListRecentCycles(limit int) ([]*CycleRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(`
		SELECT id, status, active_accounts, processed_accounts, passes,
		       error_message, started_at, finished_at
		FROM cycles
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	defer rows.Close()

	var cycles []*CycleRecord
	for rows.Next() {
		cycle, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		cycles = append(cycles, cycle)
	}

	return cycles, rows.Err()
}

// MarkInterruptedCycles closes cycles left running by a previous process
func (db *DB) MarkInterruptedCycles() (int64, error) {
	result, err := db.conn.Exec(`
		UPDATE cycles
		SET status = ?,
		    error_message = 'interrupted',
		    finished_at = ?
		WHERE status = ?
	`, CycleAborted, time.Now(), CycleRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted cycles: %w", err)
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCycle(s scanner) (*CycleRecord, error) {
	var cycle CycleRecord
	var errorMessage sql.NullString
	var finishedAt sql.NullTime

	err := s.Scan(
		&cycle.ID,
		&cycle.Status,
		&cycle.ActiveAccounts,
		&cycle.ProcessedAccounts,
		&cycle.Passes,
		&errorMessage,
		&cycle.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	// Handle nullable fields
	if errorMessage.Valid {
		cycle.ErrorMessage = &errorMessage.String
	}
	if finishedAt.Valid {
		cycle.FinishedAt = &finishedAt.Time
	}
	return &cycle, nil
}
