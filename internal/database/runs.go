package database

import (
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// RecordAccountRun stores one account visit together with its game results
func (db *DB) RecordAccountRun(run *AccountRun) (int64, error) {
	var runID int64
	err := db.ExecTx(func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			INSERT INTO account_runs (
				cycle_id, pass, account_id, username, status, reason,
				started_at, finished_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, run.CycleID, run.Pass, run.AccountID, run.Username, run.Status, run.Reason,
			run.StartedAt, run.FinishedAt)
		if err != nil {
			return fmt.Errorf("failed to insert account run: %w", err)
		}

		runID, err = result.LastInsertId()
		if err != nil {
			return err
		}

		for _, game := range run.Games {
			if err := insertGameEntry(tx, runID, game); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return 0, err
	}

	run.ID = runID
	return runID, nil
}

func insertGameEntry(tx *sql.Tx, runID int64, game GameEntry) error {
	var failure *string
	if game.Failure != "" {
		failure = &game.Failure
	}

	result, err := tx.Exec(`
		INSERT INTO game_results (account_run_id, game, failure)
		VALUES (?, ?, ?)
	`, runID, game.Game, failure)
	if err != nil {
		return fmt.Errorf("failed to insert game result: %w", err)
	}

	resultID, err := result.LastInsertId()
	if err != nil {
		return err
	}

	for name, value := range game.Metrics {
		_, err := tx.Exec(`
			INSERT INTO game_metrics (game_result_id, name, value)
			VALUES (?, ?, ?)
		`, resultID, name, value)
		if err != nil {
			return fmt.Errorf("failed to insert metric %s: %w", name, err)
		}
	}
	return nil
}

// GetCycleRuns returns every account run of a cycle in insertion order, with games
func (db *DB) GetCycleRuns(cycleID string) ([]*AccountRun, error) {
	rows, err := db.conn.Query(`
		SELECT id, cycle_id, pass, account_id, username, status, reason,
		       started_at, finished_at
		FROM account_runs
		WHERE cycle_id = ?
		ORDER BY id
	`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle runs: %w", err)
	}

	var runs []*AccountRun
	for rows.Next() {
		run, err := scanAccountRun(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan account run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating account runs: %w", err)
	}
	rows.Close()

	// Games are loaded after the cursor is closed; the pool holds one connection
	for _, run := range runs {
		games, err := db.getGameEntries(run.ID)
		if err != nil {
			return nil, err
		}
		run.Games = games
	}
	return runs, nil
}

func (db *DB) getGameEntries(runID int64) ([]GameEntry, error) {
	rows, err := db.conn.Query(`
		SELECT r.id, r.game, r.failure, m.name, m.value
		FROM game_results r
		LEFT JOIN game_metrics m ON m.game_result_id = r.id
		WHERE r.account_run_id = ?
		ORDER BY r.id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get game results: %w", err)
	}
	defer rows.Close()

	var (
		entries []GameEntry
		lastID  int64 = -1
	)
	for rows.Next() {
		var (
			id      int64
			game    string
			failure sql.NullString
			name    sql.NullString
			value   sql.NullInt64
		)
		if err := rows.Scan(&id, &game, &failure, &name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan game result: %w", err)
		}

		if id != lastID {
			entries = append(entries, GameEntry{
				Game:    game,
				Failure: failure.String,
				Metrics: make(map[string]*int64),
			})
			lastID = id
		}
		if !name.Valid {
			continue
		}
		current := &entries[len(entries)-1]
		if value.Valid {
			v := value.Int64
			current.Metrics[name.String] = &v
		} else {
			current.Metrics[name.String] = nil
		}
	}

	return entries, rows.Err()
}

// AccountSummary aggregates the run history of one account
type AccountSummary struct {
	AccountID     string
	Processed     int
	Failed        int
	LastProcessed *time.Time
}

// GetAccountSummaries returns per-account counters since the given time, ordered by account id
func (db *DB) GetAccountSummaries(since time.Time) ([]AccountSummary, error) {
	rows, err := db.conn.Query(`
		SELECT account_id, status, finished_at
		FROM account_runs
		WHERE finished_at >= ?
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get account summaries: %w", err)
	}
	defer rows.Close()

	byAccount := make(map[string]*AccountSummary)
	for rows.Next() {
		var (
			accountID  string
			status     string
			finishedAt time.Time
		)
		if err := rows.Scan(&accountID, &status, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account run: %w", err)
		}

		summary, ok := byAccount[accountID]
		if !ok {
			summary = &AccountSummary{AccountID: accountID}
			byAccount[accountID] = summary
		}
		switch status {
		case RunProcessed:
			summary.Processed++
			if summary.LastProcessed == nil || finishedAt.After(*summary.LastProcessed) {
				t := finishedAt
				summary.LastProcessed = &t
			}
		default:
			summary.Failed++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	summaries := make([]AccountSummary, 0, len(byAccount))
	for _, s := range byAccount {
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].AccountID < summaries[j].AccountID
	})
	return summaries, nil
}

func scanAccountRun(s scanner) (*AccountRun, error) {
	var run AccountRun
	var username, reason sql.NullString

	err := s.Scan(
		&run.ID,
		&run.CycleID,
		&run.Pass,
		&run.AccountID,
		&username,
		&run.Status,
		&reason,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Username = username.String
	if reason.Valid {
		run.Reason = &reason.String
	}
	return &run, nil
}
