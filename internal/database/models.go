package database

import "time"

// Cycle statuses
const (
	CycleRunning   = "running"
	CycleCompleted = "completed"
	CycleAbandoned = "abandoned"
	CycleAborted   = "aborted"
)

// Account run statuses
const (
	RunProcessed = "processed"
	RunFailed    = "failed"
)

// CycleRecord is one orchestration cycle
type CycleRecord struct {
	ID                string     `db:"id"`
	Status            string     `db:"status"`
	ActiveAccounts    int        `db:"active_accounts"`
	ProcessedAccounts int        `db:"processed_accounts"`
	Passes            int        `db:"passes"`
	ErrorMessage      *string    `db:"error_message"`
	StartedAt         time.Time  `db:"started_at"`
	FinishedAt        *time.Time `db:"finished_at"`
}

// AccountRun is one account's visit during one pass
type AccountRun struct {
	ID         int64       `db:"id"`
	CycleID    string      `db:"cycle_id"`
	Pass       int         `db:"pass"`
	AccountID  string      `db:"account_id"`
	Username   string      `db:"username"`
	Status     string      `db:"status"`
	Reason     *string     `db:"reason"`
	StartedAt  time.Time   `db:"started_at"`
	FinishedAt time.Time   `db:"finished_at"`
	Games      []GameEntry `db:"-"`
}

// GameEntry is the stored outcome of one game on one account run.
// A nil metric value is a metric the game could not read.
type GameEntry struct {
	Game    string
	Failure string
	Metrics map[string]*int64
}

// ErrorLog is a persisted error report
type ErrorLog struct {
	ID         int64     `db:"id"`
	CycleID    *string   `db:"cycle_id"`
	Category   string    `db:"category"`
	Severity   string    `db:"severity"`
	Component  string    `db:"component"`
	Message    string    `db:"message"`
	Cause      *string   `db:"cause"`
	OccurredAt time.Time `db:"occurred_at"`
}
