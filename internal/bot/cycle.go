package bot

import (
	"time"

	"jordanella.com/tapfarm/internal/accounts"
	"jordanella.com/tapfarm/internal/games"
)

// CycleStatus is how a cycle ended
type CycleStatus string

const (
	// CycleCompleted means every active account produced results
	CycleCompleted CycleStatus = "completed"
	// CycleAbandoned means the pass cap was hit with accounts still pending
	CycleAbandoned CycleStatus = "abandoned"
	// CycleAborted means a pass could not start, or the context ended
	CycleAborted CycleStatus = "aborted"
)

// AccountResult is one game result tagged with the account that produced it
type AccountResult struct {
	AccountID string
	Username  string
	Result    games.Result
}

// Cycle is the state of one orchestration cycle. It is owned by the
// goroutine running the cycle and needs no locking.
type Cycle struct {
	ID        string
	StartedAt time.Time
	Pass      int
	Active    int

	processed map[string]bool
	order     []string
	results   []AccountResult
}

func newCycle(id string, accs []*accounts.Account) *Cycle {
	return &Cycle{
		ID:        id,
		StartedAt: time.Now(),
		Active:    accounts.ActiveCount(accs),
		processed: make(map[string]bool),
	}
}

// IsProcessed reports whether the account already produced results this cycle
func (c *Cycle) IsProcessed(accountID string) bool {
	return c.processed[accountID]
}

// MarkProcessed records an account's results. An account with no results
// is not marked, and an account is only ever marked once.
func (c *Cycle) MarkProcessed(acc *accounts.Account, results []games.Result) bool {
	if len(results) == 0 || c.processed[acc.ID] {
		return false
	}
	c.processed[acc.ID] = true
	c.order = append(c.order, acc.ID)
	for _, r := range results {
		c.results = append(c.results, AccountResult{
			AccountID: acc.ID,
			Username:  acc.Username,
			Result:    r,
		})
	}
	return true
}

// ProcessedCount returns how many accounts produced results
func (c *Cycle) ProcessedCount() int {
	return len(c.order)
}

// Processed returns processed account ids in completion order
func (c *Cycle) Processed() []string {
	return append([]string(nil), c.order...)
}

// Results returns all tagged results in completion order
func (c *Cycle) Results() []AccountResult {
	return append([]AccountResult(nil), c.results...)
}

// Done reports whether every active account has been processed
func (c *Cycle) Done() bool {
	return len(c.order) >= c.Active
}

// Unprocessed lists active accounts that have not produced results, in input order
func (c *Cycle) Unprocessed(accs []*accounts.Account) []string {
	var ids []string
	for _, a := range accs {
		if a.Active && !c.processed[a.ID] {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// Outcome is what RunCycle reports back to the scheduler
type Outcome struct {
	CycleID     string
	Status      CycleStatus
	Passes      int
	Active      int
	Processed   []string
	Unprocessed []string
	Results     []AccountResult
	Duration    time.Duration
	Err         error
}

// Status is a point-in-time view of the orchestrator for chat commands
type Status struct {
	Running   bool
	CycleID   string
	Pass      int
	Processed int
	Active    int
	Account   string
	StartedAt time.Time

	LastStatus   CycleStatus
	LastFinished time.Time
}
