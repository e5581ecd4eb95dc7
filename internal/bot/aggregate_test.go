package bot

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jordanella.com/tapfarm/internal/accounts"
	"jordanella.com/tapfarm/internal/games"
)

func result(game games.Game, after int64) games.Result {
	return games.Result{
		Game:    game,
		Metrics: map[string]games.Amount{games.MetricBalanceAfter: games.Known(after)},
	}
}

func TestGroupByGame(t *testing.T) {
	results := []AccountResult{
		{AccountID: "4", Username: "dora", Result: result(games.Hamster, 1)},
		{AccountID: "4", Username: "dora", Result: result(games.Blum, 2)},
		{AccountID: "7", Username: "gus", Result: result(games.Hamster, 3)},
		{AccountID: "9", Username: "ivy", Result: result(games.Hamster, 4)},
	}

	tables := GroupByGame(results)
	require.Len(t, tables, 2)

	assert.Equal(t, games.Hamster, tables[0].Game)
	require.Len(t, tables[0].Rows, 3)
	for i, row := range tables[0].Rows {
		assert.Equal(t, i+1, row.Number)
	}
	assert.Equal(t, "7", tables[0].Rows[1].Account)
	assert.Equal(t, "gus", tables[0].Rows[1].User)

	assert.Equal(t, games.Blum, tables[1].Game)
	require.Len(t, tables[1].Rows, 1)
	assert.Equal(t, 1, tables[1].Rows[0].Number)
	assert.Equal(t, games.Known(2), tables[1].Rows[0].Metrics[games.MetricBalanceAfter])

	assert.Empty(t, GroupByGame(nil))
}

func TestSummaryText(t *testing.T) {
	want := "🎮 Game Results Summary:\r\n\r\n" +
		"- Processed accounts (2): 12 | 5\r\n\r\n" +
		"- 📂 Detailed reports are being sent as CSV files."
	assert.Equal(t, want, SummaryText([]string{"12", "5"}))

	assert.Contains(t, SummaryText(nil), "- Processed accounts (0): \r\n")
}

func TestAbandonedAndAbortedText(t *testing.T) {
	assert.Equal(t, "⚠️ Cycle abandoned after 5 passes. Unprocessed accounts (2): 3 | 8",
		AbandonedText(5, []string{"3", "8"}))
	assert.Equal(t, "😫 boom", AbortedText(errors.New("boom")))
}

func TestErrorStatsText(t *testing.T) {
	assert.Empty(t, ErrorStatsText(map[string]int{"total": 0}))

	stats := map[string]int{
		"total":             3,
		"severity_high":     2,
		"category_session":  2,
		"category_game":     1,
		"category_network":  0,
		"non_recoverable":   0,
		"severity_critical": 0,
	}
	assert.Equal(t, "📊 Errors this cycle: 3 (game: 1, session: 2)", ErrorStatsText(stats))
}

func TestStatusText(t *testing.T) {
	started := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	running := StatusText(Status{
		Running:   true,
		CycleID:   "abc",
		Pass:      2,
		Processed: 3,
		Active:    5,
		Account:   "11",
		StartedAt: started,
	})
	assert.Contains(t, running, "<code>abc</code> running since 09:30:00")
	assert.Contains(t, running, "Pass 2, processed 3/5, now on #11")

	idle := StatusText(Status{LastStatus: CycleCompleted, LastFinished: started})
	assert.Equal(t, "⏸ Idle\r\nLast cycle: completed at 2024-05-01 09:30:00", idle)
}

func TestCycleMarkProcessed(t *testing.T) {
	accs := []*accounts.Account{
		{ID: "1", Active: true},
		{ID: "2", Active: true},
		{ID: "3"},
	}
	c := newCycle("c", accs)
	assert.Equal(t, 2, c.Active)

	assert.False(t, c.MarkProcessed(accs[0], nil), "no results")
	assert.Equal(t, 0, c.ProcessedCount())

	assert.True(t, c.MarkProcessed(accs[0], []games.Result{result(games.Blum, 1)}))
	assert.False(t, c.MarkProcessed(accs[0], []games.Result{result(games.Blum, 1)}), "already processed")
	assert.Equal(t, 1, c.ProcessedCount())
	assert.Len(t, c.Results(), 1)
	assert.False(t, c.Done())
	assert.Equal(t, []string{"2"}, c.Unprocessed(accs))

	assert.True(t, c.MarkProcessed(accs[1], []games.Result{result(games.Iceberg, 1)}))
	assert.True(t, c.Done())
	assert.Equal(t, []string{"1", "2"}, c.Processed())
}
