package bot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"jordanella.com/tapfarm/internal/games"
	"jordanella.com/tapfarm/internal/report"
)

// GroupByGame splits results into one table per game, in order of first
// appearance, numbering each game's rows from 1.
func GroupByGame(results []AccountResult) []report.Table {
	var tables []report.Table
	index := make(map[games.Game]int)

	for _, r := range results {
		game := r.Result.Game
		i, ok := index[game]
		if !ok {
			i = len(tables)
			index[game] = i
			tables = append(tables, report.Table{Game: game})
		}

		t := &tables[i]
		t.Rows = append(t.Rows, report.Row{
			Number:  len(t.Rows) + 1,
			Account: r.AccountID,
			User:    r.Username,
			Metrics: r.Result.Metrics,
		})
	}
	return tables
}

// SummaryText is the message sent after every pass
func SummaryText(processed []string) string {
	var b strings.Builder
	b.WriteString("🎮 Game Results Summary:\r\n\r\n")
	fmt.Fprintf(&b, "- Processed accounts (%d): %s", len(processed), strings.Join(processed, " | "))
	b.WriteString("\r\n\r\n- 📂 Detailed reports are being sent as CSV files.")
	return strings.TrimSpace(b.String())
}

// AbandonedText lists the accounts a capped cycle gave up on
func AbandonedText(passes int, unprocessed []string) string {
	return fmt.Sprintf("⚠️ Cycle abandoned after %d passes. Unprocessed accounts (%d): %s",
		passes, len(unprocessed), strings.Join(unprocessed, " | "))
}

// AbortedText reports a cycle that could not run
func AbortedText(err error) string {
	return fmt.Sprintf("😫 %v", err)
}

// ErrorStatsText renders the non-zero error counters of a cycle, or "" if there were none
func ErrorStatsText(stats map[string]int) string {
	if stats["total"] == 0 {
		return ""
	}

	var parts []string
	for key, n := range stats {
		if n == 0 || !strings.HasPrefix(key, "category_") {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %d", strings.TrimPrefix(key, "category_"), n))
	}
	sort.Strings(parts)

	return fmt.Sprintf("📊 Errors this cycle: %d (%s)", stats["total"], strings.Join(parts, ", "))
}

// StatusText answers the /status command
func StatusText(s Status) string {
	var b strings.Builder
	if s.Running {
		fmt.Fprintf(&b, "▶️ Cycle <code>%s</code> running since %s\r\n", s.CycleID, s.StartedAt.Format(time.TimeOnly))
		fmt.Fprintf(&b, "Pass %d, processed %d/%d", s.Pass, s.Processed, s.Active)
		if s.Account != "" {
			fmt.Fprintf(&b, ", now on #%s", s.Account)
		}
	} else {
		b.WriteString("⏸ Idle")
	}
	if s.LastStatus != "" {
		fmt.Fprintf(&b, "\r\nLast cycle: %s at %s", s.LastStatus, s.LastFinished.Format(time.DateTime))
	}
	return b.String()
}
