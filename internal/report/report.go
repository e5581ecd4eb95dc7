// Package report renders per-game result tables for the messaging channel.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"jordanella.com/tapfarm/internal/games"
)

// Base columns that precede the game's metrics
const (
	ColumnNumber  = "Number"
	ColumnAccount = "Account"
	ColumnUser    = "User"
)

// Row is one account's result for one game
type Row struct {
	Number  int
	Account string
	User    string
	Metrics map[string]games.Amount
}

// Headers returns the column names of a game's table
func Headers(game games.Game) []string {
	return append([]string{ColumnNumber, ColumnAccount, ColumnUser}, game.Metrics()...)
}

// Filename returns the attachment name of a game's CSV report
func Filename(game games.Game) string {
	return fmt.Sprintf("%s.csv", game)
}

// cells renders a row in header order; absent metrics render as None
func cells(game games.Game, row Row) []string {
	out := []string{strconv.Itoa(row.Number), row.Account, row.User}
	for _, metric := range game.Metrics() {
		value, ok := row.Metrics[metric]
		if !ok {
			value = games.None
		}
		out = append(out, value.String())
	}
	return out
}

// Builder renders CSV reports
type Builder struct{}

// NewBuilder creates a CSV report builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Generate renders rows as CSV. The header line is bare, every data cell is
// double-quoted with embedded quotes doubled, and lines end with "\n".
func (b *Builder) Generate(game games.Game, rows []Row) ([]byte, error) {
	if _, err := games.ParseGame(string(game)); err != nil {
		return nil, err
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, strings.Join(Headers(game), ","))
	for _, row := range rows {
		values := cells(game, row)
		for i, v := range values {
			values[i] = quote(v)
		}
		lines = append(lines, strings.Join(values, ","))
	}
	return []byte(strings.Join(lines, "\n")), nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
