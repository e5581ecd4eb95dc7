// Package games drives the supported tap-to-earn mini-games.
//
// Every game shares one page-level state machine (load, optional reload
// policy, background error watcher, the game's own play flow, cleanup).
// A Driver plugs the game-specific steps into that machine.
package games

import (
	"fmt"
	"sort"
	"strings"
)

// Game is one supported mini-game
type Game string

const (
	Blum    Game = "blum"
	Iceberg Game = "iceberg"
	Hamster Game = "hamster"
)

// Metric names present in every result
const (
	MetricBalanceBefore = "BalanceBefore"
	MetricBalanceAfter  = "BalanceAfter"
	MetricTickets       = "Tickets"
	MetricProfitPerHour = "ProfitPerHour"
)

var supported = map[Game][]string{
	Blum:    {MetricTickets},
	Iceberg: nil,
	Hamster: {MetricProfitPerHour},
}

// UnknownGameError is returned for a game name no driver exists for
type UnknownGameError struct {
	Name string
}

func (e *UnknownGameError) Error() string {
	return fmt.Sprintf("game %q is not supported (supported: %s)", e.Name, strings.Join(Names(), ", "))
}

// ParseGame resolves a configured game name
func ParseGame(name string) (Game, error) {
	g := Game(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := supported[g]; !ok {
		return "", &UnknownGameError{Name: name}
	}
	return g, nil
}

// Names lists supported game names in sorted order
func Names() []string {
	names := make([]string, 0, len(supported))
	for g := range supported {
		names = append(names, string(g))
	}
	sort.Strings(names)
	return names
}

// Metrics returns the metric names a result of this game carries, base metrics first
func (g Game) Metrics() []string {
	metrics := []string{MetricBalanceBefore, MetricBalanceAfter}
	return append(metrics, supported[g]...)
}

// Result is what one driver run produced. Every metric of the game is present;
// values that could not be read are None.
type Result struct {
	Game    Game
	Metrics map[string]Amount
	// Failure records the error that ended the run early, if any
	Failure error
	// Resets counts error screens the watcher dismissed during the run
	Resets int
}

func newResult(g Game) Result {
	metrics := make(map[string]Amount)
	for _, m := range g.Metrics() {
		metrics[m] = None
	}
	return Result{Game: g, Metrics: metrics}
}
