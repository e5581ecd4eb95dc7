package games

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// NoneText is how an unknown amount is rendered
const NoneText = "[None]"

// Amount is a parsed balance or price. The zero value is None.
type Amount struct {
	value int64
	known bool
}

// None is the unknown amount, distinct from zero
var None = Amount{}

// Known wraps a value
func Known(v int64) Amount {
	return Amount{value: v, known: true}
}

// Value returns the amount and whether it is known
func (a Amount) Value() (int64, bool) {
	return a.value, a.known
}

// IsKnown reports whether the amount holds a value
func (a Amount) IsKnown() bool {
	return a.known
}

func (a Amount) String() string {
	if !a.known {
		return NoneText
	}
	return strconv.FormatInt(a.value, 10)
}

// ParseAmount reads text like "12,345", "3.2K" or "1.5k".
// Thousands separators are dropped, a K suffix scales by 1000 and the result is floored.
func ParseAmount(text string) Amount {
	s := strings.TrimSpace(strings.ReplaceAll(text, ",", ""))
	if s == "" {
		return None
	}

	scale := 1.0
	if i := strings.IndexAny(s, "kK"); i >= 0 {
		scale = 1000
		s = strings.TrimSpace(s[:i])
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return None
	}
	return Known(int64(math.Floor(f * scale)))
}

// Item is something purchasable at a known price
type Item struct {
	ID    string
	Price int64
}

// SelectAffordable sorts items by ascending price and returns the longest
// prefix whose cumulative price fits into balance. Later, pricier items are
// never considered once one does not fit.
func SelectAffordable(items []Item, balance int64) []Item {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Price < sorted[j].Price
	})

	var total int64
	for i, item := range sorted {
		if total+item.Price > balance {
			return sorted[:i]
		}
		total += item.Price
	}
	return sorted
}
