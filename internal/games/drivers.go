package games

import (
	"fmt"
	"time"

	"jordanella.com/tapfarm/internal/browser"
)

// DriverOptions tunes the secondary activities of the built-in drivers
type DriverOptions struct {
	// Hamster tap minigame
	TapEnergyThreshold int
	TapIntervalMin     time.Duration
	TapIntervalMax     time.Duration
	TapBudgetMin       time.Duration
	TapBudgetMax       time.Duration

	// Hamster upgrade purchases
	MineTabs          []string
	MaxPurchaseRounds int
}

// DefaultDriverOptions returns the pacing used in production
func DefaultDriverOptions() DriverOptions {
	return DriverOptions{
		TapEnergyThreshold: 25,
		TapIntervalMin:     100 * time.Millisecond,
		TapIntervalMax:     250 * time.Millisecond,
		TapBudgetMin:       90 * time.Second,
		TapBudgetMax:       150 * time.Second,
		MineTabs:           []string{"Markets", "PR&Team"},
		MaxPurchaseRounds:  20,
	}
}

func (o DriverOptions) withDefaults() DriverOptions {
	def := DefaultDriverOptions()
	if o.TapEnergyThreshold <= 0 {
		o.TapEnergyThreshold = def.TapEnergyThreshold
	}
	if o.TapIntervalMax <= 0 {
		o.TapIntervalMin, o.TapIntervalMax = def.TapIntervalMin, def.TapIntervalMax
	}
	if o.TapBudgetMax <= 0 {
		o.TapBudgetMin, o.TapBudgetMax = def.TapBudgetMin, def.TapBudgetMax
	}
	if o.MineTabs == nil {
		o.MineTabs = def.MineTabs
	}
	if o.MaxPurchaseRounds <= 0 {
		o.MaxPurchaseRounds = def.MaxPurchaseRounds
	}
	return o
}

// DefaultDrivers builds the drivers of every supported game
func DefaultDrivers(opts DriverOptions) []*Driver {
	opts = opts.withDefaults()
	return []*Driver{
		newBlumDriver(),
		newIcebergDriver(),
		newHamsterDriver(opts),
	}
}

// buttonWithText matches a button whose text contains label
func buttonWithText(label string) browser.Selector {
	return browser.XPath(fmt.Sprintf("//button[contains(., '%s')]", label))
}

// errorScreen is the generic crash screen the web apps render
var errorScreen = &WatchPolicy{
	Indicator: browser.XPath("//*[contains(text(), 'Something went wrong')]"),
	Reset:     buttonWithText("Try again"),
}
