package games

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"jordanella.com/tapfarm/internal/browser"
)

var (
	hamsterLoading  = browser.CSS("div.main > div.loading-launch")
	hamsterThanks   = buttonWithText("Thank you")
	hamsterBalance  = browser.CSS("div.user-balance-large > div > p")
	hamsterProfit   = browser.CSS("div.user-info .price-value")
	hamsterEnergy   = browser.CSS(".user-tap-energy p")
	hamsterTap      = browser.CSS(".user-tap-button")
	hamsterMineLink = browser.CSS(`a[href="/clicker/mine"]`)
	hamsterGoAhead  = buttonWithText("Go ahead")
)

// maxEnergyReadFailures stops the tap loop once the energy counter is gone
const maxEnergyReadFailures = 10

// hamsterCardsScript tags every purchasable card and returns its index and price text
const hamsterCardsScript = `(() => {
	const cards = [];
	document.querySelectorAll('.upgrade-list > .upgrade-item:not(.is-disabled)').forEach((el, idx) => {
		el.setAttribute('data-tf-card', String(idx));
		const price = el.querySelector('.upgrade-item-detail .price-value');
		cards.push({ id: String(idx), price: price ? price.textContent.trim() : '' });
	});
	return cards;
})()`

var hamsterTapCenterScript = fmt.Sprintf(`(() => {
	const el = %s;
	if (!el) return null;
	const box = el.getBoundingClientRect();
	return { x: box.x + box.width / 2, y: box.y + box.height / 2 };
})()`, hamsterTap.NodeJS())

func newHamsterDriver(opts DriverOptions) *Driver {
	h := &hamster{opts: opts}
	return &Driver{
		Game:   Hamster,
		Settle: 8500 * time.Millisecond,
		Loading: &LoadingPolicy{
			Indicator: hamsterLoading,
			Waits:     []time.Duration{7 * time.Second, 9 * time.Second, 15 * time.Second},
		},
		Watch: errorScreen,
		Play:  h.play,
	}
}

type hamster struct {
	opts DriverOptions
}

func (h *hamster) play(ctx context.Context, r *Round) error {
	if r.WaitButton(ctx, hamsterThanks, 3*time.Second) {
		r.Log.Info("Thank you button found")
		r.ClickButton(ctx, hamsterThanks)
		if err := r.Pause(ctx, time.Second, 2*time.Second); err != nil {
			return err
		}
	}

	r.Set(MetricBalanceBefore, r.ReadAmount(ctx, hamsterBalance))

	r.Log.Info("Clicker start")
	taps, err := h.tapUntilTired(ctx, r)
	if err != nil {
		return err
	}
	r.Log.Infof("Clicker stopped after %d taps", taps)
	if err := r.Pause(ctx, 3*time.Second, 5*time.Second); err != nil {
		return err
	}

	if r.ClickButton(ctx, hamsterMineLink) {
		tabs := append([]string(nil), h.opts.MineTabs...)
		r.Pacer.Shuffle(len(tabs), func(i, j int) { tabs[i], tabs[j] = tabs[j], tabs[i] })
		for _, tab := range tabs {
			if err := h.farmTab(ctx, r, tab); err != nil {
				return err
			}
		}
	}

	balance := r.ReadAmount(ctx, hamsterBalance)
	r.Log.Debugf("Enough for now, balance: %s", balance)
	r.Set(MetricBalanceAfter, balance)
	r.Set(MetricProfitPerHour, r.ReadAmount(ctx, hamsterProfit))
	return r.Pause(ctx, 2*time.Second, 3500*time.Millisecond)
}

// tapUntilTired taps while energy is above the threshold until the budget is spent
func (h *hamster) tapUntilTired(ctx context.Context, r *Round) (int, error) {
	budget := r.Pacer.Between(h.opts.TapBudgetMin, h.opts.TapBudgetMax)
	r.Log.Infof("Clicker duration: %.2f min", budget.Minutes())

	var (
		elapsed  time.Duration
		taps     int
		failures int
		center   *point
	)
	for elapsed < budget {
		interval := r.Pacer.Between(h.opts.TapIntervalMin, h.opts.TapIntervalMax+time.Millisecond)
		if err := r.Pacer.Sleep(ctx, interval); err != nil {
			return taps, err
		}
		elapsed += interval

		energy, err := h.energy(ctx, r)
		if err != nil {
			failures++
			if failures >= maxEnergyReadFailures {
				r.Log.Warnf("Energy counter unreadable, stopping clicker: %v", err)
				return taps, nil
			}
			continue
		}
		failures = 0
		if energy <= h.opts.TapEnergyThreshold {
			continue
		}

		if center == nil {
			center = h.tapCenter(ctx, r)
			if center == nil {
				continue
			}
		}
		if err := r.Page.ClickXY(ctx, center.X, center.Y); err != nil {
			r.Log.Debugf("Tap failed: %v", err)
			center = nil
			continue
		}
		taps++
	}
	return taps, nil
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (h *hamster) tapCenter(ctx context.Context, r *Round) *point {
	var p *point
	if err := r.Page.Evaluate(ctx, hamsterTapCenterScript, &p); err != nil {
		r.Log.Debugf("Locate tap button failed: %v", err)
		return nil
	}
	return p
}

// energy reads the "current / max" counter
func (h *hamster) energy(ctx context.Context, r *Round) (int, error) {
	text, err := r.Page.Text(ctx, hamsterEnergy)
	if err != nil {
		return 0, err
	}
	return parseEnergy(text)
}

func parseEnergy(text string) (int, error) {
	current, _, _ := strings.Cut(text, "/")
	n, err := strconv.Atoi(strings.TrimSpace(current))
	if err != nil {
		return 0, fmt.Errorf("parse energy %q: %w", text, err)
	}
	return n, nil
}

func (h *hamster) farmTab(ctx context.Context, r *Round, tab string) error {
	r.Log.Infof("Tab to handle: %s", tab)
	balance := r.ReadAmount(ctx, hamsterBalance)
	r.Log.Infof("Actual balance: %s", balance)

	tabSel := browser.XPath(fmt.Sprintf("//div[contains(@class, 'tabs-item') and text()='%s']", tab))
	if !r.WaitButton(ctx, tabSel, 5*time.Second) {
		r.Log.Warnf("Tab %s not found", tab)
		return nil
	}
	r.ClickButton(ctx, tabSel)
	if err := r.Pacer.Sleep(ctx, 1500*time.Millisecond); err != nil {
		return err
	}

	value, ok := balance.Value()
	if !ok {
		r.Log.Warn("Balance unknown, skipping purchases")
		return nil
	}
	_, err := h.buyUpgrades(ctx, r, value)
	return err
}

type cardInfo struct {
	ID    string `json:"id"`
	Price string `json:"price"`
}

// buyUpgrades repeatedly buys the cheapest affordable prefix of cards and returns the remaining balance
func (h *hamster) buyUpgrades(ctx context.Context, r *Round, balance int64) (int64, error) {
	for round := 0; round < h.opts.MaxPurchaseRounds; round++ {
		var cards []cardInfo
		if err := r.Page.Evaluate(ctx, hamsterCardsScript, &cards); err != nil {
			r.Log.Warnf("List cards failed: %v", err)
			return balance, nil
		}
		r.Log.Infof("Active cards: %d", len(cards))
		if len(cards) == 0 {
			r.Log.Info("No more clickable cards found")
			return balance, nil
		}

		items := make([]Item, 0, len(cards))
		for _, c := range cards {
			if price, ok := ParseAmount(c.Price).Value(); ok {
				items = append(items, Item{ID: c.ID, Price: price})
			}
		}

		picked := SelectAffordable(items, balance)
		if len(picked) == 0 {
			r.Log.Info("Insufficient balance to buy any more cards")
			return balance, nil
		}
		r.Log.Infof("Cards to buy: %d", len(picked))

		r.Pacer.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
		for _, item := range picked {
			if err := h.buyCard(ctx, r, item); err != nil {
				return balance, err
			}
			balance -= item.Price
		}
	}
	r.Log.Infof("Purchase round limit reached, balance %d", balance)
	return balance, nil
}

// buyCard clicks one card and confirms it; click failures are only logged
func (h *hamster) buyCard(ctx context.Context, r *Round, item Item) error {
	if err := r.Pause(ctx, 1500*time.Millisecond, 2*time.Second); err != nil {
		return err
	}

	card := browser.CSS(fmt.Sprintf(`[data-tf-card="%s"]`, item.ID))
	if r.ClickButton(ctx, card) && r.WaitButton(ctx, hamsterGoAhead, 4*time.Second) {
		r.ClickButton(ctx, hamsterGoAhead)
	}

	return r.Pause(ctx, time.Second, 1500*time.Millisecond)
}
