package games

import (
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jordanella.com/tapfarm/internal/browser"
	"jordanella.com/tapfarm/internal/browser/browsertest"
)

func evalScripts(answers map[string]interface{}) func(string) (interface{}, error) {
	return func(expr string) (interface{}, error) {
		if v, ok := answers[expr]; ok {
			return v, nil
		}
		return nil, fmt.Errorf("unexpected script: %.40s", expr)
	}
}

func TestBlumClaimThenStartFarming(t *testing.T) {
	page := browsertest.NewPage()
	page.EvalFunc = evalScripts(map[string]interface{}{blumBalanceScript: "1,234"})
	page.SetText(blumTickets, "Play passes: 5")
	page.SetVisible(blumClaim, true)
	page.OnClick = func(p *browsertest.Page, sel browser.Selector) {
		if sel == blumClaim {
			p.SetVisible(blumClaim, false)
			p.SetVisible(blumFarmingLabel, true)
			p.SetVisible(blumStartFarming, true)
		}
	}

	res := playOn(t, newTestRunner(DriverOptions{}), page, Blum)

	require.NoError(t, res.Failure)
	assert.Equal(t, []string{blumClaim.String(), blumStartFarming.String()}, page.Clicks())
	assert.Zero(t, page.Count("reload"))
	assert.Equal(t, Known(1234), res.Metrics[MetricBalanceBefore])
	assert.Equal(t, Known(1234), res.Metrics[MetricBalanceAfter])
	assert.Equal(t, Known(5), res.Metrics[MetricTickets])
}

func TestBlumReloadsWhenFarmingButtonMissing(t *testing.T) {
	page := browsertest.NewPage()
	page.EvalFunc = evalScripts(map[string]interface{}{blumBalanceScript: "10"})
	page.SetVisible(blumClaim, true)
	page.OnReload = func(p *browsertest.Page) {
		p.SetVisible(blumStartFarming, true)
	}

	res := playOn(t, newTestRunner(DriverOptions{}), page, Blum)

	require.NoError(t, res.Failure)
	assert.Equal(t, 1, page.Count("reload"))
	assert.Equal(t, []string{blumClaim.String(), blumStartFarming.String()}, page.Clicks())
}

func TestBlumDailyRewardAndAlreadyFarming(t *testing.T) {
	page := browsertest.NewPage()
	page.EvalFunc = evalScripts(map[string]interface{}{blumBalanceScript: ""})
	page.SetVisible(blumContinue, true)
	page.SetVisible(blumFarming, true)

	res := playOn(t, newTestRunner(DriverOptions{}), page, Blum)

	require.NoError(t, res.Failure)
	assert.Equal(t, []string{blumContinue.String()}, page.Clicks())
	assert.Equal(t, None, res.Metrics[MetricBalanceBefore])
	assert.Equal(t, None, res.Metrics[MetricTickets])
}

func TestIcebergFlows(t *testing.T) {
	tests := []struct {
		name    string
		visible []browser.Selector
		clicks  []string
	}{
		{
			name:    "collect then start farming",
			visible: []browser.Selector{icebergCollect, icebergStartFarming},
			clicks:  []string{icebergCollect.String(), icebergStartFarming.String()},
		},
		{
			name:    "start farming only",
			visible: []browser.Selector{icebergStartFarming},
			clicks:  []string{icebergStartFarming.String()},
		},
		{
			name:    "already farming",
			visible: []browser.Selector{icebergGetAfter},
		},
		{
			name: "nothing actionable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := browsertest.NewPage()
			page.SetText(icebergBalance, "2.5K")
			for _, sel := range tt.visible {
				page.SetVisible(sel, true)
			}

			res := playOn(t, newTestRunner(DriverOptions{}), page, Iceberg)

			require.NoError(t, res.Failure)
			assert.Equal(t, tt.clicks, page.Clicks())
			assert.Equal(t, Known(2500), res.Metrics[MetricBalanceAfter])
			assertCleanedUpOnce(t, page)
		})
	}
}

func hamsterPage(energy string, cards []cardInfo) *browsertest.Page {
	page := browsertest.NewPage()
	page.SetText(hamsterBalance, "100")
	page.SetText(hamsterProfit, "1.5K")
	page.SetText(hamsterEnergy, energy)
	page.SetVisible(hamsterMineLink, true)
	page.SetVisible(browser.XPath("//div[contains(@class, 'tabs-item') and text()='Markets']"), true)
	for _, c := range cards {
		page.SetVisible(browser.CSS(fmt.Sprintf(`[data-tf-card="%s"]`, c.ID)), true)
	}

	listed := false
	page.EvalFunc = func(expr string) (interface{}, error) {
		switch expr {
		case hamsterTapCenterScript:
			return point{X: 10, Y: 20}, nil
		case hamsterCardsScript:
			if listed {
				return []cardInfo{}, nil
			}
			listed = true
			return cards, nil
		}
		return nil, fmt.Errorf("unexpected script: %.40s", expr)
	}
	return page
}

func hamsterOptions() DriverOptions {
	return DriverOptions{
		TapBudgetMin: time.Second,
		TapBudgetMax: time.Second,
		MineTabs:     []string{"Markets"},
	}
}

func TestHamsterTapsAndBuysCheapestPrefix(t *testing.T) {
	page := hamsterPage("100 / 500", []cardInfo{
		{ID: "0", Price: "30"},
		{ID: "1", Price: "80"},
		{ID: "2", Price: "20"},
	})

	res := playOn(t, newTestRunner(hamsterOptions()), page, Hamster)

	require.NoError(t, res.Failure)

	taps := 0
	for _, c := range page.Calls() {
		if strings.HasPrefix(c, "tap:") {
			assert.Equal(t, "tap:10,20", c)
			taps++
		}
	}
	assert.Greater(t, taps, 0)

	var bought []string
	for _, c := range page.Clicks() {
		if strings.HasPrefix(c, "[data-tf-card=") {
			bought = append(bought, c)
		}
	}
	sort.Strings(bought)
	assert.Equal(t, []string{`[data-tf-card="0"]`, `[data-tf-card="2"]`}, bought)

	assert.Equal(t, Known(100), res.Metrics[MetricBalanceBefore])
	assert.Equal(t, Known(1500), res.Metrics[MetricProfitPerHour])
	assertCleanedUpOnce(t, page)
}

func TestHamsterDoesNotTapBelowThreshold(t *testing.T) {
	page := hamsterPage("25 / 500", nil)

	res := playOn(t, newTestRunner(hamsterOptions()), page, Hamster)

	require.NoError(t, res.Failure)
	for _, c := range page.Calls() {
		assert.False(t, strings.HasPrefix(c, "tap:"), c)
	}
}

func TestParseEnergy(t *testing.T) {
	n, err := parseEnergy("1,000 / 2000")
	assert.Error(t, err)
	assert.Zero(t, n)

	n, err = parseEnergy(" 450 / 2000")
	require.NoError(t, err)
	assert.Equal(t, 450, n)
}
