package games

import (
	"context"
	"time"

	"jordanella.com/tapfarm/internal/browser"
)

const blumBalanceScript = `(() => {
	let text = '';
	document.querySelectorAll('.kit-counter-animation.value .el-char').forEach((el) => { text += el.textContent; });
	return text;
})()`

var (
	blumContinue     = buttonWithText("Continue")
	blumClaim        = buttonWithText("Claim")
	blumStartFarming = buttonWithText("Start farming")
	blumFarming      = buttonWithText("Farming")
	blumFarmingLabel = browser.CSS("div.farming-buttons-wrapper > div > button > div.label")
	blumTickets      = browser.CSS(".title-with-balance .pass")
)

func newBlumDriver() *Driver {
	return &Driver{
		Game:   Blum,
		Settle: 7 * time.Second,
		Watch:  errorScreen,
		Play:   playBlum,
	}
}

func playBlum(ctx context.Context, r *Round) error {
	before := blumBalance(ctx, r)
	if !before.IsKnown() {
		r.Log.Info("Balance not rendered yet, additional delay 8s")
		if err := r.Pacer.Sleep(ctx, 8*time.Second); err != nil {
			return err
		}
		before = blumBalance(ctx, r)
		r.Log.Debugf("Balance %s (attempt 2)", before)
	}
	r.Set(MetricBalanceBefore, before)

	if r.WaitButton(ctx, blumContinue, 0) {
		r.Log.Info("Daily rewards step")
		r.ClickButton(ctx, blumContinue)
		if err := r.Pause(ctx, 2*time.Second, 4*time.Second); err != nil {
			return err
		}
	}

	if err := blumClaimRewards(ctx, r); err != nil {
		return err
	}

	r.Set(MetricBalanceAfter, blumBalance(ctx, r))
	r.Set(MetricTickets, blumTicketCount(ctx, r))
	return nil
}

func blumClaimRewards(ctx context.Context, r *Round) error {
	switch r.FirstVisible(ctx, blumClaim, blumStartFarming, blumFarming) {
	case 0:
		r.Log.Info("Claim button found")
		r.ClickButton(ctx, blumClaim)
		if err := r.Pause(ctx, 2*time.Second, 2500*time.Millisecond); err != nil {
			return err
		}

		if ok, _ := r.Page.Exists(ctx, blumFarmingLabel); !ok {
			if err := r.Page.Reload(ctx); err != nil {
				r.Log.Warnf("Reload after claim failed: %v", err)
			}
		}
		if r.WaitButton(ctx, blumStartFarming, 10*time.Second) {
			r.Log.Info("'Start farming' appeared after claiming")
			r.ClickButton(ctx, blumStartFarming)
		} else {
			r.Log.Warn("'Start farming' did not appear after claiming")
		}
	case 1:
		r.Log.Info("Start farming button found")
		r.ClickButton(ctx, blumStartFarming)
	case 2:
		r.Log.Info("Already farming")
	default:
		r.Log.Warn("No actionable button found")
	}
	return nil
}

func blumBalance(ctx context.Context, r *Round) Amount {
	var text string
	if err := r.Page.Evaluate(ctx, blumBalanceScript, &text); err != nil {
		r.Log.Debugf("Read balance failed: %v", err)
		return None
	}
	return ParseAmount(text)
}

func blumTicketCount(ctx context.Context, r *Round) Amount {
	text, err := r.Page.Text(ctx, blumTickets)
	if err != nil {
		return None
	}
	return ParseAmount(digitsOnly(text))
}

func digitsOnly(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
