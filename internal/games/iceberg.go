package games

import (
	"context"
	"time"

	"jordanella.com/tapfarm/internal/browser"
)

var (
	icebergCollect      = buttonWithText("Collect")
	icebergStartFarming = buttonWithText("Start farming")
	icebergGetAfter     = browser.XPath("//button[contains(., 'Get after') and @disabled]")
	icebergBalance      = browser.CSS(".balance .balance-value")
)

func newIcebergDriver() *Driver {
	return &Driver{
		Game:   Iceberg,
		Settle: 1800 * time.Millisecond,
		Play:   playIceberg,
	}
}

func playIceberg(ctx context.Context, r *Round) error {
	r.Set(MetricBalanceBefore, r.ReadAmount(ctx, icebergBalance))

	switch r.FirstVisible(ctx, icebergCollect, icebergStartFarming, icebergGetAfter) {
	case 0:
		r.Log.Info("Collect button found")
		r.ClickButton(ctx, icebergCollect)
		if err := r.Pause(ctx, 1234*time.Millisecond, 1456*time.Millisecond); err != nil {
			return err
		}
		if r.WaitButton(ctx, icebergStartFarming, 0) {
			r.Log.Info("'Start farming' appeared after collecting")
			r.ClickButton(ctx, icebergStartFarming)
		} else {
			r.Log.Warn("'Start farming' did not appear after collecting")
		}
	case 1:
		r.Log.Info("Start farming button found")
		r.ClickButton(ctx, icebergStartFarming)
	case 2:
		r.Log.Info("Farming in progress, 'Get after' is disabled")
	default:
		r.Log.Warn("No actionable button found")
	}

	if err := r.Pacer.Sleep(ctx, 1200*time.Millisecond); err != nil {
		return err
	}
	r.Set(MetricBalanceAfter, r.ReadAmount(ctx, icebergBalance))
	return nil
}
