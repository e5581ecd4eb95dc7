package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jordanella.com/tapfarm/internal/accounts"
	"jordanella.com/tapfarm/internal/ads"
	"jordanella.com/tapfarm/internal/browser/browsertest"
	"jordanella.com/tapfarm/internal/database"
	"jordanella.com/tapfarm/internal/events"
	"jordanella.com/tapfarm/internal/games"
	"jordanella.com/tapfarm/internal/jitter"
	"jordanella.com/tapfarm/internal/logging"
	"jordanella.com/tapfarm/internal/session"
)

func instantPacer() *jitter.Pacer {
	return jitter.NewPacerWith(3, func(ctx context.Context, d time.Duration) error {
		return ctx.Err()
	})
}

// fakeAds stands in for the profile service. The proxy host identifies which
// account the shared profile currently belongs to.
type fakeAds struct {
	mu         sync.Mutex
	profileErr error
	failOpen   map[string]bool
	current    string
	proxied    []string
	opened     []string
	profiles   int
}

func (f *fakeAds) GeneralProfile(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles++
	if f.profileErr != nil {
		return "", f.profileErr
	}
	return "general", nil
}

func (f *fakeAds) UpdateProxy(ctx context.Context, profileID string, proxy accounts.Proxy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = proxy.Host
	f.proxied = append(f.proxied, proxy.Host)
	return nil
}

func (f *fakeAds) OpenBrowser(ctx context.Context, profileID string) (*ads.OpenResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, f.current)
	if f.failOpen[f.current] {
		return nil, errors.New("profile busy")
	}
	resp := &ads.OpenResponse{}
	resp.Data.WS.Puppeteer = "ws://127.0.0.1:9222/devtools/browser/" + f.current
	return resp, nil
}

func (f *fakeAds) proxiedHosts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.proxied...)
}

type fakeNotifier struct {
	mu        sync.Mutex
	messages  []string
	documents []string
}

func (f *fakeNotifier) SendMessage(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeNotifier) SendDocument(ctx context.Context, filename string, data []byte, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append(f.documents, filename)
	return nil
}

func (f *fakeNotifier) summaries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.messages {
		if strings.HasPrefix(m, "🎮 Game Results Summary") {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeNotifier) hasMessagePrefix(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

type fakeRecorder struct {
	mu       sync.Mutex
	started  []string
	finished map[string]string
	runs     []*database.AccountRun
}

func (f *fakeRecorder) StartCycle(cycleID string, activeAccounts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, cycleID)
	return nil
}

func (f *fakeRecorder) FinishCycle(cycleID, status string, passes, processed int, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finished == nil {
		f.finished = make(map[string]string)
	}
	f.finished[cycleID] = status
	return nil
}

func (f *fakeRecorder) RecordAccountRun(run *database.AccountRun) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return int64(len(f.runs)), nil
}

type harness struct {
	ads       *fakeAds
	notifier  *fakeNotifier
	recorder  *fakeRecorder
	connector *browsertest.Connector
	orch      *Orchestrator
}

// scriptedDriver reports fixed balances without touching the page
func scriptedDriver(game games.Game, before, after int64) *games.Driver {
	return &games.Driver{
		Game: game,
		Play: func(ctx context.Context, r *games.Round) error {
			r.Set(games.MetricBalanceBefore, games.Known(before))
			r.Set(games.MetricBalanceAfter, games.Known(after))
			return nil
		},
	}
}

func newHarness(t *testing.T, cfg *Config) *harness {
	t.Helper()

	logger := logging.NewDiscardLogger("test")
	h := &harness{
		ads:       &fakeAds{failOpen: make(map[string]bool)},
		notifier:  &fakeNotifier{},
		recorder:  &fakeRecorder{},
		connector: &browsertest.Connector{},
	}

	runner := games.NewRunner(instantPacer(), logger, games.DriverOptions{})
	runner.Register(scriptedDriver(games.Blum, 100, 150))
	runner.Register(scriptedDriver(games.Iceberg, 7, 9))

	acquirer := session.NewAcquirer(h.ads, instantPacer(), logger, 3)
	sessions := session.NewManager(acquirer, h.connector, nil, logger)

	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	h.orch = NewOrchestrator(cfg, h.ads, h.ads, sessions, runner, h.notifier, logger)
	h.orch.SetPacer(instantPacer())
	h.orch.SetRecorder(h.recorder)
	return h
}

func account(id string, active bool, links ...accounts.GameLink) *accounts.Account {
	return &accounts.Account{
		ID:       id,
		Username: "user" + id,
		Active:   active,
		Proxy:    accounts.Proxy{Host: "proxy-" + id, Port: "8000"},
		Games:    links,
	}
}

func link(game games.Game) accounts.GameLink {
	return accounts.GameLink{Game: game, URL: fmt.Sprintf("https://t.me/%s_bot/app", game)}
}

func threeAccounts() []*accounts.Account {
	return []*accounts.Account{
		account("1", true, link(games.Blum), accounts.GameLink{Game: games.Iceberg}),
		account("2", false, link(games.Blum)),
		account("3", true, link(games.Blum), link(games.Iceberg)),
	}
}

func TestRunCycleCompletesInOnePass(t *testing.T) {
	h := newHarness(t, nil)

	outcome, err := h.orch.RunCycle(context.Background(), threeAccounts())
	require.NoError(t, err)

	assert.Equal(t, CycleCompleted, outcome.Status)
	assert.Equal(t, 1, outcome.Passes)
	assert.Equal(t, 2, outcome.Active)
	assert.ElementsMatch(t, []string{"1", "3"}, outcome.Processed)
	assert.Empty(t, outcome.Unprocessed)
	assert.Len(t, outcome.Results, 3)

	// The inactive account never reached the profile service
	assert.ElementsMatch(t, []string{"proxy-1", "proxy-3"}, h.ads.proxiedHosts())
	assert.Len(t, h.connector.Endpoints(), 2)

	require.Len(t, h.notifier.summaries(), 1)
	assert.Contains(t, h.notifier.summaries()[0], "- Processed accounts (2): ")
	assert.ElementsMatch(t, []string{"blum.csv", "iceberg.csv"}, h.notifier.documents)

	assert.Len(t, h.recorder.runs, 2)
	assert.Equal(t, string(CycleCompleted), h.recorder.finished[outcome.CycleID])
	for _, run := range h.recorder.runs {
		assert.Equal(t, database.RunProcessed, run.Status)
	}

	status := h.orch.Status()
	assert.False(t, status.Running)
	assert.Equal(t, CycleCompleted, status.LastStatus)
}

func TestFailedAcquisitionRetriedInNextPass(t *testing.T) {
	h := newHarness(t, nil)
	h.ads.failOpen["proxy-3"] = true

	// Account 3 becomes reachable once the first pass is over
	var once sync.Once
	h.orch.notifier = &passHook{inner: h.notifier, onSummary: func() {
		once.Do(func() {
			h.ads.mu.Lock()
			h.ads.failOpen["proxy-3"] = false
			h.ads.mu.Unlock()
		})
	}}

	outcome, err := h.orch.RunCycle(context.Background(), threeAccounts())
	require.NoError(t, err)

	assert.Equal(t, CycleCompleted, outcome.Status)
	assert.Equal(t, 2, outcome.Passes)
	assert.ElementsMatch(t, []string{"1", "3"}, outcome.Processed)

	// Pass 1: both active accounts; pass 2: only the failed one
	proxied := h.ads.proxiedHosts()
	require.Len(t, proxied, 3)
	assert.ElementsMatch(t, []string{"proxy-1", "proxy-3"}, proxied[:2])
	assert.Equal(t, "proxy-3", proxied[2])

	// Three attempts in pass 1, one in pass 2
	opened := 0
	for _, host := range h.ads.opened {
		if host == "proxy-3" {
			opened++
		}
	}
	assert.Equal(t, 4, opened)

	// Processed count never goes down between passes
	summaries := h.notifier.summaries()
	require.Len(t, summaries, 2)
	assert.Contains(t, summaries[0], "Processed accounts (1): 1")
	assert.Contains(t, summaries[1], "Processed accounts (2): 1 | 3")

	var failed int
	for _, run := range h.recorder.runs {
		if run.Status == database.RunFailed {
			failed++
			require.NotNil(t, run.Reason)
			assert.True(t, strings.HasPrefix(*run.Reason, "session: "), *run.Reason)
		}
	}
	assert.Equal(t, 1, failed)
}

// passHook forwards to inner and runs onSummary after every pass summary
type passHook struct {
	inner     *fakeNotifier
	onSummary func()
}

func (p *passHook) SendMessage(ctx context.Context, text string) error {
	err := p.inner.SendMessage(ctx, text)
	if strings.HasPrefix(text, "🎮") {
		p.onSummary()
	}
	return err
}

func (p *passHook) SendDocument(ctx context.Context, filename string, data []byte, caption string) error {
	return p.inner.SendDocument(ctx, filename, data, caption)
}

func TestInactiveAccountsAreNeverTouched(t *testing.T) {
	h := newHarness(t, nil)

	accs := []*accounts.Account{
		account("1", false, link(games.Blum)),
		account("2", false, link(games.Iceberg)),
	}
	outcome, err := h.orch.RunCycle(context.Background(), accs)
	require.NoError(t, err)

	assert.Equal(t, CycleCompleted, outcome.Status)
	assert.Empty(t, outcome.Processed)
	assert.Empty(t, h.ads.proxiedHosts())
	assert.Empty(t, h.ads.opened)
	assert.Empty(t, h.connector.Endpoints())
	assert.Empty(t, h.notifier.documents)
	assert.Empty(t, h.recorder.runs)
}

func TestProcessedStateResetsBetweenCycles(t *testing.T) {
	h := newHarness(t, nil)
	accs := threeAccounts()

	first, err := h.orch.RunCycle(context.Background(), accs)
	require.NoError(t, err)
	second, err := h.orch.RunCycle(context.Background(), accs)
	require.NoError(t, err)

	assert.NotEqual(t, first.CycleID, second.CycleID)
	assert.Len(t, second.Processed, 2)
	assert.Equal(t, 1, second.Passes)
	// Every active account was visited again in the second cycle
	assert.Len(t, h.ads.proxiedHosts(), 4)
}

func TestCycleAbandonedAtPassCap(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.MaxPassesPerCycle = 3
	h := newHarness(t, cfg)
	h.ads.failOpen["proxy-3"] = true

	outcome, err := h.orch.RunCycle(context.Background(), threeAccounts())
	require.NoError(t, err)

	assert.Equal(t, CycleAbandoned, outcome.Status)
	assert.Equal(t, 3, outcome.Passes)
	assert.Equal(t, []string{"1"}, outcome.Processed)
	assert.Equal(t, []string{"3"}, outcome.Unprocessed)

	assert.Len(t, h.notifier.summaries(), 3)
	assert.True(t, h.notifier.hasMessagePrefix("⚠️ Cycle abandoned after 3 passes"))
	assert.Equal(t, []string{"blum.csv"}, h.notifier.documents)
	assert.Equal(t, string(CycleAbandoned), h.recorder.finished[outcome.CycleID])
}

func TestCycleAbortedWhenProfileUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	h.ads.profileErr = errors.New("local API down")

	outcome, err := h.orch.RunCycle(context.Background(), threeAccounts())
	require.ErrorIs(t, err, ErrProfileUnavailable)

	assert.Equal(t, CycleAborted, outcome.Status)
	assert.Empty(t, h.ads.proxiedHosts())
	assert.Empty(t, h.notifier.summaries())
	assert.Empty(t, h.notifier.documents)
	assert.True(t, h.notifier.hasMessagePrefix("😫 general profile unavailable"))
	assert.Equal(t, string(CycleAborted), h.recorder.finished[outcome.CycleID])
}

func TestConnectFailureSkipsAccount(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.MaxPassesPerCycle = 1
	h := newHarness(t, cfg)
	h.connector.Err = errors.New("handshake refused")

	outcome, err := h.orch.RunCycle(context.Background(), threeAccounts())
	require.NoError(t, err)

	assert.Equal(t, CycleAbandoned, outcome.Status)
	assert.Empty(t, outcome.Processed)
	assert.ElementsMatch(t, []string{"1", "3"}, outcome.Unprocessed)
	for _, run := range h.recorder.runs {
		require.NotNil(t, run.Reason)
		assert.True(t, strings.HasPrefix(*run.Reason, "connect: "), *run.Reason)
	}
}

func TestSessionClosedAfterEveryAccount(t *testing.T) {
	h := newHarness(t, nil)
	var browsers []*browsertest.Browser
	var mu sync.Mutex
	h.connector.BrowserFunc = func(endpoint string) *browsertest.Browser {
		b := &browsertest.Browser{}
		mu.Lock()
		browsers = append(browsers, b)
		mu.Unlock()
		return b
	}

	_, err := h.orch.RunCycle(context.Background(), threeAccounts())
	require.NoError(t, err)

	require.Len(t, browsers, 2)
	for _, b := range browsers {
		assert.Equal(t, 1, b.Closes())
		for _, p := range b.Pages() {
			assert.Equal(t, 1, p.Closes())
		}
	}
}

func TestStatusDuringCycle(t *testing.T) {
	h := newHarness(t, nil)

	var seen []Status
	h.orch.runner.Register(&games.Driver{
		Game: games.Iceberg,
		Play: func(ctx context.Context, r *games.Round) error {
			seen = append(seen, h.orch.Status())
			return nil
		},
	})

	accs := []*accounts.Account{account("9", true, link(games.Iceberg))}
	outcome, err := h.orch.RunCycle(context.Background(), accs)
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.True(t, seen[0].Running)
	assert.Equal(t, outcome.CycleID, seen[0].CycleID)
	assert.Equal(t, 1, seen[0].Pass)
	assert.Equal(t, "9", seen[0].Account)
	assert.Equal(t, 1, seen[0].Active)
}

func TestCanceledCycleIsAborted(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	h.orch.runner.Register(&games.Driver{
		Game: games.Blum,
		Play: func(ctx context.Context, r *games.Round) error {
			cancel()
			return ctx.Err()
		},
	})

	outcome, err := h.orch.RunCycle(ctx, threeAccounts())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CycleAborted, outcome.Status)
	assert.Equal(t, 1, outcome.Passes)
}

func TestGameEventsCoverOnlyLinkedGames(t *testing.T) {
	h := newHarness(t, nil)
	bus := events.NewEventBus(32)
	defer bus.Stop()
	h.orch.SetEventBus(bus)

	var mu sync.Mutex
	var played []string
	bus.Subscribe(events.EventTypeGameCompleted, func(e events.Event) {
		mu.Lock()
		defer mu.Unlock()
		played = append(played, fmt.Sprintf("%s/%s", e.Data["account_id"], e.Data["game"]))
		assert.Equal(t, 0, e.Data["resets"])
	})

	_, err := h.orch.RunCycle(context.Background(), threeAccounts())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(played) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"1/blum", "3/blum", "3/iceberg"}, played)
}
