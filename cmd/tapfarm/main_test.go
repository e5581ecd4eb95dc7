package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jordanella.com/tapfarm/internal/bot"
	"jordanella.com/tapfarm/internal/config"
	"jordanella.com/tapfarm/internal/database"
	"jordanella.com/tapfarm/internal/logging"
	"jordanella.com/tapfarm/internal/metrics"
	"jordanella.com/tapfarm/internal/notify"
)

func TestStatusReplyAppendsNextFire(t *testing.T) {
	next := time.Date(2026, 10, 17, 15, 4, 5, 0, time.Local)

	text := statusReply(bot.Status{}, next)
	assert.Contains(t, text, "⏸ Idle")
	assert.Contains(t, text, "<b>2026-10-17 15:04:05</b>")

	assert.NotContains(t, statusReply(bot.Status{}, time.Time{}), "Next fire")
}

func TestNewNotifierFallsBackToLocal(t *testing.T) {
	settings := config.NewDefaultConfig()
	settings.ReportDir = t.TempDir()

	chat, telegram := newNotifier(settings, logging.NewDiscardLogger("test"))
	assert.Nil(t, telegram)
	assert.IsType(t, &notify.Local{}, chat)

	settings.TelegramToken = "token"
	settings.ReceiverID = "42"
	chat, telegram = newNotifier(settings, logging.NewDiscardLogger("test"))
	require.NotNil(t, telegram)
	assert.Same(t, telegram, chat)
}

func TestMetricsMux(t *testing.T) {
	mux := metricsMux(metrics.New())

	for _, path := range []string{"/metrics", "/healthz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestPrintHistory(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	if err := db.RunMigrations(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	require.NoError(t, db.StartCycle("cycle-1", 2))
	now := time.Now()
	_, err = db.RecordAccountRun(&database.AccountRun{
		CycleID: "cycle-1", Pass: 1, AccountID: "7", Username: "alice",
		Status: database.RunProcessed, StartedAt: now, FinishedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, db.FinishCycle("cycle-1", database.CycleAborted, 1, 1, errors.New("no general profile")))
	_, err = db.LogError("cycle-1", "cycle", "critical", "Orchestrator", "resolve general profile", errors.New("boom"))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printHistory(&out, db, 10))

	text := out.String()
	assert.Contains(t, text, "cycle-1")
	assert.Contains(t, text, "aborted")
	assert.Contains(t, text, "no general profile")
	assert.Contains(t, text, "1/2")
	assert.Contains(t, text, "resolve general profile")
}

func openMigratedDB(t *testing.T, path string) *database.DB {
	t.Helper()
	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.RunMigrations(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func TestMaintainBacksUpBeforePruning(t *testing.T) {
	dir := t.TempDir()
	db := openMigratedDB(t, filepath.Join(dir, "live.db"))

	require.NoError(t, db.StartCycle("old", 1))
	require.NoError(t, db.FinishCycle("old", database.CycleCompleted, 1, 1, nil))

	backupPath := filepath.Join(dir, "backups", "before-prune.db")
	require.NoError(t, maintain(db, time.Now().Add(time.Hour), backupPath, logging.NewDiscardLogger("test")))

	_, err := db.GetCycle("old")
	assert.Error(t, err, "finished cycle should be pruned from the live database")

	copyDB := openMigratedDB(t, backupPath)
	cycle, err := copyDB.GetCycle("old")
	require.NoError(t, err)
	assert.Equal(t, database.CycleCompleted, cycle.Status)
}

func TestMaintainStopsWhenBackupFails(t *testing.T) {
	dir := t.TempDir()
	db := openMigratedDB(t, filepath.Join(dir, "live.db"))

	require.NoError(t, db.StartCycle("old", 1))
	require.NoError(t, db.FinishCycle("old", database.CycleCompleted, 1, 1, nil))

	backupPath := filepath.Join(dir, "taken.db")
	require.NoError(t, os.WriteFile(backupPath, []byte("occupied"), 0644))

	err := maintain(db, time.Now().Add(time.Hour), backupPath, logging.NewDiscardLogger("test"))
	require.Error(t, err)

	_, err = db.GetCycle("old")
	assert.NoError(t, err, "nothing is pruned without a backup")
}

func TestMaintainKeepsHistoryWithoutCutoff(t *testing.T) {
	db := openMigratedDB(t, filepath.Join(t.TempDir(), "live.db"))

	require.NoError(t, db.StartCycle("old", 1))
	require.NoError(t, db.FinishCycle("old", database.CycleCompleted, 1, 1, nil))
	require.NoError(t, maintain(db, time.Time{}, "", logging.NewDiscardLogger("test")))

	_, err := db.GetCycle("old")
	assert.NoError(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 0, exitCode(fmt.Errorf("scheduler: %w", context.Canceled)))
	assert.Equal(t, 1, exitCode(errors.New("event log unavailable")))
}
