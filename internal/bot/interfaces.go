package bot

import (
	"context"

	"jordanella.com/tapfarm/internal/accounts"
	"jordanella.com/tapfarm/internal/database"
	"jordanella.com/tapfarm/internal/session"
)

// ProfileDirectory resolves the shared browser profile every account runs in
type ProfileDirectory interface {
	GeneralProfile(ctx context.Context) (string, error)
}

// ProxyConfigurator points the shared profile at an account's proxy
type ProxyConfigurator interface {
	UpdateProxy(ctx context.Context, profileID string, proxy accounts.Proxy) error
}

// SessionOpener acquires and connects a browser for a profile
type SessionOpener interface {
	Open(ctx context.Context, profileID string) (*session.Session, error)
}

// Notifier delivers cycle output to the chat
type Notifier interface {
	SendMessage(ctx context.Context, text string) error
	SendDocument(ctx context.Context, filename string, data []byte, caption string) error
}

// Receiver answers chat commands while a cycle runs
type Receiver interface {
	StartReceiving(ctx context.Context) error
	StopReceiving()
}

// Recorder persists run history
type Recorder interface {
	StartCycle(cycleID string, activeAccounts int) error
	FinishCycle(cycleID, status string, passes, processed int, cause error) error
	RecordAccountRun(run *database.AccountRun) (int64, error)
}
