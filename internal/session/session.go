// Package session turns a browser profile into a live, exclusively owned browser.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"jordanella.com/tapfarm/internal/ads"
	"jordanella.com/tapfarm/internal/browser"
	"jordanella.com/tapfarm/internal/jitter"
	"jordanella.com/tapfarm/internal/logging"
)

var (
	// ErrEndpointUnavailable means every attempt to open the profile failed
	ErrEndpointUnavailable = errors.New("browser endpoint unavailable")
	// ErrConnectFailed means an endpoint was obtained but could not be attached to
	ErrConnectFailed = errors.New("connect to browser failed")
)

const (
	DefaultMaxAttempts = 3
	defaultBackoffMin  = 4 * time.Second
	defaultBackoffMax  = 8 * time.Second
)

// Opener starts the remote browser of a profile
type Opener interface {
	OpenBrowser(ctx context.Context, profileID string) (*ads.OpenResponse, error)
}

// Stopper shuts the remote browser of a profile down
type Stopper interface {
	StopBrowser(ctx context.Context, profileID string) error
}

// Acquirer obtains a connection endpoint with bounded retries
type Acquirer struct {
	opener      Opener
	pacer       *jitter.Pacer
	logger      *logging.Logger
	maxAttempts int
	backoffMin  time.Duration
	backoffMax  time.Duration
	observe     func(ok bool)
}

// NewAcquirer creates an acquirer; maxAttempts below 1 uses DefaultMaxAttempts
func NewAcquirer(opener Opener, pacer *jitter.Pacer, logger *logging.Logger, maxAttempts int) *Acquirer {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Acquirer{
		opener:      opener,
		pacer:       pacer,
		logger:      logger,
		maxAttempts: maxAttempts,
		backoffMin:  defaultBackoffMin,
		backoffMax:  defaultBackoffMax,
	}
}

// SetAttemptObserver calls fn after every open attempt
func (a *Acquirer) SetAttemptObserver(fn func(ok bool)) {
	a.observe = fn
}

// Acquire returns the endpoint of the profile's browser. Failed attempts are
// separated by a randomized back-off; after maxAttempts it gives up with
// ErrEndpointUnavailable.
func (a *Acquirer) Acquire(ctx context.Context, profileID string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		endpoint, err := a.try(ctx, profileID)
		if a.observe != nil {
			a.observe(err == nil)
		}
		if err == nil {
			return endpoint, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		lastErr = err
		a.logger.WarnWithContext(fmt.Sprintf("Attempt %d failed: %v", attempt, err), map[string]interface{}{
			"profile_id":   profileID,
			"attempt":      attempt,
			"max_attempts": a.maxAttempts,
		})

		if attempt < a.maxAttempts {
			if err := a.pacer.Pause(ctx, a.backoffMin, a.backoffMax); err != nil {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("%w after %d attempts: %v", ErrEndpointUnavailable, a.maxAttempts, lastErr)
}

func (a *Acquirer) try(ctx context.Context, profileID string) (string, error) {
	resp, err := a.opener.OpenBrowser(ctx, profileID)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errors.New("cannot open browser profile")
	}
	endpoint := resp.Endpoint()
	if endpoint == "" {
		return "", errors.New("websocket endpoint not found")
	}
	return endpoint, nil
}

// Manager opens and connects sessions
type Manager struct {
	acquirer  *Acquirer
	connector browser.Connector
	stopper   Stopper
	logger    *logging.Logger
}

// NewManager creates a manager; stopper may be nil
func NewManager(acquirer *Acquirer, connector browser.Connector, stopper Stopper, logger *logging.Logger) *Manager {
	return &Manager{
		acquirer:  acquirer,
		connector: connector,
		stopper:   stopper,
		logger:    logger,
	}
}

// Open acquires an endpoint for profileID and connects to it
func (m *Manager) Open(ctx context.Context, profileID string) (*Session, error) {
	endpoint, err := m.acquirer.Acquire(ctx, profileID)
	if err != nil {
		return nil, err
	}

	b, err := m.connector.Connect(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnectFailed, endpoint, err)
	}

	m.logger.DebugWithContext("Session opened", map[string]interface{}{"profile_id": profileID})
	return &Session{
		Browser:   b,
		ProfileID: profileID,
		OpenedAt:  time.Now(),
		stopper:   m.stopper,
		logger:    m.logger,
	}, nil
}

// Session is one connected browser owned by a single account run
type Session struct {
	Browser   browser.Browser
	ProfileID string
	OpenedAt  time.Time

	stopper   Stopper
	logger    *logging.Logger
	closeOnce sync.Once
	closeErr  error
}

// Close releases the browser and stops the profile. Later calls return the first result.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		ctx := context.WithoutCancel(ctx)
		if err := s.Browser.Close(ctx); err != nil {
			s.closeErr = err
			s.logger.Warnf("Close browser failed: %v", err)
		}
		if s.stopper != nil {
			if err := s.stopper.StopBrowser(ctx, s.ProfileID); err != nil {
				s.logger.Debugf("Stop profile browser failed: %v", err)
			}
		}
	})
	return s.closeErr
}
