package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cdpRequest struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"sessionId,omitempty"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
}

type cdpReply struct {
	ID        int64       `json:"id,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
	Method    string      `json:"method,omitempty"`
	Params    interface{} `json:"params,omitempty"`
	Result    interface{} `json:"result,omitempty"`
}

// fakeDevTools answers just enough of the DevTools protocol for chromedp to
// attach to the initial tab, open new tabs and evaluate scripts in them.
type fakeDevTools struct {
	mu       sync.Mutex
	methods  []string
	nextTab  int
	released bool
}

func (f *fakeDevTools) seen(method string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.methods {
		if m == method {
			return true
		}
	}
	return false
}

func (f *fakeDevTools) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}
	defer conn.Close()

	send := func(msg cdpReply) error {
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return wsutil.WriteServerText(conn, data)
	}

	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}
		var req cdpRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}

		f.mu.Lock()
		f.methods = append(f.methods, req.Method)
		f.mu.Unlock()

		var result interface{} = struct{}{}
		var event *cdpReply
		switch req.Method {
		case "Target.setDiscoverTargets":
			f.mu.Lock()
			announce := req.SessionID == "" && !f.released
			f.released = true
			f.mu.Unlock()
			if announce {
				event = &cdpReply{
					Method: "Target.targetCreated",
					Params: map[string]interface{}{
						"targetInfo": map[string]interface{}{
							"targetId": "initial",
							"type":     "page",
							"title":    "",
							"url":      "about:blank",
						},
					},
				}
			}
		case "Target.createTarget":
			f.mu.Lock()
			f.nextTab++
			id := fmt.Sprintf("tab-%d", f.nextTab)
			f.mu.Unlock()
			result = map[string]string{"targetId": id}
		case "Target.attachToTarget":
			var params struct {
				TargetID string `json:"targetId"`
			}
			_ = json.Unmarshal(req.Params, &params)
			result = map[string]string{"sessionId": "session-" + params.TargetID}
		case "Target.closeTarget":
			result = map[string]bool{"success": true}
		case "Runtime.evaluate":
			var params struct {
				Expression string `json:"expression"`
			}
			_ = json.Unmarshal(req.Params, &params)
			switch {
			case params.Expression == "self":
				result = map[string]interface{}{
					"result": map[string]string{"type": "object", "className": "Window"},
				}
			case params.Expression == "6 * 7":
				result = map[string]interface{}{
					"result": map[string]interface{}{"type": "number", "value": 42},
				}
			default:
				result = map[string]interface{}{
					"result": map[string]interface{}{"type": "boolean", "value": true},
				}
			}
		}

		if err := send(cdpReply{ID: req.ID, SessionID: req.SessionID, Result: result}); err != nil {
			return
		}
		if event != nil {
			if err := send(*event); err != nil {
				return
			}
		}
	}
}

func startFakeDevTools(t *testing.T) (*fakeDevTools, string) {
	t.Helper()
	fake := &fakeDevTools{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, "ws://" + strings.TrimPrefix(srv.URL, "http://") + "/devtools/browser/fake"
}

func TestChromeConnectorSessionLifecycle(t *testing.T) {
	fake, endpoint := startFakeDevTools(t)

	// The handshake context ends right after Connect; the browser must not.
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 5*time.Second)
	b, err := NewChromeConnector().Connect(connectCtx, endpoint)
	cancelConnect()
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	assert.True(t, fake.seen("Target.attachToTarget"))

	pageCtx, cancelPage := context.WithTimeout(context.Background(), 5*time.Second)
	page, err := b.NewPage(pageCtx)
	cancelPage()
	if err != nil {
		t.Fatalf("Failed to open page: %v", err)
	}
	assert.True(t, fake.seen("Target.createTarget"))
	assert.True(t, fake.seen("Network.clearBrowserCookies"))

	// Commands issued after NewPage returned are still answered.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var answer int
	require.NoError(t, page.Evaluate(ctx, "6 * 7", &answer))
	assert.Equal(t, 42, answer)

	found, err := page.Exists(ctx, CSS(".user-tap-button"))
	require.NoError(t, err)
	assert.True(t, found)

	require.NoError(t, page.Close(ctx))
	assert.True(t, fake.seen("Target.closeTarget"))

	// A second tab can still be opened on the same browser.
	second, err := b.NewPage(ctx)
	require.NoError(t, err)
	require.NoError(t, second.Close(ctx))

	require.NoError(t, b.Close(ctx))
	assert.True(t, fake.seen("Browser.close"))

	_, err = b.NewPage(ctx)
	assert.Error(t, err)
}

func TestChromeConnectorHandshakeCanceled(t *testing.T) {
	// The server upgrades the websocket but never announces a page target.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, err := wsutil.ReadClientText(conn); err != nil {
				return
			}
		}
	}))
	defer srv.Close()
	endpoint := "ws://" + strings.TrimPrefix(srv.URL, "http://") + "/devtools/browser/silent"

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewChromeConnector().Connect(ctx, endpoint)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
