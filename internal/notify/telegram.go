// Package notify delivers cycle output to a Telegram chat.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"jordanella.com/tapfarm/internal/logging"
)

// DefaultBaseURL is the Bot API root
const DefaultBaseURL = "https://api.telegram.org"

// maxMessageLength is the Bot API limit for one text message, in characters
const maxMessageLength = 4096

// ErrNotConfigured is returned when the bot token or chat id is missing
var ErrNotConfigured = errors.New("telegram is not configured")

// APIError is a response with ok=false
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (%d): %s", e.Method, e.Code, e.Description)
}

// CommandHandler answers a chat command with an HTML reply
type CommandHandler func(ctx context.Context, args string) string

// TelegramConfig configures the Telegram adapter
type TelegramConfig struct {
	// BotToken is the token issued by @BotFather
	BotToken string
	// ChatID is the chat that receives every message and may send commands
	ChatID string
	// BaseURL overrides DefaultBaseURL
	BaseURL string
	// PollTimeout is the getUpdates long-poll timeout
	PollTimeout time.Duration
	// MessagesPerSecond bounds outgoing requests; zero means one per second
	MessagesPerSecond float64
}

// Telegram sends messages and documents and answers commands
type Telegram struct {
	token       string
	chatID      string
	baseURL     string
	pollTimeout time.Duration
	client      *http.Client
	limiter     *rate.Limiter
	logger      *logging.Logger

	commandsMu sync.RWMutex
	commands   map[string]CommandHandler

	pollMu  sync.Mutex
	stop    context.CancelFunc
	stopped chan struct{}
	offset  int
}

// NewTelegram creates an adapter; it fails with ErrNotConfigured without a token and chat
func NewTelegram(cfg TelegramConfig, logger *logging.Logger) (*Telegram, error) {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil, ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PollTimeout < 0 {
		cfg.PollTimeout = 0
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = 1
	}
	if logger == nil {
		logger = logging.NewLogger("Telegram")
	}

	return &Telegram{
		token:       cfg.BotToken,
		chatID:      cfg.ChatID,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		pollTimeout: cfg.PollTimeout,
		client:      &http.Client{Timeout: cfg.PollTimeout + 30*time.Second},
		limiter:     rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), 3),
		logger:      logger,
		commands:    make(map[string]CommandHandler),
	}, nil
}

// Handle registers a handler for "/name"
func (t *Telegram) Handle(name string, handler CommandHandler) {
	t.commandsMu.Lock()
	defer t.commandsMu.Unlock()
	t.commands[strings.TrimPrefix(name, "/")] = handler
}

type sentMessage struct {
	MessageID int `json:"message_id"`
}

// SendMessage sends HTML text, split into as many messages as the length limit requires
func (t *Telegram) SendMessage(ctx context.Context, text string) error {
	_, err := t.sendText(ctx, text)
	return err
}

// SendAndPin sends text and pins the first message without a notification
func (t *Telegram) SendAndPin(ctx context.Context, text string) error {
	messageID, err := t.sendText(ctx, text)
	if err != nil {
		return err
	}
	return t.call(ctx, "pinChatMessage", map[string]interface{}{
		"chat_id":              t.chatID,
		"message_id":           messageID,
		"disable_notification": true,
	}, nil)
}

// sendText returns the id of the first message sent
func (t *Telegram) sendText(ctx context.Context, text string) (int, error) {
	first := 0
	for i, chunk := range SplitMessage(text, maxMessageLength) {
		var msg sentMessage
		err := t.call(ctx, "sendMessage", map[string]interface{}{
			"chat_id":    t.chatID,
			"text":       chunk,
			"parse_mode": "HTML",
		}, &msg)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = msg.MessageID
		}
	}
	return first, nil
}

// SendDocument uploads data as a file attachment
func (t *Telegram) SendDocument(ctx context.Context, filename string, data []byte, caption string) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fields := map[string]string{"chat_id": t.chatID}
	if caption != "" {
		fields["caption"] = caption
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("document", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return t.do(ctx, "sendDocument", w.FormDataContentType(), &body, nil)
}

// StartReceiving polls for commands until StopReceiving or ctx ends.
// Calling it while already receiving is a no-op.
func (t *Telegram) StartReceiving(ctx context.Context) error {
	t.pollMu.Lock()
	defer t.pollMu.Unlock()
	if t.stop != nil {
		return nil
	}

	pollCtx, cancel := context.WithCancel(ctx)
	t.stop = cancel
	t.stopped = make(chan struct{})
	go t.poll(pollCtx, t.stopped)
	return nil
}

// StopReceiving stops polling and waits for the poll loop to exit
func (t *Telegram) StopReceiving() {
	t.pollMu.Lock()
	stop, stopped := t.stop, t.stopped
	t.stop, t.stopped = nil, nil
	t.pollMu.Unlock()

	if stop == nil {
		return
	}
	stop()
	<-stopped
}

type update struct {
	UpdateID int             `json:"update_id"`
	Message  *incomingMessage `json:"message,omitempty"`
}

type incomingMessage struct {
	MessageID int    `json:"message_id"`
	Text      string `json:"text"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

func (t *Telegram) poll(ctx context.Context, done chan struct{}) {
	defer close(done)

	for ctx.Err() == nil {
		var updates []update
		err := t.call(ctx, "getUpdates", map[string]interface{}{
			"offset":          t.offset,
			"timeout":         int(t.pollTimeout.Seconds()),
			"allowed_updates": []string{"message"},
		}, &updates)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Debugf("getUpdates failed: %v", err)
			if !sleep(ctx, 5*time.Second) {
				return
			}
			continue
		}

		for _, u := range updates {
			t.offset = u.UpdateID + 1
			if u.Message != nil {
				t.handleMessage(ctx, u.Message)
			}
		}

		if t.pollTimeout == 0 && !sleep(ctx, time.Second) {
			return
		}
	}
}

func (t *Telegram) handleMessage(ctx context.Context, msg *incomingMessage) {
	if strconv.FormatInt(msg.Chat.ID, 10) != t.chatID || !strings.HasPrefix(msg.Text, "/") {
		return
	}

	name, args, _ := strings.Cut(strings.TrimPrefix(msg.Text, "/"), " ")
	// Commands may be addressed as /status@botname
	name, _, _ = strings.Cut(name, "@")

	t.commandsMu.RLock()
	handler, ok := t.commands[name]
	t.commandsMu.RUnlock()
	if !ok {
		return
	}

	if err := t.SendMessage(ctx, handler(ctx, strings.TrimSpace(args))); err != nil {
		t.logger.Warnf("Reply to /%s failed: %v", name, err)
	}
}

func (t *Telegram) call(ctx context.Context, method string, payload map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return t.do(ctx, method, "application/json", bytes.NewReader(data), out)
}

func (t *Telegram) do(ctx context.Context, method, contentType string, body io.Reader, out interface{}) error {
	if method != "getUpdates" {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		OK          bool            `json:"ok"`
		Result      json.RawMessage `json:"result"`
		ErrorCode   int             `json:"error_code"`
		Description string          `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("telegram %s: decode response (status %d): %w", method, resp.StatusCode, err)
	}
	if !envelope.OK {
		code := envelope.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Method: method, Code: code, Description: envelope.Description}
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// SplitMessage cuts text into chunks of at most limit characters, preferring line breaks
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), "\r\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
