// Package webhook forwards security events and intruder attempts to HTTP
// endpoints. It implements the journal sink contract so it can sit beside
// the database and the audit log in the recorder fan-out.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/securelock/securelock/pkg/logging"
	"github.com/securelock/securelock/pkg/model"
)

// Wildcard matches every event in a hook's filter.
const Wildcard = "*"

// AttemptEvent is the filter name for intruder attempt records.
const AttemptEvent = string(model.JournalAttempt)

// Payload is the JSON body posted to a hook.
type Payload struct {
	Event     string                 `json:"event"`
	Kind      model.JournalKind      `json:"kind"`
	DeviceID  string                 `json:"device_id"`
	Timestamp string                 `json:"timestamp"`
	Security  *model.SecurityEvent   `json:"security_event,omitempty"`
	Attempt   *model.IntruderAttempt `json:"intruder_attempt,omitempty"`
}

// HookConfig represents a single webhook configuration.
type HookConfig struct {
	URL     string        `yaml:"url" json:"url"`
	Secret  string        `yaml:"secret,omitempty" json:"secret,omitempty"`
	Events  []string      `yaml:"events" json:"events"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Enabled bool          `yaml:"enabled" json:"enabled"`
}

// Config represents the webhook configuration.
type Config struct {
	Hooks          []HookConfig `yaml:"hooks,omitempty" json:"hooks,omitempty"`
	Enabled        bool         `yaml:"enabled" json:"enabled"`
	AsyncQueueSize int          `yaml:"async_queue_size" json:"async_queue_size"`
}

// DefaultConfig returns the default webhook configuration. Deliveries are
// attempted once; failed notifications are dropped, not queued for later.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		AsyncQueueSize: 100,
	}
}

// Client handles sending webhook notifications.
type Client struct {
	config *Config
	http   *http.Client
	logger *logging.Logger
	queue  chan *job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
	closed bool
}

type job struct {
	payload Payload
	hook    HookConfig
}

// NewClient creates a new webhook client. A nil logger discards output.
func NewClient(cfg *Config, logger *logging.Logger) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	size := cfg.AsyncQueueSize
	if size <= 0 {
		size = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		config: cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logger.WithFields(map[string]any{"component": "webhook"}),
		queue:  make(chan *job, size),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.Enabled {
		c.wg.Add(1)
		go c.worker()
	}

	return c
}

// worker processes queued notifications until the queue is closed.
func (c *Client) worker() {
	defer c.wg.Done()
	for j := range c.queue {
		if err := c.sendSync(c.ctx, j); err != nil {
			c.logger.WarnErr("webhook delivery failed", err, map[string]any{
				"url":   j.hook.URL,
				"event": j.payload.Event,
			})
		}
	}
}

// AppendEvent queues e for every hook subscribed to its type.
func (c *Client) AppendEvent(_ context.Context, e *model.SecurityEvent) error {
	return c.Send(context.Background(), Payload{
		Event:     string(e.Type),
		Kind:      model.JournalEvent,
		DeviceID:  e.DeviceID,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Security:  e,
	}, true)
}

// AppendAttempt queues a for every hook subscribed to intruder attempts.
func (c *Client) AppendAttempt(_ context.Context, a *model.IntruderAttempt) error {
	return c.Send(context.Background(), Payload{
		Event:     AttemptEvent,
		Kind:      model.JournalAttempt,
		DeviceID:  a.DeviceID,
		Timestamp: a.Timestamp.UTC().Format(time.RFC3339Nano),
		Attempt:   a,
	}, true)
}

// Send sends a payload to all matching webhooks.
// If async is true, the payload is queued for background sending and a full
// queue drops it. If async is false, it is sent before Send returns.
func (c *Client) Send(ctx context.Context, p Payload, async bool) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.config.Enabled || c.closed {
		return nil
	}

	var hooks []HookConfig
	for _, hook := range c.config.Hooks {
		if hook.Enabled && matchesEvent(hook, p.Event) {
			hooks = append(hooks, hook)
		}
	}
	if len(hooks) == 0 {
		return nil
	}

	if p.Timestamp == "" {
		p.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	if async {
		for _, hook := range hooks {
			select {
			case c.queue <- &job{payload: p, hook: hook}:
			default:
				c.logger.Warn("webhook queue full, dropping notification", map[string]any{
					"event": p.Event,
					"url":   hook.URL,
				})
			}
		}
		return nil
	}

	var lastErr error
	for _, hook := range hooks {
		if err := c.sendSync(ctx, &job{payload: p, hook: hook}); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// sendSync delivers one notification. There is exactly one attempt; a
// failed delivery is reported to the caller and dropped.
func (c *Client) sendSync(ctx context.Context, j *job) error {
	body, err := json.Marshal(j.payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.post(ctx, j.hook, j.payload.Event, body)
}

func (c *Client) post(ctx context.Context, hook HookConfig, event string, body []byte) error {
	if hook.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, hook.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "SecureLock-Webhook/1.0")
	req.Header.Set("X-SecureLock-Event", event)
	if hook.Secret != "" {
		req.Header.Set("X-SecureLock-Signature", Sign(body, hook.Secret))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
}

// Sign creates an HMAC-SHA256 signature for the payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func matchesEvent(hook HookConfig, event string) bool {
	for _, e := range hook.Events {
		if e == event || e == Wildcard {
			return true
		}
	}
	return false
}

// Close drains queued notifications and stops the worker.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	c.wg.Wait()
	c.cancel()
	return nil
}
