// Package webhook posts file tracking and versioning events to HTTP endpoints.
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
	"slices"
	"sync"
	"time"

	"github.com/autobackup-watch/autobackup/pkg/logging"
)

// EventType represents the type of watcher event that can trigger webhooks.
type EventType string

const (
	EventFileTracked    EventType = "file.tracked"
	EventFileVersioned  EventType = "file.versioned"
	EventStateDiscarded EventType = "state.discarded"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Autobackup-Signature"

// Event represents a payload sent to webhooks.
type Event struct {
	Event       EventType      `json:"event"`
	Timestamp   string         `json:"timestamp"`
	Dir         string         `json:"dir,omitempty"`
	File        string         `json:"file,omitempty"`
	Version     int            `json:"version,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	Artifact    string         `json:"artifact,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// HookConfig represents a single webhook endpoint. An empty Events list
// subscribes to every event.
type HookConfig struct {
	URL    string
	Secret string
	Events []EventType
}

// Config represents the webhook client configuration.
type Config struct {
	Hooks          []HookConfig
	MaxRetries     int
	RetryDelay     time.Duration
	AsyncQueueSize int
	Timeout        time.Duration
}

// DefaultConfig returns the default webhook configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:     3,
		RetryDelay:     2 * time.Second,
		AsyncQueueSize: 100,
		Timeout:        10 * time.Second,
	}
}

// Client handles sending webhook notifications.
type Client struct {
	config *Config
	http   *http.Client
	log    *logging.Logger
	queue  chan *job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
	closed bool
}

type job struct {
	event Event
	hook  HookConfig
}

// NewClient creates a webhook client and starts its background worker.
func NewClient(cfg *Config, log *logging.Logger) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.AsyncQueueSize <= 0 {
		cfg.AsyncQueueSize = 1
	}
	if log == nil {
		log = logging.Global()
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		log:    log,
		queue:  make(chan *job, cfg.AsyncQueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	c.wg.Add(1)
	go c.worker()

	return c
}

// worker processes queued notifications until Close drains the queue.
func (c *Client) worker() {
	defer c.wg.Done()

	for job := range c.queue {
		c.send(job)
	}
}

// Send delivers event to all matching hooks. With async the event is queued
// and Send never blocks; a full queue drops the event with a warning.
func (c *Client) Send(event Event, async bool) error {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil
	}

	var hooks []HookConfig
	for _, hook := range c.config.Hooks {
		if matchesEvent(hook, event.Event) {
			hooks = append(hooks, hook)
		}
	}
	if len(hooks) == 0 {
		return nil
	}

	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if async {
		for _, hook := range hooks {
			select {
			case c.queue <- &job{event: event, hook: hook}:
			default:
				c.log.Warn("webhook queue full, dropping event", map[string]any{"event": string(event.Event), "url": hook.URL})
			}
		}
		return nil
	}

	var lastErr error
	for _, hook := range hooks {
		if err := c.sendSync(&job{event: event, hook: hook}); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (c *Client) send(job *job) {
	if err := c.sendSync(job); err != nil {
		c.log.WarnErr("webhook delivery failed", err, map[string]any{"event": string(job.event.Event), "url": job.hook.URL})
	}
}

// sendSync sends a webhook synchronously with retries.
func (c *Client) sendSync(job *job) error {
	payload, err := json.Marshal(job.event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-c.ctx.Done():
				return lastErr
			case <-time.After(c.config.RetryDelay):
			}
		}

		req, err := c.createRequest(job.hook, payload)
		if err != nil {
			return err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	return lastErr
}

func (c *Client) createRequest(hook HookConfig, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(c.ctx, http.MethodPost, hook.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "autobackup-webhook/1.0")

	if hook.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(payload, hook.Secret))
	}

	return req, nil
}

// Sign creates an HMAC-SHA256 signature for the payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func matchesEvent(hook HookConfig, event EventType) bool {
	return len(hook.Events) == 0 || slices.Contains(hook.Events, event) || slices.Contains(hook.Events, "*")
}

// Close delivers everything already queued, then stops the worker. Retry
// waits are cut short once ctx is done.
func (c *Client) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		c.cancel()
		return nil
	case <-ctx.Done():
		c.cancel()
		<-done
		return ctx.Err()
	}
}

// FileTracked sends a file.tracked event.
func (c *Client) FileTracked(dir, file, fingerprint string) {
	c.Send(Event{Event: EventFileTracked, Dir: dir, File: file, Version: 1, Fingerprint: fingerprint}, true)
}

// FileVersioned sends a file.versioned event.
func (c *Client) FileVersioned(dir, file string, version int, fingerprint, artifact string, size int64) {
	c.Send(Event{
		Event:       EventFileVersioned,
		Dir:         dir,
		File:        file,
		Version:     version,
		Fingerprint: fingerprint,
		Artifact:    artifact,
		Metadata:    map[string]any{"size": size},
	}, true)
}

// StateDiscarded sends a state.discarded event.
func (c *Client) StateDiscarded(dir, quarantined string) {
	c.Send(Event{Event: EventStateDiscarded, Dir: dir, Metadata: map[string]any{"quarantined": quarantined}}, true)
}
