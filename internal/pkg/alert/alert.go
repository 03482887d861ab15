// Package alert sends operator notifications through the Bark push API.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultServer   = "https://day.app"
	DefaultThrottle = 10 * time.Minute
)

type Config struct {
	Key       string
	Server    string
	SiteTitle string
}

// Notifier pushes alerts. A Notifier without a key is a no-op, so callers
// never need to check whether alerting is configured.
type Notifier struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger

	mu         sync.Mutex
	lastPushAt map[string]time.Time
	throttle   time.Duration
	now        func() time.Time
}

type Option func(*Notifier)

func WithHTTPClient(hc *http.Client) Option {
	return func(n *Notifier) { n.httpClient = hc }
}

func WithThrottle(d time.Duration) Option {
	return func(n *Notifier) { n.throttle = d }
}

func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

func New(cfg Config, logger *zap.Logger, opts ...Option) *Notifier {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		lastPushAt: make(map[string]time.Time),
		throttle:   DefaultThrottle,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Notifier) Enabled() bool { return n != nil && n.cfg.Key != "" }

type pushPayload struct {
	DeviceKey string `json:"device_key"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Category  string `json:"category,omitempty"`
	Group     string `json:"group,omitempty"`
}

// Push sends a notification immediately (no throttle).
func (n *Notifier) Push(ctx context.Context, title, body string) error {
	if !n.Enabled() {
		return nil
	}

	payload := pushPayload{
		DeviceKey: n.cfg.Key,
		Title:     fmt.Sprintf("[%s] %s", n.cfg.SiteTitle, title),
		Body:      body,
		Category:  n.cfg.SiteTitle,
		Group:     n.cfg.SiteTitle,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.Server+"/push", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("bark push failed with status %d", resp.StatusCode)
	}
	return nil
}

// ThrottlePush sends at most one notification per key and throttle window.
// Errors are logged and dropped. It reports whether a push was attempted.
func (n *Notifier) ThrottlePush(ctx context.Context, key, title, body string) bool {
	if !n.Enabled() {
		return false
	}

	n.mu.Lock()
	now := n.now()
	if last, ok := n.lastPushAt[key]; ok && now.Sub(last) < n.throttle {
		n.mu.Unlock()
		return false
	}
	n.lastPushAt[key] = now
	n.mu.Unlock()

	if err := n.Push(ctx, title, body); err != nil {
		n.logger.Warn("alert push failed", zap.String("key", key), zap.Error(err))
	}
	return true
}

// RateLimitTripped reports a client that exceeded a rate limit.
func (n *Notifier) RateLimitTripped(ip, path string) {
	n.ThrottlePush(context.Background(), "rate|"+ip+"|"+path,
		"Rate limit exceeded", fmt.Sprintf("IP: %s Path: %s", ip, path))
}

// ProviderAuthFailure reports that the AI provider rejected our credentials.
func (n *Notifier) ProviderAuthFailure(provider, model string) {
	n.ThrottlePush(context.Background(), "provider-auth|"+provider,
		"AI provider authentication failed", fmt.Sprintf("Provider: %s Model: %s", provider, model))
}
