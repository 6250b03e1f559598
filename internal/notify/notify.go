// Package notify delivers the two outbound per-leg HTTP calls a
// per-leg swap needs to tell its cooperating peer LP what happened:
// that the M1 leg is locked, and that the BTC leg was claimed (which
// reveals all three secrets). Delivery is best-effort: on-chain events
// are authoritative, so a swap keeps progressing locally even if its
// peer never receives either call.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/flowswap/lp-node/internal/engine"
	"github.com/flowswap/lp-node/pkg/logging"
)

// Config controls the retry schedule.
type Config struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int
	RequestTimeout time.Duration
}

// DefaultConfig matches the 1s -> 60s cap, 10-attempt retry policy.
func DefaultConfig() *Config {
	return &Config{
		InitialBackoff: time.Second,
		MaxBackoff:     60 * time.Second,
		MaxAttempts:    10,
		RequestTimeout: 10 * time.Second,
	}
}

// UnreachableHandler is invoked once a peer exhausts its retry budget,
// so the caller (the engine, via an adapter) can park the swap in
// StatePeerUnreachable without notify needing to import engine's swap
// mutation surface.
type UnreachableHandler func(swapID string)

// Notifier implements engine.Notifier against HTTP peer LP endpoints.
type Notifier struct {
	cfg         *Config
	client      *http.Client
	log         *logging.Logger
	unreachable UnreachableHandler
}

// New constructs a Notifier. unreachable may be nil.
func New(cfg *Config, unreachable UnreachableHandler) *Notifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Notifier{
		cfg:         cfg,
		client:      &http.Client{Timeout: cfg.RequestTimeout},
		log:         logging.GetDefault().Component("notify"),
		unreachable: unreachable,
	}
}

var _ engine.Notifier = (*Notifier)(nil)

// NotifyM1Locked posts the m1-locked payload to the peer's webhook.
func (n *Notifier) NotifyM1Locked(ctx context.Context, peerURL string, payload engine.M1LockedPayload) error {
	return n.post(ctx, peerURL+"/peer/m1-locked", payload, payload.SwapID)
}

// NotifyBTCClaimed posts the btc-claimed payload to the peer's webhook.
func (n *Notifier) NotifyBTCClaimed(ctx context.Context, peerURL string, payload engine.BTCClaimedPayload) error {
	return n.post(ctx, peerURL+"/peer/btc-claimed", payload, payload.SwapID)
}

// post delivers body to url with exponential backoff. It returns nil
// as soon as the peer responds with 2xx; it returns an error, and
// invokes the unreachable handler, only once every attempt in the
// retry budget has been exhausted.
func (n *Notifier) post(ctx context.Context, url string, body interface{}, swapID string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}

	backoff := n.cfg.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= n.cfg.MaxAttempts; attempt++ {
		if err := n.attempt(ctx, url, data); err != nil {
			lastErr = err
			n.log.Warn("peer notification attempt failed", "url", url, "attempt", attempt, "error", err)

			if attempt == n.cfg.MaxAttempts {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > n.cfg.MaxBackoff {
				backoff = n.cfg.MaxBackoff
			}
			continue
		}
		return nil
	}

	if n.unreachable != nil {
		n.unreachable(swapID)
	}
	return fmt.Errorf("notify: peer unreachable after %d attempts: %w", n.cfg.MaxAttempts, lastErr)
}

func (n *Notifier) attempt(ctx context.Context, url string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("peer returned status %d", resp.StatusCode)
	}
	return nil
}
