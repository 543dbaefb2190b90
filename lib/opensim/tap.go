// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package opensim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/lighthouse/lib/clock"
	"github.com/bureau-foundation/lighthouse/lib/netutil"
	"github.com/bureau-foundation/lighthouse/lib/secret"
	"github.com/bureau-foundation/lighthouse/lib/version"
)

// MessageDeliverer delivers an instant message to its recipients and
// reports success.
type MessageDeliverer interface {
	DeliverInstantMessage(ctx context.Context, im InstantMessage) bool
}

// DelivererFunc adapts a function to MessageDeliverer.
type DelivererFunc func(ctx context.Context, im InstantMessage) bool

// DeliverInstantMessage calls f.
func (f DelivererFunc) DeliverInstantMessage(ctx context.Context, im InstantMessage) bool {
	return f(ctx, im)
}

// TapConfig holds the parameters for NewTap.
type TapConfig struct {
	// BridgeURL is the full URL of the bridge's event endpoint
	// (e.g., "http://bridge:9010/os/event").
	BridgeURL string
	// Secret is sent as X-Bridge-Secret when non-nil.
	Secret *secret.Buffer
	// Concurrency bounds in-flight posts. Messages beyond it are
	// dropped. Defaults to 16.
	Concurrency int
	// Timeout bounds each post. Defaults to 5s.
	Timeout    time.Duration
	HTTPClient *http.Client
	Clock      clock.Clock
	Logger     *slog.Logger
}

// TapStats counts tap activity.
type TapStats struct {
	Dispatched uint64 `json:"dispatched"`
	Delivered  uint64 `json:"delivered"`
	Failed     uint64 `json:"failed"`
	Dropped    uint64 `json:"dropped"`
}

// Tap forwards group chat to the bridge without affecting delivery.
// Each forward runs on a detached goroutine with its own timeout;
// failures are logged and counted, never returned.
type Tap struct {
	url        string
	secret     *secret.Buffer
	slots      chan struct{}
	timeout    time.Duration
	httpClient *http.Client
	clock      clock.Clock
	logger     *slog.Logger
	inflight   sync.WaitGroup

	dispatched atomic.Uint64
	delivered  atomic.Uint64
	failed     atomic.Uint64
	dropped    atomic.Uint64
}

// NewTap validates config and returns a tap.
func NewTap(config TapConfig) (*Tap, error) {
	if config.BridgeURL == "" {
		return nil, fmt.Errorf("opensim: BridgeURL is required")
	}
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 16
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tap{
		url:        config.BridgeURL,
		secret:     config.Secret,
		slots:      make(chan struct{}, concurrency),
		timeout:    timeout,
		httpClient: httpClient,
		clock:      clk,
		logger:     logger,
	}, nil
}

// Eligible reports whether im is group chat the bridge should see.
func Eligible(im InstantMessage) bool {
	return im.FromGroup && im.Dialog == DialogSessionSend && !im.FromBridge()
}

// Observe starts forwarding im if it is eligible and a slot is free.
// It never blocks on the network. Returns whether a forward started.
func (t *Tap) Observe(im InstantMessage) bool {
	if !Eligible(im) {
		return false
	}

	select {
	case t.slots <- struct{}{}:
	default:
		t.dropped.Add(1)
		t.logger.Warn("bridge tap saturated, dropping message", "group_id", im.SessionID)
		return false
	}

	event := Event{
		Type:      EventTypeGroupMessage,
		GroupUUID: im.SessionID.String(),
		FromUUID:  im.FromAgentID.String(),
		FromName:  im.FromAgentName,
		Message:   im.Message,
		Dialog:    im.Dialog,
		TimeUnix:  t.clock.Now().Unix(),
	}

	t.dispatched.Add(1)
	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		defer func() { <-t.slots }()

		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if err := t.post(ctx, event); err != nil {
			t.failed.Add(1)
			t.logger.Warn("bridge tap delivery failed", "group_id", event.GroupUUID, "error", err)
			return
		}
		t.delivered.Add(1)
	}()
	return true
}

// Wrap returns a deliverer that observes every message and then
// delivers it through next. The tap's outcome never reaches the caller.
func (t *Tap) Wrap(next MessageDeliverer) MessageDeliverer {
	return DelivererFunc(func(ctx context.Context, im InstantMessage) bool {
		t.Observe(im)
		return next.DeliverInstantMessage(ctx, im)
	})
}

// Wait blocks until every started forward has finished.
func (t *Tap) Wait() {
	t.inflight.Wait()
}

// Stats returns a snapshot of the counters.
func (t *Tap) Stats() TapStats {
	return TapStats{
		Dispatched: t.dispatched.Load(),
		Delivered:  t.delivered.Load(),
		Failed:     t.failed.Load(),
		Dropped:    t.dropped.Load(),
	}
}

func (t *Tap) post(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("User-Agent", version.UserAgent())
	if t.secret != nil {
		request.Header.Set(SecretHeader, t.secret.String())
	}

	response, err := t.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("bridge returned %d: %s", response.StatusCode, netutil.ErrorBody(response.Body))
	}
	return nil
}
