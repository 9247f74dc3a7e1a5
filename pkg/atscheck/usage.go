package atscheck

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// UsageConfig holds UsageTracker configuration
type UsageConfig struct {
	// OnChange is called after every state replacement (optional)
	OnChange func(UsageInfo)

	// Timeout bounds a shared refresh request (default: 30s)
	Timeout time.Duration

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Metrics is used for tracking refreshes (default: NoopMetrics)
	Metrics Metrics
}

// UsageTracker holds the latest server-reported quota state.
// State is only ever replaced wholesale by a server response.
type UsageTracker struct {
	backend  UsageBackend
	onChange func(UsageInfo)
	timeout  time.Duration
	logger   Logger
	metrics  Metrics
	group    singleflight.Group

	mu        sync.RWMutex
	info      UsageInfo
	set       bool
	gen       uint64
	listeners []func(UsageInfo)
}

// NewUsageTracker creates a tracker reading from backend
func NewUsageTracker(backend UsageBackend, config UsageConfig) (*UsageTracker, error) {
	if backend == nil {
		return nil, fmt.Errorf("usage backend is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultAnalysisTimeout
	}
	return &UsageTracker{
		backend:  backend,
		onChange: config.OnChange,
		timeout:  config.Timeout,
		logger:   orNoopLogger(config.Logger),
		metrics:  orNoopMetrics(config.Metrics),
	}, nil
}

// Refresh fetches the authoritative usage from the backend.
// Errors leave the current state untouched. Concurrent refreshes for the
// same credential share one request; it is detached from any single caller,
// so one caller giving up does not fail the others.
func (t *UsageTracker) Refresh(ctx context.Context, credential string) (UsageInfo, error) {
	t.mu.RLock()
	startGen := t.gen
	t.mu.RUnlock()

	start := time.Now()
	ch := t.group.DoChan("usage:"+credential, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
		defer cancel()
		return t.backend.CheckUsage(fetchCtx, credential)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		t.metrics.RecordUsageRefresh(false, time.Since(start))
		return UsageInfo{}, ctxFailure(ctx.Err())
	}
	t.metrics.RecordUsageRefresh(res.Err == nil, time.Since(start))
	if res.Err != nil {
		t.logger.Warn("usage refresh failed", F("error", res.Err))
		return UsageInfo{}, res.Err
	}
	if err := ctx.Err(); err != nil {
		return UsageInfo{}, ctxFailure(err)
	}

	info := *res.Val.(*UsageInfo)

	t.mu.Lock()
	if t.gen != startGen {
		if !t.set {
			// Reset while in flight: the answer is still right for this
			// caller's credential but no longer belongs in the state
			t.mu.Unlock()
			t.logger.Debug("usage state reset during refresh")
			return info, nil
		}
		// A newer value landed while this request was in flight
		newer := t.info
		t.mu.Unlock()
		t.logger.Debug("discarding stale usage refresh")
		return newer, nil
	}
	t.replaceLocked(info)
	t.mu.Unlock()

	t.notify(info)
	return info, nil
}

func ctxFailure(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrCancelled, err)
}

// Apply replaces the state with the usage echoed by a successful analysis
func (t *UsageTracker) Apply(echo UsageInfo) {
	t.mu.Lock()
	t.replaceLocked(echo)
	t.mu.Unlock()

	t.notify(echo)
}

// Current returns the latest usage and whether any has been received
func (t *UsageTracker) Current() (UsageInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info, t.set
}

// Reset forgets the usage state, e.g. after the identity changed
func (t *UsageTracker) Reset() {
	t.mu.Lock()
	t.info = UsageInfo{}
	t.set = false
	t.gen++
	t.mu.Unlock()
}

func (t *UsageTracker) replaceLocked(info UsageInfo) {
	t.info = info
	t.set = true
	t.gen++
}

// Subscribe registers fn to be called after every state replacement
func (t *UsageTracker) Subscribe(fn func(UsageInfo)) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

func (t *UsageTracker) notify(info UsageInfo) {
	if t.onChange != nil {
		t.onChange(info)
	}
	t.mu.RLock()
	listeners := append([]func(UsageInfo){}, t.listeners...)
	t.mu.RUnlock()
	for _, fn := range listeners {
		fn(info)
	}
}
