package meshlink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/meshxfer/meshxfer/internal/observability"
	"github.com/meshxfer/meshxfer/internal/ratelimit"
)

var (
	// ErrReconnectCooldown is returned when a reconnect is attempted before
	// the cooldown window since the previous attempt has elapsed.
	ErrReconnectCooldown = errors.New("meshlink: reconnect attempted during cooldown")
	// ErrReconnectExhausted is returned when every bounded reconnect
	// attempt failed to reopen the link.
	ErrReconnectExhausted = errors.New("meshlink: reconnect attempts exhausted")
	// ErrSendExhausted is returned when every send retry failed.
	ErrSendExhausted = errors.New("meshlink: send retries exhausted")
)

// AdapterConfig tunes the reconnect and retry envelope around a Radio.
type AdapterConfig struct {
	MaxReconnectAttempts int
	ReconnectPause       time.Duration
	ReconnectCooldown    time.Duration
	SendRetries          int
	// ResetHook is optionally invoked before each reconnect attempt to give
	// a host-level radio reset (e.g. power-cycling a BLE adapter) a chance
	// to run before the link is reopened. It is best-effort: its error is
	// logged, never fatal to the reconnect attempt.
	ResetHook func() error
}

// DefaultAdapterConfig returns the timings the mesh protocol was specified
// against.
func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		MaxReconnectAttempts: 3,
		ReconnectPause:       3 * time.Second,
		ReconnectCooldown:    5 * time.Second,
		SendRetries:          3,
	}
}

// Adapter guards a Radio with a mutex so open/close/reconnect never race,
// and layers bounded reconnect and send-retry policy on top of it.
type Adapter struct {
	cfg    AdapterConfig
	radio  Radio
	logger *observability.Logger

	mu       sync.Mutex
	cooldown *ratelimit.TokenBucket
}

// NewAdapter wraps radio with the given reconnect/retry policy.
func NewAdapter(radio Radio, cfg AdapterConfig, logger *observability.Logger) *Adapter {
	cooldownSeconds := cfg.ReconnectCooldown.Seconds()
	if cooldownSeconds <= 0 {
		cooldownSeconds = 1
	}
	return &Adapter{
		cfg:      cfg,
		radio:    radio,
		logger:   logger,
		cooldown: ratelimit.NewTokenBucket(1.0/cooldownSeconds, 1),
	}
}

// Open opens the underlying radio.
func (a *Adapter) Open(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.radio.Open(ctx)
}

// Close tears down the underlying radio.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.radio.Close()
}

// Subscribe registers the inbound handler on the underlying radio.
func (a *Adapter) Subscribe(handler func(fromNodeID, text string)) {
	a.radio.Subscribe(handler)
}

// Reconnect attempts to reopen the link, subject to the cooldown gate and a
// bounded number of attempts, optionally invoking ResetHook before each try.
func (a *Adapter) Reconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.cooldown.Allow(1) {
		return ErrReconnectCooldown
	}

	var lastErr error
	for attempt := 1; attempt <= a.cfg.MaxReconnectAttempts; attempt++ {
		if a.cfg.ResetHook != nil {
			if err := a.cfg.ResetHook(); err != nil && a.logger != nil {
				a.logger.Warn(fmt.Sprintf("radio reset hook failed on attempt %d: %v", attempt, err))
			}
		}

		_ = a.radio.Close()
		if err := a.radio.Open(ctx); err == nil {
			if a.logger != nil {
				a.logger.Info(fmt.Sprintf("reconnected on attempt %d", attempt))
			}
			return nil
		} else {
			lastErr = err
		}

		if attempt < a.cfg.MaxReconnectAttempts {
			time.Sleep(a.cfg.ReconnectPause)
		}
	}

	if a.logger != nil {
		a.logger.Error(lastErr, "reconnect attempts exhausted")
	}
	return fmt.Errorf("%w: %v", ErrReconnectExhausted, lastErr)
}

// SendWithRetry sends text, reconnecting and retrying on failure up to
// cfg.SendRetries times.
func (a *Adapter) SendWithRetry(ctx context.Context, text string) error {
	var lastErr error
	for attempt := 1; attempt <= a.cfg.SendRetries; attempt++ {
		a.mu.Lock()
		err := a.radio.SendText(ctx, text)
		a.mu.Unlock()
		if err == nil {
			return nil
		}
		lastErr = err
		if a.logger != nil {
			a.logger.Warn(fmt.Sprintf("send attempt %d failed: %v", attempt, err))
		}
		if attempt < a.cfg.SendRetries {
			if rerr := a.Reconnect(ctx); rerr != nil && a.logger != nil {
				a.logger.Warn(fmt.Sprintf("reconnect before retry failed: %v", rerr))
			}
		}
	}
	return fmt.Errorf("%w: %v", ErrSendExhausted, lastErr)
}

// IsTransportError reports whether an error's text suggests the radio
// subsystem itself is unhealthy (as opposed to an application-level
// failure), mirroring the original implementation's substring sniff on its
// Bluetooth error text.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"ble", "bluetooth", "hci", "radio"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
