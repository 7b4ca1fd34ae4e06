package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/trailmarks/gamification-backend/pkg/config"
	"github.com/trailmarks/gamification-backend/pkg/errors"
	"github.com/trailmarks/gamification-backend/pkg/logger"
)

// State is one phase of the subscription connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

var legalTransitions = map[State][]State{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateConnected, StateReconnecting, StateFailed, StateDisconnected},
	StateConnected:    {StateReconnecting, StateDisconnected},
	StateReconnecting: {StateConnecting, StateFailed, StateDisconnected},
	StateFailed:       {StateDisconnected},
}

// backoffDelay returns min(base << attempt, cap) for the zero-based attempt.
func backoffDelay(base, limit time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	if delay > limit {
		return limit
	}
	return delay
}

// ReceiveFunc blocks consuming the stream while connected. It returns nil on
// context cancellation and an error on stream failure.
type ReceiveFunc func(ctx context.Context) error

// Connection drives one subscription through the reconnect state machine.
// After MaxAttempts consecutive failures it stays Failed until Reset.
type Connection struct {
	name    string
	cfg     config.RealtimeConfig
	receive ReceiveFunc
	logg    *logger.Logger

	mu      sync.Mutex
	state   State
	attempt int
	epoch   uint64

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewConnection wires a connection around the blocking receive function.
func NewConnection(name string, cfg config.RealtimeConfig, receive ReceiveFunc, logg *logger.Logger) (*Connection, error) {
	if receive == nil {
		return nil, errors.New(errors.CodeInternal, "receive function required")
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap < cfg.BackoffBase {
		cfg.BackoffCap = cfg.BackoffBase
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Connection{
		name:    name,
		cfg:     cfg,
		receive: receive,
		logg:    logg,
		state:   StateDisconnected,
		sleep:   sleepCtx,
		now:     time.Now,
	}, nil
}

// State reports the current connection state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Epoch increments on every successful connect. Consumers stamp deliveries
// with it so nothing is replayed across reconnects.
func (c *Connection) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Reset returns a Failed connection to Disconnected so Run can be retried.
func (c *Connection) Reset() error {
	return c.transition(StateDisconnected, func() { c.attempt = 0 })
}

func (c *Connection) transition(next State, apply func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, allowed := range legalTransitions[c.state] {
		if allowed == next {
			c.state = next
			if apply != nil {
				apply()
			}
			return nil
		}
	}
	return errors.New(errors.CodeInternal, "illegal connection transition").
		WithDetails(map[string]any{"from": string(c.state), "to": string(next)})
}

// Run consumes the stream until the context is cancelled or the attempt
// budget is spent. Each stream error backs off exponentially before the next
// connect; cancellation during backoff releases immediately.
func (c *Connection) Run(ctx context.Context) error {
	for {
		if err := c.transition(StateConnecting, nil); err != nil {
			return err
		}
		if ctx.Err() != nil {
			_ = c.transition(StateDisconnected, nil)
			return ctx.Err()
		}

		if err := c.transition(StateConnected, func() { c.epoch++ }); err != nil {
			return err
		}
		if c.logg != nil {
			c.logg.Info(c.logg.WithField(ctx, "connection", c.name), "realtime stream connected")
		}

		connectedAt := c.now()
		err := c.receive(ctx)
		if err == nil || ctx.Err() != nil {
			_ = c.transition(StateDisconnected, nil)
			return ctx.Err()
		}

		// A stream that stayed up past the backoff cap earns a fresh budget;
		// immediate failures keep counting toward MaxAttempts.
		healthy := c.now().Sub(connectedAt) >= c.cfg.BackoffCap
		if terr := c.transition(StateReconnecting, func() {
			if healthy {
				c.attempt = 1
			} else {
				c.attempt++
			}
		}); terr != nil {
			return terr
		}
		c.mu.Lock()
		attempt := c.attempt
		c.mu.Unlock()
		if c.logg != nil {
			c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
				"connection": c.name,
				"attempt":    attempt,
			}), "realtime stream dropped")
		}

		if attempt > c.cfg.MaxAttempts {
			_ = c.transition(StateFailed, nil)
			return errors.Wrap(errors.CodeRetriesExhausted, err, "realtime reconnect attempts exhausted")
		}

		delay := backoffDelay(c.cfg.BackoffBase, c.cfg.BackoffCap, attempt-1)
		if serr := c.sleep(ctx, delay); serr != nil {
			_ = c.transition(StateDisconnected, nil)
			return serr
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
