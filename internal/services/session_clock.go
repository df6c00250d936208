package services

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SessionClock drives the time budget of every live session from the server
type SessionClock struct {
	sessions SessionService
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSessionClock(sessions SessionService, interval time.Duration, logger *slog.Logger) *SessionClock {
	if interval <= 0 {
		interval = time.Second
	}
	return &SessionClock{
		sessions: sessions,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the ticking goroutine. Calling Start twice is a no-op.
func (c *SessionClock) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(ctx, c.done)

	c.logger.Info("Session clock started", "interval", c.interval)
}

func (c *SessionClock) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if finished := c.sessions.TickAll(ctx); finished > 0 {
				c.logger.Info("Sessions timed out", "count", finished)
			}
		}
	}
}

// Stop halts the clock and waits for the current tick to return
func (c *SessionClock) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	c.logger.Info("Session clock stopped")
}
