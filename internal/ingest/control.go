package ingest

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is the cancellation condition raised at a signal check. The
// engine persists its latest progress before returning it.
var ErrCancelled = errors.New("ingestion cancelled")

// Control lets a job owner pause and cancel a running ingestion. Checkpoint
// is called at every window boundary and between batches: it returns nil to
// continue, blocks while paused, and returns ErrCancelled after a cancel.
type Control interface {
	Checkpoint(ctx context.Context) error
}

// nopControl runs uninterrupted. Used by the immediate path.
type nopControl struct{}

func (nopControl) Checkpoint(ctx context.Context) error { return ctx.Err() }

// ChannelControl implements Control with two signals: cancel is
// edge-triggered (fired once), pause is level-triggered (Checkpoint blocks
// until Resume, however the two calls interleave with the worker).
type ChannelControl struct {
	mu     sync.Mutex
	gate   chan struct{} // closed while running; open (blocking) while paused
	cancel chan struct{}
	once   sync.Once
}

// NewChannelControl creates an idle, unpaused control.
func NewChannelControl() *ChannelControl {
	gate := make(chan struct{})
	close(gate)
	return &ChannelControl{
		gate:   gate,
		cancel: make(chan struct{}),
	}
}

// Cancel signals cancellation. Safe to call more than once.
func (c *ChannelControl) Cancel() {
	c.once.Do(func() { close(c.cancel) })
}

// Pause makes subsequent Checkpoints block until Resume.
func (c *ChannelControl) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.gate:
		// Was running; swap in an open gate.
		c.gate = make(chan struct{})
	default:
		// Already paused.
	}
}

// Resume releases a paused control. No-op when not paused.
func (c *ChannelControl) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.gate:
	default:
		close(c.gate)
	}
}

// Checkpoint implements Control.
func (c *ChannelControl) Checkpoint(ctx context.Context) error {
	select {
	case <-c.cancel:
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.mu.Lock()
	gate := c.gate
	c.mu.Unlock()

	select {
	case <-gate:
		return nil
	case <-c.cancel:
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}
