// Package notify delivers the new-message audio cue. Playback is gated
// behind a one-time unlock and always degrades to a synthesized tone
// rather than failing silently — or loudly.
package notify

import (
	"sync"

	"github.com/komsan13/chat-center-sub000/internal/metrics"
	"go.uber.org/zap"
)

// Player produces the notification cue audio.
type Player interface {
	// Prime performs the muted warm-up playback that satisfies the
	// delivery environment's gesture requirement for audio output.
	Prime() error
	// Play plays the cue from the start.
	Play() error
}

// Controller gates the cue behind the unlock handshake and falls back
// to the synthesized tone when the primary asset cannot play. It knows
// nothing about which conversation is open; suppression for the open
// conversation is the event handler's job.
type Controller struct {
	primary  Player
	fallback Player
	logger   *zap.Logger

	mu       sync.Mutex
	primed   bool
	unlocked bool
}

// NewController creates a controller. primary may be nil when no audio
// asset is configured; the fallback tone then carries every cue.
func NewController(primary, fallback Player, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{primary: primary, fallback: fallback, logger: logger}
}

// Unlock runs the one-time priming playback. It fires on the first
// user-originated event after startup and never again, whatever the
// outcome.
func (c *Controller) Unlock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.primed {
		return
	}
	c.primed = true

	if c.primary == nil {
		return
	}
	if err := c.primary.Prime(); err != nil {
		c.logger.Warn("audio priming failed, cue will use fallback tone", zap.Error(err))
		return
	}
	c.unlocked = true
}

// Unlocked reports whether the primary asset is cleared for playback.
func (c *Controller) Unlocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unlocked
}

// Play delivers the cue: the primary asset when unlocked, the
// synthesized tone otherwise or on playback failure. A fallback
// failure is swallowed.
func (c *Controller) Play() {
	c.mu.Lock()
	usePrimary := c.unlocked && c.primary != nil
	c.mu.Unlock()

	if usePrimary {
		err := c.primary.Play()
		if err == nil {
			metrics.NotificationsTotal.WithLabelValues("primary").Inc()
			return
		}
		c.logger.Debug("primary cue playback failed", zap.Error(err))
	}

	if c.fallback == nil {
		return
	}
	if err := c.fallback.Play(); err != nil {
		c.logger.Debug("fallback tone failed", zap.Error(err))
		return
	}
	metrics.NotificationsTotal.WithLabelValues("fallback").Inc()
}
