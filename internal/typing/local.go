// Package typing holds both halves of the typing-indicator state
// machine: the debounced local emitter and the auto-expiring map of
// remote typing states.
package typing

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultQuietPeriod is how long after the last keystroke the local
// side waits before emitting "stopped".
const DefaultQuietPeriod = 2 * time.Second

// Emitter carries typing intents to the server. The gateway satisfies
// this; a dropped intent (channel down) is not an error worth acting on.
type Emitter interface {
	SendTypingState(ctx context.Context, conversationID, displayName string, typing bool) error
}

// Local debounces the operator's own typing signal. At most one
// "started" is emitted per burst of keystrokes, and exactly one
// "stopped" follows, either after the quiet period or immediately on
// send/close.
type Local struct {
	emitter  Emitter
	operator string
	quiet    time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	typing map[string]bool
	timers map[string]*time.Timer
}

// NewLocal creates the local emitter. A non-positive quiet period
// selects the default.
func NewLocal(emitter Emitter, operator string, quiet time.Duration, logger *zap.Logger) *Local {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{
		emitter:  emitter,
		operator: operator,
		quiet:    quiet,
		logger:   logger,
		typing:   make(map[string]bool),
		timers:   make(map[string]*time.Timer),
	}
}

// InputChanged is called on every content change in the composer. The
// first non-empty input of a burst emits "started"; every call re-arms
// the quiet timer.
func (l *Local) InputChanged(conversationID, content string) {
	nonEmpty := strings.TrimSpace(content) != ""

	l.mu.Lock()
	if t, ok := l.timers[conversationID]; ok {
		t.Stop()
	}
	l.timers[conversationID] = time.AfterFunc(l.quiet, func() {
		l.quietElapsed(conversationID)
	})

	start := nonEmpty && !l.typing[conversationID]
	if start {
		l.typing[conversationID] = true
	}
	l.mu.Unlock()

	if start {
		l.emit(conversationID, true)
	}
}

// Stop emits an immediate "stopped", bypassing the quiet timer. Called
// on send and when the conversation view closes. Idempotent.
func (l *Local) Stop(conversationID string) {
	l.mu.Lock()
	if t, ok := l.timers[conversationID]; ok {
		t.Stop()
		delete(l.timers, conversationID)
	}
	wasTyping := l.typing[conversationID]
	delete(l.typing, conversationID)
	l.mu.Unlock()

	if wasTyping {
		l.emit(conversationID, false)
	}
}

// StopAll flushes every pending typing state. Used on teardown so no
// remote has to wait out a stale expiry.
func (l *Local) StopAll() {
	l.mu.Lock()
	ids := make([]string, 0, len(l.typing))
	for id := range l.typing {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	for _, id := range ids {
		l.Stop(id)
	}
}

func (l *Local) quietElapsed(conversationID string) {
	l.mu.Lock()
	delete(l.timers, conversationID)
	wasTyping := l.typing[conversationID]
	delete(l.typing, conversationID)
	l.mu.Unlock()

	if wasTyping {
		l.emit(conversationID, false)
	}
}

func (l *Local) emit(conversationID string, typing bool) {
	if err := l.emitter.SendTypingState(context.Background(), conversationID, l.operator, typing); err != nil {
		l.logger.Debug("typing intent dropped",
			zap.String("conversation", conversationID),
			zap.Bool("typing", typing),
			zap.Error(err))
	}
}
