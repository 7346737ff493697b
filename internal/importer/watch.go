package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/gridport/gridport/internal/session"
)

const (
	pollInterval = 2 * time.Second
)

// Watcher polls a session store and surfaces state changes to a callback.
// It observes through the store only, so it also works against sessions
// being run by another process.
type Watcher struct {
	sessions session.Store
	interval time.Duration
}

// NewWatcher creates a new session watcher. Non-positive intervals fall back
// to the default.
func NewWatcher(sessions session.Store, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = pollInterval
	}
	return &Watcher{sessions: sessions, interval: interval}
}

// Watch polls the session until it reaches a terminal state, invoking
// callback whenever the status or the processed count moves. The terminal
// session is returned.
func (w *Watcher) Watch(ctx context.Context, sessionID string, callback func(*session.ImportSession)) (*session.ImportSession, error) {
	lastStatus := session.Status("")
	lastProcessed := int64(-1)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		s, err := w.sessions.Get(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("polling session: %w", err)
		}

		// Terminality follows the status the store reported, not anything
		// the callback does to its view.
		status := s.Status
		if status != lastStatus || s.ProcessedRecords != lastProcessed {
			lastStatus = status
			lastProcessed = s.ProcessedRecords
			if callback != nil {
				callback(s)
			}
		}
		if status.Terminal() {
			return s, nil
		}

		// Wait before next poll
		timer := time.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
