package importer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gridport/gridport/internal/session"
)

func TestWatchUntilTerminal(t *testing.T) {
	ctx := context.Background()
	sessions := session.NewMemoryStore()
	s := &session.ImportSession{
		ID:      "w1",
		Status:  session.StatusPending,
		Results: map[string]*session.TableResult{},
	}
	if err := sessions.Create(ctx, s); err != nil {
		t.Fatal(err)
	}

	// The callback drives the state machine forward, so every transition is
	// observed without sleeping.
	w := NewWatcher(sessions, time.Millisecond)
	var seen []session.Status
	final, err := w.Watch(ctx, "w1", func(cur *session.ImportSession) {
		seen = append(seen, cur.Status)
		switch {
		case cur.Status == session.StatusPending:
			cur.Status = session.StatusRunning
			cur.ProcessedRecords = 5
		case cur.ProcessedRecords == 5:
			cur.ProcessedRecords = 10
		default:
			cur.Status = session.StatusCompleted
		}
		if err := sessions.Update(ctx, cur); err != nil {
			t.Fatal(err)
		}
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if final.Status != session.StatusCompleted {
		t.Errorf("final status = %s", final.Status)
	}

	want := []session.Status{
		session.StatusPending,
		session.StatusRunning,
		session.StatusRunning, // progress moved, status did not
		session.StatusCompleted,
	}
	if len(seen) != len(want) {
		t.Fatalf("callbacks = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("callback %d = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestWatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sessions := session.NewMemoryStore()
	s := &session.ImportSession{
		ID:      "w2",
		Status:  session.StatusRunning,
		Results: map[string]*session.TableResult{},
	}
	if err := sessions.Create(ctx, s); err != nil {
		t.Fatal(err)
	}

	w := NewWatcher(sessions, time.Hour)
	_, err := w.Watch(ctx, "w2", func(*session.ImportSession) {
		cancel()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestWatchMissingSession(t *testing.T) {
	w := NewWatcher(session.NewMemoryStore(), time.Millisecond)
	_, err := w.Watch(context.Background(), "ghost", nil)
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestNewWatcherDefaultInterval(t *testing.T) {
	w := NewWatcher(session.NewMemoryStore(), 0)
	if w.interval != pollInterval {
		t.Errorf("interval = %v, want %v", w.interval, pollInterval)
	}
}
