package progress

import "sync"

// CaptureSink records published events. Publish is safe from the
// orchestrator goroutine while a test reads Events.
type CaptureSink struct {
	mu     sync.Mutex
	events []Event
}

var _ Sink = (*CaptureSink)(nil)

func (c *CaptureSink) Publish(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

// Events returns a copy of everything published so far.
func (c *CaptureSink) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Last returns the most recent event, if any.
func (c *CaptureSink) Last() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return Event{}, false
	}
	return c.events[len(c.events)-1], true
}
