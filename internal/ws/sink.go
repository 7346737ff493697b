package ws

import "github.com/gridport/gridport/internal/progress"

// Sink adapts the hub to the import progress feed: every event is broadcast
// to all connected clients as an import_progress message.
type Sink struct {
	Hub *Hub
}

var _ progress.Sink = Sink{}

func (s Sink) Publish(e progress.Event) {
	if s.Hub == nil {
		return
	}
	s.Hub.BroadcastJSON(MsgImportProgress, e)
}
