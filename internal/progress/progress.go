// Package progress carries import progress events to interested listeners.
package progress

import "log/slog"

// Event is one progress update, published after each page of a table's
// import and once more when the table settles.
type Event struct {
	SessionID        string `json:"sessionId"`
	Table            string `json:"table,omitempty"`
	RecordsProcessed int64  `json:"recordsProcessed"`
	TotalRecords     int64  `json:"totalRecords"`
	Status           string `json:"status"`
}

// Sink receives events. Publish is fire-and-forget: it must never block and
// never fail the import, whatever the listener is doing.
type Sink interface {
	Publish(e Event)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Publish(Event) {}

// LogSink writes each event to a logger at debug level.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Publish(e Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("import progress",
		"session", e.SessionID,
		"table", e.Table,
		"processed", e.RecordsProcessed,
		"total", e.TotalRecords,
		"status", e.Status)
}

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Publish(e Event) {
	for _, s := range m {
		s.Publish(e)
	}
}
