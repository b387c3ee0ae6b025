// Package events delivers best-effort notifications about assignment
// lifecycle changes. Delivery never blocks or fails the caller.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Notification types.
const (
	ExamAssigned        = "exam.assigned"
	AssignmentStarted   = "assignment.started"
	AssignmentSubmitted = "assignment.submitted"
	AssignmentGraded    = "assignment.graded"
	StudentsImported    = "students.imported"
)

// Event is one notification. Key identifies the subject, usually an
// assignment or exam ID.
type Event struct {
	Type string         `json:"type"`
	Key  string         `json:"key"`
	Data map[string]any `json:"data,omitempty"`
	At   time.Time      `json:"at"`
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Deliver(ctx context.Context, e Event) error
}

const defaultTimeout = 5 * time.Second

// Dispatcher fans events out to its sinks in the background.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher returns a dispatcher delivering to sinks.
func NewDispatcher(sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, timeout: defaultTimeout}
}

// Publish delivers e to every sink on a separate goroutine. The caller's
// cancellation does not stop delivery, which runs under its own timeout.
func (d *Dispatcher) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	dctx := context.WithoutCancel(ctx)
	for _, s := range d.sinks {
		d.wg.Add(1)
		go func(s Sink) {
			defer d.wg.Done()
			sctx, cancel := context.WithTimeout(dctx, d.timeout)
			defer cancel()
			if err := s.Deliver(sctx, e); err != nil {
				slog.Warn("event delivery failed", "type", e.Type, "key", e.Key, "sink", sinkName(s), "error", err)
			}
		}(s)
	}
}

// Close waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.wg.Wait()
}

func sinkName(s Sink) string {
	switch s.(type) {
	case *LogSink:
		return "log"
	case *StoreSink:
		return "store"
	case *RedisSink:
		return "redis"
	}
	return "custom"
}
