// Package audit records who did what to which booking or event. Sinks are
// append-only side channels: a failed write is reported to the caller but
// never undoes the change it describes.
package audit

import (
	"context"
	"errors"
	"log"
	"time"
)

// Subject types.
const (
	SubjectBooking = "booking"
	SubjectEvent   = "event"
)

// Entry is one audit record.
type Entry struct {
	ActorID     string         `json:"actor_id"`
	SubjectType string         `json:"subject_type"`
	SubjectID   string         `json:"subject_id"`
	Event       string         `json:"event"`
	Properties  map[string]any `json:"properties,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// Sink accepts audit entries.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// LogSink writes entries to a standard logger.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink returns a sink writing to l, or to the default logger when l is nil.
func NewLogSink(l *log.Logger) *LogSink {
	if l == nil {
		l = log.Default()
	}
	return &LogSink{logger: l}
}

func (s *LogSink) Record(_ context.Context, e Entry) error {
	s.logger.Printf("[audit] %s actor=%s %s=%s props=%v", e.Event, e.ActorID, e.SubjectType, e.SubjectID, e.Properties)
	return nil
}

// Multi fans an entry out to several sinks. Every sink is attempted; the
// returned error joins the individual failures.
type Multi []Sink

func (m Multi) Record(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }
