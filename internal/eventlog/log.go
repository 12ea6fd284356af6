// Package eventlog holds the append-only record of a simulation run and the
// sinks that persist it.
package eventlog

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/spachava753/peerlab/internal/models"
)

// Sink receives every event after it is appended.
type Sink interface {
	Write(models.Event) error
}

// Log is an append-only, mutex-guarded event log. The zero value is not
// usable; use New.
type Log struct {
	mu     sync.Mutex
	events []models.Event
	sinks  []Sink
	now    func() time.Time
}

// New creates an empty log that forwards appended events to sinks.
func New(sinks ...Sink) *Log {
	return &Log{sinks: sinks, now: time.Now}
}

// SetClock replaces the timestamp source.
func (l *Log) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Now returns the log's current time.
func (l *Log) Now() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now()
}

// AddSink attaches another sink for subsequent appends.
func (l *Log) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Append assigns the next sequence number (and a timestamp when unset), stores
// the event and forwards it to the sinks. Sink failures are logged, not
// returned: a broken log file must not stop the run.
func (l *Log) Append(e models.Event) models.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.Seq = len(l.events) + 1
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	l.events = append(l.events, e)

	for _, s := range l.sinks {
		if err := s.Write(e); err != nil {
			slog.Warn("event sink write failed", "seq", e.Seq, "type", e.Type, "error", err)
		}
	}
	return e
}

// Events returns a copy of the log in append order.
func (l *Log) Events() []models.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of events appended so far.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Filter returns the events of the given type in append order.
func (l *Log) Filter(t models.EventType) []models.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reviews returns every review record in the log.
func (l *Log) Reviews() []models.ReviewRecord {
	var out []models.ReviewRecord
	for _, e := range l.Filter(models.EventReview) {
		if e.Review != nil {
			out = append(out, *e.Review)
		}
	}
	return out
}

// Verdicts returns every evaluator verdict in the log.
func (l *Log) Verdicts() []models.EvaluatorVerdict {
	var out []models.EvaluatorVerdict
	for _, e := range l.Filter(models.EventEvaluation) {
		if e.Verdict != nil {
			out = append(out, *e.Verdict)
		}
	}
	return out
}

// Close closes every sink that implements io.Closer.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for _, s := range l.sinks {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
