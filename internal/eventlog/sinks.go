package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spachava753/peerlab/internal/models"
)

// SlogSink mirrors events to a structured logger.
type SlogSink struct {
	Logger *slog.Logger
}

func (s SlogSink) Write(e models.Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []slog.Attr{slog.Int("seq", e.Seq), slog.String("type", string(e.Type))}
	if e.Turn > 0 {
		attrs = append(attrs, slog.Int("turn", e.Turn))
	}
	if e.Agent != "" {
		attrs = append(attrs, slog.String("agent", string(e.Agent)))
	}
	if e.Stage != nil {
		attrs = append(attrs, slog.String("stage", e.Stage.String()))
	}
	level := slog.LevelInfo
	switch e.Type {
	case models.EventError:
		level = slog.LevelError
		attrs = append(attrs, slog.String("error_type", string(e.ErrorType)))
	case models.EventLLMCall, models.EventHostOperation:
		level = slog.LevelDebug
	case models.EventEvaluationSkipped:
		level = slog.LevelWarn
	}
	logger.LogAttrs(context.Background(), level, e.Message, attrs...)
	return nil
}

// TextSink writes one human-readable line per event.
type TextSink struct {
	w *bufio.Writer
	c io.Closer
}

// NewTextSink writes to w. If w is an io.Closer, Close closes it.
func NewTextSink(w io.Writer) *TextSink {
	s := &TextSink{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

// CreateTextFile creates (truncating) a text log at path.
func CreateTextFile(path string) (*TextSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating text log: %w", err)
	}
	return NewTextSink(f), nil
}

// FormatLine renders an event as "[timestamp] TYPE: description".
func FormatLine(e models.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", e.Timestamp.Format("2006-01-02 15:04:05"), strings.ToUpper(string(e.Type)), e.Message)
	if e.ErrorType != "" {
		fmt.Fprintf(&b, " (%s)", e.ErrorType)
	}
	return b.String()
}

func (s *TextSink) Write(e models.Event) error {
	if _, err := s.w.WriteString(FormatLine(e) + "\n"); err != nil {
		return err
	}
	return s.w.Flush()
}

// WriteSummary appends the statistics block that closes a text log.
func (s *TextSink) WriteSummary(st models.Statistics) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding statistics: %w", err)
	}
	rule := strings.Repeat("=", 80)
	fmt.Fprintf(s.w, "\n%s\nSIMULATION STATISTICS SUMMARY\n%s\n%s\n%s\n", rule, rule, data, rule)
	return s.w.Flush()
}

func (s *TextSink) Close() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}

// Document is the JSON log file: summary statistics followed by all events.
type Document struct {
	Statistics models.Statistics `json:"statistics"`
	Events     []models.Event    `json:"events"`
}

// WriteJSON writes the document to path, indented.
func WriteJSON(path string, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding JSON log: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing JSON log: %w", err)
	}
	return nil
}

// ReadJSON loads a document written by WriteJSON.
func ReadJSON(path string) (Document, error) {
	var doc Document
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("reading JSON log: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parsing JSON log: %w", err)
	}
	return doc, nil
}
