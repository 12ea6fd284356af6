package eventlog

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/spachava753/peerlab/internal/models"
)

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func fixedClock() func() time.Time {
	t := epoch
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

type recordingSink struct {
	got    []models.Event
	fail   bool
	closed bool
}

func (r *recordingSink) Write(e models.Event) error {
	r.got = append(r.got, e)
	if r.fail {
		return errors.New("disk full")
	}
	return nil
}

func (r *recordingSink) Close() error {
	r.closed = true
	return nil
}

func TestAppend(t *testing.T) {
	sink := &recordingSink{}
	failing := &recordingSink{fail: true}
	log := New(sink, failing)
	log.SetClock(fixedClock())

	first := log.Append(models.Event{Type: models.EventSimulationStart, Message: "start"})
	stamped := epoch.Add(time.Hour)
	second := log.Append(models.Event{Type: models.EventTurnStart, Turn: 1, Timestamp: stamped})

	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("unexpected sequence numbers %d, %d", first.Seq, second.Seq)
	}
	if !first.Timestamp.Equal(epoch.Add(time.Second)) {
		t.Errorf("expected clock timestamp, got %v", first.Timestamp)
	}
	if !second.Timestamp.Equal(stamped) {
		t.Errorf("preset timestamp was overwritten: %v", second.Timestamp)
	}
	if diff := cmp.Diff(log.Events(), sink.got); diff != "" {
		t.Errorf("sink saw different events (-log +sink):\n%s", diff)
	}
	if len(failing.got) != 2 {
		t.Errorf("failing sink should still receive every event, got %d", len(failing.got))
	}
	if log.Len() != 2 {
		t.Errorf("Len = %d, want 2", log.Len())
	}

	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !sink.closed || !failing.closed {
		t.Error("expected sinks to be closed")
	}
}

func TestEventsIsACopy(t *testing.T) {
	log := New()
	log.Append(models.Event{Type: models.EventSimulationStart, Message: "start"})

	events := log.Events()
	events[0].Message = "mutated"

	if log.Events()[0].Message != "start" {
		t.Error("Events must not expose the internal slice")
	}
}

func TestAccessors(t *testing.T) {
	log := New()
	rec := models.ReviewRecord{ID: "r1", Author: models.RoleA, Reviewer: models.RoleB, Verdict: models.VerdictApprove}
	verdict := models.EvaluatorVerdict{Evaluator: "Keiko Yoshida", Target: models.RoleA, Amount: 300}

	log.Append(models.Event{Type: models.EventEvaluation, Verdict: &verdict})
	log.Append(models.Event{Type: models.EventReview, Review: &rec})
	log.Append(models.Event{Type: models.EventReview})
	log.Append(models.Event{Type: models.EventError, ErrorType: models.ErrTypeTransient})

	if got := log.Reviews(); len(got) != 1 || got[0].ID != "r1" {
		t.Errorf("Reviews = %+v", got)
	}
	if got := log.Verdicts(); len(got) != 1 || got[0].Amount != 300 {
		t.Errorf("Verdicts = %+v", got)
	}
	if got := log.Filter(models.EventError); len(got) != 1 || got[0].Seq != 4 {
		t.Errorf("Filter(error) = %+v", got)
	}
}

func TestConcurrentAppend(t *testing.T) {
	log := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Append(models.Event{Type: models.EventLLMCall})
		}()
	}
	wg.Wait()

	for i, e := range log.Events() {
		if e.Seq != i+1 {
			t.Fatalf("event %d has seq %d", i, e.Seq)
		}
	}
}

func TestTextSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewTextSink(&buf)
	log := New(sink)
	log.SetClock(func() time.Time { return epoch })

	log.Append(models.Event{Type: models.EventReview, Message: "B approved A's hypothesis"})
	log.Append(models.Event{Type: models.EventError, Message: "merge failed", ErrorType: models.ErrTypeHostRejection})

	want := "[2026-01-02 03:04:05] REVIEW: B approved A's hypothesis\n" +
		"[2026-01-02 03:04:05] ERROR: merge failed (host_rejection)\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("text log mismatch (-want +got):\n%s", diff)
	}

	buf.Reset()
	if err := sink.WriteSummary(models.Statistics{TotalTurns: 4, Approved: 3}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "SIMULATION STATISTICS SUMMARY") || !strings.Contains(out, `"total_turns": 4`) {
		t.Errorf("summary = %q", out)
	}
}

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	sink := SlogSink{Logger: logger}

	stage := models.StageHypothesis
	sink.Write(models.Event{Seq: 3, Type: models.EventStageAdvance, Turn: 2, Agent: models.RoleA, Stage: &stage, Message: "advanced"})
	sink.Write(models.Event{Seq: 4, Type: models.EventLLMCall, Message: "hidden at info"})

	out := buf.String()
	for _, want := range []string{"msg=advanced", "turn=2", "agent=A", "stage=hypothesis"} {
		if !strings.Contains(out, want) {
			t.Errorf("slog output missing %q: %s", want, out)
		}
	}
	if strings.Contains(out, "hidden at info") {
		t.Error("llm_call events should log at debug")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simulation_log.json")
	stage := models.StagePaperWriting
	doc := Document{
		Statistics: models.Statistics{TotalTurns: 7, Termination: models.TerminationCompleted},
		Events: []models.Event{
			{Seq: 1, Timestamp: epoch, Type: models.EventStageAdvance, Agent: models.RoleB, Stage: &stage, Message: "done"},
		},
	}
	if err := WriteJSON(path, doc); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	got, err := ReadJSON(path)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	if _, err := ReadJSON(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSQLiteSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	sink, err := OpenSQLite(path, "run-1")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer sink.Close()

	log := New(sink)
	log.SetClock(func() time.Time { return epoch })
	stage := models.StageHypothesis
	rec := models.ReviewRecord{ID: "r1", Author: models.RoleA, Reviewer: models.RoleB, Verdict: models.VerdictRequestChanges, Feedback: "tighten", CreatedAt: epoch}
	log.Append(models.Event{Type: models.EventTurnStart, Turn: 1, Agent: models.RoleA, Stage: &stage, Message: "turn 1"})
	log.Append(models.Event{Type: models.EventReview, Turn: 1, Agent: models.RoleB, Stage: &stage, Review: &rec, Message: "review"})
	log.Append(models.Event{Type: models.EventReview, Turn: 2, Message: "review"})

	stored, err := sink.Events()
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if diff := cmp.Diff(log.Events(), stored); diff != "" {
		t.Errorf("stored events mismatch (-log +db):\n%s", diff)
	}

	counts, err := sink.CountByType()
	if err != nil {
		t.Fatalf("CountByType: %v", err)
	}
	want := map[models.EventType]int{models.EventTurnStart: 1, models.EventReview: 2}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}

	other, err := OpenSQLite(path, "run-2")
	if err != nil {
		t.Fatalf("OpenSQLite second run: %v", err)
	}
	defer other.Close()
	if events, err := other.Events(); err != nil || len(events) != 0 {
		t.Errorf("second run should see no events, got %d (err %v)", len(events), err)
	}
}
