package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/spachava753/peerlab/internal/agent"
	"github.com/spachava753/peerlab/internal/eventlog"
	"github.com/spachava753/peerlab/internal/generation"
	"github.com/spachava753/peerlab/internal/generation/gentest"
	"github.com/spachava753/peerlab/internal/models"
	"github.com/spachava753/peerlab/internal/prompts"
	"github.com/spachava753/peerlab/internal/vcs"
	"github.com/spachava753/peerlab/internal/vcs/memhost"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	server   *memhost.Server
	author   *agent.Agent
	reviewer *agent.Agent
	log      *eventlog.Log
	arbiter  *Arbiter
	sub      Submission
}

func newFixture(t *testing.T, reviewerReplies ...gentest.Reply) *fixture {
	t.Helper()
	ctx := context.Background()
	server := memhost.NewServer("research")
	a := agent.New("Scientist A", models.RoleA, models.ContextLimits{}, gentest.Always("unused"), server.Host("alice"))
	b := agent.New("Scientist B", models.RoleB, models.ContextLimits{},
		gentest.New(gentest.Route{Prefix: "review/B", Replies: reviewerReplies}), server.Host("bob"))

	if err := a.Host.CreateRepo(ctx, "test", false); err != nil {
		t.Fatal(err)
	}
	if err := a.Host.CreateBranch(ctx, "a-hypothesis-t1", vcs.DefaultBranch); err != nil {
		t.Fatal(err)
	}
	art := models.Artifact{
		ID:         "art-1",
		Stage:      models.StageHypothesis,
		Author:     models.RoleA,
		AuthorName: "Scientist A",
		Path:       models.StageHypothesis.Path(models.RoleA),
		Content:    "H1: lexicon features help",
		CreatedAt:  now,
	}
	if err := a.Host.CommitFile(ctx, "a-hypothesis-t1", art.Path, art.Content, "hypothesis"); err != nil {
		t.Fatal(err)
	}
	req, err := a.Host.OpenReviewRequest(ctx, "[Scientist A] hypothesis", "", "a-hypothesis-t1", vcs.DefaultBranch)
	if err != nil {
		t.Fatal(err)
	}
	log := eventlog.New()
	ids := 0
	arb := New(prompts.Default(), log, Options{
		Now:   func() time.Time { return now },
		NewID: func() string { ids++; return fmt.Sprintf("rev-%d", ids) },
	})
	return &fixture{
		server:   server,
		author:   a,
		reviewer: b,
		log:      log,
		arbiter:  arb,
		sub:      Submission{Turn: 3, Artifact: art, Request: req},
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		raw     string
		want    models.Verdict
		coerced bool
	}{
		{"approve", models.VerdictApprove, false},
		{"APPROVED", models.VerdictApprove, false},
		{" Approve ", models.VerdictApprove, false},
		{"request_changes", models.VerdictRequestChanges, false},
		{"Request Changes", models.VerdictRequestChanges, false},
		{"changes-requested", models.VerdictRequestChanges, false},
		{"reject", models.VerdictRequestChanges, false},
		{"rejected", models.VerdictRequestChanges, true},
		{"comment", models.VerdictRequestChanges, true},
		{"looks good", models.VerdictRequestChanges, true},
		{"", models.VerdictRequestChanges, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, coerced := Coerce(tt.raw)
			if got != tt.want || coerced != tt.coerced {
				t.Errorf("Coerce(%q) = %s, %v; want %s, %v", tt.raw, got, coerced, tt.want, tt.coerced)
			}
		})
	}
}

func TestMarkerVerdict(t *testing.T) {
	tests := []struct {
		name string
		text string
		want models.Verdict
	}{
		{"plain", "Nice work.\nVERDICT: APPROVE", models.VerdictApprove},
		{"bold", "Nice.\n**Verdict: Approve**\n", models.VerdictApprove},
		{"request changes", "Weak.\nVERDICT: REQUEST_CHANGES", models.VerdictRequestChanges},
		{"inline mention", "I would write VERDICT: APPROVE if it were better.", models.VerdictRequestChanges},
		{"none", "no marker at all", models.VerdictRequestChanges},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MarkerVerdict(tt.text); got != tt.want {
				t.Errorf("MarkerVerdict() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReviewApprove(t *testing.T) {
	f := newFixture(t, gentest.Reply{Text: `{"verdict":"approve","feedback":"clear and testable","reasoning":"falsifiable"}`})

	rec, err := f.arbiter.Review(context.Background(), f.sub, f.author, f.reviewer)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}

	want := models.ReviewRecord{
		ID:         "rev-1",
		ArtifactID: "art-1",
		Stage:      models.StageHypothesis,
		Author:     models.RoleA,
		Reviewer:   models.RoleB,
		Verdict:    models.VerdictApprove,
		Feedback:   "clear and testable",
		Reasoning:  "falsifiable",
		RequestID:  f.sub.Request.Number,
		CreatedAt:  now,
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]models.ReviewRecord{want}, f.author.Context.Received()); diff != "" {
		t.Errorf("author received mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]models.ReviewRecord{want}, f.reviewer.Context.Given()); diff != "" {
		t.Errorf("reviewer given mismatch (-want +got):\n%s", diff)
	}

	pr, _ := f.server.PullRequest(f.sub.Request.Number)
	if len(pr.Reviews) != 1 || pr.Reviews[0].Account != "bob" || pr.Reviews[0].Verdict != models.VerdictApprove {
		t.Errorf("host reviews = %+v", pr.Reviews)
	}

	events := f.log.Filter(models.EventReview)
	if len(events) != 1 || events[0].Turn != 3 || events[0].Agent != models.RoleB {
		t.Fatalf("review events = %+v", events)
	}

	prompt := f.reviewer.Producer.(*gentest.Producer).Calls()[0]
	if prompt.Caller != "review/B/hypothesis" {
		t.Errorf("caller = %q", prompt.Caller)
	}
	if !strings.Contains(prompt.User, "H1: lexicon features help") {
		t.Errorf("review prompt should carry the submission content")
	}
}

func TestReviewCoercesUnknownVerdict(t *testing.T) {
	f := newFixture(t, gentest.Reply{Text: `{"review_type":"COMMENT","comment":"needs a baseline"}`})

	rec, err := f.arbiter.Review(context.Background(), f.sub, f.author, f.reviewer)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if rec.Verdict != models.VerdictRequestChanges || !rec.Coerced || rec.Feedback != "needs a baseline" {
		t.Errorf("record = %+v", rec)
	}
}

func TestReviewMarkerFallback(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  models.Verdict
	}{
		{"approve marker", "Solid plan overall.\nVERDICT: APPROVE", models.VerdictApprove},
		{"no marker", "I have concerns about the dataset.", models.VerdictRequestChanges},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, gentest.Reply{Text: tt.reply})

			rec, err := f.arbiter.Review(context.Background(), f.sub, f.author, f.reviewer)
			if err != nil {
				t.Fatalf("Review: %v", err)
			}
			if rec.Verdict != tt.want || !rec.Coerced {
				t.Errorf("verdict = %s coerced = %v, want %s coerced", rec.Verdict, rec.Coerced, tt.want)
			}
			if rec.Feedback != tt.reply {
				t.Errorf("feedback = %q, want raw reply", rec.Feedback)
			}
			calls := f.reviewer.Producer.(*gentest.Producer).Calls()
			if len(calls) != 2 || !strings.HasSuffix(calls[1].User, generation.StrictSuffix) {
				t.Errorf("expected one strict retry, got %d calls", len(calls))
			}
		})
	}
}

func TestReviewRejectsSelfReview(t *testing.T) {
	f := newFixture(t, gentest.Reply{Text: `{"verdict":"approve"}`})

	_, err := f.arbiter.Review(context.Background(), f.sub, f.author, f.author)
	if !errors.Is(err, models.ErrHostRejected) {
		t.Fatalf("err = %v, want host rejection", err)
	}
	if n := len(f.reviewer.Producer.(*gentest.Producer).Calls()); n != 0 {
		t.Errorf("producer called %d times", n)
	}
	if len(f.author.Context.Received()) != 0 || f.log.Len() != 0 {
		t.Error("self review must leave no record")
	}
}

func TestReviewHostRejectionLeavesNoRecord(t *testing.T) {
	f := newFixture(t, gentest.Reply{Text: `{"verdict":"approve","feedback":"ok"}`})
	f.server.FailNext("verdict", fmt.Errorf("forbidden: %w", models.ErrHostRejected))

	_, err := f.arbiter.Review(context.Background(), f.sub, f.author, f.reviewer)
	if !errors.Is(err, models.ErrHostRejected) {
		t.Fatalf("err = %v, want host rejection", err)
	}
	if len(f.author.Context.Received()) != 0 || len(f.reviewer.Context.Given()) != 0 ||
		len(f.author.Context.Submissions()) != 0 {
		t.Error("nothing may be recorded when the host refuses the verdict")
	}
	if f.log.Len() != 0 {
		t.Errorf("events = %+v", f.log.Events())
	}
}

func TestReviewGenerationFailure(t *testing.T) {
	f := newFixture(t, gentest.Reply{Err: fmt.Errorf("status 503: %w", models.ErrTransient)})

	_, err := f.arbiter.Review(context.Background(), f.sub, f.author, f.reviewer)
	if !errors.Is(err, models.ErrTransient) {
		t.Fatalf("err = %v, want transient", err)
	}
	pr, _ := f.server.PullRequest(f.sub.Request.Number)
	if len(pr.Reviews) != 0 {
		t.Errorf("no verdict should reach the host: %+v", pr.Reviews)
	}
}

func TestReviewIncludesExperimentRun(t *testing.T) {
	f := newFixture(t, gentest.Reply{Text: `{"verdict":"approve"}`})
	run := models.ExperimentRun{ArtifactID: "art-1", Author: models.RoleA, ExitCode: 1, Stderr: "ZeroDivisionError"}
	f.sub.Run = &run

	if _, err := f.arbiter.Review(context.Background(), f.sub, f.author, f.reviewer); err != nil {
		t.Fatal(err)
	}
	prompt := f.reviewer.Producer.(*gentest.Producer).Calls()[0]
	if !strings.Contains(prompt.User, "exit code 1") || !strings.Contains(prompt.User, "ZeroDivisionError") {
		t.Errorf("review prompt should include the run output:\n%s", prompt.User)
	}
	if diff := cmp.Diff([]models.ExperimentRun{run}, f.author.Context.Runs()); diff != "" {
		t.Errorf("author runs (-want +got):\n%s", diff)
	}
}

func TestReviewRecordsSubmission(t *testing.T) {
	f := newFixture(t, gentest.Reply{Text: `{"verdict":"request_changes","feedback":"add a baseline"}`})
	if len(f.author.Context.Submissions()) != 0 {
		t.Fatal("fixture should start with an empty store")
	}

	if _, err := f.arbiter.Review(context.Background(), f.sub, f.author, f.reviewer); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]models.Artifact{f.sub.Artifact}, f.author.Context.Submissions()); diff != "" {
		t.Errorf("author submissions (-want +got):\n%s", diff)
	}
	if len(f.reviewer.Context.Submissions()) != 0 {
		t.Error("reviewer store must not hold the author's artifact")
	}
}

func TestReviewInvalidOutcomePostsNothing(t *testing.T) {
	f := newFixture(t, gentest.Reply{Text: `{"verdict":"approve","feedback":"ok"}`})
	f.sub.Run = &models.ExperimentRun{ArtifactID: "art-other", Author: models.RoleA}

	if _, err := f.arbiter.Review(context.Background(), f.sub, f.author, f.reviewer); err == nil {
		t.Fatal("expected an error for a run of another artifact")
	}
	pr, _ := f.server.PullRequest(f.sub.Request.Number)
	if len(pr.Reviews) != 0 {
		t.Errorf("verdict reached the host: %+v", pr.Reviews)
	}
	if len(f.author.Context.Submissions()) != 0 || len(f.author.Context.Runs()) != 0 ||
		len(f.author.Context.Received()) != 0 || len(f.reviewer.Context.Given()) != 0 {
		t.Error("stores changed")
	}
	if f.log.Len() != 0 {
		t.Errorf("events = %+v", f.log.Events())
	}
}
