// Package review arbitrates one agent's review of the other agent's
// submission and records the outcome on both sides.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spachava753/peerlab/internal/agent"
	"github.com/spachava753/peerlab/internal/contextstore"
	"github.com/spachava753/peerlab/internal/generation"
	"github.com/spachava753/peerlab/internal/models"
	"github.com/spachava753/peerlab/internal/prompts"
	"github.com/spachava753/peerlab/internal/vcs"
)

// Submission is an artifact under review together with its review request.
type Submission struct {
	Turn     int
	Artifact models.Artifact
	Request  vcs.ReviewRequest
	// Run is the sandbox execution of the artifact, if there was one.
	Run      *models.ExperimentRun
}

// Options configures an Arbiter.
type Options struct {
	Temperature float32
	Now         func() time.Time
	NewID       func() string
}

// Arbiter obtains a verdict from the reviewer and applies it.
type Arbiter struct {
	prompts *prompts.Set
	log     generation.Recorder
	opts    Options
}

func New(set *prompts.Set, log generation.Recorder, opts Options) *Arbiter {
	if opts.Temperature == 0 {
		opts.Temperature = 0.6
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Arbiter{prompts: set, log: log, opts: opts}
}

type reply struct {
	Verdict    string `json:"verdict"`
	ReviewType string `json:"review_type"`
	Feedback   string `json:"feedback"`
	Comment    string `json:"comment"`
	Reasoning  string `json:"reasoning"`
}

func (r *reply) Validate() error {
	if strings.TrimSpace(r.Verdict) == "" && strings.TrimSpace(r.ReviewType) == "" {
		return errors.New("verdict missing")
	}
	return nil
}

func (r *reply) rawVerdict() string {
	if strings.TrimSpace(r.Verdict) != "" {
		return r.Verdict
	}
	return r.ReviewType
}

func (r *reply) feedback() string {
	if r.Feedback != "" {
		return r.Feedback
	}
	return r.Comment
}

// Coerce maps a free-form verdict onto the binary outcome. "approve" and
// "approved" approve; everything else requests changes. coerced is false only
// for an explicit approve or request-changes word.
func Coerce(raw string) (verdict models.Verdict, coerced bool) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	switch norm {
	case "approve", "approved":
		return models.VerdictApprove, false
	case "request_changes", "changes_requested", "reject":
		return models.VerdictRequestChanges, false
	default:
		return models.VerdictRequestChanges, true
	}
}

// MarkerVerdict scans unstructured text for a line reading "VERDICT: APPROVE".
// Without it the verdict is request_changes.
func MarkerVerdict(text string) models.Verdict {
	for _, line := range strings.Split(text, "\n") {
		line = strings.ToUpper(strings.Trim(line, " \t\r*_`#>"))
		line = strings.Join(strings.Fields(line), "")
		if line == "VERDICT:APPROVE" {
			return models.VerdictApprove
		}
	}
	return models.VerdictRequestChanges
}

// Review has reviewer judge sub, posts the verdict with the reviewer's
// account and then records the submission, its run and the review in both
// context stores. A reviewer equal to the author is rejected before anything
// else happens. Nothing is recorded unless the host accepts the verdict, and
// nothing is posted unless the stores would accept the record.
func (a *Arbiter) Review(ctx context.Context, sub Submission, author, reviewer *agent.Agent) (models.ReviewRecord, error) {
	if author == reviewer || author.Role() == reviewer.Role() {
		return models.ReviewRecord{}, fmt.Errorf("agent %s cannot review its own submission: %w", author.Role(), models.ErrHostRejected)
	}
	art := sub.Artifact

	content := art.Content
	if sub.Run != nil {
		content += fmt.Sprintf("\n\n--- experiment run: exit code %d ---\n%s", sub.Run.ExitCode,
			contextstore.Excerpt(sub.Run.Stdout+sub.Run.Stderr, 2000))
	}
	msg, err := a.prompts.Review(prompts.ReviewData{
		ReviewerName: reviewer.Name(),
		Reviewer:     reviewer.Role(),
		AuthorName:   author.Name(),
		Author:       author.Role(),
		Stage:        art.Stage,
		Attempt:      art.Attempt,
		Title:        sub.Request.Title,
		Path:         art.Path,
		Content:      content,
		Context:      reviewer.Context.Assemble(),
	})
	if err != nil {
		return models.ReviewRecord{}, fmt.Errorf("rendering review prompt: %w", err)
	}

	var verdict models.Verdict
	var coerced bool
	var feedback, reasoning string

	r, raw, err := generation.Structured[reply](ctx, reviewer.Producer, generation.Prompt{
		System:      msg.System,
		User:        msg.User,
		Temperature: a.opts.Temperature,
		Caller:      fmt.Sprintf("review/%s/%s", reviewer.Role(), art.Stage),
	})
	switch {
	case err == nil:
		verdict, coerced = Coerce(r.rawVerdict())
		feedback, reasoning = r.feedback(), r.Reasoning
	case errors.Is(err, models.ErrMalformedResponse):
		verdict, coerced = MarkerVerdict(raw), true
		feedback, reasoning = strings.TrimSpace(raw), "unstructured review reply"
	default:
		return models.ReviewRecord{}, fmt.Errorf("generating review: %w", err)
	}

	rec := models.ReviewRecord{
		ID:         a.opts.NewID(),
		ArtifactID: art.ID,
		Stage:      art.Stage,
		Attempt:    art.Attempt,
		Author:     author.Role(),
		Reviewer:   reviewer.Role(),
		Verdict:    verdict,
		Feedback:   feedback,
		Reasoning:  reasoning,
		Coerced:    coerced,
		RequestID:  sub.Request.Number,
		CreatedAt:  a.opts.Now(),
	}
	outcome := contextstore.Outcome{Artifact: art, Run: sub.Run, Review: rec}
	if err := contextstore.CheckOutcome(author.Context, reviewer.Context, outcome); err != nil {
		return models.ReviewRecord{}, err
	}

	body := feedback
	if body == "" {
		body = fmt.Sprintf("%s: %s", reviewer.Name(), verdict)
	}
	if err := reviewer.Host.PostVerdict(ctx, sub.Request.Number, verdict, body); err != nil {
		return models.ReviewRecord{}, fmt.Errorf("posting review: %w", err)
	}
	if err := contextstore.RecordOutcome(author.Context, reviewer.Context, outcome); err != nil {
		return models.ReviewRecord{}, err
	}

	a.log.Append(models.Event{
		Type:    models.EventReview,
		Turn:    sub.Turn,
		Agent:   reviewer.Role(),
		Stage:   models.StagePtr(art.Stage),
		Message: fmt.Sprintf("%s reviewed %s's %s (attempt %d): %s", reviewer.Name(), author.Name(), art.Stage, art.Attempt, verdict),
		Review:  &rec,
	})
	return rec, nil
}
