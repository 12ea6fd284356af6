// Package stage drives one agent through a single research stage per step:
// produce the artifact, publish it for review and apply the verdict.
package stage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spachava753/peerlab/internal/agent"
	"github.com/spachava753/peerlab/internal/contextstore"
	"github.com/spachava753/peerlab/internal/generation"
	"github.com/spachava753/peerlab/internal/models"
	"github.com/spachava753/peerlab/internal/prompts"
	"github.com/spachava753/peerlab/internal/review"
	"github.com/spachava753/peerlab/internal/vcs"
)

// bodyExcerpt is the number of characters of an artifact quoted in the body
// of its review request.
const bodyExcerpt = 500

// Runner executes an experiment implementation artifact.
type Runner interface {
	Run(ctx context.Context, artifact models.Artifact) (models.ExperimentRun, error)
}

// Options configures an Engine.
type Options struct {
	Topic       string
	// MaxAttempts forces advancement after this many rejected attempts of a
	// stage. Zero never forces.
	MaxAttempts int
	Temperature float32
	MaxTokens   int
	// Runner executes stage 3 artifacts. Nil skips execution.
	Runner      Runner
	Now         func() time.Time
	NewID       func() string
}

// Engine applies research steps to agents.
type Engine struct {
	prompts *prompts.Set
	arbiter *review.Arbiter
	log     generation.Recorder
	opts    Options
}

// StepResult describes what one step did.
type StepResult struct {
	Artifact models.Artifact
	Request  vcs.ReviewRequest
	Review   models.ReviewRecord
	Run      *models.ExperimentRun
	Advanced bool
	Forced   bool
	Finished bool
}

func New(set *prompts.Set, arbiter *review.Arbiter, log generation.Recorder, opts Options) *Engine {
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Engine{prompts: set, arbiter: arbiter, log: log, opts: opts}
}

// Branch names the review branch for an author's attempt. The turn keeps the
// name unique when a skipped turn is replayed.
func Branch(role models.Role, s models.Stage, attempt, turn int) string {
	return fmt.Sprintf("%s-%s-%d-t%d", strings.ToLower(string(role)), strings.ReplaceAll(s.String(), "_", "-"), attempt, turn)
}

// Title is the review request title for a stage submission.
func Title(authorName string, s models.Stage) string {
	return fmt.Sprintf("[%s] %s", authorName, s)
}

func (e *Engine) produce(ctx context.Context, a *agent.Agent) (models.Artifact, error) {
	st := a.State
	msg, err := e.prompts.Stage(prompts.StageData{
		AgentName: a.Name(),
		Role:      a.Role(),
		Topic:     e.opts.Topic,
		Theme:     a.Context.Theme(),
		Stage:     st.Stage,
		Attempt:   st.Attempt,
		Path:      st.Stage.Path(a.Role()),
		Context:   a.Context.Assemble(),
	})
	if err != nil {
		return models.Artifact{}, fmt.Errorf("rendering %s prompt: %w", st.Stage, err)
	}
	text, err := a.Producer.Produce(ctx, generation.Prompt{
		System:      msg.System,
		User:        msg.User,
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
		Caller:      fmt.Sprintf("stage/%s/%s", a.Role(), st.Stage),
	})
	if err != nil {
		return models.Artifact{}, fmt.Errorf("generating %s: %w", st.Stage, err)
	}

	content := strings.TrimSpace(text)
	switch st.Stage {
	case models.StageThemeDecision:
		content, _ = generation.ExtractBlock(text, "THEME")
	case models.StageExperimentImplementation:
		content, _ = generation.ExtractBlock(text, "python")
	}
	if content == "" {
		return models.Artifact{}, fmt.Errorf("generating %s: empty artifact: %w", st.Stage, models.ErrMalformedResponse)
	}

	art := models.Artifact{
		ID:         e.opts.NewID(),
		Stage:      st.Stage,
		Author:     a.Role(),
		AuthorName: a.Name(),
		Attempt:    st.Attempt,
		Path:       st.Stage.Path(a.Role()),
		Content:    content,
		CreatedAt:  e.opts.Now(),
	}
	return art, nil
}

// DecideTheme produces the agent's research theme and commits it straight to
// the default branch without review. The theme stage is then complete and the
// agent moves to the hypothesis stage.
func (e *Engine) DecideTheme(ctx context.Context, a *agent.Agent) (models.Artifact, error) {
	if a.State.Stage != models.StageThemeDecision {
		return models.Artifact{}, fmt.Errorf("agent %s is at %s, not %s", a.Role(), a.State.Stage, models.StageThemeDecision)
	}
	art, err := e.produce(ctx, a)
	if err != nil {
		return models.Artifact{}, err
	}
	if err := a.Host.CommitFile(ctx, vcs.DefaultBranch, art.Path, art.Content, fmt.Sprintf("%s: research theme", a.Name())); err != nil {
		return models.Artifact{}, fmt.Errorf("committing theme: %w", err)
	}
	e.hostOp(0, a.Role(), "commit", art.Path)

	if err := a.Context.RecordSubmission(art); err != nil {
		return models.Artifact{}, err
	}
	a.Context.SetTheme(art.Content)
	a.State.Theme = art.Content
	a.State.Advance()

	e.log.Append(models.Event{
		Type:     models.EventThemeDecision,
		Agent:    a.Role(),
		Stage:    models.StagePtr(models.StageThemeDecision),
		Message:  fmt.Sprintf("%s decided a theme: %s", a.Name(), contextstore.Excerpt(art.Content, 80)),
		Artifact: &art,
	})
	return art, nil
}

// Step runs one research step for author with reviewer judging the result.
// The artifact, its run and the review reach the context stores together once
// the verdict is posted. An error leaves both stores and the author's stage
// and attempt untouched, and closes any review request it opened.
func (e *Engine) Step(ctx context.Context, turn int, author, reviewer *agent.Agent) (StepResult, error) {
	if author == reviewer || author.Role() == reviewer.Role() {
		return StepResult{}, fmt.Errorf("agent %s cannot review its own submission: %w", author.Role(), models.ErrHostRejected)
	}
	st := author.State
	if st.Finished {
		return StepResult{}, fmt.Errorf("agent %s has already finished", author.Role())
	}
	if st.Stage == models.StageThemeDecision {
		return StepResult{}, fmt.Errorf("agent %s has not decided a theme", author.Role())
	}

	art, err := e.produce(ctx, author)
	if err != nil {
		return StepResult{}, err
	}
	res := StepResult{Artifact: art}
	e.log.Append(models.Event{
		Type:     models.EventArtifact,
		Turn:     turn,
		Agent:    author.Role(),
		Stage:    models.StagePtr(art.Stage),
		Message:  fmt.Sprintf("%s submitted %s (attempt %d)", author.Name(), art.Stage, art.Attempt),
		Artifact: &art,
	})

	if art.Stage == models.StageExperimentImplementation && e.opts.Runner != nil {
		run, err := e.opts.Runner.Run(ctx, art)
		if err != nil {
			return StepResult{}, fmt.Errorf("running experiment: %w", err)
		}
		res.Run = &run
		e.log.Append(models.Event{
			Type:    models.EventExperimentRun,
			Turn:    turn,
			Agent:   author.Role(),
			Stage:   models.StagePtr(art.Stage),
			Message: fmt.Sprintf("experiment of %s exited with code %d on %s", author.Name(), run.ExitCode, run.Provider),
			Run:     &run,
		})
	}

	branch := Branch(author.Role(), art.Stage, art.Attempt, turn)
	if err := author.Host.CreateBranch(ctx, branch, vcs.DefaultBranch); err != nil {
		return StepResult{}, fmt.Errorf("creating branch %s: %w", branch, err)
	}
	e.hostOp(turn, author.Role(), "create_branch", branch)
	msg := fmt.Sprintf("%s: %s (attempt %d)", author.Name(), art.Stage, art.Attempt)
	if err := author.Host.CommitFile(ctx, branch, art.Path, art.Content, msg); err != nil {
		return StepResult{}, fmt.Errorf("committing %s: %w", art.Path, err)
	}
	e.hostOp(turn, author.Role(), "commit", art.Path)

	body := fmt.Sprintf("Stage: %s\nAttempt: %d\n\n%s", art.Stage, art.Attempt, contextstore.Excerpt(art.Content, bodyExcerpt))
	req, err := author.Host.OpenReviewRequest(ctx, Title(author.Name(), art.Stage), body, branch, vcs.DefaultBranch)
	if err != nil {
		return StepResult{}, fmt.Errorf("opening review request: %w", err)
	}
	res.Request = req
	e.log.Append(models.Event{
		Type:    models.EventReviewRequest,
		Turn:    turn,
		Agent:   author.Role(),
		Stage:   models.StagePtr(art.Stage),
		Message: fmt.Sprintf("%s opened #%d %s", author.Name(), req.Number, req.Title),
		Data:    map[string]string{"number": fmt.Sprint(req.Number), "branch": branch, "url": req.URL},
	})

	rec, err := e.arbiter.Review(ctx, review.Submission{Turn: turn, Artifact: art, Request: req, Run: res.Run}, author, reviewer)
	if err != nil {
		if cerr := author.Host.Close(context.WithoutCancel(ctx), req.Number); cerr != nil {
			e.logError(turn, author.Role(), art.Stage, fmt.Sprintf("closing #%d", req.Number), cerr)
		}
		return StepResult{}, err
	}
	res.Review = rec
	author.State.LastVerdict = rec.Verdict

	if rec.Verdict == models.VerdictApprove {
		if err := author.Host.Merge(ctx, req.Number, fmt.Sprintf("Merge %s", req.Title)); err != nil {
			e.logError(turn, author.Role(), art.Stage, fmt.Sprintf("merging #%d", req.Number), err)
		} else {
			e.log.Append(models.Event{
				Type:    models.EventMerge,
				Turn:    turn,
				Agent:   author.Role(),
				Stage:   models.StagePtr(art.Stage),
				Message: fmt.Sprintf("merged #%d", req.Number),
			})
		}
		e.advance(turn, author, models.EventStageAdvance)
		res.Advanced = true
		res.Finished = author.State.Finished
		return res, nil
	}

	if err := author.Host.Close(ctx, req.Number); err != nil {
		e.logError(turn, author.Role(), art.Stage, fmt.Sprintf("closing #%d", req.Number), err)
	}
	author.State.Retry()
	e.log.Append(models.Event{
		Type:    models.EventStageRetry,
		Turn:    turn,
		Agent:   author.Role(),
		Stage:   models.StagePtr(art.Stage),
		Message: fmt.Sprintf("%s must revise %s (attempt %d next)", author.Name(), art.Stage, author.State.Attempt),
	})

	if e.opts.MaxAttempts > 0 && author.State.Attempt >= e.opts.MaxAttempts {
		author.State.ForcedAdvances++
		e.advance(turn, author, models.EventStageForced)
		res.Advanced = true
		res.Forced = true
		res.Finished = author.State.Finished
	}
	return res, nil
}

func (e *Engine) advance(turn int, a *agent.Agent, kind models.EventType) {
	from := a.State.Stage
	a.State.Advance()

	msg := fmt.Sprintf("%s advanced from %s to %s", a.Name(), from, a.State.Stage)
	if kind == models.EventStageForced {
		msg = fmt.Sprintf("%s forced past %s after %d rejected attempts", a.Name(), from, e.opts.MaxAttempts)
	}
	e.log.Append(models.Event{
		Type:    kind,
		Turn:    turn,
		Agent:   a.Role(),
		Stage:   models.StagePtr(from),
		Message: msg,
	})
	if a.State.Finished {
		e.log.Append(models.Event{
			Type:    models.EventAgentFinished,
			Turn:    turn,
			Agent:   a.Role(),
			Stage:   models.StagePtr(from),
			Message: fmt.Sprintf("%s completed all research stages", a.Name()),
		})
	}
}

func (e *Engine) hostOp(turn int, role models.Role, op, target string) {
	e.log.Append(models.Event{
		Type:    models.EventHostOperation,
		Turn:    turn,
		Agent:   role,
		Message: fmt.Sprintf("%s %s", op, target),
		Data:    map[string]string{"op": op, "target": target},
	})
}

func (e *Engine) logError(turn int, role models.Role, s models.Stage, what string, err error) {
	slog.Warn("host operation failed", "agent", role, "op", what, "error", err)
	e.log.Append(models.Event{
		Type:      models.EventError,
		Turn:      turn,
		Agent:     role,
		Stage:     models.StagePtr(s),
		Message:   fmt.Sprintf("%s: %v", what, err),
		ErrorType: models.Classify(err),
	})
}
