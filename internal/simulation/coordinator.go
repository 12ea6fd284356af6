// Package simulation coordinates the two research agents from the theme
// phase through alternating review turns to termination.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spachava753/peerlab/internal/agent"
	"github.com/spachava753/peerlab/internal/eventlog"
	"github.com/spachava753/peerlab/internal/generation"
	"github.com/spachava753/peerlab/internal/models"
	"github.com/spachava753/peerlab/internal/panel"
	"github.com/spachava753/peerlab/internal/prompts"
	"github.com/spachava753/peerlab/internal/review"
	"github.com/spachava753/peerlab/internal/stage"
	"github.com/spachava753/peerlab/internal/vcs"
)

// Dependencies are the collaborators a Coordinator drives.
type Dependencies struct {
	// Producers and Hosts hold one entry per role.
	Producers map[models.Role]generation.Producer
	Hosts     map[models.Role]vcs.Host
	// Evaluator answers the citizen panel prompts.
	Evaluator generation.Producer
	Personas  []models.Persona
	Prompts   *prompts.Set
	// Runner executes experiment implementations. Nil disables execution.
	Runner    stage.Runner
	Log       *eventlog.Log
	Now       func() time.Time
	NewID     func() string
}

// Result is the outcome of a run.
type Result struct {
	Termination models.Termination
	Turns       int
	Statistics  models.Statistics
	Events      []models.Event
	Agents      map[models.Role]models.AgentState
}

// Coordinator owns the simulation state and the event log.
type Coordinator struct {
	cfg      models.SimulationConfig
	agents   map[models.Role]*agent.Agent
	personas []models.Persona
	engine   *stage.Engine
	panel    *panel.Panel
	log      *eventlog.Log
	turns    int
}

// New validates deps and assembles the agents and components.
func New(cfg models.SimulationConfig, deps Dependencies) (*Coordinator, error) {
	for _, r := range models.Roles() {
		if deps.Producers[r] == nil {
			return nil, fmt.Errorf("no producer for agent %s", r)
		}
		if deps.Hosts[r] == nil {
			return nil, fmt.Errorf("no host account for agent %s", r)
		}
	}
	if deps.Evaluator == nil {
		return nil, errors.New("no evaluator producer")
	}
	if len(deps.Personas) == 0 {
		return nil, errors.New("no evaluator personas")
	}
	if deps.Prompts == nil {
		deps.Prompts = prompts.Default()
	}
	if deps.Log == nil {
		deps.Log = eventlog.New()
	}
	if deps.Now == nil {
		deps.Now = deps.Log.Now
	}

	agents := make(map[models.Role]*agent.Agent, 2)
	for _, r := range models.Roles() {
		agents[r] = agent.New(cfg.AgentName(r), r, cfg.Context, deps.Producers[r], deps.Hosts[r])
	}

	arbiter := review.New(deps.Prompts, deps.Log, review.Options{Now: deps.Now, NewID: deps.NewID})
	engine := stage.New(deps.Prompts, arbiter, deps.Log, stage.Options{
		Topic:       cfg.Topic,
		MaxAttempts: cfg.Review.MaxAttempts,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Runner:      deps.Runner,
		Now:         deps.Now,
		NewID:       deps.NewID,
	})
	pnl := panel.New(deps.Evaluator, deps.Prompts, deps.Log, panel.Options{
		Bounds:      cfg.Reward,
		Concurrency: cfg.Panel.Concurrency,
		Now:         deps.Now,
	})

	return &Coordinator{
		cfg:      cfg,
		agents:   agents,
		personas: deps.Personas,
		engine:   engine,
		panel:    pnl,
		log:      deps.Log,
	}, nil
}

// Agent returns the agent playing role.
func (c *Coordinator) Agent(r models.Role) *agent.Agent { return c.agents[r] }

// Run executes the whole simulation. A non-nil error means the run was
// aborted; the returned Result is still populated in that case.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	c.log.Append(models.Event{
		Type:    models.EventSimulationStart,
		Message: fmt.Sprintf("simulation started: %s", c.cfg.Topic),
		Data: map[string]string{
			"topic":     c.cfg.Topic,
			"max_steps": fmt.Sprint(c.cfg.MaxSteps),
			"personas":  fmt.Sprint(len(c.personas)),
		},
	})

	if err := c.initRepository(ctx); err != nil {
		c.recordError(err, outcomeAborted)
		return c.abort(err)
	}
	if err := c.themePhase(ctx); err != nil {
		c.recordError(err, outcomeAborted)
		return c.abort(err)
	}

	termination, err := c.loop(ctx)
	if err != nil {
		return c.abort(err)
	}
	return c.finish(termination), nil
}

func (c *Coordinator) initRepository(ctx context.Context) error {
	host := c.agents[models.RoleA].Host
	desc := fmt.Sprintf("Research collaboration on %s", c.cfg.Topic)
	if err := host.CreateRepo(ctx, desc, c.cfg.GitHub.Private); err != nil {
		return fmt.Errorf("creating repository: %w", err)
	}
	c.hostOp("create_repo", desc)
	if err := host.InitLayout(ctx, models.RepositoryLayout); err != nil {
		return fmt.Errorf("initialising repository layout: %w", err)
	}
	c.hostOp("init_layout", fmt.Sprint(models.RepositoryLayout))
	return nil
}

func (c *Coordinator) hostOp(op, target string) {
	c.log.Append(models.Event{
		Type:    models.EventHostOperation,
		Agent:   models.RoleA,
		Message: fmt.Sprintf("%s %s", op, target),
		Data:    map[string]string{"op": op, "target": target},
	})
}

// themePhase has both agents decide a theme and lets the panel score each
// one. Every verdict reaches both context stores.
func (c *Coordinator) themePhase(ctx context.Context) error {
	for _, r := range models.Roles() {
		if _, err := c.engine.DecideTheme(ctx, c.agents[r]); err != nil {
			return fmt.Errorf("deciding theme for %s: %w", r, err)
		}
	}
	c.refreshPeers()

	for _, r := range models.Roles() {
		a := c.agents[r]
		verdicts, err := c.panel.Evaluate(ctx, r, a.Name(), a.Context.Theme(), c.personas)
		if err != nil {
			return fmt.Errorf("evaluating theme of %s: %w", r, err)
		}
		for i := range verdicts {
			v := verdicts[i]
			for _, holder := range models.Roles() {
				if err := c.agents[holder].Context.RecordEvaluatorFeedback(v); err != nil {
					return err
				}
			}
			c.log.Append(models.Event{
				Type:    models.EventEvaluation,
				Agent:   r,
				Stage:   models.StagePtr(models.StageThemeDecision),
				Message: fmt.Sprintf("%s granted %d to %s", v.Evaluator, v.Amount, a.Name()),
				Verdict: &v,
			})
		}
	}
	return nil
}

func (c *Coordinator) refreshPeers() {
	a, b := c.agents[models.RoleA], c.agents[models.RoleB]
	// Snapshots always name the peer role, so these cannot fail.
	_ = a.RefreshPeer(b)
	_ = b.RefreshPeer(a)
}

func (c *Coordinator) bothFinished() bool {
	return c.agents[models.RoleA].State.Finished && c.agents[models.RoleB].State.Finished
}

// loop alternates turns until both agents finish or the budget is spent.
func (c *Coordinator) loop(ctx context.Context) (models.Termination, error) {
	next := models.RoleA
	for {
		if c.bothFinished() {
			return models.TerminationCompleted, nil
		}
		if c.turns >= c.cfg.MaxSteps {
			return models.TerminationBudgetExhausted, nil
		}
		if err := ctx.Err(); err != nil {
			c.recordError(err, outcomeAborted)
			return "", err
		}

		actor := next
		if c.agents[actor].State.Finished {
			actor = actor.Peer()
		}
		next = actor.Peer()
		author, reviewer := c.agents[actor], c.agents[actor.Peer()]

		c.turns++
		c.refreshPeers()
		c.log.Append(models.Event{
			Type:    models.EventTurnStart,
			Turn:    c.turns,
			Agent:   actor,
			Stage:   models.StagePtr(author.State.Stage),
			Message: fmt.Sprintf("turn %d: %s works on %s (attempt %d)", c.turns, author.Name(), author.State.Stage, author.State.Attempt),
		})
		slog.Info("turn", "turn", c.turns, "agent", actor, "stage", author.State.Stage, "attempt", author.State.Attempt)

		_, err := c.engine.Step(ctx, c.turns, author, reviewer)
		if err == nil {
			continue
		}
		kind := models.Classify(err)
		if c.cfg.AbortOnError || (kind != models.ErrTypeHostRejection && kind != models.ErrTypeTransient) {
			c.recordTurnError(actor, author.State.Stage, err, outcomeAborted)
			return "", fmt.Errorf("turn %d: %w", c.turns, err)
		}
		c.recordTurnError(actor, author.State.Stage, err, outcomeSkipped)
		slog.Warn("turn skipped", "turn", c.turns, "agent", actor, "error_type", kind, "error", err)
	}
}

func (c *Coordinator) recordError(err error, outcome string) {
	c.log.Append(models.Event{
		Type:      models.EventError,
		Turn:      c.turns,
		Message:   err.Error(),
		ErrorType: models.Classify(err),
		Data:      map[string]string{dataOutcome: outcome},
	})
}

func (c *Coordinator) recordTurnError(actor models.Role, s models.Stage, err error, outcome string) {
	c.log.Append(models.Event{
		Type:      models.EventError,
		Turn:      c.turns,
		Agent:     actor,
		Stage:     models.StagePtr(s),
		Message:   fmt.Sprintf("turn %d %s: %v", c.turns, outcome, err),
		ErrorType: models.Classify(err),
		Data:      map[string]string{dataOutcome: outcome},
	})
}

func (c *Coordinator) abort(err error) (*Result, error) {
	slog.Error("simulation aborted", "turns", c.turns, "error", err)
	return c.finish(models.TerminationAborted), err
}

func (c *Coordinator) finish(t models.Termination) *Result {
	c.refreshPeers()
	c.log.Append(models.Event{
		Type:    models.EventSimulationEnd,
		Turn:    c.turns,
		Message: fmt.Sprintf("simulation ended after %d turns: %s", c.turns, t),
		Data: map[string]string{
			dataTermination: string(t),
			"turns":         fmt.Sprint(c.turns),
		},
	})

	events := c.log.Events()
	res := &Result{
		Termination: t,
		Turns:       c.turns,
		Statistics:  ComputeStatistics(events),
		Events:      events,
		Agents:      make(map[models.Role]models.AgentState, 2),
	}
	for r, a := range c.agents {
		res.Agents[r] = a.State
	}
	return res
}
