// Package panel runs the citizen evaluator panel that scores research themes
// and allocates reward amounts.
package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spachava753/peerlab/internal/generation"
	"github.com/spachava753/peerlab/internal/models"
	"github.com/spachava753/peerlab/internal/prompts"
)

// Options configures a Panel.
type Options struct {
	Bounds      models.RewardBounds
	Concurrency int
	Temperature float32
	Now         func() time.Time
}

// Panel asks each persona for an independent evaluation of a theme.
type Panel struct {
	producer generation.Producer
	prompts  *prompts.Set
	log      generation.Recorder
	opts     Options
}

// New creates a panel. log receives evaluation_skipped events.
func New(producer generation.Producer, set *prompts.Set, log generation.Recorder, opts Options) *Panel {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.8
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Panel{producer: producer, prompts: set, log: log, opts: opts}
}

// reply is the structured shape a persona answers with. Both the current
// field names and the legacy reward_amount/reasoning pair are accepted.
type reply struct {
	Comment      string          `json:"comment"`
	Amount       json.RawMessage `json:"amount"`
	RewardAmount json.RawMessage `json:"reward_amount"`
	Rationale    string          `json:"rationale"`
	Reasoning    string          `json:"reasoning"`

	amount int
}

func (r *reply) Validate() error {
	raw := r.Amount
	if len(raw) == 0 {
		raw = r.RewardAmount
	}
	if len(raw) == 0 {
		return errors.New("amount missing")
	}
	n, err := parseAmount(raw)
	if err != nil {
		return err
	}
	r.amount = n
	return nil
}

func (r *reply) rationale() string {
	if r.Rationale != "" {
		return r.Rationale
	}
	return r.Reasoning
}

// parseAmount accepts a JSON number or a string holding one, such as "300" or
// "300 yen".
func parseAmount(raw json.RawMessage) (int, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return roundAmount(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("amount %s is not a number", raw)
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != '.' && r != '-'
	})
	if len(fields) == 0 {
		return 0, fmt.Errorf("amount %q is not a number", s)
	}
	f, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q is not a number", s)
	}
	return roundAmount(f)
}

func roundAmount(f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("amount %v is not finite", f)
	}
	if f > math.MaxInt32 {
		f = math.MaxInt32
	}
	if f < math.MinInt32 {
		f = math.MinInt32
	}
	return int(math.Round(f)), nil
}

type outcome struct {
	verdict *models.EvaluatorVerdict
	err     error
}

// Evaluate collects one verdict per persona for target's theme, in persona
// order. A persona whose evaluation fails is skipped and an
// evaluation_skipped event is logged; only cancellation of ctx aborts the
// panel.
func (p *Panel) Evaluate(ctx context.Context, target models.Role, agentName, theme string, personas []models.Persona) ([]models.EvaluatorVerdict, error) {
	results := make([]outcome, len(personas))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i, persona := range personas {
		g.Go(func() error {
			v, err := p.evaluateOne(gctx, target, agentName, theme, persona)
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			results[i] = outcome{verdict: v, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("evaluating theme of %s: %w", target, err)
	}

	var verdicts []models.EvaluatorVerdict
	for i, r := range results {
		if r.err != nil {
			slog.Warn("evaluation skipped", "evaluator", personas[i].Name, "target", target, "error", r.err)
			p.log.Append(models.Event{
				Type:      models.EventEvaluationSkipped,
				Agent:     target,
				Stage:     models.StagePtr(models.StageThemeDecision),
				Message:   fmt.Sprintf("%s skipped the theme of %s: %v", personas[i].Name, agentName, r.err),
				ErrorType: models.Classify(r.err),
				Data:      map[string]string{"evaluator": personas[i].Name},
			})
			continue
		}
		verdicts = append(verdicts, *r.verdict)
	}
	return verdicts, nil
}

func (p *Panel) evaluateOne(ctx context.Context, target models.Role, agentName, theme string, persona models.Persona) (*models.EvaluatorVerdict, error) {
	msg, err := p.prompts.Evaluation(prompts.EvaluationData{
		Persona:   persona,
		AgentName: agentName,
		Target:    target,
		Theme:     theme,
		Min:       p.opts.Bounds.Min,
		Max:       p.opts.Bounds.Max,
	})
	if err != nil {
		return nil, err
	}

	r, _, err := generation.Structured[reply](ctx, p.producer, generation.Prompt{
		System:      msg.System,
		User:        msg.User,
		Temperature: p.opts.Temperature,
		Caller:      fmt.Sprintf("panel/%s/%s", target, persona.Name),
	})
	if err != nil {
		return nil, err
	}

	amount, clamped := p.opts.Bounds.Clamp(r.amount)
	return &models.EvaluatorVerdict{
		Evaluator: persona.Name,
		Persona:   persona.String(),
		Target:    target,
		Comment:   r.Comment,
		Amount:    amount,
		RawAmount: r.amount,
		Clamped:   clamped,
		Rationale: r.rationale(),
		CreatedAt: p.opts.Now(),
	}, nil
}
