package simulation

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/spachava753/peerlab/internal/models"
)

func TestComputeStatistics(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	hyp := models.StagePtr(models.StageHypothesis)
	var events []models.Event
	add := func(e models.Event) {
		e.Seq = len(events) + 1
		if e.Timestamp.IsZero() {
			e.Timestamp = t0.Add(time.Duration(len(events)) * time.Second)
		}
		events = append(events, e)
	}
	review := func(turn int, author models.Role, v models.Verdict, coerced bool) {
		add(models.Event{Type: models.EventArtifact, Turn: turn, Agent: author, Stage: hyp})
		add(models.Event{Type: models.EventReviewRequest, Turn: turn, Agent: author, Stage: hyp})
		add(models.Event{Type: models.EventReview, Turn: turn, Agent: author.Peer(), Stage: hyp, Review: &models.ReviewRecord{
			Stage: models.StageHypothesis, Author: author, Reviewer: author.Peer(), Verdict: v, Coerced: coerced,
		}})
	}

	add(models.Event{Type: models.EventSimulationStart})
	add(models.Event{Type: models.EventThemeDecision, Agent: models.RoleA,
		Artifact: &models.Artifact{AuthorName: "Dr. Ada", Content: "Theme A"}})
	add(models.Event{Type: models.EventThemeDecision, Agent: models.RoleB,
		Artifact: &models.Artifact{AuthorName: "Dr. Bo", Content: "Theme B"}})
	add(models.Event{Type: models.EventEvaluation, Verdict: &models.EvaluatorVerdict{Evaluator: "P1", Target: models.RoleA, Amount: 100, RawAmount: -5, Clamped: true}})
	add(models.Event{Type: models.EventEvaluation, Verdict: &models.EvaluatorVerdict{Evaluator: "P2", Target: models.RoleB, Amount: 300, RawAmount: 300}})
	add(models.Event{Type: models.EventEvaluationSkipped, Agent: models.RoleA})

	add(models.Event{Type: models.EventTurnStart, Turn: 1, Agent: models.RoleA})
	review(1, models.RoleA, models.VerdictRequestChanges, true)
	add(models.Event{Type: models.EventStageRetry, Turn: 1, Agent: models.RoleA, Stage: hyp})

	add(models.Event{Type: models.EventTurnStart, Turn: 2, Agent: models.RoleB})
	review(2, models.RoleB, models.VerdictApprove, false)
	add(models.Event{Type: models.EventStageAdvance, Turn: 2, Agent: models.RoleB, Stage: hyp})

	add(models.Event{Type: models.EventTurnStart, Turn: 3, Agent: models.RoleA})
	add(models.Event{Type: models.EventError, Turn: 3, Agent: models.RoleA, ErrorType: models.ErrTypeTransient,
		Data: map[string]string{dataOutcome: outcomeSkipped}})

	add(models.Event{Type: models.EventTurnStart, Turn: 4, Agent: models.RoleA})
	review(4, models.RoleA, models.VerdictApprove, false)
	add(models.Event{Type: models.EventStageAdvance, Turn: 4, Agent: models.RoleA, Stage: hyp})
	add(models.Event{Type: models.EventLLMCall, Usage: &models.LLMUsage{PromptChars: 40, ResponseChars: 8, EstimatedInput: 10, EstimatedOut: 2}})
	add(models.Event{Type: models.EventSimulationEnd, Timestamp: t0.Add(90 * time.Second),
		Data: map[string]string{dataTermination: string(models.TerminationBudgetExhausted)}})

	want := models.Statistics{
		StartedAt:        t0,
		EndedAt:          t0.Add(90 * time.Second),
		DurationSec:      90,
		Termination:      models.TerminationBudgetExhausted,
		TotalTurns:       4,
		SkippedTurns:     1,
		TotalReviews:     3,
		Approved:         2,
		ChangesRequested: 1,
		CoercedVerdicts:  1,
		ApprovalRate:     2.0 / 3.0,
		RejectionRate:    1.0 / 3.0,
		RetriesByStage:   map[models.Stage]float64{models.StageHypothesis: 0.5},
		Agents: map[models.Role]models.AgentSummary{
			models.RoleA: {
				Name:               "Dr. Ada",
				Theme:              "Theme A",
				FinalStage:         models.StageExperimentPlan,
				Submissions:        2,
				Approved:           1,
				Rejected:           1,
				ReviewsGiven:       1,
				Retries:            1,
				RetriesByStage:     map[models.Stage]int{models.StageHypothesis: 1},
				AvgRetriesPerStage: 1,
				RewardTotal:        100,
				RewardMean:         100,
			},
			models.RoleB: {
				Name:           "Dr. Bo",
				Theme:          "Theme B",
				FinalStage:     models.StageExperimentPlan,
				Submissions:    1,
				Approved:       1,
				ReviewsGiven:   2,
				RetriesByStage: map[models.Stage]int{},
				RewardTotal:    300,
				RewardMean:     300,
			},
		},
		Rewards: models.RewardSummary{
			TotalAmount:   400,
			AverageAmount: 200,
			MinAmount:     100,
			MaxAmount:     300,
			Clamped:       1,
			Skipped:       1,
			Distribution: []models.RewardEntry{
				{Evaluator: "P1", Target: models.RoleA, Amount: 100},
				{Evaluator: "P2", Target: models.RoleB, Amount: 300},
			},
		},
		Errors: map[models.ErrorType]int{models.ErrTypeTransient: 1},
		LLM:    models.LLMSummary{Calls: 1, PromptChars: 40, ResponseChars: 8, EstimatedInputTokens: 10, EstimatedOutputTokens: 2},
	}

	got := ComputeStatistics(events)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ComputeStatistics mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeStatisticsEmpty(t *testing.T) {
	got := ComputeStatistics(nil)
	if got.TotalTurns != 0 || got.TotalReviews != 0 || len(got.Agents) != 0 {
		t.Errorf("unexpected statistics for empty log: %+v", got)
	}
}

func TestComputeStatisticsFinishedAgent(t *testing.T) {
	events := []models.Event{
		{Type: models.EventStageForced, Agent: models.RoleB, Stage: models.StagePtr(models.StageResultsInterpretation)},
		{Type: models.EventAgentFinished, Agent: models.RoleB},
	}
	got := ComputeStatistics(events).Agents[models.RoleB]
	if !got.Finished || got.FinalStage != models.TerminalStage || got.ForcedAdvances != 1 {
		t.Errorf("agent B = %+v, want finished at %v with one forced advance", got, models.TerminalStage)
	}
}
