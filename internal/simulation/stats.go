package simulation

import (
	"github.com/spachava753/peerlab/internal/models"
)

// Data keys carried by coordinator events.
const (
	dataTermination = "termination"
	dataOutcome     = "outcome"

	outcomeSkipped = "skipped"
	outcomeAborted = "aborted"
)

// ComputeStatistics derives the run summary from the event log alone. It
// does not modify events and returns equal results for equal input.
func ComputeStatistics(events []models.Event) models.Statistics {
	st := models.Statistics{
		RetriesByStage: make(map[models.Stage]float64),
		Agents:         make(map[models.Role]models.AgentSummary),
		Errors:         make(map[models.ErrorType]int),
	}
	if len(events) == 0 {
		return st
	}
	// Round(0) drops monotonic readings so saved logs give the same duration.
	st.StartedAt = events[0].Timestamp.Round(0)
	st.EndedAt = events[len(events)-1].Timestamp.Round(0)
	st.DurationSec = st.EndedAt.Sub(st.StartedAt).Seconds()

	agents := make(map[models.Role]*models.AgentSummary)
	agent := func(r models.Role) *models.AgentSummary {
		a, ok := agents[r]
		if !ok {
			a = &models.AgentSummary{Name: "Scientist " + string(r), RetriesByStage: make(map[models.Stage]int)}
			agents[r] = a
		}
		return a
	}
	for _, r := range models.Roles() {
		agent(r)
	}

	// attempted[stage] counts agents that submitted at least once at stage.
	attempted := make(map[models.Stage]map[models.Role]bool)
	retries := make(map[models.Stage]int)
	var amounts []int

	for _, e := range events {
		switch e.Type {
		case models.EventThemeDecision:
			a := agent(e.Agent)
			if e.Artifact != nil {
				a.Name = e.Artifact.AuthorName
				a.Theme = e.Artifact.Content
			}
			a.FinalStage = models.StageHypothesis
		case models.EventTurnStart:
			if e.Turn > st.TotalTurns {
				st.TotalTurns = e.Turn
			}
		case models.EventArtifact:
			if e.Stage != nil {
				if attempted[*e.Stage] == nil {
					attempted[*e.Stage] = make(map[models.Role]bool)
				}
				attempted[*e.Stage][e.Agent] = true
			}
		case models.EventReviewRequest:
			agent(e.Agent).Submissions++
		case models.EventReview:
			if e.Review == nil {
				continue
			}
			st.TotalReviews++
			author := agent(e.Review.Author)
			if e.Review.Verdict == models.VerdictApprove {
				st.Approved++
				author.Approved++
			} else {
				st.ChangesRequested++
				author.Rejected++
			}
			if e.Review.Coerced {
				st.CoercedVerdicts++
			}
			agent(e.Review.Reviewer).ReviewsGiven++
		case models.EventStageRetry:
			if e.Stage == nil {
				continue
			}
			a := agent(e.Agent)
			a.Retries++
			a.RetriesByStage[*e.Stage]++
			retries[*e.Stage]++
		case models.EventStageAdvance, models.EventStageForced:
			if e.Stage == nil {
				continue
			}
			a := agent(e.Agent)
			a.FinalStage = e.Stage.Next()
			if e.Type == models.EventStageForced {
				a.ForcedAdvances++
			}
		case models.EventAgentFinished:
			a := agent(e.Agent)
			a.Finished = true
			a.FinalStage = models.TerminalStage
		case models.EventEvaluation:
			if e.Verdict == nil {
				continue
			}
			v := e.Verdict
			amounts = append(amounts, v.Amount)
			if v.Clamped {
				st.Rewards.Clamped++
			}
			st.Rewards.Distribution = append(st.Rewards.Distribution, models.RewardEntry{
				Evaluator: v.Evaluator,
				Target:    v.Target,
				Amount:    v.Amount,
			})
			agent(v.Target).RewardTotal += v.Amount
		case models.EventEvaluationSkipped:
			st.Rewards.Skipped++
		case models.EventExperimentRun:
			st.ExperimentRuns++
		case models.EventError:
			st.Errors[e.ErrorType]++
			if e.Data[dataOutcome] == outcomeSkipped {
				st.SkippedTurns++
			}
		case models.EventLLMCall:
			if e.Usage == nil {
				continue
			}
			st.LLM.Calls++
			st.LLM.PromptChars += e.Usage.PromptChars
			st.LLM.ResponseChars += e.Usage.ResponseChars
			st.LLM.EstimatedInputTokens += e.Usage.EstimatedInput
			st.LLM.EstimatedOutputTokens += e.Usage.EstimatedOut
		case models.EventSimulationEnd:
			st.Termination = models.Termination(e.Data[dataTermination])
		}
	}

	if st.TotalReviews > 0 {
		st.ApprovalRate = float64(st.Approved) / float64(st.TotalReviews)
		st.RejectionRate = float64(st.ChangesRequested) / float64(st.TotalReviews)
	}
	for s, submitters := range attempted {
		st.RetriesByStage[s] = float64(retries[s]) / float64(len(submitters))
	}

	if len(amounts) > 0 {
		st.Rewards.MinAmount, st.Rewards.MaxAmount = amounts[0], amounts[0]
		for _, a := range amounts {
			st.Rewards.TotalAmount += a
			st.Rewards.MinAmount = min(st.Rewards.MinAmount, a)
			st.Rewards.MaxAmount = max(st.Rewards.MaxAmount, a)
		}
		st.Rewards.AverageAmount = float64(st.Rewards.TotalAmount) / float64(len(amounts))
	}
	rewardCounts := make(map[models.Role]int)
	for _, d := range st.Rewards.Distribution {
		rewardCounts[d.Target]++
	}

	for r, a := range agents {
		stages := 0
		for _, submitters := range attempted {
			if submitters[r] {
				stages++
			}
		}
		if stages > 0 {
			a.AvgRetriesPerStage = float64(a.Retries) / float64(stages)
		}
		if n := rewardCounts[r]; n > 0 {
			a.RewardMean = float64(a.RewardTotal) / float64(n)
		}
		st.Agents[r] = *a
	}
	return st
}
