package models

import "time"

// EventType names an entry in the simulation event log.
type EventType string

const (
	EventSimulationStart   EventType = "simulation_start"
	EventHostOperation     EventType = "host_operation"
	EventThemeDecision     EventType = "theme_decision"
	EventEvaluation        EventType = "evaluation"
	EventEvaluationSkipped EventType = "evaluation_skipped"
	EventTurnStart         EventType = "turn_start"
	EventArtifact          EventType = "artifact"
	EventExperimentRun     EventType = "experiment_run"
	EventReviewRequest     EventType = "review_request"
	EventReview            EventType = "review"
	EventMerge             EventType = "merge"
	EventStageAdvance      EventType = "stage_advance"
	EventStageRetry        EventType = "stage_retry"
	EventStageForced       EventType = "stage_forced"
	EventAgentFinished     EventType = "agent_finished"
	EventLLMCall           EventType = "llm_call"
	EventError             EventType = "error"
	EventSimulationEnd     EventType = "simulation_end"
)

// Event is one immutable entry in the simulation event log.
type Event struct {
	Seq       int               `json:"seq"`
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"event_type"`
	Turn      int               `json:"turn,omitempty"`
	Agent     Role              `json:"agent,omitempty"`
	Stage     *Stage            `json:"stage,omitempty"`
	Message   string            `json:"description"`
	ErrorType ErrorType         `json:"error_type,omitempty"`
	Artifact  *Artifact         `json:"artifact,omitempty"`
	Review    *ReviewRecord     `json:"review,omitempty"`
	Verdict   *EvaluatorVerdict `json:"verdict,omitempty"`
	Run       *ExperimentRun    `json:"experiment_run,omitempty"`
	Usage     *LLMUsage         `json:"usage,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// LLMUsage is the accounting attached to an llm_call event. Tokens are
// estimated at four characters per token.
type LLMUsage struct {
	Caller         string `json:"caller"`
	Model          string `json:"model,omitempty"`
	PromptChars    int    `json:"prompt_chars"`
	ResponseChars  int    `json:"response_chars"`
	EstimatedInput int    `json:"estimated_input_tokens"`
	EstimatedOut   int    `json:"estimated_output_tokens"`
}

// StagePtr returns a pointer to a copy of s, for Event.Stage.
func StagePtr(s Stage) *Stage {
	return &s
}
