package models

import "time"

// SimulationConfig represents the parsed config.yaml configuration.
type SimulationConfig struct {
	Name          *string           `yaml:"name,omitempty" json:"name,omitempty"`
	Topic         string            `yaml:"topic" json:"topic"`
	MaxSteps      int               `yaml:"max_steps" json:"max_steps"`
	AbortOnError  bool              `yaml:"abort_on_error" json:"abort_on_error"`
	LogDir        string            `yaml:"log_dir" json:"log_dir"`
	LogLevel      string            `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	ConsoleOutput bool              `yaml:"console_output" json:"console_output"`
	Agents        []AgentConfig     `yaml:"agents,omitempty" json:"agents,omitempty"`
	Reward        RewardBounds      `yaml:"reward" json:"reward"`
	Review        ReviewConfig      `yaml:"review" json:"review"`
	Context       ContextLimits     `yaml:"context" json:"context"`
	Panel         PanelConfig       `yaml:"panel" json:"panel"`
	LLM           LLMConfig         `yaml:"llm" json:"llm"`
	Retry         RetryConfig       `yaml:"retry,omitempty" json:"retry,omitempty"`
	GitHub        GitHubConfig      `yaml:"github" json:"github"`
	Sandbox       SandboxConfig     `yaml:"sandbox" json:"sandbox"`
	Prompts       PromptsConfig     `yaml:"prompts,omitempty" json:"prompts,omitempty"`
	EventStore    EventStoreConfig  `yaml:"event_store,omitempty" json:"event_store,omitempty"`
	Notes         map[string]string `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// AgentConfig names a research agent.
type AgentConfig struct {
	Role Role   `yaml:"role" json:"role"`
	Name string `yaml:"name" json:"name"`
}

// ReviewConfig controls the retry policy of the stage engine.
type ReviewConfig struct {
	// MaxAttempts forces advancement after this many rejected attempts on one
	// stage. Zero keeps retries unbounded.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
}

// ContextLimits bounds what the context store renders into prompts. Zero
// values mean unbounded.
type ContextLimits struct {
	MaxReceived int `yaml:"max_received" json:"max_received"`
	MaxGiven    int `yaml:"max_given" json:"max_given"`
	MaxExcerpt  int `yaml:"max_excerpt" json:"max_excerpt"`
}

type PanelConfig struct {
	RosterPath  string `yaml:"roster_path,omitempty" json:"roster_path,omitempty"`
	RosterURL   string `yaml:"roster_url,omitempty" json:"roster_url,omitempty"`
	Concurrency int    `yaml:"concurrency" json:"concurrency"`
}

type LLMConfig struct {
	BaseURL        string  `yaml:"base_url" json:"base_url"`
	Model          string  `yaml:"model" json:"model"`
	APIKey         string  `yaml:"-" json:"-"`
	Temperature    float32 `yaml:"temperature" json:"temperature"`
	MaxTokens      int     `yaml:"max_tokens" json:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds" json:"timeout_seconds"`
}

type RetryConfig struct {
	MaxAttempts    int     `yaml:"max_attempts" json:"max_attempts"`
	InitialDelayMs int     `yaml:"initial_delay_ms" json:"initial_delay_ms"`
	MaxDelayMs     int     `yaml:"max_delay_ms" json:"max_delay_ms"`
	Multiplier     float64 `yaml:"multiplier" json:"multiplier"`
}

type GitHubConfig struct {
	Owner   string `yaml:"owner" json:"owner"`
	Repo    string `yaml:"repo_name" json:"repo_name"`
	Private bool   `yaml:"private" json:"private"`
	// Offline runs against an in-memory host instead of GitHub.
	Offline bool   `yaml:"offline" json:"offline"`
	TokenA  string `yaml:"-" json:"-"`
	TokenB  string `yaml:"-" json:"-"`
}

type SandboxConfig struct {
	Type           string         `yaml:"type" json:"type"`
	Image          string         `yaml:"image,omitempty" json:"image,omitempty"`
	Command        string         `yaml:"command,omitempty" json:"command,omitempty"`
	CPUs           int            `yaml:"cpus,omitempty" json:"cpus,omitempty"`
	Memory         string         `yaml:"memory,omitempty" json:"memory,omitempty"`
	TimeoutSec     float64        `yaml:"timeout_sec,omitempty" json:"timeout_sec,omitempty"`
	ProviderConfig map[string]any `yaml:"provider_config,omitempty" json:"provider_config,omitempty"`
}

type PromptsConfig struct {
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty"`
}

type EventStoreConfig struct {
	SQLitePath string `yaml:"sqlite_path,omitempty" json:"sqlite_path,omitempty"`
}

// AgentName returns the configured display name for role.
func (c SimulationConfig) AgentName(role Role) string {
	for _, a := range c.Agents {
		if a.Role == role && a.Name != "" {
			return a.Name
		}
	}
	return "Scientist " + string(role)
}

// Termination explains why a run stopped.
type Termination string

const (
	TerminationCompleted       Termination = "completed"
	TerminationBudgetExhausted Termination = "budget_exhausted"
	TerminationAborted         Termination = "aborted"
)

// Statistics is the aggregate view of one run, derived only from the event log.
type Statistics struct {
	StartedAt        time.Time             `json:"started_at"`
	EndedAt          time.Time             `json:"ended_at"`
	DurationSec      float64               `json:"duration_sec"`
	Termination      Termination           `json:"termination,omitempty"`
	TotalTurns       int                   `json:"total_turns"`
	SkippedTurns     int                   `json:"skipped_turns"`
	TotalReviews     int                   `json:"total_reviews"`
	Approved         int                   `json:"approved"`
	ChangesRequested int                   `json:"changes_requested"`
	CoercedVerdicts  int                   `json:"coerced_verdicts"`
	ApprovalRate     float64               `json:"approval_rate"`
	RejectionRate    float64               `json:"rejection_rate"`
	RetriesByStage   map[Stage]float64     `json:"avg_retries_by_stage"`
	Agents           map[Role]AgentSummary `json:"agents"`
	Rewards          RewardSummary         `json:"citizen_rewards"`
	ExperimentRuns   int                   `json:"experiment_runs"`
	Errors           map[ErrorType]int     `json:"errors,omitempty"`
	LLM              LLMSummary            `json:"llm"`
}

type AgentSummary struct {
	Name               string        `json:"name"`
	Theme              string        `json:"theme,omitempty"`
	FinalStage         Stage         `json:"final_stage"`
	Finished           bool          `json:"finished"`
	Submissions        int           `json:"prs_created"`
	Approved           int           `json:"prs_approved"`
	Rejected           int           `json:"prs_rejected"`
	ReviewsGiven       int           `json:"reviews_given"`
	Retries            int           `json:"retries"`
	ForcedAdvances     int           `json:"forced_advances,omitempty"`
	RetriesByStage     map[Stage]int `json:"retries_by_stage"`
	AvgRetriesPerStage float64       `json:"avg_retries_per_stage"`
	RewardTotal        int           `json:"reward_total"`
	RewardMean         float64       `json:"reward_mean"`
}

type RewardSummary struct {
	TotalAmount   int           `json:"total_amount"`
	AverageAmount float64       `json:"average_amount"`
	MinAmount     int           `json:"min_amount"`
	MaxAmount     int           `json:"max_amount"`
	Clamped       int           `json:"clamped"`
	Skipped       int           `json:"skipped"`
	Distribution  []RewardEntry `json:"distribution"`
}

type RewardEntry struct {
	Evaluator string `json:"citizen"`
	Target    Role   `json:"scientist"`
	Amount    int    `json:"amount"`
}

type LLMSummary struct {
	Calls                 int `json:"calls"`
	PromptChars           int `json:"prompt_chars"`
	ResponseChars         int `json:"response_chars"`
	EstimatedInputTokens  int `json:"estimated_input_tokens"`
	EstimatedOutputTokens int `json:"estimated_output_tokens"`
}
