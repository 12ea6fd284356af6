package models

import (
	"fmt"
	"strings"
)

// Stage is one of the ordered research phases an agent moves through.
type Stage int

const (
	StageThemeDecision Stage = iota
	StageHypothesis
	StageExperimentPlan
	StageExperimentImplementation
	StageResultsInterpretation
	StagePaperWriting
)

// NumStages is the number of research stages.
const NumStages = 6

// TerminalStage is the last stage; approving it finishes the agent.
const TerminalStage = StagePaperWriting

var stageNames = [NumStages]string{
	"theme_decision",
	"hypothesis",
	"experiment_plan",
	"experiment_implementation",
	"results_interpretation",
	"paper_writing",
}

// stagePaths maps each stage to its repository file, %s is the role.
var stagePaths = [NumStages]string{
	"discussions/theme_%s.md",
	"hypotheses/hypothesis_%s.md",
	"experiments/plan_%s.md",
	"experiments/code_%s.py",
	"experiments/results_%s.md",
	"papers/draft_%s.md",
}

// RepositoryLayout lists the directories created when the research repository
// is initialised.
var RepositoryLayout = []string{"hypotheses", "experiments", "models", "discussions", "papers"}

// Stages returns all stages in order.
func Stages() []Stage {
	out := make([]Stage, NumStages)
	for i := range out {
		out[i] = Stage(i)
	}
	return out
}

// Valid reports whether s is within the stage enumeration.
func (s Stage) Valid() bool {
	return s >= StageThemeDecision && s <= TerminalStage
}

func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Next returns the following stage, or s itself at the terminal stage.
func (s Stage) Next() Stage {
	if s >= TerminalStage {
		return TerminalStage
	}
	return s + 1
}

// Path returns the repository path of the stage artifact for role.
func (s Stage) Path(role Role) string {
	if !s.Valid() {
		return fmt.Sprintf("output_%s_%d.md", role, int(s))
	}
	return fmt.Sprintf(stagePaths[s], role)
}

// ParseStage resolves a stage name such as "experiment_plan".
func ParseStage(name string) (Stage, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stage %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
