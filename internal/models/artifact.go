package models

import "time"

// Artifact is the output of one stage attempt.
type Artifact struct {
	ID         string    `json:"id"`
	Stage      Stage     `json:"stage"`
	Author     Role      `json:"author"`
	AuthorName string    `json:"author_name"`
	Attempt    int       `json:"attempt"`
	Path       string    `json:"path"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// ExperimentRun records one sandbox execution of an experiment artifact.
type ExperimentRun struct {
	ArtifactID  string  `json:"artifact_id"`
	Author      Role    `json:"author"`
	Attempt     int     `json:"attempt"`
	Provider    string  `json:"provider"`
	ExitCode    int     `json:"exit_code"`
	Stdout      string  `json:"stdout,omitempty"`
	Stderr      string  `json:"stderr,omitempty"`
	DurationSec float64 `json:"duration_sec"`
	Error       string  `json:"error,omitempty"`
}

// Succeeded reports whether the run finished with exit code zero.
func (r ExperimentRun) Succeeded() bool {
	return r.Error == "" && r.ExitCode == 0
}
