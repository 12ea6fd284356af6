package models

import (
	"fmt"
	"time"
)

// Verdict is the binary outcome of a review.
type Verdict string

const (
	VerdictApprove        Verdict = "approve"
	VerdictRequestChanges Verdict = "request_changes"
)

// Valid reports whether v is one of the two terminal verdicts.
func (v Verdict) Valid() bool {
	return v == VerdictApprove || v == VerdictRequestChanges
}

// ReviewRecord is the immutable result of one review. The same value is held
// by the reviewer's given list and the author's received list.
type ReviewRecord struct {
	ID         string    `json:"id"`
	ArtifactID string    `json:"artifact_id"`
	Stage      Stage     `json:"stage"`
	Attempt    int       `json:"attempt"`
	Author     Role      `json:"author"`
	Reviewer   Role      `json:"reviewer"`
	Verdict    Verdict   `json:"verdict"`
	Feedback   string    `json:"feedback"`
	Reasoning  string    `json:"reasoning,omitempty"`
	Coerced    bool      `json:"coerced,omitempty"`
	RequestID  int       `json:"request_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the structural invariants of a record.
func (r ReviewRecord) Validate() error {
	if !r.Author.Valid() || !r.Reviewer.Valid() {
		return fmt.Errorf("review %s: invalid roles %q/%q", r.ID, r.Author, r.Reviewer)
	}
	if r.Author == r.Reviewer {
		return fmt.Errorf("review %s: author and reviewer are both %s", r.ID, r.Author)
	}
	if !r.Verdict.Valid() {
		return fmt.Errorf("review %s: invalid verdict %q", r.ID, r.Verdict)
	}
	return nil
}
