// Package contextstore keeps an agent's working memory: its submissions, the
// reviews it received and gave, citizen feedback and a view of its peer, and
// renders them into the context section of generation prompts.
package contextstore

import (
	"fmt"

	"github.com/spachava753/peerlab/internal/models"
)

// PeerSnapshot is a read-only projection of the other agent's progress.
type PeerSnapshot struct {
	Name        string
	Role        models.Role
	Stage       models.Stage
	Attempt     int
	LastVerdict models.Verdict
	Finished    bool
}

// SnapshotOf projects an agent state into a PeerSnapshot.
func SnapshotOf(s models.AgentState) PeerSnapshot {
	return PeerSnapshot{
		Name:        s.Name,
		Role:        s.Role,
		Stage:       s.Stage,
		Attempt:     s.Attempt,
		LastVerdict: s.LastVerdict,
		Finished:    s.Finished,
	}
}

// Store is owned by exactly one agent. It is not safe for concurrent use; the
// coordinator goroutine is its only writer.
type Store struct {
	owner     models.Role
	ownerName string
	limits    models.ContextLimits

	theme       string
	submissions []models.Artifact
	received    []models.ReviewRecord
	given       []models.ReviewRecord
	feedback    []models.EvaluatorVerdict
	runs        []models.ExperimentRun
	peer        *PeerSnapshot
}

// New creates an empty store for the agent playing owner.
func New(owner models.Role, name string, limits models.ContextLimits) *Store {
	return &Store{owner: owner, ownerName: name, limits: limits}
}

func (s *Store) Owner() models.Role { return s.owner }

// SetTheme records the agent's decided research theme.
func (s *Store) SetTheme(theme string) { s.theme = theme }

func (s *Store) Theme() string { return s.theme }

// RecordSubmission appends an artifact authored by the owner.
func (s *Store) RecordSubmission(a models.Artifact) error {
	if a.Author != s.owner {
		return fmt.Errorf("store %s: submission %s authored by %s", s.owner, a.ID, a.Author)
	}
	s.submissions = append(s.submissions, a)
	return nil
}

// RecordReviewGiven appends a review the owner wrote.
func (s *Store) RecordReviewGiven(r models.ReviewRecord) error {
	if err := s.checkGiven(r); err != nil {
		return err
	}
	s.given = append(s.given, r)
	return nil
}

// RecordReviewReceived appends a review of one of the owner's submissions.
func (s *Store) RecordReviewReceived(r models.ReviewRecord) error {
	if err := s.checkReceived(r); err != nil {
		return err
	}
	s.received = append(s.received, r)
	return nil
}

func (s *Store) checkGiven(r models.ReviewRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Reviewer != s.owner {
		return fmt.Errorf("store %s: review %s was given by %s", s.owner, r.ID, r.Reviewer)
	}
	return nil
}

func (s *Store) checkReceived(r models.ReviewRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Author != s.owner {
		return fmt.Errorf("store %s: review %s targets %s", s.owner, r.ID, r.Author)
	}
	return nil
}

// CheckPair reports whether rec can be appended to both stores without
// changing either.
func CheckPair(author, reviewer *Store, rec models.ReviewRecord) error {
	if author == reviewer {
		return fmt.Errorf("review %s: author and reviewer share a store", rec.ID)
	}
	if err := author.checkReceived(rec); err != nil {
		return fmt.Errorf("recording review: %w", err)
	}
	if err := reviewer.checkGiven(rec); err != nil {
		return fmt.Errorf("recording review: %w", err)
	}
	return nil
}

// RecordReviewPair appends rec to the reviewer's given list and the author's
// received list. Both sides are validated before either is changed.
func RecordReviewPair(author, reviewer *Store, rec models.ReviewRecord) error {
	if err := CheckPair(author, reviewer, rec); err != nil {
		return err
	}
	author.received = append(author.received, rec)
	reviewer.given = append(reviewer.given, rec)
	return nil
}

// Outcome is what one reviewed submission adds to the two stores: the
// artifact, its experiment run if it was executed, and the review.
type Outcome struct {
	Artifact models.Artifact
	Run      *models.ExperimentRun
	Review   models.ReviewRecord
}

// CheckOutcome validates o against both stores without changing them.
func CheckOutcome(author, reviewer *Store, o Outcome) error {
	if o.Artifact.Author != author.owner {
		return fmt.Errorf("store %s: submission %s authored by %s", author.owner, o.Artifact.ID, o.Artifact.Author)
	}
	if o.Review.ArtifactID != o.Artifact.ID {
		return fmt.Errorf("review %s is of %s, not %s", o.Review.ID, o.Review.ArtifactID, o.Artifact.ID)
	}
	if o.Run != nil {
		if o.Run.Author != author.owner {
			return fmt.Errorf("store %s: experiment run belongs to %s", author.owner, o.Run.Author)
		}
		if o.Run.ArtifactID != o.Artifact.ID {
			return fmt.Errorf("experiment run of %s attached to %s", o.Run.ArtifactID, o.Artifact.ID)
		}
	}
	return CheckPair(author, reviewer, o.Review)
}

// RecordOutcome appends every part of o or, when any part is invalid,
// nothing.
func RecordOutcome(author, reviewer *Store, o Outcome) error {
	if err := CheckOutcome(author, reviewer, o); err != nil {
		return err
	}
	author.submissions = append(author.submissions, o.Artifact)
	if o.Run != nil {
		author.runs = append(author.runs, *o.Run)
	}
	return RecordReviewPair(author, reviewer, o.Review)
}

// RecordEvaluatorFeedback stores a citizen verdict for either agent.
func (s *Store) RecordEvaluatorFeedback(v models.EvaluatorVerdict) error {
	if !v.Target.Valid() {
		return fmt.Errorf("store %s: verdict from %s has invalid target %q", s.owner, v.Evaluator, v.Target)
	}
	s.feedback = append(s.feedback, v)
	return nil
}

// UpdatePeerSnapshot replaces the view of the other agent.
func (s *Store) UpdatePeerSnapshot(p PeerSnapshot) error {
	if p.Role != s.owner.Peer() {
		return fmt.Errorf("store %s: snapshot is of %s, not the peer", s.owner, p.Role)
	}
	s.peer = &p
	return nil
}

// RecordExperimentRun stores the outcome of executing one of the owner's
// experiment artifacts.
func (s *Store) RecordExperimentRun(run models.ExperimentRun) error {
	if run.Author != s.owner {
		return fmt.Errorf("store %s: experiment run belongs to %s", s.owner, run.Author)
	}
	s.runs = append(s.runs, run)
	return nil
}

func (s *Store) Submissions() []models.Artifact { return append([]models.Artifact(nil), s.submissions...) }

func (s *Store) Received() []models.ReviewRecord { return append([]models.ReviewRecord(nil), s.received...) }

func (s *Store) Given() []models.ReviewRecord { return append([]models.ReviewRecord(nil), s.given...) }

func (s *Store) Feedback() []models.EvaluatorVerdict {
	return append([]models.EvaluatorVerdict(nil), s.feedback...)
}

func (s *Store) Runs() []models.ExperimentRun { return append([]models.ExperimentRun(nil), s.runs...) }

// Peer returns the last snapshot of the peer, if any.
func (s *Store) Peer() (PeerSnapshot, bool) {
	if s.peer == nil {
		return PeerSnapshot{}, false
	}
	return *s.peer, true
}

// LatestSubmission returns the owner's most recent artifact.
func (s *Store) LatestSubmission() (models.Artifact, bool) {
	if len(s.submissions) == 0 {
		return models.Artifact{}, false
	}
	return s.submissions[len(s.submissions)-1], true
}

// LatestRun returns the most recent experiment run, if any.
func (s *Store) LatestRun() (models.ExperimentRun, bool) {
	if len(s.runs) == 0 {
		return models.ExperimentRun{}, false
	}
	return s.runs[len(s.runs)-1], true
}

// Approved returns, per stage, the latest submission that received an approve
// verdict.
func (s *Store) Approved() map[models.Stage]models.Artifact {
	approvedIDs := make(map[string]bool)
	for _, r := range s.received {
		if r.Verdict == models.VerdictApprove {
			approvedIDs[r.ArtifactID] = true
		}
	}
	out := make(map[models.Stage]models.Artifact)
	for _, a := range s.submissions {
		if approvedIDs[a.ID] {
			out[a.Stage] = a
		}
	}
	return out
}
