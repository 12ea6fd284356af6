package contextstore

import (
	"fmt"
	"strings"

	"github.com/spachava753/peerlab/internal/models"
)

// Assemble renders the store into a prompt section. Section order is fixed:
// latest submission, received reviews, given reviews, citizen feedback, peer
// status, research record, experiment runs. It does not modify the store.
func (s *Store) Assemble() string {
	var b strings.Builder

	b.WriteString("## Your latest submission\n")
	if a, ok := s.LatestSubmission(); ok {
		fmt.Fprintf(&b, "%s, attempt %d (%s)\n%s\n", a.Stage, a.Attempt, a.Path, s.excerpt(a.Content))
	} else {
		b.WriteString("(none yet)\n")
	}

	b.WriteString("\n## Reviews you received\n")
	s.writeReviews(&b, s.received, s.limits.MaxReceived, func(r models.ReviewRecord) string {
		return "from " + string(r.Reviewer)
	})

	b.WriteString("\n## Reviews you gave\n")
	s.writeReviews(&b, s.given, s.limits.MaxGiven, func(r models.ReviewRecord) string {
		return "for " + string(r.Author)
	})

	b.WriteString("\n## Citizen feedback\n")
	s.writeFeedback(&b)

	b.WriteString("\n## Peer status\n")
	if p, ok := s.Peer(); ok {
		status := "in progress"
		if p.Finished {
			status = "finished"
		}
		last := string(p.LastVerdict)
		if last == "" {
			last = "none"
		}
		fmt.Fprintf(&b, "%s (agent %s): stage %s, attempt %d, last verdict %s, %s\n",
			p.Name, p.Role, p.Stage, p.Attempt, last, status)
	} else {
		b.WriteString("(unknown)\n")
	}

	b.WriteString("\n## Research record\n")
	s.writeRecord(&b)

	b.WriteString("\n## Experiment runs\n")
	if len(s.runs) == 0 {
		b.WriteString("(none yet)\n")
	}
	for _, run := range s.runs {
		writeRun(&b, run, s.limits.MaxExcerpt)
	}

	return b.String()
}

// writeReviews lists records oldest first. With a positive limit, all but the
// newest limit records collapse to one line each so every verdict stays visible.
func (s *Store) writeReviews(b *strings.Builder, records []models.ReviewRecord, limit int, party func(models.ReviewRecord) string) {
	if len(records) == 0 {
		b.WriteString("(none yet)\n")
		return
	}
	cut := 0
	if limit > 0 && len(records) > limit {
		cut = len(records) - limit
	}
	for i, r := range records {
		if i < cut {
			fmt.Fprintf(b, "- %s attempt %d %s: %s\n", r.Stage, r.Attempt, party(r), r.Verdict)
			continue
		}
		fmt.Fprintf(b, "### %s attempt %d %s: %s\n", r.Stage, r.Attempt, party(r), r.Verdict)
		if r.Feedback != "" {
			b.WriteString(s.excerpt(r.Feedback) + "\n")
		}
		if r.Reasoning != "" {
			fmt.Fprintf(b, "Reasoning: %s\n", s.excerpt(r.Reasoning))
		}
	}
}

func (s *Store) writeFeedback(b *strings.Builder) {
	if len(s.feedback) == 0 {
		b.WriteString("(none yet)\n")
		return
	}
	var peerCount, peerTotal int
	for _, v := range s.feedback {
		if v.Target != s.owner {
			peerCount++
			peerTotal += v.Amount
			continue
		}
		fmt.Fprintf(b, "- %s: %d. %s", v.Evaluator, v.Amount, s.excerpt(v.Comment))
		if v.Rationale != "" {
			fmt.Fprintf(b, " (reason: %s)", s.excerpt(v.Rationale))
		}
		b.WriteString("\n")
	}
	if peerCount > 0 {
		fmt.Fprintf(b, "Peer %s received %d evaluations totalling %d.\n", s.owner.Peer(), peerCount, peerTotal)
	}
}

func (s *Store) writeRecord(b *strings.Builder) {
	wrote := false
	if s.theme != "" {
		fmt.Fprintf(b, "### %s\n%s\n", models.StageThemeDecision, s.excerpt(s.theme))
		wrote = true
	}
	approved := s.Approved()
	for _, stage := range models.Stages() {
		a, ok := approved[stage]
		if !ok || stage == models.StageThemeDecision {
			continue
		}
		fmt.Fprintf(b, "### %s (approved, attempt %d)\n%s\n", stage, a.Attempt, s.excerpt(a.Content))
		wrote = true
	}
	if !wrote {
		b.WriteString("(none yet)\n")
	}
}

func writeRun(b *strings.Builder, run models.ExperimentRun, limit int) {
	fmt.Fprintf(b, "### attempt %d on %s: exit %d in %.1fs\n", run.Attempt, run.Provider, run.ExitCode, run.DurationSec)
	if run.Error != "" {
		fmt.Fprintf(b, "Error: %s\n", run.Error)
	}
	if run.Stdout != "" {
		fmt.Fprintf(b, "stdout:\n%s\n", Excerpt(run.Stdout, limit))
	}
	if run.Stderr != "" {
		fmt.Fprintf(b, "stderr:\n%s\n", Excerpt(run.Stderr, limit))
	}
}

func (s *Store) excerpt(text string) string {
	return Excerpt(text, s.limits.MaxExcerpt)
}

// Excerpt returns text cut to at most n runes followed by "...". A
// non-positive n returns text unchanged.
func Excerpt(text string, n int) string {
	if n <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
