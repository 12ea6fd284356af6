package prompts_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/spachava753/peerlab/internal/models"
	"github.com/spachava753/peerlab/internal/prompts"
)

func TestDefaultStagePrompts(t *testing.T) {
	set := prompts.Default()

	for _, stage := range models.Stages() {
		msg, err := set.Stage(prompts.StageData{
			AgentName: "Scientist A",
			Role:      models.RoleA,
			Topic:     "sentiment analysis",
			Theme:     "contrastive pretraining for sarcasm",
			Stage:     stage,
			Path:      stage.Path(models.RoleA),
			Context:   "CONTEXT-MARKER",
		})
		if err != nil {
			t.Fatalf("Stage(%s): %v", stage, err)
		}
		if !strings.Contains(msg.System, "Scientist A") || !strings.Contains(msg.System, stage.String()) {
			t.Errorf("Stage(%s) system prompt missing agent or stage: %q", stage, msg.System)
		}
		if stage == models.StageThemeDecision {
			if !strings.Contains(msg.User, "sentiment analysis") {
				t.Errorf("theme prompt should carry the topic: %q", msg.User)
			}
			continue
		}
		if !strings.Contains(msg.User, "CONTEXT-MARKER") {
			t.Errorf("Stage(%s) user prompt missing context", stage)
		}
	}
}

func TestStagePromptRevision(t *testing.T) {
	msg, err := prompts.Default().Stage(prompts.StageData{
		AgentName: "Scientist B",
		Role:      models.RoleB,
		Stage:     models.StageHypothesis,
		Attempt:   2,
		Path:      "hypotheses/hypothesis_B.md",
	})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if !strings.Contains(msg.User, "revision 2") {
		t.Errorf("expected revision note, got %q", msg.User)
	}
}

func TestStageInvalid(t *testing.T) {
	if _, err := prompts.Default().Stage(prompts.StageData{Stage: models.Stage(9)}); err == nil {
		t.Error("expected error for invalid stage")
	}
}

func TestReviewAndEvaluation(t *testing.T) {
	set := prompts.Default()

	review, err := set.Review(prompts.ReviewData{
		ReviewerName: "Scientist B",
		Reviewer:     models.RoleB,
		AuthorName:   "Scientist A",
		Author:       models.RoleA,
		Stage:        models.StageExperimentPlan,
		Title:        "[Scientist A] experiment_plan",
		Path:         "experiments/plan_A.md",
		Content:      "PLAN-BODY",
		Context:      "REVIEWER-CONTEXT",
	})
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if !strings.Contains(review.User, "PLAN-BODY") || !strings.Contains(review.System, "REVIEWER-CONTEXT") {
		t.Errorf("review prompt missing content or context")
	}
	if !strings.Contains(review.User, "VERDICT: APPROVE") {
		t.Errorf("review prompt should describe the marker fallback")
	}

	eval, err := set.Evaluation(prompts.EvaluationData{
		Persona:   models.Persona{Name: "Keiko Yoshida", Age: 45, Occupation: "Nurse", Values: "safety"},
		AgentName: "Scientist A",
		Target:    models.RoleA,
		Theme:     "THEME-BODY",
		Min:       1,
		Max:       1000,
	})
	if err != nil {
		t.Fatalf("Evaluation: %v", err)
	}
	if !strings.Contains(eval.System, "Keiko Yoshida") || !strings.Contains(eval.System, "1000") {
		t.Errorf("evaluation system prompt missing persona or bounds: %q", eval.System)
	}
	if !strings.Contains(eval.User, "THEME-BODY") {
		t.Errorf("evaluation prompt missing theme")
	}
}

func TestLoadOverrides(t *testing.T) {
	fsys := fstest.MapFS{
		"hypothesis.tmpl": &fstest.MapFile{Data: []byte("custom hypothesis for {{.AgentName}}")},
		"notes.txt":       &fstest.MapFile{Data: []byte("ignored")},
	}

	set, err := prompts.Load(fsys)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	msg, err := set.Stage(prompts.StageData{AgentName: "Scientist A", Role: models.RoleA, Stage: models.StageHypothesis})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if msg.User != "custom hypothesis for Scientist A" {
		t.Errorf("override not applied: %q", msg.User)
	}

	// other stages keep the embedded default
	msg, err = set.Stage(prompts.StageData{Stage: models.StageExperimentPlan, Context: "ctx"})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if !strings.Contains(msg.User, "experiment plan") {
		t.Errorf("expected default template, got %q", msg.User)
	}
}

func TestLoadOverrideErrors(t *testing.T) {
	bad := fstest.MapFS{
		"review.tmpl": &fstest.MapFile{Data: []byte("{{.Unclosed")},
	}
	if _, err := prompts.Load(bad); err == nil {
		t.Error("expected parse error")
	}

	missingKey := fstest.MapFS{
		"review.tmpl": &fstest.MapFile{Data: []byte("{{.NoSuchField}}")},
	}
	set, err := prompts.Load(missingKey)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := set.Review(prompts.ReviewData{}); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "paper_writing.tmpl"), []byte("write it"), 0644); err != nil {
		t.Fatalf("writing template: %v", err)
	}
	set, err := prompts.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	msg, err := set.Stage(prompts.StageData{Stage: models.StagePaperWriting})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if msg.User != "write it" {
		t.Errorf("unexpected paper prompt %q", msg.User)
	}

	if _, err := prompts.LoadDir(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}
