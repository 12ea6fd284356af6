// Package prompts renders the generation prompts for research stages, peer
// reviews and citizen evaluations from text templates.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"text/template"

	"github.com/spachava753/peerlab/internal/models"
)

//go:embed templates/*.tmpl
var embedded embed.FS

const (
	agentSystemTemplate      = "agent_system.tmpl"
	reviewSystemTemplate     = "review_system.tmpl"
	reviewTemplate           = "review.tmpl"
	evaluationSystemTemplate = "evaluation_system.tmpl"
	evaluationTemplate       = "evaluation.tmpl"
)

// Message is a rendered system + user prompt pair.
type Message struct {
	System string
	User   string
}

// StageData is the template input for producing a stage artifact.
type StageData struct {
	AgentName string
	Role      models.Role
	Topic     string
	Theme     string
	Stage     models.Stage
	Attempt   int
	Path      string
	Context   string
}

// ReviewData is the template input for reviewing a peer submission.
type ReviewData struct {
	ReviewerName string
	Reviewer     models.Role
	AuthorName   string
	Author       models.Role
	Stage        models.Stage
	Attempt      int
	Title        string
	Path         string
	Content      string
	Context      string
}

// EvaluationData is the template input for a citizen evaluation.
type EvaluationData struct {
	Persona   models.Persona
	AgentName string
	Target    models.Role
	Theme     string
	Min       int
	Max       int
}

// Set holds a validated collection of templates.
type Set struct {
	tmpl *template.Template
}

// Required lists every template name a Set must define.
func Required() []string {
	names := []string{
		agentSystemTemplate,
		reviewSystemTemplate,
		reviewTemplate,
		evaluationSystemTemplate,
		evaluationTemplate,
	}
	for _, s := range models.Stages() {
		names = append(names, stageTemplate(s))
	}
	return names
}

func stageTemplate(s models.Stage) string {
	return s.String() + ".tmpl"
}

// Default returns the embedded template set.
func Default() *Set {
	set, err := Load(nil)
	if err != nil {
		panic(fmt.Sprintf("embedded prompt templates are invalid: %v", err))
	}
	return set
}

// Load parses the embedded templates and then any *.tmpl files in overrides,
// which replace embedded templates of the same name. overrides may be nil.
func Load(overrides fs.FS) (*Set, error) {
	base, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, fmt.Errorf("opening embedded templates: %w", err)
	}

	tmpl, err := template.New("prompts").Option("missingkey=error").ParseFS(base, "*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing embedded templates: %w", err)
	}

	if overrides != nil {
		matches, err := fs.Glob(overrides, "*.tmpl")
		if err != nil {
			return nil, fmt.Errorf("listing template overrides: %w", err)
		}
		if len(matches) > 0 {
			if tmpl, err = tmpl.ParseFS(overrides, matches...); err != nil {
				return nil, fmt.Errorf("parsing template overrides: %w", err)
			}
		}
	}

	set := &Set{tmpl: tmpl}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// LoadDir loads overrides from a directory. An empty dir yields the defaults.
func LoadDir(dir string) (*Set, error) {
	if dir == "" {
		return Load(nil)
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("prompt directory: %w", err)
	}
	return Load(os.DirFS(dir))
}

// Validate checks that every required template is defined.
func (s *Set) Validate() error {
	for _, name := range Required() {
		if s.tmpl.Lookup(name) == nil {
			return fmt.Errorf("template %s not found", name)
		}
	}
	return nil
}

// Stage renders the prompt that produces an artifact for data.Stage.
func (s *Set) Stage(data StageData) (Message, error) {
	if !data.Stage.Valid() {
		return Message{}, fmt.Errorf("rendering stage prompt: invalid stage %d", data.Stage)
	}
	return s.render(agentSystemTemplate, stageTemplate(data.Stage), data)
}

// Review renders the prompt a reviewer answers with a verdict.
func (s *Set) Review(data ReviewData) (Message, error) {
	return s.render(reviewSystemTemplate, reviewTemplate, data)
}

// Evaluation renders the prompt a citizen persona answers with a verdict.
func (s *Set) Evaluation(data EvaluationData) (Message, error) {
	return s.render(evaluationSystemTemplate, evaluationTemplate, data)
}

func (s *Set) render(system, user string, data any) (Message, error) {
	var msg Message
	var err error
	if msg.System, err = s.execute(system, data); err != nil {
		return Message{}, err
	}
	if msg.User, err = s.execute(user, data); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (s *Set) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}
