package models

import "fmt"

// Role identifies one of the two research agents.
type Role string

const (
	RoleA Role = "A"
	RoleB Role = "B"
)

// Roles returns both roles in turn order.
func Roles() []Role {
	return []Role{RoleA, RoleB}
}

// Peer returns the other role.
func (r Role) Peer() Role {
	if r == RoleA {
		return RoleB
	}
	return RoleA
}

// Valid reports whether r is A or B.
func (r Role) Valid() bool {
	return r == RoleA || r == RoleB
}

// ParseRole accepts "A", "B" and their lower-case forms.
func ParseRole(s string) (Role, error) {
	switch s {
	case "A", "a":
		return RoleA, nil
	case "B", "b":
		return RoleB, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// AgentState is the mutable progress record of one research agent.
type AgentState struct {
	Name           string          `json:"name"`
	Role           Role            `json:"role"`
	Stage          Stage           `json:"stage"`
	Attempt        int             `json:"attempt"`
	Completed      [NumStages]bool `json:"completed"`
	Finished       bool            `json:"finished"`
	LastVerdict    Verdict         `json:"last_verdict,omitempty"`
	ForcedAdvances int             `json:"forced_advances,omitempty"`
	Theme          string          `json:"theme,omitempty"`
}

// NewAgentState returns the initial state for role.
func NewAgentState(name string, role Role) AgentState {
	if name == "" {
		name = fmt.Sprintf("Scientist %s", role)
	}
	return AgentState{Name: name, Role: role, Stage: StageThemeDecision}
}

// Advance marks the current stage complete and moves to the next one. At the
// terminal stage the agent becomes finished and the index stays put.
func (a *AgentState) Advance() {
	a.Completed[a.Stage] = true
	a.Attempt = 0
	if a.Stage == TerminalStage {
		a.Finished = true
		return
	}
	a.Stage = a.Stage.Next()
}

// Retry keeps the agent on its stage and bumps the attempt counter.
func (a *AgentState) Retry() {
	a.Attempt++
}
