package models

import (
	"fmt"
	"time"
)

// Persona describes a citizen evaluator.
type Persona struct {
	Name       string `toml:"name" json:"name"`
	Age        int    `toml:"age" json:"age"`
	Occupation string `toml:"occupation" json:"occupation"`
	Background string `toml:"background" json:"background"`
	Values     string `toml:"values" json:"values"`
}

func (p Persona) String() string {
	return fmt.Sprintf("%s (%d, %s)", p.Name, p.Age, p.Occupation)
}

// RewardBounds is the inclusive range evaluator amounts are clamped into.
type RewardBounds struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// Clamp returns amount limited to the bounds and whether it was changed.
func (b RewardBounds) Clamp(amount int) (int, bool) {
	switch {
	case amount < b.Min:
		return b.Min, true
	case amount > b.Max:
		return b.Max, true
	default:
		return amount, false
	}
}

// Contains reports whether amount lies within the bounds.
func (b RewardBounds) Contains(amount int) bool {
	return amount >= b.Min && amount <= b.Max
}

// EvaluatorVerdict is one persona's funding decision for one agent's theme.
type EvaluatorVerdict struct {
	Evaluator string    `json:"evaluator"`
	Persona   string    `json:"persona"`
	Target    Role      `json:"target"`
	Comment   string    `json:"comment"`
	Amount    int       `json:"amount"`
	RawAmount int       `json:"raw_amount"`
	Clamped   bool      `json:"clamped,omitempty"`
	Rationale string    `json:"rationale"`
	CreatedAt time.Time `json:"created_at"`
}
