// Package agent composes one research agent from its progress state, its
// context store and its collaborators.
package agent

import (
	"github.com/spachava753/peerlab/internal/contextstore"
	"github.com/spachava753/peerlab/internal/generation"
	"github.com/spachava753/peerlab/internal/models"
	"github.com/spachava753/peerlab/internal/vcs"
)

// Agent is one research agent. State is mutated only by the stage engine and
// the coordinator.
type Agent struct {
	State    models.AgentState
	Context  *contextstore.Store
	Producer generation.Producer
	Host     vcs.Host
}

// New creates an agent at the theme-decision stage with an empty store.
func New(name string, role models.Role, limits models.ContextLimits, producer generation.Producer, host vcs.Host) *Agent {
	state := models.NewAgentState(name, role)
	return &Agent{
		State:    state,
		Context:  contextstore.New(role, state.Name, limits),
		Producer: producer,
		Host:     host,
	}
}

func (a *Agent) Role() models.Role { return a.State.Role }

func (a *Agent) Name() string { return a.State.Name }

// Snapshot returns the view of this agent that its peer may see.
func (a *Agent) Snapshot() contextstore.PeerSnapshot {
	return contextstore.SnapshotOf(a.State)
}

// RefreshPeer copies the peer's current snapshot into this agent's store.
func (a *Agent) RefreshPeer(peer *Agent) error {
	return a.Context.UpdatePeerSnapshot(peer.Snapshot())
}
