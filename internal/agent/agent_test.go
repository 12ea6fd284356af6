package agent

import (
	"testing"

	"github.com/spachava753/peerlab/internal/models"
)

func TestNewAndRefreshPeer(t *testing.T) {
	a := New("", models.RoleA, models.ContextLimits{}, nil, nil)
	b := New("Babbage", models.RoleB, models.ContextLimits{}, nil, nil)

	if a.Name() != "Scientist A" || a.State.Stage != models.StageThemeDecision {
		t.Errorf("unexpected initial state %+v", a.State)
	}
	if a.Context.Owner() != models.RoleA {
		t.Errorf("store owned by %s", a.Context.Owner())
	}

	b.State.Advance()
	b.State.Retry()
	if err := a.RefreshPeer(b); err != nil {
		t.Fatalf("RefreshPeer: %v", err)
	}
	snap, ok := a.Context.Peer()
	if !ok || snap.Name != "Babbage" || snap.Stage != models.StageHypothesis || snap.Attempt != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	if err := a.RefreshPeer(a); err == nil {
		t.Error("an agent cannot be its own peer")
	}
}
