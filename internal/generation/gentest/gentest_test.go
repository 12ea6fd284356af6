package gentest

import (
	"context"
	"errors"
	"testing"

	"github.com/spachava753/peerlab/internal/generation"
)

func TestRouting(t *testing.T) {
	boom := errors.New("boom")
	p := New(
		Route{Prefix: "stage/", Replies: []Reply{{Text: "generic"}}},
		Route{Prefix: "stage/A/", Replies: []Reply{{Text: "first"}, {Err: boom}}},
		Route{Prefix: "review/", Func: func(pr generation.Prompt) (string, error) { return "review of " + pr.User, nil }},
	)
	ctx := context.Background()

	if out, _ := p.Produce(ctx, generation.Prompt{Caller: "stage/A/hypothesis"}); out != "first" {
		t.Errorf("got %q, want first", out)
	}
	if _, err := p.Produce(ctx, generation.Prompt{Caller: "stage/A/hypothesis"}); !errors.Is(err, boom) {
		t.Errorf("expected scripted error, got %v", err)
	}
	if _, err := p.Produce(ctx, generation.Prompt{Caller: "stage/A/hypothesis"}); !errors.Is(err, boom) {
		t.Errorf("drained route should repeat its last reply, got %v", err)
	}
	if out, _ := p.Produce(ctx, generation.Prompt{Caller: "stage/B/hypothesis"}); out != "generic" {
		t.Errorf("got %q, want generic", out)
	}
	if out, _ := p.Produce(ctx, generation.Prompt{Caller: "review/B", User: "x"}); out != "review of x" {
		t.Errorf("got %q", out)
	}
	if _, err := p.Produce(ctx, generation.Prompt{Caller: "panel/x"}); err == nil {
		t.Error("expected error for unrouted caller")
	}
	if n := len(p.CallsWithPrefix("stage/")); n != 4 {
		t.Errorf("expected 4 stage calls, got %d", n)
	}
}
