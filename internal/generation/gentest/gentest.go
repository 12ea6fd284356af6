// Package gentest provides a scripted generation.Producer for tests.
package gentest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spachava753/peerlab/internal/generation"
)

// Reply is one scripted response.
type Reply struct {
	Text string
	Err  error
}

// Route answers prompts whose Caller starts with Prefix.
type Route struct {
	Prefix  string
	Replies []Reply
	// Func answers once Replies is drained. Nil repeats the last reply.
	Func    func(generation.Prompt) (string, error)
}

// Producer replays scripted replies and records every prompt it sees.
type Producer struct {
	mu     sync.Mutex
	routes []*Route
	calls  []generation.Prompt
	used   map[*Route]int
}

// New creates a producer that answers by the longest matching route prefix.
func New(routes ...Route) *Producer {
	p := &Producer{used: make(map[*Route]int)}
	for i := range routes {
		r := routes[i]
		p.routes = append(p.routes, &r)
	}
	return p
}

// Always answers every prompt with text.
func Always(text string) *Producer {
	return New(Route{Replies: []Reply{{Text: text}}})
}

func (p *Producer) Produce(ctx context.Context, prompt generation.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, prompt)

	route := p.match(prompt.Caller)
	if route == nil {
		return "", fmt.Errorf("gentest: no route for caller %q", prompt.Caller)
	}
	n := p.used[route]
	p.used[route] = n + 1
	if n < len(route.Replies) {
		r := route.Replies[n]
		return r.Text, r.Err
	}
	if route.Func != nil {
		return route.Func(prompt)
	}
	if len(route.Replies) == 0 {
		return "", fmt.Errorf("gentest: route %q has no replies", route.Prefix)
	}
	r := route.Replies[len(route.Replies)-1]
	return r.Text, r.Err
}

func (p *Producer) match(caller string) *Route {
	var best *Route
	for _, r := range p.routes {
		if !strings.HasPrefix(caller, r.Prefix) {
			continue
		}
		if best == nil || len(r.Prefix) > len(best.Prefix) {
			best = r
		}
	}
	return best
}

// Calls returns the prompts received so far.
func (p *Producer) Calls() []generation.Prompt {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]generation.Prompt(nil), p.calls...)
}

// CallsWithPrefix returns the prompts whose Caller starts with prefix.
func (p *Producer) CallsWithPrefix(prefix string) []generation.Prompt {
	var out []generation.Prompt
	for _, c := range p.Calls() {
		if strings.HasPrefix(c.Caller, prefix) {
			out = append(out, c)
		}
	}
	return out
}
