// Package generation is the text-generation boundary: the Producer
// capability, an OpenAI-compatible HTTP client, retries, usage metering and
// helpers that parse structured output.
package generation

import "context"

// Prompt is one generation request.
type Prompt struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
	// Caller names the requesting component, e.g. "stage/A/hypothesis".
	Caller      string
}

// Producer turns a prompt into text.
type Producer interface {
	Produce(ctx context.Context, p Prompt) (string, error)
}

// ProducerFunc adapts a function to Producer.
type ProducerFunc func(ctx context.Context, p Prompt) (string, error)

func (f ProducerFunc) Produce(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}
