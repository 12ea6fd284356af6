package generation

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/spachava753/peerlab/internal/models"
)

// Recorder accepts events; *eventlog.Log satisfies it.
type Recorder interface {
	Append(models.Event) models.Event
}

// EstimateTokens approximates a token count at four characters per token.
func EstimateTokens(chars int) int {
	return chars / 4
}

// Usage computes the accounting for one call.
func Usage(caller, model string, p Prompt, response string) models.LLMUsage {
	promptChars := utf8.RuneCountInString(p.System) + utf8.RuneCountInString(p.User)
	responseChars := utf8.RuneCountInString(response)
	return models.LLMUsage{
		Caller:         caller,
		Model:          model,
		PromptChars:    promptChars,
		ResponseChars:  responseChars,
		EstimatedInput: EstimateTokens(promptChars),
		EstimatedOut:   EstimateTokens(responseChars),
	}
}

// Metered appends an llm_call event for every successful generation.
func Metered(p Producer, model string, rec Recorder) Producer {
	return ProducerFunc(func(ctx context.Context, prompt Prompt) (string, error) {
		out, err := p.Produce(ctx, prompt)
		if err != nil {
			return out, err
		}
		usage := Usage(prompt.Caller, model, prompt, out)
		rec.Append(models.Event{
			Type:    models.EventLLMCall,
			Message: fmt.Sprintf("%s: %d prompt chars, %d response chars", prompt.Caller, usage.PromptChars, usage.ResponseChars),
			Usage:   &usage,
		})
		return out, nil
	})
}
