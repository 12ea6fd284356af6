package generation

import (
	"context"

	"github.com/spachava753/peerlab/internal/models"
	"github.com/spachava753/peerlab/internal/util"
)

// WithRetry retries transient failures of p with exponential backoff.
func WithRetry(p Producer, cfg models.RetryConfig) Producer {
	return ProducerFunc(func(ctx context.Context, prompt Prompt) (string, error) {
		var out string
		err := util.Retry(ctx, cfg, "generate "+prompt.Caller, func() error {
			var err error
			out, err = p.Produce(ctx, prompt)
			return err
		})
		return out, err
	})
}
