package vcs

import (
	"context"

	"github.com/spachava753/peerlab/internal/models"
	"github.com/spachava753/peerlab/internal/util"
)

type retryingHost struct {
	host Host
	cfg  models.RetryConfig
}

// WithRetry wraps h so that transient failures are retried with backoff.
func WithRetry(h Host, cfg models.RetryConfig) Host {
	return &retryingHost{host: h, cfg: cfg}
}

func (r *retryingHost) do(ctx context.Context, op string, fn func() error) error {
	return util.Retry(ctx, r.cfg, r.host.Account()+" "+op, fn)
}

func (r *retryingHost) Account() string { return r.host.Account() }

func (r *retryingHost) CreateRepo(ctx context.Context, description string, private bool) error {
	return r.do(ctx, "create repo", func() error { return r.host.CreateRepo(ctx, description, private) })
}

func (r *retryingHost) InitLayout(ctx context.Context, dirs []string) error {
	return r.do(ctx, "init layout", func() error { return r.host.InitLayout(ctx, dirs) })
}

func (r *retryingHost) CreateBranch(ctx context.Context, name, from string) error {
	return r.do(ctx, "create branch", func() error { return r.host.CreateBranch(ctx, name, from) })
}

func (r *retryingHost) CommitFile(ctx context.Context, branch, path, content, message string) error {
	return r.do(ctx, "commit", func() error { return r.host.CommitFile(ctx, branch, path, content, message) })
}

func (r *retryingHost) OpenReviewRequest(ctx context.Context, title, body, head, base string) (ReviewRequest, error) {
	var req ReviewRequest
	err := r.do(ctx, "open review request", func() error {
		var err error
		req, err = r.host.OpenReviewRequest(ctx, title, body, head, base)
		return err
	})
	return req, err
}

func (r *retryingHost) PostVerdict(ctx context.Context, number int, verdict models.Verdict, body string) error {
	return r.do(ctx, "post verdict", func() error { return r.host.PostVerdict(ctx, number, verdict, body) })
}

func (r *retryingHost) Merge(ctx context.Context, number int, message string) error {
	return r.do(ctx, "merge", func() error { return r.host.Merge(ctx, number, message) })
}

func (r *retryingHost) Close(ctx context.Context, number int) error {
	return r.do(ctx, "close", func() error { return r.host.Close(ctx, number) })
}
