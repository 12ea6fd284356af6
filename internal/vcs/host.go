// Package vcs is the version-control boundary. A Host is one agent's account
// on the shared research repository.
package vcs

import (
	"context"

	"github.com/spachava753/peerlab/internal/models"
)

// DefaultBranch is the branch review requests merge into.
const DefaultBranch = "main"

// ReviewRequest is an open pull request.
type ReviewRequest struct {
	Number int
	Title  string
	Head   string
	Base   string
	URL    string
}

// Host performs repository operations as one account. Errors wrap
// models.ErrHostRejected for permanent refusals and models.ErrTransient for
// failures worth retrying.
type Host interface {
	// Account returns the login the host acts as.
	Account() string
	CreateRepo(ctx context.Context, description string, private bool) error
	InitLayout(ctx context.Context, dirs []string) error
	CreateBranch(ctx context.Context, name, from string) error
	CommitFile(ctx context.Context, branch, path, content, message string) error
	OpenReviewRequest(ctx context.Context, title, body, head, base string) (ReviewRequest, error)
	PostVerdict(ctx context.Context, number int, verdict models.Verdict, body string) error
	Merge(ctx context.Context, number int, message string) error
	Close(ctx context.Context, number int) error
}
