package vcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/go-github/v66/github"

	"github.com/spachava753/peerlab/internal/models"
)

// GitHub implements Host against the GitHub REST API with one token.
type GitHub struct {
	client  *github.Client
	owner   string
	repo    string
	account string
}

// NewGitHub authenticates with token and operates on owner/repo. account is
// the label used in logs and review-request bookkeeping.
func NewGitHub(token, owner, repo, account string) *GitHub {
	return newGitHub(github.NewClient(nil).WithAuthToken(token), owner, repo, account)
}

func newGitHub(client *github.Client, owner, repo, account string) *GitHub {
	return &GitHub{client: client, owner: owner, repo: repo, account: account}
}

// NewGitHubWithBaseURL targets a GitHub-compatible API at baseURL, such as an
// enterprise server.
func NewGitHubWithBaseURL(baseURL, token, owner, repo, account string) (*GitHub, error) {
	client := github.NewClient(nil).WithAuthToken(token)
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Path == "" || u.Path[len(u.Path)-1] != '/' {
		u.Path += "/"
	}
	client.BaseURL = u
	return newGitHub(client, owner, repo, account), nil
}

func (g *GitHub) Account() string { return g.account }

// CreateRepo creates the repository on the authenticated account unless it
// already exists.
func (g *GitHub) CreateRepo(ctx context.Context, description string, private bool) error {
	_, _, err := g.client.Repositories.Get(ctx, g.owner, g.repo)
	if err == nil {
		slog.Debug("repository already exists", "owner", g.owner, "repo", g.repo)
		return nil
	}
	if statusOf(err) != http.StatusNotFound {
		return classify("getting repository", err)
	}

	_, _, err = g.client.Repositories.Create(ctx, "", &github.Repository{
		Name:        github.String(g.repo),
		Description: github.String(description),
		Private:     github.Bool(private),
		AutoInit:    github.Bool(true),
	})
	if err != nil {
		return classify("creating repository", err)
	}
	return nil
}

// InitLayout creates a .gitkeep in each directory on the default branch.
func (g *GitHub) InitLayout(ctx context.Context, dirs []string) error {
	for _, dir := range dirs {
		_, _, err := g.client.Repositories.CreateFile(ctx, g.owner, g.repo, dir+"/.gitkeep", &github.RepositoryContentFileOptions{
			Message: github.String(fmt.Sprintf("Initialize %s directory", dir)),
			Content: []byte{},
			Branch:  github.String(DefaultBranch),
		})
		if err != nil {
			if statusOf(err) == http.StatusUnprocessableEntity {
				slog.Debug("directory already exists", "dir", dir)
				continue
			}
			return classify("initialising "+dir, err)
		}
	}
	return nil
}

// CreateBranch creates name at the head of from. An existing branch is left
// as is.
func (g *GitHub) CreateBranch(ctx context.Context, name, from string) error {
	source, _, err := g.client.Git.GetRef(ctx, g.owner, g.repo, "refs/heads/"+from)
	if err != nil {
		return classify("reading branch "+from, err)
	}
	_, _, err = g.client.Git.CreateRef(ctx, g.owner, g.repo, &github.Reference{
		Ref:    github.String("refs/heads/" + name),
		Object: &github.GitObject{SHA: source.Object.SHA},
	})
	if err != nil {
		if statusOf(err) == http.StatusUnprocessableEntity {
			slog.Debug("branch already exists", "branch", name)
			return nil
		}
		return classify("creating branch "+name, err)
	}
	return nil
}

// CommitFile creates path on branch, updating it when it already exists.
func (g *GitHub) CommitFile(ctx context.Context, branch, path, content, message string) error {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: []byte(content),
		Branch:  github.String(branch),
	}
	_, _, err := g.client.Repositories.CreateFile(ctx, g.owner, g.repo, path, opts)
	if err == nil {
		return nil
	}
	if statusOf(err) != http.StatusUnprocessableEntity {
		return classify("committing "+path, err)
	}

	existing, _, _, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, path, &github.RepositoryContentGetOptions{Ref: branch})
	if err != nil {
		return classify("reading "+path, err)
	}
	if existing == nil {
		return fmt.Errorf("committing %s: path is a directory: %w", path, models.ErrHostRejected)
	}
	opts.SHA = existing.SHA
	if _, _, err := g.client.Repositories.UpdateFile(ctx, g.owner, g.repo, path, opts); err != nil {
		return classify("updating "+path, err)
	}
	return nil
}

func (g *GitHub) OpenReviewRequest(ctx context.Context, title, body, head, base string) (ReviewRequest, error) {
	pr, _, err := g.client.PullRequests.Create(ctx, g.owner, g.repo, &github.NewPullRequest{
		Title: github.String(title),
		Head:  github.String(head),
		Base:  github.String(base),
		Body:  github.String(body),
	})
	if err != nil {
		return ReviewRequest{}, classify("opening pull request", err)
	}
	return ReviewRequest{
		Number: pr.GetNumber(),
		Title:  pr.GetTitle(),
		Head:   head,
		Base:   base,
		URL:    pr.GetHTMLURL(),
	}, nil
}

// PostVerdict submits an APPROVE or REQUEST_CHANGES review.
func (g *GitHub) PostVerdict(ctx context.Context, number int, verdict models.Verdict, body string) error {
	event := "REQUEST_CHANGES"
	if verdict == models.VerdictApprove {
		event = "APPROVE"
	}
	_, _, err := g.client.PullRequests.CreateReview(ctx, g.owner, g.repo, number, &github.PullRequestReviewRequest{
		Body:  github.String(body),
		Event: github.String(event),
	})
	if err != nil {
		return classify(fmt.Sprintf("reviewing pull request #%d", number), err)
	}
	return nil
}

func (g *GitHub) Merge(ctx context.Context, number int, message string) error {
	result, _, err := g.client.PullRequests.Merge(ctx, g.owner, g.repo, number, message, &github.PullRequestOptions{MergeMethod: "merge"})
	if err != nil {
		return classify(fmt.Sprintf("merging pull request #%d", number), err)
	}
	if !result.GetMerged() {
		return fmt.Errorf("merging pull request #%d: %s: %w", number, result.GetMessage(), models.ErrHostRejected)
	}
	return nil
}

func (g *GitHub) Close(ctx context.Context, number int) error {
	_, _, err := g.client.PullRequests.Edit(ctx, g.owner, g.repo, number, &github.PullRequest{State: github.String("closed")})
	if err != nil {
		return classify(fmt.Sprintf("closing pull request #%d", number), err)
	}
	return nil
}

func statusOf(err error) int {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return errResp.Response.StatusCode
	}
	return 0
}

// classify wraps err with the sentinel matching its failure class.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return fmt.Errorf("%s: %v: %w", op, err, models.ErrTransient)
	}
	if status := statusOf(err); status != 0 {
		if status == http.StatusTooManyRequests || status >= 500 {
			return fmt.Errorf("%s: %v: %w", op, err, models.ErrTransient)
		}
		return fmt.Errorf("%s: %v: %w", op, err, models.ErrHostRejected)
	}
	// no HTTP response at all: network failure
	return fmt.Errorf("%s: %v: %w", op, err, models.ErrTransient)
}
