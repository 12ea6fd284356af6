// Package memhost is an in-memory version-control server used for offline
// runs and tests. Each account gets its own vcs.Host view of one shared
// repository.
package memhost

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spachava753/peerlab/internal/models"
	"github.com/spachava753/peerlab/internal/vcs"
)

// PRState is the lifecycle state of a pull request.
type PRState string

const (
	StateOpen   PRState = "open"
	StateMerged PRState = "merged"
	StateClosed PRState = "closed"
)

// Review is one posted verdict.
type Review struct {
	Account string
	Verdict models.Verdict
	Body    string
}

// PullRequest is the server-side record of a review request.
type PullRequest struct {
	Number  int
	Title   string
	Body    string
	Head    string
	Base    string
	Author  string
	State   PRState
	Reviews []Review
}

// Server holds the shared repository state.
type Server struct {
	mu          sync.Mutex
	name        string
	created     bool
	description string
	branches    map[string]map[string]string
	prs         map[int]*PullRequest
	next        int
	failures    map[string][]error
	ops         []string
}

// NewServer creates an empty server for the repository name.
func NewServer(name string) *Server {
	return &Server{
		name:     name,
		branches: make(map[string]map[string]string),
		prs:      make(map[int]*PullRequest),
		failures: make(map[string][]error),
	}
}

// Host returns the view of the server that acts as account.
func (s *Server) Host(account string) vcs.Host {
	return &host{server: s, account: account}
}

// FailNext makes the next call of op ("create_repo", "init_layout",
// "create_branch", "commit", "open", "verdict", "merge", "close") return err.
// Queued failures are consumed in order.
func (s *Server) FailNext(op string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], errs...)
}

// begin records op and returns an injected failure, if any. Callers hold mu.
func (s *Server) begin(account, op string) error {
	s.ops = append(s.ops, account+":"+op)
	queue := s.failures[op]
	if len(queue) == 0 {
		return nil
	}
	s.failures[op] = queue[1:]
	return queue[0]
}

// Ops returns "account:op" for every call received, in order.
func (s *Server) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

// PullRequest returns a copy of pull request number.
func (s *Server) PullRequest(number int) (PullRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pr, ok := s.prs[number]
	if !ok {
		return PullRequest{}, false
	}
	out := *pr
	out.Reviews = append([]Review(nil), pr.Reviews...)
	return out, true
}

// PullRequests returns copies of all pull requests ordered by number.
func (s *Server) PullRequests() []PullRequest {
	s.mu.Lock()
	numbers := make([]int, 0, len(s.prs))
	for n := range s.prs {
		numbers = append(numbers, n)
	}
	s.mu.Unlock()

	sort.Ints(numbers)
	out := make([]PullRequest, 0, len(numbers))
	for _, n := range numbers {
		pr, _ := s.PullRequest(n)
		out = append(out, pr)
	}
	return out
}

// File returns the content of path on branch.
func (s *Server) File(branch, path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files, ok := s.branches[branch]
	if !ok {
		return "", false
	}
	content, ok := files[path]
	return content, ok
}

// Files lists the paths on branch in sorted order.
func (s *Server) Files(branch string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for p := range s.branches[branch] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func rejected(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, models.ErrHostRejected)...)
}

type host struct {
	server  *Server
	account string
}

func (h *host) Account() string { return h.account }

func (h *host) CreateRepo(ctx context.Context, description string, private bool) error {
	s := h.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(h.account, "create_repo"); err != nil {
		return err
	}
	if s.created {
		return nil
	}
	s.created = true
	s.description = description
	s.branches[vcs.DefaultBranch] = map[string]string{"README.md": "# " + s.name + "\n"}
	return nil
}

func (h *host) InitLayout(ctx context.Context, dirs []string) error {
	s := h.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(h.account, "init_layout"); err != nil {
		return err
	}
	files, ok := s.branches[vcs.DefaultBranch]
	if !ok {
		return rejected("repository %s does not exist", s.name)
	}
	for _, d := range dirs {
		files[d+"/.gitkeep"] = ""
	}
	return nil
}

func (h *host) CreateBranch(ctx context.Context, name, from string) error {
	s := h.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(h.account, "create_branch"); err != nil {
		return err
	}
	source, ok := s.branches[from]
	if !ok {
		return rejected("branch %s not found", from)
	}
	if _, exists := s.branches[name]; exists {
		return nil
	}
	files := make(map[string]string, len(source))
	for p, c := range source {
		files[p] = c
	}
	s.branches[name] = files
	return nil
}

func (h *host) CommitFile(ctx context.Context, branch, path, content, message string) error {
	s := h.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(h.account, "commit"); err != nil {
		return err
	}
	files, ok := s.branches[branch]
	if !ok {
		return rejected("branch %s not found", branch)
	}
	if strings.TrimSpace(path) == "" {
		return rejected("empty path")
	}
	files[path] = content
	return nil
}

func (h *host) OpenReviewRequest(ctx context.Context, title, body, head, base string) (vcs.ReviewRequest, error) {
	s := h.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(h.account, "open"); err != nil {
		return vcs.ReviewRequest{}, err
	}
	if _, ok := s.branches[head]; !ok {
		return vcs.ReviewRequest{}, rejected("head branch %s not found", head)
	}
	if _, ok := s.branches[base]; !ok {
		return vcs.ReviewRequest{}, rejected("base branch %s not found", base)
	}
	if head == base {
		return vcs.ReviewRequest{}, rejected("head and base are both %s", head)
	}
	s.next++
	s.prs[s.next] = &PullRequest{
		Number: s.next,
		Title:  title,
		Body:   body,
		Head:   head,
		Base:   base,
		Author: h.account,
		State:  StateOpen,
	}
	return vcs.ReviewRequest{
		Number: s.next,
		Title:  title,
		Head:   head,
		Base:   base,
		URL:    fmt.Sprintf("mem://%s/pull/%d", s.name, s.next),
	}, nil
}

func (h *host) openPR(number int) (*PullRequest, error) {
	pr, ok := h.server.prs[number]
	if !ok {
		return nil, rejected("pull request #%d not found", number)
	}
	if pr.State != StateOpen {
		return nil, rejected("pull request #%d is %s", number, pr.State)
	}
	return pr, nil
}

func (h *host) PostVerdict(ctx context.Context, number int, verdict models.Verdict, body string) error {
	s := h.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(h.account, "verdict"); err != nil {
		return err
	}
	pr, err := h.openPR(number)
	if err != nil {
		return err
	}
	if pr.Author == h.account {
		return rejected("%s cannot review their own pull request #%d", h.account, number)
	}
	if !verdict.Valid() {
		return rejected("invalid verdict %q", verdict)
	}
	pr.Reviews = append(pr.Reviews, Review{Account: h.account, Verdict: verdict, Body: body})
	return nil
}

func (h *host) Merge(ctx context.Context, number int, message string) error {
	s := h.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(h.account, "merge"); err != nil {
		return err
	}
	pr, err := h.openPR(number)
	if err != nil {
		return err
	}
	base := s.branches[pr.Base]
	for p, c := range s.branches[pr.Head] {
		base[p] = c
	}
	pr.State = StateMerged
	return nil
}

func (h *host) Close(ctx context.Context, number int) error {
	s := h.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(h.account, "close"); err != nil {
		return err
	}
	pr, err := h.openPR(number)
	if err != nil {
		return err
	}
	pr.State = StateClosed
	return nil
}
