package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/spachava753/peerlab/internal/models"
)

const (
	DefaultImage   = "python:3.12-slim"
	DefaultTimeout = 10 * time.Minute
	// MaxOutput bounds the captured stdout and stderr of a run, each.
	MaxOutput = 64 * 1024

	workDir    = "/workspace"
	scriptName = "experiment.py"
)

// Runner executes experiment implementation artifacts in fresh environments.
type Runner struct {
	provider Provider
	image    string
	command  string
	cpus     int
	memoryMB int
	timeout  time.Duration
	now      func() time.Time
}

// NewRunner creates a runner that uses provider with the sandbox settings of
// cfg. The command defaults to running the script with python.
func NewRunner(provider Provider, cfg models.SandboxConfig) (*Runner, error) {
	mem, err := parseMemoryMB(cfg.Memory)
	if err != nil {
		return nil, fmt.Errorf("parsing sandbox memory: %w", err)
	}
	r := &Runner{
		provider: provider,
		image:    cfg.Image,
		command:  cfg.Command,
		cpus:     cfg.CPUs,
		memoryMB: mem,
		timeout:  time.Duration(cfg.TimeoutSec * float64(time.Second)),
		now:      time.Now,
	}
	if r.image == "" {
		r.image = DefaultImage
	}
	if r.command == "" {
		r.command = "python3 " + scriptName
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	return r, nil
}

// Name returns the provider name.
func (r *Runner) Name() string { return r.provider.Name() }

// Run writes the artifact content as a script into a new environment and
// executes it. Failures of the experiment itself are reported in the returned
// run; only cancellation of ctx is returned as an error.
func (r *Runner) Run(ctx context.Context, art models.Artifact) (models.ExperimentRun, error) {
	run := models.ExperimentRun{
		ArtifactID: art.ID,
		Author:     art.Author,
		Attempt:    art.Attempt,
		Provider:   r.provider.Name(),
		ExitCode:   -1,
	}
	start := r.now()
	err := r.execute(ctx, art, &run)
	run.DurationSec = r.now().Sub(start).Seconds()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return run, ctxErr
		}
		run.Error = err.Error()
		slog.Warn("experiment run failed", "author", art.Author, "provider", run.Provider, "error", err)
	}
	return run, nil
}

func (r *Runner) execute(ctx context.Context, art models.Artifact, run *models.ExperimentRun) error {
	env, err := r.provider.CreateEnvironment(ctx, CreateEnvironmentOptions{
		Name:     fmt.Sprintf("peerlab-%s-%d", strings.ToLower(string(art.Author)), r.now().UnixNano()),
		ImageRef: r.image,
		CPUs:     r.cpus,
		MemoryMB: r.memoryMB,
		Env:      map[string]string{"PYTHONUNBUFFERED": "1"},
	})
	if err != nil {
		return fmt.Errorf("creating environment: %w", err)
	}
	defer func() {
		cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()
		if err := env.Destroy(cleanup); err != nil {
			slog.Warn("destroying sandbox", "id", env.ID(), "error", err)
		}
	}()
	slog.Debug("sandbox ready", "id", env.ID(), "provider", r.provider.Name())

	if err := env.WriteFile(ctx, path.Join(workDir, scriptName), []byte(art.Content)); err != nil {
		return fmt.Errorf("writing experiment script: %w", err)
	}

	stdout := &capped{limit: MaxOutput}
	stderr := &capped{limit: MaxOutput}
	code, err := env.Exec(ctx, r.command, stdout, stderr, ExecOptions{Timeout: r.timeout, WorkDir: workDir})
	run.Stdout = stdout.String()
	run.Stderr = stderr.String()
	if err != nil {
		return fmt.Errorf("executing experiment: %w", err)
	}
	run.ExitCode = code
	return nil
}

// capped keeps the first limit bytes written to it and discards the rest.
type capped struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (c *capped) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room < len(p) {
		c.truncated = true
		if room > 0 {
			c.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *capped) String() string {
	if c.truncated {
		return c.buf.String() + "\n[output truncated]"
	}
	return c.buf.String()
}
