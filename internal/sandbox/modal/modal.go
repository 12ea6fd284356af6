// Package modal runs experiments in Modal sandboxes.
package modal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/modal-labs/libmodal/modal-go"
	"golang.org/x/sync/errgroup"

	"github.com/spachava753/peerlab/internal/sandbox"
)

const (
	defaultApp      = "peerlab-experiments"
	defaultLifetime = 30 * time.Minute
	defaultCPUs     = 1
	defaultMemoryMB = 2048
)

// Config is read from sandbox.provider_config.
type Config struct {
	App      string
	Regions  []string
	Verbose  bool
	// Lifetime caps how long a sandbox may live, independent of the
	// per-run timeout.
	Lifetime time.Duration
}

// ParseConfig reads app_name, region or regions, verbose and lifetime_sec.
func ParseConfig(raw map[string]any) (Config, error) {
	cfg := Config{App: defaultApp, Lifetime: defaultLifetime}
	for key, v := range raw {
		switch key {
		case "app_name":
			s, ok := v.(string)
			if !ok {
				return cfg, fmt.Errorf("modal: app_name must be a string")
			}
			if s != "" {
				cfg.App = s
			}
		case "region":
			s, ok := v.(string)
			if !ok {
				return cfg, fmt.Errorf("modal: region must be a string")
			}
			cfg.Regions = append(cfg.Regions, s)
		case "regions":
			list, ok := v.([]any)
			if !ok {
				return cfg, fmt.Errorf("modal: regions must be a list")
			}
			for _, r := range list {
				s, ok := r.(string)
				if !ok {
					return cfg, fmt.Errorf("modal: regions entries must be strings, got %T", r)
				}
				cfg.Regions = append(cfg.Regions, s)
			}
		case "verbose":
			b, ok := v.(bool)
			if !ok {
				return cfg, fmt.Errorf("modal: verbose must be a boolean")
			}
			cfg.Verbose = b
		case "lifetime_sec":
			var sec float64
			switch n := v.(type) {
			case int:
				sec = float64(n)
			case float64:
				sec = n
			default:
				return cfg, fmt.Errorf("modal: lifetime_sec must be a number")
			}
			if sec <= 0 {
				return cfg, fmt.Errorf("modal: lifetime_sec must be positive")
			}
			cfg.Lifetime = time.Duration(sec * float64(time.Second))
		default:
			return cfg, fmt.Errorf("modal: unknown provider_config key %q", key)
		}
	}
	return cfg, nil
}

// Provider creates one Modal sandbox per experiment run.
type Provider struct {
	client *modal.Client
	cfg    Config
}

// NewProvider connects with the credentials from the environment or the
// Modal config file.
func NewProvider(cfg Config) (*Provider, error) {
	client, err := modal.NewClient()
	if err != nil {
		return nil, fmt.Errorf("creating modal client: %w", err)
	}
	return &Provider{client: client, cfg: cfg}, nil
}

func (p *Provider) Name() string { return "modal" }

// createParams fills in the default resources of an experiment sandbox.
func (p *Provider) createParams(opts sandbox.CreateEnvironmentOptions) *modal.SandboxCreateParams {
	cpus := opts.CPUs
	if cpus <= 0 {
		cpus = defaultCPUs
	}
	mem := opts.MemoryMB
	if mem <= 0 {
		mem = defaultMemoryMB
	}
	env := make(map[string]string, len(opts.Env))
	for k, v := range opts.Env {
		env[k] = v
	}
	return &modal.SandboxCreateParams{
		CPU:       float64(cpus),
		MemoryMiB: mem,
		Env:       env,
		Timeout:   p.cfg.Lifetime,
		Verbose:   p.cfg.Verbose,
		Regions:   p.cfg.Regions,
	}
}

func (p *Provider) CreateEnvironment(ctx context.Context, opts sandbox.CreateEnvironmentOptions) (sandbox.Environment, error) {
	app, err := p.client.Apps.FromName(ctx, p.cfg.App, &modal.AppFromNameParams{CreateIfMissing: true})
	if err != nil {
		return nil, fmt.Errorf("looking up modal app %s: %w", p.cfg.App, err)
	}
	params := p.createParams(opts)
	slog.Debug("starting modal sandbox", "app", p.cfg.App, "image", opts.ImageRef, "run", opts.Name,
		"cpus", params.CPU, "memory_mib", params.MemoryMiB)

	sb, err := p.client.Sandboxes.Create(ctx, app, p.client.Images.FromRegistry(opts.ImageRef, nil), params)
	if err != nil {
		return nil, fmt.Errorf("starting modal sandbox: %w", err)
	}
	return &Environment{sb: sb}, nil
}

// Environment is a running Modal sandbox.
type Environment struct {
	sb *modal.Sandbox
}

func (e *Environment) ID() string { return e.sb.SandboxID }

// WriteFile creates the parent directory of dst and writes content to it.
func (e *Environment) WriteFile(ctx context.Context, dst string, content []byte) error {
	if dir := dirOf(dst); dir != "" {
		code, err := e.run(ctx, []string{"mkdir", "-p", dir}, io.Discard, io.Discard, &modal.SandboxExecParams{})
		if err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		if code != 0 {
			return fmt.Errorf("creating %s: exit code %d", dir, code)
		}
	}
	f, err := e.sb.Open(ctx, dst, "w")
	if err != nil {
		return fmt.Errorf("opening %s: %w", dst, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	if err := f.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing %s: %w", dst, err)
	}
	return f.Close()
}

// dirOf returns the parent directory of an absolute or nested path, or the
// empty string when there is nothing to create.
func dirOf(p string) string {
	if !strings.Contains(strings.TrimPrefix(p, "/"), "/") {
		return ""
	}
	return path.Dir(p)
}

func (e *Environment) Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts sandbox.ExecOptions) (int, error) {
	slog.Debug("running in modal sandbox", "sandbox_id", e.sb.SandboxID, "command", cmd, "timeout", opts.Timeout)
	return e.run(ctx, []string{"sh", "-c", cmd}, stdout, stderr, &modal.SandboxExecParams{
		Env:     opts.Env,
		Timeout: opts.Timeout,
		Workdir: opts.WorkDir,
	})
}

// run starts argv and drains both output streams before waiting for the exit
// code.
func (e *Environment) run(ctx context.Context, argv []string, stdout, stderr io.Writer, params *modal.SandboxExecParams) (int, error) {
	proc, err := e.sb.Exec(ctx, argv, params)
	if err != nil {
		return -1, fmt.Errorf("starting %s: %w", argv[0], err)
	}
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(stdout, proc.Stdout)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(stderr, proc.Stderr)
		return err
	})
	copyErr := g.Wait()

	code, err := proc.Wait(ctx)
	if err != nil {
		return -1, fmt.Errorf("waiting for %s: %w", argv[0], err)
	}
	if copyErr != nil {
		return code, fmt.Errorf("reading output of %s: %w", argv[0], copyErr)
	}
	return code, nil
}

// Destroy terminates the sandbox. A sandbox that is already gone is not an
// error.
func (e *Environment) Destroy(ctx context.Context) error {
	err := e.sb.Terminate(ctx)
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "already terminated") || strings.Contains(msg, "not found") {
		return nil
	}
	return fmt.Errorf("terminating modal sandbox %s: %w", e.sb.SandboxID, err)
}
