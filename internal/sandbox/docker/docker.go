package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/spachava753/peerlab/internal/sandbox"
)

// Provider starts experiment containers through the docker CLI. Containers
// have no network and are removed when they stop.
type Provider struct {
	// Binary is the docker executable, "docker" when empty.
	Binary string
}

func NewProvider() *Provider {
	return &Provider{Binary: "docker"}
}

func (p *Provider) Name() string { return "docker" }

func (p *Provider) binary() string {
	if p.Binary == "" {
		return "docker"
	}
	return p.Binary
}

// envArgs renders env as -e flags in key order.
func envArgs(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var args []string
	for _, k := range keys {
		args = append(args, "-e", k+"="+env[k])
	}
	return args
}

// runArgs starts an idle container that exec calls run inside.
func runArgs(name string, opts sandbox.CreateEnvironmentOptions) []string {
	args := []string{"run", "-d", "--rm", "--network", "none", "--name", name}
	if opts.CPUs > 0 {
		args = append(args, "--cpus", fmt.Sprint(opts.CPUs))
	}
	if opts.MemoryMB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", opts.MemoryMB))
	}
	args = append(args, envArgs(opts.Env)...)
	return append(args, opts.ImageRef, "sleep", "infinity")
}

func execArgs(container, cmd string, opts sandbox.ExecOptions) []string {
	args := append([]string{"exec"}, envArgs(opts.Env)...)
	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}
	return append(args, container, "sh", "-c", cmd)
}

func (p *Provider) CreateEnvironment(ctx context.Context, opts sandbox.CreateEnvironmentOptions) (sandbox.Environment, error) {
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("peerlab-%d", time.Now().UnixNano())
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binary(), runArgs(name, opts)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("starting container %s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return &Environment{binary: p.binary(), name: name}, nil
}

// Environment is a running experiment container, addressed by name.
type Environment struct {
	binary string
	name   string
}

func (e *Environment) ID() string { return e.name }

// WriteFile streams content into the container through docker exec.
func (e *Environment) WriteFile(ctx context.Context, dst string, content []byte) error {
	script := fmt.Sprintf("mkdir -p '%s' && cat > '%s'", path.Dir(dst), dst)
	cmd := exec.CommandContext(ctx, e.binary, "exec", "-i", e.name, "sh", "-c", script)
	cmd.Stdin = bytes.NewReader(content)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("writing %s to container: %w: %s", dst, err, stderr.String())
	}
	return nil
}

func (e *Environment) Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts sandbox.ExecOptions) (int, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, e.binary, execArgs(e.name, cmd, opts)...)
	c.Stdout = stdout
	c.Stderr = stderr
	err := c.Run()
	if err == nil {
		return 0, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return -1, fmt.Errorf("command timed out after %s", opts.Timeout)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("running in container %s: %w", e.name, err)
}

// Destroy force-removes the container. A container that is already gone is
// not an error.
func (e *Environment) Destroy(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, e.binary, "rm", "-f", e.name).CombinedOutput()
	if err != nil && !strings.Contains(string(out), "No such container") {
		return fmt.Errorf("removing container %s: %w: %s", e.name, err, strings.TrimSpace(string(out)))
	}
	return nil
}
