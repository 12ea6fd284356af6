// Package sandbox executes experiment implementations in throwaway
// containers and reports what they printed.
package sandbox

import (
	"context"
	"io"
	"time"
)

// Environment is one isolated container that lives for a single experiment
// run.
type Environment interface {
	ID() string
	// WriteFile creates or replaces path, creating parent directories.
	WriteFile(ctx context.Context, path string, content []byte) error
	// Exec runs cmd through a shell and streams its output. A non-zero exit is
	// reported through the code, not the error.
	Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts ExecOptions) (int, error)
	Destroy(ctx context.Context) error
}

type ExecOptions struct {
	Env     map[string]string
	Timeout time.Duration
	WorkDir string
}

// Provider starts environments on a container backend such as a local docker
// daemon or Modal.
type Provider interface {
	Name() string
	CreateEnvironment(ctx context.Context, opts CreateEnvironmentOptions) (Environment, error)
}

// CreateEnvironmentOptions describes the container for one run. Zero CPUs or
// memory leave the backend default.
type CreateEnvironmentOptions struct {
	Name     string
	ImageRef string
	CPUs     int
	MemoryMB int
	Env      map[string]string
}
