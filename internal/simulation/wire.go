package simulation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/spachava753/peerlab/internal/config"
	"github.com/spachava753/peerlab/internal/eventlog"
	"github.com/spachava753/peerlab/internal/generation"
	"github.com/spachava753/peerlab/internal/models"
	"github.com/spachava753/peerlab/internal/prompts"
	"github.com/spachava753/peerlab/internal/roster"
	"github.com/spachava753/peerlab/internal/sandbox"
	"github.com/spachava753/peerlab/internal/sandbox/docker"
	"github.com/spachava753/peerlab/internal/sandbox/modal"
	"github.com/spachava753/peerlab/internal/stage"
	"github.com/spachava753/peerlab/internal/vcs"
	"github.com/spachava753/peerlab/internal/vcs/memhost"
)

// Log file names inside a run directory.
const (
	TextLogName   = "simulation_log.txt"
	JSONLogName   = "simulation_log.json"
	ConfigLogName = "config.json"
)

// Override adjusts a loaded configuration, typically from command-line flags.
type Override func(*models.SimulationConfig)

// ResolveConfig loads path (or the defaults when path is empty), overlays the
// environment and then overrides, and validates the result.
func ResolveConfig(path string, lookup func(string) (string, bool), overrides ...Override) (models.SimulationConfig, error) {
	cfg := config.DefaultSimulationConfig()
	if path != "" {
		var err error
		cfg, err = config.LoadSimulationConfig(path)
		if err != nil {
			return cfg, err
		}
	}
	config.ApplyEnv(&cfg, lookup)
	for _, o := range overrides {
		o(&cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Session is a coordinator wired to real collaborators together with the
// files it writes.
type Session struct {
	Coordinator *Coordinator
	Log         *eventlog.Log
	Dir         string
	RunID       string

	text *eventlog.TextSink
}

// NewSession creates the run directory, opens the sinks and builds every
// collaborator named by cfg. On error the run directory is removed again so
// the same name can be retried.
func NewSession(ctx context.Context, cfg models.SimulationConfig) (_ *Session, err error) {
	if err := config.CheckCredentials(cfg); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	name := time.Now().Format("2006-01-02__15-04-05")
	if cfg.Name != nil && *cfg.Name != "" {
		name = *cfg.Name
	}
	dir := filepath.Join(cfg.LogDir, name)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("run directory already exists: %s (will not overwrite existing results)", dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}
	var log *eventlog.Log
	defer func() {
		if err == nil {
			return
		}
		if log != nil {
			log.Close()
		}
		if rerr := os.RemoveAll(dir); rerr != nil {
			slog.Warn("removing run directory", "dir", dir, "error", rerr)
		}
	}()
	cfgJSON, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ConfigLogName), cfgJSON, 0644); err != nil {
		return nil, fmt.Errorf("writing config: %w", err)
	}

	text, err := eventlog.CreateTextFile(filepath.Join(dir, TextLogName))
	if err != nil {
		return nil, err
	}
	log = eventlog.New(text)
	if cfg.ConsoleOutput {
		log.AddSink(eventlog.SlogSink{Logger: slog.Default()})
	}
	if cfg.EventStore.SQLitePath != "" {
		db, err := eventlog.OpenSQLite(cfg.EventStore.SQLitePath, runID)
		if err != nil {
			return nil, fmt.Errorf("opening event store: %w", err)
		}
		log.AddSink(db)
	}

	deps, err := dependencies(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	coord, err := New(cfg, deps)
	if err != nil {
		return nil, err
	}
	return &Session{Coordinator: coord, Log: log, Dir: dir, RunID: runID, text: text}, nil
}

// dependencies builds the collaborators for a live or offline run.
func dependencies(ctx context.Context, cfg models.SimulationConfig, log *eventlog.Log) (Dependencies, error) {
	set := prompts.Default()
	if cfg.Prompts.Dir != "" {
		var err error
		if set, err = prompts.LoadDir(cfg.Prompts.Dir); err != nil {
			return Dependencies{}, err
		}
	}

	personas, err := roster.Load(ctx, cfg.Panel)
	if err != nil {
		return Dependencies{}, err
	}

	client := generation.NewClient(cfg.LLM)
	base := generation.WithRetry(client, cfg.Retry)

	hosts, err := newHosts(cfg)
	if err != nil {
		return Dependencies{}, err
	}

	runner, err := newRunner(cfg.Sandbox)
	if err != nil {
		return Dependencies{}, err
	}

	deps := Dependencies{
		Producers: map[models.Role]generation.Producer{
			models.RoleA: generation.Metered(base, client.Model(), log),
			models.RoleB: generation.Metered(base, client.Model(), log),
		},
		Hosts:     hosts,
		Evaluator: generation.Metered(base, client.Model(), log),
		Personas:  personas,
		Prompts:   set,
		Log:       log,
	}
	if runner != nil {
		deps.Runner = runner
	}
	return deps, nil
}

// newHosts gives each agent its own account on the repository.
func newHosts(cfg models.SimulationConfig) (map[models.Role]vcs.Host, error) {
	gh := cfg.GitHub
	if gh.Offline {
		server := memhost.NewServer(gh.Repo)
		return map[models.Role]vcs.Host{
			models.RoleA: server.Host("scientist-a"),
			models.RoleB: server.Host("scientist-b"),
		}, nil
	}
	if gh.Owner == "" {
		return nil, errors.New("github owner is required")
	}
	return map[models.Role]vcs.Host{
		models.RoleA: vcs.WithRetry(vcs.NewGitHub(gh.TokenA, gh.Owner, gh.Repo, "scientist-a"), cfg.Retry),
		models.RoleB: vcs.WithRetry(vcs.NewGitHub(gh.TokenB, gh.Owner, gh.Repo, "scientist-b"), cfg.Retry),
	}, nil
}

// newRunner returns nil for the "none" sandbox type.
func newRunner(cfg models.SandboxConfig) (*sandbox.Runner, error) {
	var provider sandbox.Provider
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "docker":
		provider = docker.NewProvider()
	case "modal":
		mc, err := modal.ParseConfig(cfg.ProviderConfig)
		if err != nil {
			return nil, err
		}
		p, err := modal.NewProvider(mc)
		if err != nil {
			return nil, err
		}
		provider = p
	default:
		return nil, fmt.Errorf("unsupported sandbox type: %s", cfg.Type)
	}
	return sandbox.NewRunner(provider, cfg)
}

// Run executes the simulation and writes the JSON log and the statistics
// summary. The sinks are closed afterwards.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	res, runErr := s.Coordinator.Run(ctx)

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if err := eventlog.WriteJSON(filepath.Join(s.Dir, JSONLogName), eventlog.Document{
		Statistics: res.Statistics,
		Events:     res.Events,
	}); err != nil {
		errs = append(errs, err)
	}
	if err := s.text.WriteSummary(res.Statistics); err != nil {
		errs = append(errs, fmt.Errorf("writing statistics summary: %w", err))
	}
	if err := s.Log.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing event sinks: %w", err))
	}
	return res, errors.Join(errs...)
}

// RunFromConfig resolves the configuration at path against the process
// environment, wires a session and runs it to completion.
func RunFromConfig(ctx context.Context, path string, overrides ...Override) (*Result, *Session, error) {
	cfg, err := ResolveConfig(path, os.LookupEnv, overrides...)
	if err != nil {
		return nil, nil, err
	}
	session, err := NewSession(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	res, err := session.Run(ctx)
	return res, session, err
}

var _ stage.Runner = (*sandbox.Runner)(nil)
