package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spachava753/peerlab/internal/config"
	"github.com/spachava753/peerlab/internal/models"
	"github.com/spachava753/peerlab/internal/simulation"
)

var runFlags struct {
	config      string
	topic       string
	maxSteps    int
	logDir      string
	model       string
	repoName    string
	githubOwner string
	offline     bool
	noConsole   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation",
	Args:  cobra.NoArgs,
	RunE:  runSimulation,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.config, "config", "c", "", "Path to config.yaml (defaults are used when empty)")
	f.StringVar(&runFlags.topic, "topic", "", "Research topic")
	f.IntVar(&runFlags.maxSteps, "max-steps", 0, "Maximum number of turns")
	f.StringVar(&runFlags.logDir, "log-dir", "", "Directory for run logs")
	f.StringVar(&runFlags.model, "model", "", "Text generation model")
	f.StringVar(&runFlags.repoName, "repo-name", "", "Name of the shared repository")
	f.StringVar(&runFlags.githubOwner, "github-owner", "", "Owner of the shared repository")
	f.BoolVar(&runFlags.offline, "offline", false, "Use an in-memory repository host instead of GitHub")
	f.BoolVar(&runFlags.noConsole, "no-console", false, "Do not mirror events to the console")
}

// overrides turns the flags that were set into config overrides.
func overrides(cmd *cobra.Command) []simulation.Override {
	var out []simulation.Override
	f := cmd.Flags()
	if f.Changed("topic") {
		out = append(out, func(c *models.SimulationConfig) { c.Topic = runFlags.topic })
	}
	if f.Changed("max-steps") {
		out = append(out, func(c *models.SimulationConfig) { c.MaxSteps = runFlags.maxSteps })
	}
	if f.Changed("log-dir") {
		out = append(out, func(c *models.SimulationConfig) { c.LogDir = runFlags.logDir })
	}
	if f.Changed("model") {
		out = append(out, func(c *models.SimulationConfig) { c.LLM.Model = runFlags.model })
	}
	if f.Changed("repo-name") {
		out = append(out, func(c *models.SimulationConfig) { c.GitHub.Repo = runFlags.repoName })
	}
	if f.Changed("github-owner") {
		out = append(out, func(c *models.SimulationConfig) { c.GitHub.Owner = runFlags.githubOwner })
	}
	if runFlags.offline {
		out = append(out, func(c *models.SimulationConfig) { c.GitHub.Offline = true })
	}
	if runFlags.noConsole {
		out = append(out, func(c *models.SimulationConfig) { c.ConsoleOutput = false })
	}
	return out
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	cfg, err := simulation.ResolveConfig(runFlags.config, os.LookupEnv, overrides(cmd)...)
	if err != nil {
		return err
	}
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := simulation.NewSession(ctx, cfg)
	if err != nil {
		return err
	}
	slog.Info("simulation starting", "run_id", session.RunID, "dir", session.Dir, "topic", cfg.Topic)

	res, runErr := session.Run(ctx)
	if ctx.Err() != nil {
		slog.Info("interrupt received, simulation stopped early")
	}
	if res != nil {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "\nRun: %s\n", session.Dir)
		writeReport(out, res.Statistics)
	}
	if runErr != nil {
		return fmt.Errorf("simulation failed: %w", runErr)
	}
	return nil
}
