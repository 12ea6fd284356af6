package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "peerlab",
	Short: "Two-agent research simulation with peer review and a citizen panel",
	Long: "peerlab runs two simulated scientists through a staged research pipeline.\n" +
		"Each submission is reviewed by the peer and merged or sent back,\n" +
		"and a panel of persona evaluators rewards the chosen themes.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadDotenv(rootFlags.envFile)
	},
}

var rootFlags struct {
	envFile string
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.envFile, "env-file", ".env", "Dotenv file with API keys and tokens (ignored when missing)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(personasCmd)
	rootCmd.Version = version
}

// loadDotenv fills unset environment variables from path. Variables already
// present in the environment win.
func loadDotenv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
