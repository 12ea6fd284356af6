package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spachava753/peerlab/internal/eventlog"
	"github.com/spachava753/peerlab/internal/simulation"
)

var statsFlags struct {
	json bool
}

var statsCmd = &cobra.Command{
	Use:   "stats <simulation_log.json>",
	Short: "Recompute statistics from a saved event log",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsFlags.json, "json", false, "Print the statistics as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	doc, err := eventlog.ReadJSON(args[0])
	if err != nil {
		return err
	}
	st := simulation.ComputeStatistics(doc.Events)
	out := cmd.OutOrStdout()
	if statsFlags.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(st); err != nil {
			return fmt.Errorf("encoding statistics: %w", err)
		}
		return nil
	}
	writeReport(out, st)
	return nil
}
