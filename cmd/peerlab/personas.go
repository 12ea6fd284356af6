package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/spachava753/peerlab/internal/models"
	"github.com/spachava753/peerlab/internal/roster"
)

var personasFlags struct {
	roster string
}

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List the citizen evaluator roster",
	Args:  cobra.NoArgs,
	RunE:  runPersonas,
}

func init() {
	personasCmd.Flags().StringVar(&personasFlags.roster, "roster", "", "Path to a roster TOML file (built-in roster when empty)")
}

func runPersonas(cmd *cobra.Command, _ []string) error {
	personas := roster.Default()
	if personasFlags.roster != "" {
		var err error
		if personas, err = roster.LoadFromPath(personasFlags.roster); err != nil {
			return err
		}
	}
	fmt.Fprint(cmd.OutOrStdout(), personaTable(personas))
	return nil
}

func personaTable(personas []models.Persona) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Age", "Occupation", "Values"})
	for _, p := range personas {
		t.AppendRow(table.Row{p.Name, p.Age, p.Occupation, p.Values})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: 60}})
	return t.Render() + "\n"
}
