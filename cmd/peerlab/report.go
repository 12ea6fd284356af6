package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/spachava753/peerlab/internal/models"
)

// writeReport prints the statistics as a short header and two tables: one
// row per agent and one row per stage.
func writeReport(w io.Writer, st models.Statistics) {
	fmt.Fprintf(w, "Termination: %s\n", st.Termination)
	fmt.Fprintf(w, "Turns: %d (skipped %d)\n", st.TotalTurns, st.SkippedTurns)
	fmt.Fprintf(w, "Reviews: %d (approved %d, changes requested %d, coerced %d)\n",
		st.TotalReviews, st.Approved, st.ChangesRequested, st.CoercedVerdicts)
	fmt.Fprintf(w, "Approval rate: %.2f%%\n", st.ApprovalRate*100)
	fmt.Fprintf(w, "Citizen rewards: total %d, mean %.1f, clamped %d, skipped %d\n",
		st.Rewards.TotalAmount, st.Rewards.AverageAmount, st.Rewards.Clamped, st.Rewards.Skipped)
	fmt.Fprintf(w, "Experiment runs: %d\n", st.ExperimentRuns)
	fmt.Fprintf(w, "LLM calls: %d (~%d input tokens, ~%d output tokens)\n",
		st.LLM.Calls, st.LLM.EstimatedInputTokens, st.LLM.EstimatedOutputTokens)
	fmt.Fprintf(w, "Duration: %.2fs\n\n", st.DurationSec)

	fmt.Fprintln(w, agentTable(st))
	fmt.Fprintln(w, stageTable(st))

	if len(st.Errors) > 0 {
		kinds := make([]string, 0, len(st.Errors))
		for k := range st.Errors {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		fmt.Fprintln(w, "Errors:")
		for _, k := range kinds {
			fmt.Fprintf(w, "  %s: %d\n", k, st.Errors[models.ErrorType(k)])
		}
	}
}

func agentTable(st models.Statistics) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Agent", "Name", "Theme", "Final stage", "PRs", "Approved", "Rejected", "Retries", "Forced", "Reward"})
	for _, r := range models.Roles() {
		a, ok := st.Agents[r]
		if !ok {
			continue
		}
		final := a.FinalStage.String()
		if a.Finished {
			final += " (done)"
		}
		t.AppendRow(table.Row{r, a.Name, a.Theme, final, a.Submissions, a.Approved, a.Rejected, a.Retries, a.ForcedAdvances, a.RewardTotal})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, WidthMax: 40},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
		{Number: 10, Align: text.AlignRight},
	})
	return t.Render()
}

func stageTable(st models.Statistics) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Stage", "Avg retries"})
	for _, s := range models.Stages() {
		avg, ok := st.RetriesByStage[s]
		if !ok {
			continue
		}
		t.AppendRow(table.Row{s, fmt.Sprintf("%.2f", avg)})
	}
	return t.Render()
}
