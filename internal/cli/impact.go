package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newImpactCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "impact <setting>=<value>",
		Short: "Benchmark a candidate change against the current baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cand, err := parseCandidate(args[0], description, "", "")
			if err != nil {
				return err
			}

			result, err := app.impact.TestOptimization(context.Background(), cand)
			if err != nil {
				return err
			}

			if getOutputFormat() != "table" {
				return printOutput(result)
			}

			fmt.Printf("%s  baseline=%.3f  optimized=%.3f  improvement=%.1f%%\n",
				formatOutcome(result.Success),
				result.Performance.Baseline, result.Performance.Optimized,
				result.Performance.Improvement)

			table := NewTable("METRIC", "BASELINE", "CANDIDATE")
			table.AddRow("response time (ms)",
				fmt.Sprintf("%.1f", result.Baseline.ResponseTimeMs),
				fmt.Sprintf("%.1f", result.Optimized.ResponseTimeMs))
			table.AddRow("memory (MB)",
				fmt.Sprintf("%.1f", result.Baseline.MemoryMB),
				fmt.Sprintf("%.1f", result.Optimized.MemoryMB))
			table.AddRow("cpu (%)",
				fmt.Sprintf("%.1f", result.Baseline.CPUPercent),
				fmt.Sprintf("%.1f", result.Optimized.CPUPercent))
			table.AddRow("throughput",
				fmt.Sprintf("%.1f", result.Baseline.Throughput),
				fmt.Sprintf("%.1f", result.Optimized.Throughput))
			table.Render()

			for _, e := range result.Errors {
				fmt.Printf("  error: %s\n", e)
			}
			for _, w := range result.Warnings {
				fmt.Printf("  warning: %s\n", w)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "candidate description")
	return cmd
}
