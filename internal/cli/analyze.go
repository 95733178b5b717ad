package cli

import (
	"context"
	"fmt"

	"github.com/prakashgbid/confledger/internal/domain/candidate"
	"github.com/spf13/cobra"
)

func newAnalyzeCmd() *cobra.Command {
	var description, reason, author string

	cmd := &cobra.Command{
		Use:   "analyze <setting>=<value>",
		Short: "Validate a candidate change without committing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cand, err := parseCandidate(args[0], description, reason, author)
			if err != nil {
				return err
			}

			analysis, err := app.analyzer.Analyze(context.Background(), cand)
			if err != nil {
				return err
			}

			if getOutputFormat() != "table" {
				return printOutput(analysis)
			}

			verdict := "valid"
			if !analysis.IsValid {
				verdict = "invalid"
			}
			fmt.Printf("%s  impact=%s  category=%s  compatibility=%.2f\n",
				verdict, analysis.Impact, analysis.Category, analysis.CompatibilityScore)
			for _, e := range analysis.Errors {
				fmt.Printf("  error: %s\n", e)
			}
			for _, c := range analysis.Conflicts {
				fmt.Printf("  conflict (%s) %s: %s\n", c.Type, c.Setting, c.Description)
			}
			for _, r := range analysis.Recommendations {
				fmt.Printf("  recommend: %s\n", r)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "candidate description")
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "why this change is proposed")
	cmd.Flags().StringVar(&author, "author", "", "who proposed the change")
	return cmd
}

// parseCandidate turns a setting=value argument into a candidate change,
// converting numeric and boolean values the same way version create does.
func parseCandidate(spec, description, reason, author string) (*candidate.Change, error) {
	change, err := parseChangeSpec("", spec)
	if err != nil {
		return nil, fmt.Errorf("invalid candidate %q, want setting=value", spec)
	}

	return &candidate.Change{
		Setting:     change.ItemID,
		Value:       change.After,
		Description: description,
		Reason:      reason,
		Author:      author,
	}, nil
}
