package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/prakashgbid/confledger/internal/domain/candidate"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newApplyCmd() *cobra.Command {
	var (
		description string
		reason      string
		author      string
		tags        []string
		file        string
		skipImpact  bool
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "apply [<setting>=<value>...]",
		Short: "Validate, impact-test and commit candidate changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cands, err := collectCandidates(args, file, description, reason, author)
			if err != nil {
				return err
			}
			if len(cands) == 0 {
				return fmt.Errorf("no candidates given, pass setting=value arguments or --file")
			}

			opts := candidate.ApplyOptions{
				Description:    description,
				Tags:           tags,
				SkipImpactTest: skipImpact,
				Force:          force,
			}

			outcomes, err := app.manager.ApplyChanges(context.Background(), cands, opts)
			if err != nil {
				return err
			}

			if getOutputFormat() != "table" {
				return printOutput(outcomes)
			}

			applied := 0
			for i, out := range outcomes {
				label := cands[i].Setting
				switch {
				case out.Applied:
					applied++
					fmt.Printf("%s: applied as %s\n", label, out.Version.Number)
				case out.Skipped != "":
					fmt.Printf("%s: held, %s\n", label, out.Skipped)
				default:
					fmt.Printf("%s: rejected\n", label)
				}
			}
			fmt.Printf("%d of %d candidates applied\n", applied, len(outcomes))
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "version description")
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "why the changes are proposed")
	cmd.Flags().StringVar(&author, "author", "", "who proposed the changes")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tags for committed versions")
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON file of candidate changes")
	cmd.Flags().BoolVar(&skipImpact, "skip-impact", false, "commit without running the probe battery")
	cmd.Flags().BoolVar(&force, "force", false, "apply despite manual-review holds or failed impact tests")
	return cmd
}

// collectCandidates merges setting=value arguments with an optional
// candidates file. File entries keep their own metadata; flag metadata
// applies to the argument candidates only.
func collectCandidates(args []string, file, description, reason, author string) ([]candidate.Change, error) {
	var cands []candidate.Change

	for _, spec := range args {
		cand, err := parseCandidate(spec, description, reason, author)
		if err != nil {
			return nil, err
		}
		cands = append(cands, *cand)
	}

	if file == "" {
		return cands, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read candidates file: %w", err)
	}

	var fromFile []candidate.Change
	if json.Valid(data) {
		err = json.Unmarshal(data, &fromFile)
	} else {
		err = yaml.Unmarshal(data, &fromFile)
	}
	if err != nil {
		return nil, fmt.Errorf("parse candidates file: %w", err)
	}

	return append(cands, fromFile...), nil
}
