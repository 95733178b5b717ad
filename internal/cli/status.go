package cli

import (
	"context"
	"fmt"

	"github.com/prakashgbid/confledger/internal/pkg/errors"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the ledger's current state at a glance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			current, err := app.ledger.CurrentVersion(ctx)
			if err != nil && !errors.HasCode(err, errors.ErrCodeNotFound) {
				return err
			}

			history, err := app.ledger.GetVersionHistory(ctx, 0)
			if err != nil {
				return err
			}

			plans, err := app.rollback.ListPlans(ctx, 0)
			if err != nil {
				return err
			}

			if getOutputFormat() != "table" {
				return printOutput(map[string]interface{}{
					"current":  current,
					"versions": len(history),
					"plans":    len(plans),
					"document": app.cfg.Ledger.DocumentPath,
				})
			}

			fmt.Printf("Document: %s\n", app.cfg.Ledger.DocumentPath)
			if current == nil {
				fmt.Println("Current version: none, ledger is empty")
			} else {
				fmt.Printf("Current version: %s (created %s)\n",
					current.Number, current.CreatedAt.Format("2006-01-02 15:04:05"))
				if len(current.Tags) > 0 {
					fmt.Printf("Tags: %v\n", current.Tags)
				}
			}
			fmt.Printf("Versions: %d\n", len(history))
			fmt.Printf("Rollback plans: %d\n", len(plans))
			return nil
		},
	}
}
