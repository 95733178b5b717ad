package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/prakashgbid/confledger/internal/domain/rollback"
	"github.com/spf13/cobra"
)

func newRollbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Plan and execute risk-staged rollbacks",
	}

	cmd.AddCommand(newRollbackPlanCmd())
	cmd.AddCommand(newRollbackExecuteCmd())
	cmd.AddCommand(newRollbackQuickCmd())
	cmd.AddCommand(newRollbackEmergencyCmd())
	cmd.AddCommand(newRollbackListCmd())
	cmd.AddCommand(newRollbackResultCmd())
	return cmd
}

func newRollbackPlanCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "plan <target-version>",
		Short: "Create a rollback plan without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := app.rollback.CreateRollbackPlan(context.Background(), args[0], reason)
			if err != nil {
				return err
			}

			if getOutputFormat() != "table" {
				return printOutput(plan)
			}

			fmt.Printf("Plan %s: %s -> %s  risk %s  estimated %s\n",
				plan.ID, plan.FromVersion, plan.ToVersion, formatRisk(plan.Risk), plan.EstimatedDuration)
			if len(plan.Preconditions) > 0 {
				fmt.Printf("Preconditions: %s\n", strings.Join(plan.Preconditions, "; "))
			}

			table := NewTable("#", "KIND", "DESCRIPTION", "ON FAILURE")
			for i, step := range plan.Steps {
				table.AddRow(fmt.Sprint(i+1), step.Kind, step.Description, step.OnFailure)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "why this rollback is needed")
	return cmd
}

func newRollbackExecuteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "execute <plan-id>",
		Short: "Execute a previously created plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.rollback.ExecuteRollback(context.Background(), args[0], force)
			if err != nil {
				return err
			}
			return printResult(result)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "skip precondition checks")
	return cmd
}

func newRollbackQuickCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "quick",
		Short: "Roll back to the immediately prior version",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.rollback.QuickRollback(context.Background(), reason)
			if err != nil {
				return err
			}
			return printResult(result)
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "why this rollback is needed")
	return cmd
}

func newRollbackEmergencyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "emergency <target-version>",
		Short: "Last-resort restore that bypasses every precondition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.rollback.EmergencyRollback(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printResult(result)
		},
	}
}

func newRollbackListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rollback plans, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			plans, err := app.rollback.ListPlans(context.Background(), limit)
			if err != nil {
				return err
			}

			if getOutputFormat() != "table" {
				return printOutput(plans)
			}

			table := NewTable("ID", "CREATED", "FROM", "TO", "RISK", "STATUS")
			for _, p := range plans {
				table.AddRow(p.ID, p.CreatedAt.Format("2006-01-02 15:04:05"),
					p.FromVersion, p.ToVersion, p.Risk, p.Status)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum plans to list, 0 for all")
	return cmd
}

func newRollbackResultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "result <plan-id>",
		Short: "Show the execution result of a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.rollback.GetResult(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printOutput(result)
		},
	}
}

func printResult(result *rollback.Result) error {
	if getOutputFormat() != "table" {
		return printOutput(result)
	}

	fmt.Printf("%s  verified=%v  duration=%s  steps=%d\n",
		formatOutcome(result.Success), result.Verified, result.Duration, len(result.CompletedSteps))
	if result.FailedStep != "" {
		fmt.Printf("Failed step: %s\n", result.FailedStep)
	}
	if result.Error != "" {
		fmt.Printf("Errors: %s\n", result.Error)
	}
	return nil
}
