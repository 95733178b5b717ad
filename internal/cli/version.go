package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/prakashgbid/confledger/internal/domain/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Inspect and manage the version ledger",
	}

	cmd.AddCommand(newVersionListCmd())
	cmd.AddCommand(newVersionShowCmd())
	cmd.AddCommand(newVersionCreateCmd())
	cmd.AddCommand(newVersionDiffCmd())
	cmd.AddCommand(newVersionRestoreCmd())
	cmd.AddCommand(newVersionTagCmd())
	cmd.AddCommand(newVersionCleanupCmd())
	cmd.AddCommand(newVersionExportCmd())
	cmd.AddCommand(newVersionImportCmd())
	return cmd
}

func newVersionListCmd() *cobra.Command {
	var limit int
	var tag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List committed versions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			var history []*version.Version
			var err error
			if tag != "" {
				history, err = app.ledger.GetVersionsByTag(ctx, tag)
			} else {
				history, err = app.ledger.GetVersionHistory(ctx, limit)
			}
			if err != nil {
				return err
			}

			if getOutputFormat() != "table" {
				return printOutput(history)
			}

			current := ""
			if cv, err := app.ledger.CurrentVersion(ctx); err == nil {
				current = cv.Number
			}

			table := NewTable("VERSION", "CREATED", "DESCRIPTION", "TAGS", "CURRENT")
			for _, v := range history {
				marker := ""
				if v.Number == current {
					marker = "*"
				}
				table.AddRow(v.Number, v.CreatedAt.Format("2006-01-02 15:04:05"),
					truncate(v.Description, 48), strings.Join(v.Tags, ","), marker)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum versions to list, 0 for all")
	cmd.Flags().StringVar(&tag, "tag", "", "list only versions carrying this tag")
	return cmd
}

func newVersionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <version>",
		Short: "Show one version and its change list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := app.ledger.GetVersion(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printOutput(v)
		},
	}
}

func newVersionCreateCmd() *cobra.Command {
	var description string
	var tags []string
	var adds, modifies, removes []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Commit a new version from explicit changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			var changes []version.Change
			for _, spec := range adds {
				c, err := parseChangeSpec(version.KindAdd, spec)
				if err != nil {
					return err
				}
				changes = append(changes, c)
			}
			for _, spec := range modifies {
				c, err := parseChangeSpec(version.KindModify, spec)
				if err != nil {
					return err
				}
				changes = append(changes, c)
			}
			for _, id := range removes {
				changes = append(changes, version.Change{Kind: version.KindRemove, ItemID: id})
			}

			v, err := app.ledger.CreateVersion(context.Background(), description, changes, tags)
			if err != nil {
				return err
			}
			fmt.Printf("Committed version %s\n", v.Number)
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "version description")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tags for the new version")
	cmd.Flags().StringSliceVar(&adds, "add", nil, "setting=value to add")
	cmd.Flags().StringSliceVar(&modifies, "modify", nil, "setting=value to modify")
	cmd.Flags().StringSliceVar(&removes, "remove", nil, "setting to remove")
	return cmd
}

// parseChangeSpec turns a setting=value flag into a Change. Numeric and
// boolean values are converted, everything else stays a string.
func parseChangeSpec(kind, spec string) (version.Change, error) {
	setting, raw, found := strings.Cut(spec, "=")
	if !found || setting == "" {
		return version.Change{}, fmt.Errorf("invalid change %q, want setting=value", spec)
	}

	var value interface{} = raw
	if n, err := strconv.Atoi(raw); err == nil {
		value = n
	} else if b, err := strconv.ParseBool(raw); err == nil {
		value = b
	}

	return version.Change{
		Kind:   kind,
		ItemID: setting,
		Name:   setting,
		After:  value,
	}, nil
}

func newVersionDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <from> <to>",
		Short: "Show the structural diff between two versions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := app.ledger.GetVersionDiff(context.Background(), args[0], args[1])
			if err != nil {
				return err
			}

			if getOutputFormat() != "table" {
				return printOutput(changes)
			}

			table := NewTable("KIND", "CATEGORY", "ITEM", "BEFORE", "AFTER")
			for _, c := range changes {
				table.AddRow(c.Kind, c.Category, c.ItemID,
					truncate(fmt.Sprint(c.Before), 32), truncate(fmt.Sprint(c.After), 32))
			}
			table.Render()
			return nil
		},
	}
}

func newVersionRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <version>",
		Short: "Restore a snapshot into the live document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := app.ledger.RestoreVersion(context.Background(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Restore did not complete; a safety backup was committed, retry is safe")
				return nil
			}
			fmt.Printf("Restored version %s\n", args[0])
			return nil
		},
	}
}

func newVersionTagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tag <version> <tag>",
		Short: "Add a tag to a version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.ledger.TagVersion(context.Background(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Tagged %s with %s\n", args[0], args[1])
			return nil
		},
	}
}

func newVersionCleanupCmd() *cobra.Command {
	var keep, days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove old untagged versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := app.ledger.CleanupVersions(context.Background(), keep, days)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d version(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 10, "minimum number of recent versions to retain")
	cmd.Flags().IntVar(&days, "days", 30, "minimum age in days before a version is removable")
	return cmd
}

func newVersionExportCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export <version>",
		Short: "Export a version and its snapshot as a portable bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := app.ledger.ExportVersion(context.Background(), args[0])
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("Exported %s to %s\n", args[0], outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "f", "", "write the bundle to a file instead of stdout")
	return cmd
}

func newVersionImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <bundle-file>",
		Short: "Import an exported version bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			v, err := app.ledger.ImportVersion(context.Background(), data)
			if err != nil {
				return err
			}
			fmt.Printf("Imported version %s\n", v.Number)
			return nil
		},
	}
}
