package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"triggergate/pkg/trigger"
)

// NewTableCommand creates the table command.
func NewTableCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "table",
		Short: "Print the configured triggers with their bitmask index",
		Long: `Print the configured triggers with their bitmask index, followed by the
pass, veto and ignore lists. With --year/--dataset/--mc the lists come from the
matching trigger profile.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if f := rootOpts.Config.Filter; f.Selected() {
				fmt.Fprintf(w, "Setting up trigger for %s\n", f.Describe())
			}
			reg := rootOpts.registry()
			if err := reg.WriteTable(w); err != nil {
				return err
			}
			fmt.Fprintln(w)
			return reg.WriteSummary(w)
		},
	}
}

// NewLintCommand creates the lint command.
func NewLintCommand(rootOpts *RootOptions) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Report configured triggers that are prefixes of other configured triggers",
		Long: `Report configured triggers that are prefixes of other configured triggers.

A runtime name is only compared with the greatest configured name that sorts
at or before it. With HLT_A and HLT_A_X configured, HLT_A_Y1 is compared with
HLT_A_X only and matches nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			overlaps := trigger.Overlaps(rootOpts.registry())
			w := cmd.OutOrStdout()
			for _, o := range overlaps {
				fmt.Fprintf(w, "%s (%s) is a prefix of %s (%s)\n", o.Prefix.Name, o.Prefix.Category, o.Longer.Name, o.Longer.Category)
			}
			if len(overlaps) == 0 {
				fmt.Fprintln(w, "no overlapping triggers")
				return nil
			}
			if strict {
				return fmt.Errorf("%d overlapping triggers", len(overlaps))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when overlaps are found")
	return cmd
}
