package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dd0wney/posh-debugger/pkg/plan"
	"github.com/dd0wney/posh-debugger/pkg/plan/xposh"
	"github.com/spf13/cobra"
)

func newCheckCmd(root *rootOptions) *cobra.Command {
	var legacy bool

	cmd := &cobra.Command{
		Use:   "check <plan.xposh>",
		Short: "Load a plan document and summarize it",
		Long:  `Parses an XPOSH plan the way serve does and prints element counts and load warnings. Exits non-zero if the document cannot be loaded.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}

			opts := []xposh.Option{xposh.WithLogger(cfg.Logger())}
			if legacy || cfg.Plan.LegacyReferenceScan {
				opts = append(opts, xposh.WithLegacyReferenceScan())
			}

			result, err := xposh.NewLoader(plan.NewRegistry(), opts...).LoadFile(args[0])
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), args[0], result)
		},
	}

	cmd.Flags().BoolVar(&legacy, "legacy-reference-scan", false, "Treat nested element references as declarations")
	return cmd
}

func printSummary(out io.Writer, path string, result *xposh.Result) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "plan\t%s\n", path)
	for _, c := range plan.Categories {
		fmt.Fprintf(tw, "%s\t%d\n", c, result.Stats.Counts[c])
	}
	fmt.Fprintf(tw, "synthesized actions\t%d\n", result.Stats.Synthesized)
	fmt.Fprintf(tw, "dropped senses\t%d\n", result.Stats.DroppedSenses)
	fmt.Fprintf(tw, "duplicates\t%d\n", result.Stats.Duplicates)
	fmt.Fprintf(tw, "missing members\t%d\n", result.Stats.MissingMembers)
	fmt.Fprintf(tw, "load time\t%s\n", result.Stats.Duration)
	return tw.Flush()
}
