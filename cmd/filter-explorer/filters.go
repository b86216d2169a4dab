package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"filter-explorer/internal/models"

	"github.com/spf13/cobra"
)

func newFiltersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "filters",
		Short: "List the filters offered by the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printFilters(cmd.OutOrStdout())
		},
	}
}

func printFilters(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tLABEL\tKERNEL")
	for _, spec := range models.Filters() {
		kernel := "-"
		if spec.RequiresKernel {
			kernel = "required"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", spec.Key, spec.Label, kernel)
	}
	return tw.Flush()
}
