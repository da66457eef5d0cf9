package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPlatformsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "Lists the configured collectors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tURL")
			for _, spec := range cfg.Collectors {
				fmt.Fprintf(w, "%s\t%s\t%s\n", spec.ID, spec.Kind, spec.URLTemplate)
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("write platforms: %w", err)
			}
			return nil
		},
	}
}
