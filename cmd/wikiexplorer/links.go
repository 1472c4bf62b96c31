package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YuvalRubins/WikiExplorer/internal/page"
)

func newLinksCmd() *cobra.Command {
	var incoming bool
	cmd := &cobra.Command{
		Use:   "links PAGE",
		Short: "List the pages PAGE links to, or that link to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closeQuietly(x, log)

			dir := page.Outgoing
			if incoming {
				dir = page.Incoming
			}
			names, err := x.Links(cmd.Context(), args[0], dir)
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&incoming, "incoming", "i", false, "list pages linking to PAGE")
	return cmd
}
