package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRandomCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "random",
		Short: "Print a random page name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			x, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closeQuietly(x, log)

			name, err := x.Random(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			if u := x.URLFor(name); u != "" {
				fmt.Fprintln(cmd.OutOrStdout(), u)
			}
			return nil
		},
	}
}
