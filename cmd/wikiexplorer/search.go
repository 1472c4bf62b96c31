package main

import (
	"encoding/json"
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/YuvalRubins/WikiExplorer/internal/explorer"
	"github.com/YuvalRubins/WikiExplorer/internal/search"
)

func newSearchCmd() *cobra.Command {
	var (
		quiet  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search START END",
		Short: "Find a path of links from START to END",
		Long: heredoc.Doc(`
			Find a path of links from START to END.

			Page names may use spaces or underscores. Pass "*" for a random page.
			Every step prints the best path grown from each side so far.
		`),
		Example: heredoc.Doc(`
			wikiexplorer search Cat "Albert Einstein"
			wikiexplorer search -l he -m 6 -f Israel '*' '*'
			wikiexplorer search --backend markdown --markdown-root ./notes index todo
		`),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closeQuietly(x, log)

			out := cmd.OutOrStdout()
			var onProgress func(search.Progress)
			if !quiet && !asJSON {
				onProgress = func(p search.Progress) {
					fmt.Fprintln(out, formatProgress(p))
				}
			}
			res, err := x.Search(cmd.Context(), explorer.Request{Start: args[0], End: args[1]}, onProgress)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprint(out, formatResult(res, x.URLFor))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the result")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
