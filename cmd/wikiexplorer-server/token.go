package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/YuvalRubins/WikiExplorer/internal/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		ops        []string
		ttl        time.Duration
		tokensFile string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate an API token",
		Long: heredoc.Doc(`
			Generate a random API token. The raw token is printed once on stdout;
			only its hash is written to the tokens file.
		`),
		Example: heredoc.Doc(`
			wikiexplorer-server token --ops search,links --tokens-file tokens.toml
			wikiexplorer-server token --ttl 720h
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, op := range ops {
				switch op {
				case auth.OpSearch, auth.OpLinks, auth.OpRandom:
				default:
					return fmt.Errorf("unknown operation %q", op)
				}
			}
			raw, err := auth.Generate()
			if err != nil {
				return err
			}
			var expires time.Time
			if ttl > 0 {
				expires = time.Now().Add(ttl)
			}
			entry := auth.Entry(raw, ops, expires)

			stderr := cmd.ErrOrStderr()
			if tokensFile != "" {
				if err := appendEntry(tokensFile, entry); err != nil {
					return err
				}
				fmt.Fprintf(stderr, "Token appended to %s\n", tokensFile)
			} else {
				fmt.Fprintln(stderr, "Add this to your tokens file under [tokens]:")
				fmt.Fprint(stderr, entry)
			}
			fmt.Fprintln(stderr)
			fmt.Fprintln(stderr, "Raw token (give to client, shown once):")
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&ops, "ops", []string{auth.OpSearch, auth.OpLinks, auth.OpRandom}, "operations the token grants")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, 0 for no expiry")
	cmd.Flags().StringVar(&tokensFile, "tokens-file", "", "tokens file to append the entry to")
	return cmd
}

// appendEntry appends entry to the tokens file, starting a new file with the
// [tokens] header.
func appendEntry(path, entry string) (err error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open tokens file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close tokens file: %w", cerr)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	var w io.Writer = f
	if info.Size() == 0 {
		if _, err := io.WriteString(w, "[tokens]\n"); err != nil {
			return fmt.Errorf("write tokens header: %w", err)
		}
	}
	if _, err := io.WriteString(w, entry); err != nil {
		return fmt.Errorf("write token entry: %w", err)
	}
	return nil
}
