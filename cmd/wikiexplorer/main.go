// Command wikiexplorer finds a chain of links between two wiki pages.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/YuvalRubins/WikiExplorer/internal/config"
	"github.com/YuvalRubins/WikiExplorer/internal/explorer"
	"github.com/YuvalRubins/WikiExplorer/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wikiexplorer",
		Short: "Find a chain of links between two wiki pages",
		Long: heredoc.Doc(`
			Find a chain of links leading from one Wikipedia page to another.

			The search grows from both ends at once, always following the page
			most similar in meaning to the page on the other side, and checks
			every link of the path it returns.

			Settings are read from flags, WIKIEXPLORER_* environment variables
			and an optional config file, in that order of precedence.
		`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newSearchCmd(),
		newLinksCmd(),
		newRandomCmd(),
	)
	return cmd
}

// setup loads the configuration and opens an explorer. Logs go to the
// command's error stream.
func setup(cmd *cobra.Command) (*explorer.Explorer, *slog.Logger, error) {
	cfg, err := config.FromFlags(cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	log := logging.New(cfg.LogFormat, cfg.LogLevel, cmd.ErrOrStderr())
	x, err := explorer.New(cmd.Context(), cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return x, log, nil
}

func closeQuietly(c io.Closer, log *slog.Logger) {
	if err := c.Close(); err != nil {
		log.Warn("close", slog.String("error", err.Error()))
	}
}
