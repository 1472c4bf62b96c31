// Command wikiexplorer-mcp is an MCP server that lets LLM agents find link
// paths between wiki pages, list a page's links and pick random pages, over
// stdio transport.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/YuvalRubins/WikiExplorer/internal/config"
	"github.com/YuvalRubins/WikiExplorer/internal/explorer"
	"github.com/YuvalRubins/WikiExplorer/internal/logging"
	"github.com/YuvalRubins/WikiExplorer/internal/page"
	"github.com/YuvalRubins/WikiExplorer/internal/search"
)

// maxLinks bounds the names page_links returns.
const maxLinks = 500

func main() {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:           "wikiexplorer-mcp",
		Short:         "MCP server for wiki path searches",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			// stdout carries the protocol, so logs go to stderr.
			log := logging.New(cfg.LogFormat, cfg.LogLevel, os.Stderr)
			x, err := explorer.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer x.Close()

			s := server.NewMCPServer("wikiexplorer-mcp", "0.1.0")
			h := &handler{explorer: x, timeout: timeout, log: log}
			s.AddTool(findPathTool(cfg.Language), h.findPath)
			s.AddTool(pageLinksTool(), h.pageLinks)
			s.AddTool(randomPageTool(), h.randomPage)
			return server.ServeStdio(s)
		},
	}
	config.RegisterFlags(cmd.Flags())
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "bound on a single find_path call")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// pathFinder is the part of explorer.Explorer the tools use.
type pathFinder interface {
	Search(ctx context.Context, req explorer.Request, onProgress func(search.Progress)) (explorer.Result, error)
	Links(ctx context.Context, name string, dir page.Direction) ([]string, error)
	Random(ctx context.Context) (string, error)
	URLFor(name string) string
}

type handler struct {
	explorer pathFinder
	timeout  time.Duration
	log      *slog.Logger
}

// Tool definitions.

func findPathTool(language string) mcp.Tool {
	return mcp.NewTool("find_path",
		mcp.WithDescription(
			"Find a chain of links leading from one wiki page to another. "+
				"The search grows from both pages at once and returns a path whose every "+
				"link has been checked. Page names are titles as they appear in the page "+
				"address, e.g. Albert_Einstein. Use * for a random page. "+
				fmt.Sprintf("Searching the %q wiki.", language),
		),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("page to start from"),
		),
		mcp.WithString("end",
			mcp.Required(),
			mcp.Description("page to reach"),
		),
		mcp.WithString("forbidden",
			mcp.Description("comma-separated pages the path must not pass through"),
		),
		mcp.WithNumber("max_path_length",
			mcp.Description("longest acceptable path in pages (default: no bound)"),
		),
	)
}

func pageLinksTool() mcp.Tool {
	return mcp.NewTool("page_links",
		mcp.WithDescription(
			"List the pages a wiki page links to, or with direction=incoming the pages "+
				"that link to it. Navigation namespaces and main pages are left out.",
		),
		mcp.WithString("page",
			mcp.Required(),
			mcp.Description("page name, e.g. Albert_Einstein"),
		),
		mcp.WithString("direction",
			mcp.Description("outgoing (default) or incoming"),
			mcp.Enum("outgoing", "incoming"),
		),
	)
}

func randomPageTool() mcp.Tool {
	return mcp.NewTool("random_page",
		mcp.WithDescription("Pick a random wiki page. Useful for choosing search endpoints."),
	)
}

// Tool handlers.
// Handler signatures are dictated by mcp-go's ToolHandlerFunc type.

func (h *handler) findPath(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) { //nolint:gocritic // signature required by mcp-go
	start, err := req.RequireString("start")
	if err != nil {
		return mcp.NewToolResultError("start is required"), nil
	}
	end, err := req.RequireString("end")
	if err != nil {
		return mcp.NewToolResultError("end is required"), nil
	}
	maxLen := req.GetInt("max_path_length", 0)
	if maxLen < 0 {
		return mcp.NewToolResultError("max_path_length must not be negative"), nil
	}

	var forbidden []string
	for _, f := range strings.Split(req.GetString("forbidden", ""), ",") {
		if f = strings.TrimSpace(f); f != "" {
			forbidden = append(forbidden, f)
		}
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	res, err := h.explorer.Search(ctx, explorer.Request{
		Start:         start,
		End:           end,
		Forbidden:     forbidden,
		MaxPathLength: maxLen,
	}, nil)
	if err != nil {
		h.log.Warn("find_path failed", slog.String("start", start), slog.String("end", end), slog.String("error", err.Error()))
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	h.log.Info("find_path", slog.String("start", res.Start), slog.String("end", res.End), slog.String("state", res.State.String()))
	return mcp.NewToolResultText(formatResult(res, h.explorer.URLFor)), nil
}

func (h *handler) pageLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) { //nolint:gocritic // signature required by mcp-go
	name, err := req.RequireString("page")
	if err != nil {
		return mcp.NewToolResultError("page is required"), nil
	}
	dir := page.Outgoing
	switch d := req.GetString("direction", "outgoing"); d {
	case "outgoing":
	case "incoming":
		dir = page.Incoming
	default:
		return mcp.NewToolResultError(fmt.Sprintf("invalid direction %q", d)), nil
	}

	names, err := h.explorer.Links(ctx, name, dir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("links failed: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d %s links for %s\n", len(names), dir, page.Normalize(name))
	for i, n := range names {
		if i == maxLinks {
			fmt.Fprintf(&b, "... and %d more\n", len(names)-maxLinks)
			break
		}
		fmt.Fprintf(&b, "  %s\n", n)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (h *handler) randomPage(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) { //nolint:gocritic // signature required by mcp-go
	name, err := h.explorer.Random(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("random failed: %v", err)), nil
	}
	text := name
	if u := h.explorer.URLFor(name); u != "" {
		text += "\n" + u
	}
	return mcp.NewToolResultText(text), nil
}

// formatResult renders a search result as plain text for LLM consumption.
func formatResult(res explorer.Result, urlFor func(string) string) string {
	var b strings.Builder
	if res.State != search.Found {
		fmt.Fprintf(&b, "No path exists from %s to %s (%d steps, %d pages explored)\n",
			res.Start, res.End, res.Steps, res.Nodes)
		return b.String()
	}
	fmt.Fprintf(&b, "Path from %s to %s (%d pages, %d steps, %d pages explored):\n",
		res.Start, res.End, len(res.Path), res.Steps, res.Nodes)
	fmt.Fprintf(&b, "  %s\n", page.PathString(res.Path))
	if urlFor(res.Path[0]) != "" {
		b.WriteString("\nPages:\n")
		for _, n := range res.Path {
			fmt.Fprintf(&b, "  %s\n", urlFor(n))
		}
	}
	return b.String()
}
