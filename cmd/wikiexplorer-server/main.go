// Command wikiexplorer-server serves path searches over HTTP and streams the
// progress of each search to the browser as server-sent events.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/YuvalRubins/WikiExplorer/internal/auth"
	"github.com/YuvalRubins/WikiExplorer/internal/config"
	"github.com/YuvalRubins/WikiExplorer/internal/explorer"
	"github.com/YuvalRubins/WikiExplorer/internal/handler"
	"github.com/YuvalRubins/WikiExplorer/internal/logging"
	"github.com/YuvalRubins/WikiExplorer/internal/ratelimit"
	"github.com/YuvalRubins/WikiExplorer/internal/tlsconfig"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var tlsDev bool
	cmd := &cobra.Command{
		Use:   "wikiexplorer-server",
		Short: "Serve wiki path searches over HTTP",
		Long: heredoc.Doc(`
			Serve wiki path searches over HTTP.

			  GET /run?start=A&end=B       stream a search as server-sent events
			  GET /api/path?start=A&end=B  run a search and return the result
			  GET /api/links/PAGE          list a page's links (dir=incoming for backlinks)
			  GET /api/random              pick a random page
			  GET /healthz, /metrics

			A new /run request stops the search started by the previous one.
		`),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			return serve(cfg, tlsDev)
		},
	}
	config.RegisterFlags(cmd.Flags())
	config.RegisterServerFlags(cmd.Flags())
	cmd.Flags().BoolVar(&tlsDev, "tls-dev", false, "serve HTTPS with a self-signed localhost certificate")
	cmd.AddCommand(newTokenCmd())
	return cmd
}

func serve(cfg *config.Config, tlsDev bool) error {
	log := logging.New(cfg.LogFormat, cfg.LogLevel, os.Stderr)

	x, err := explorer.New(context.Background(), cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := x.Close(); err != nil {
			log.Warn("close explorer", slog.String("error", err.Error()))
		}
	}()

	var limiter *ratelimit.Limiter
	if cfg.APIRequestsPerIP > 0 {
		limiter = ratelimit.New(cfg.APIRequestsPerIP, max(1, int(cfg.APIRequestsPerIP)))
		defer limiter.Stop()
	}
	var tokens *auth.TokenStore
	if cfg.TokensFile != "" {
		if tokens, err = auth.LoadTokens(cfg.TokensFile); err != nil {
			return err
		}
	}
	h := handler.New(x, handler.Options{
		Logger:        log,
		SearchTimeout: cfg.SearchTimeout,
		Limiter:       limiter,
		Tokens:        tokens,
	})

	srv, err := newServer(cfg, tlsDev, h.Routes())
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("wikiexplorer-server listening",
			slog.String("addr", srv.Addr),
			slog.Bool("tls", srv.TLSConfig != nil),
			slog.Bool("tokens", tokens != nil),
			slog.String("backend", cfg.Backend),
			slog.String("language", cfg.Language),
		)
		var err error
		if srv.TLSConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		log.Info("shutting down", slog.String("signal", sig.String()))
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("wikiexplorer-server stopped")
	return nil
}

// newServer builds the HTTP server. TLS is enabled by a certificate pair in
// the configuration or by tlsDev. Request contexts are canceled when
// Shutdown begins, so running searches stop instead of holding it up.
func newServer(cfg *config.Config, tlsDev bool, h http.Handler) (*http.Server, error) {
	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
		// No WriteTimeout: /run streams for as long as a search runs.
	}
	srv.RegisterOnShutdown(cancel)

	var (
		tlsConfig *tls.Config
		err       error
	)
	switch {
	case cfg.TLSCert != "":
		tlsConfig, err = tlsconfig.Load(cfg.TLSCert, cfg.TLSKey)
	case tlsDev:
		tlsConfig, err = tlsconfig.Dev()
	}
	if err != nil {
		cancel()
		return nil, err
	}
	srv.TLSConfig = tlsConfig
	return srv, nil
}
