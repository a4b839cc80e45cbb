package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/unitconsole/internal/panel"
	"github.com/rendis/unitconsole/pkg/mcp"
)

func serveCmd(gf *globalFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the operator panel over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, gf)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = listen
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer a.close()

			ps := panel.NewPanelServer(panel.PanelDeps{
				Console: a.console,
				Hub:     a.hub,
				Units:   a.client,
				Logger:  a.logger,
			})
			srv := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           ps.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("panel listening", slog.String("addr", cfg.ListenAddr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			// Open SSE streams end once their sessions close.
			a.console.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("panel shutdown", slog.String("error", err.Error()))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default :4200)")
	return cmd
}

func mcpCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve journey tools to an agent over MCP stdio",
		Long: `Serve journey tools to an agent over MCP stdio.

Stdout carries the protocol, so logs always go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, gf)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer a.close()

			srv := mcp.NewConsoleServer(mcp.ConsoleServerDeps{
				Console: a.console,
				Hub:     a.hub,
				Logger:  a.logger,
				Version: version,
			})
			a.logger.Info("mcp server ready", slog.String("version", version))
			if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
