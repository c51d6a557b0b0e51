package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/modality-router/internal/httpapi"
	"github.com/dshills/modality-router/internal/mcp"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the router as a long-lived server",
}

var serveMCPCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP tools over stdio",
	Long: `Start the Model Context Protocol server on stdin/stdout.

Client configuration:
  {
    "mcpServers": {
      "modality-router": {
        "command": "/path/to/modality-router",
        "args": ["serve", "mcp"]
      }
    }
  }`,
	RunE: runServeMCP,
}

var serveHTTPCmd = &cobra.Command{
	Use:   "http",
	Short: "Serve the classification API over HTTP",
	RunE:  runServeHTTP,
}

func init() {
	serveHTTPCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	serveHTTPCmd.Flags().Bool("debug", false, "gin debug mode")
	serveCmd.AddCommand(serveMCPCmd, serveHTTPCmd)
	rootCmd.AddCommand(serveCmd)
}

func runServeMCP(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	server, err := mcp.NewServer(mcp.Deps{
		Classifier: a.service,
		Ingester:   a.ingester,
		Storage:    a.store,
		Embedder:   a.embedder,
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}

	a.logger.Info("MCP server ready, listening on stdio",
		"version", version, "provider", a.embedder.Provider(), "model", a.embedder.Model())
	if err := server.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	a.logger.Info("server stopped")
	return nil
}

func runServeHTTP(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	debug, _ := cmd.Flags().GetBool("debug")

	server := httpapi.NewServer(a.service, a.store, httpapi.Config{Addr: addr, Debug: debug}, a.logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down gracefully")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return err
	}
	a.logger.Info("server stopped")
	return nil
}
