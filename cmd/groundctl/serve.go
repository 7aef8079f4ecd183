package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	grounding "github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/httpapi"
)

const shutdownTimeout = 10 * time.Second

// newServeMCPCommand serves the MCP tools over stdio or streamable HTTP
func newServeMCPCommand(cli *CLI) *cobra.Command {
	var (
		transport string
		addr      string
		path      string
	)

	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Serve grounding tools over MCP",
		Long:  `Serve retrieve-evidence, normalize-reference, list-indexes and invalidate-indexes as MCP tools`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := cli.newClient(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			mcpServer := grounding.NewServer(cli.config.Server.Name, client)
			switch transport {
			case "stdio":
				logger.Infof("serving MCP over stdio")
				return server.ServeStdio(mcpServer)
			case "http":
				httpServer := server.NewStreamableHTTPServer(mcpServer,
					server.WithEndpointPath(path),
					server.WithStateLess(true),
				)
				errCh := make(chan error, 1)
				go func() {
					logger.Infof("serving MCP over streamable http on %s%s", addr, path)
					errCh <- httpServer.Start(addr)
				}()
				return waitAndShutdown(ctx, errCh, httpServer.Shutdown)
			default:
				return fmt.Errorf("unknown transport %q (want stdio or http)", transport)
			}
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "MCP transport: stdio or http")
	cmd.Flags().StringVar(&addr, "addr", ":8090", "listen address for the http transport")
	cmd.Flags().StringVar(&path, "path", "/mcp", "endpoint path for the http transport")
	return cmd
}

// newServeHTTPCommand serves the JSON HTTP API
func newServeHTTPCommand(cli *CLI) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve-http",
		Short: "Serve the grounding HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := cli.newClient(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			serverCfg := cli.config.Server
			if addr != "" {
				serverCfg.HTTPAddr = addr
			}
			api := httpapi.NewServer(client, serverCfg)
			errCh := make(chan error, 1)
			go func() { errCh <- api.Start() }()
			return waitAndShutdown(ctx, errCh, api.Shutdown)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.http_addr")
	return cmd
}

// waitAndShutdown blocks until the server fails or ctx is cancelled, then
// drains in-flight requests.
func waitAndShutdown(ctx context.Context, errCh <-chan error, shutdown func(context.Context) error) error {
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return shutdown(shutdownCtx)
}
