package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oxhq/treeedit/internal/config"
	"github.com/oxhq/treeedit/internal/rpc"
	"github.com/oxhq/treeedit/internal/rpc/tools"
)

func newServeCmd(open openFunc) *cobra.Command {
	var transport string
	var addr, token string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON-RPC server over stdio or HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := open()
			if err != nil {
				return err
			}
			router := rpc.BuildRouter(tools.Registry(ws))

			root, _ := cmd.Flags().GetString("root")
			cfg, err := config.Load(root)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if addr == "" {
				addr = cfg.RPCAddr
			}
			if token == "" {
				token = cfg.RPCToken
			}

			switch transport {
			case "stdio":
				ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()
				return rpc.NewStdioServer(router, cfg.Debug).Serve(ctx)
			case "http":
				server := rpc.NewHTTPServer(router, addr, token, cfg.Debug)
				ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()
				go func() {
					<-ctx.Done()
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					_ = server.Shutdown(shutdownCtx)
				}()
				fmt.Printf("listening on %s\n", addr)
				return server.ListenAndServe()
			default:
				return fmt.Errorf("unknown transport %q (want stdio or http)", transport)
			}
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio or http")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (defaults to TREEEDIT_RPC_ADDR)")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token required for HTTP requests (defaults to TREEEDIT_RPC_TOKEN)")
	return cmd
}
