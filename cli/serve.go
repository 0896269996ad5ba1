package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aquaveo/xmstool-runner/server"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	cmd.Flags().String("listen", "", "Listen address (default: config listen, then 127.0.0.1:8080)")
	cmd.Flags().String("cors-origin", "*", "Allowed CORS origin")
	cmd.Flags().Duration("read-timeout", 30*time.Second, "HTTP read timeout")
	cmd.Flags().Int64("max-body", 1<<20, "Max request body size in bytes")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	addr, _ := cmd.Flags().GetString("listen")
	if addr == "" {
		addr = env.cfg.Listen
	}
	corsOrigin, _ := cmd.Flags().GetString("cors-origin")
	readTimeout, _ := cmd.Flags().GetDuration("read-timeout")
	maxBody, _ := cmd.Flags().GetInt64("max-body")

	api := server.NewServer(server.ServerConfig{
		Registry:   env.registry,
		Dispatcher: env.dispatcher,
		CORSOrigin: corsOrigin,
		MaxBody:    maxBody,
		Logger:     env.logger,
	})
	// No write timeout: a tool run holds the response open until it finishes.
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     api.Handler(),
		ReadTimeout: readTimeout,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "xmstool listening on %s (%d tools)\n", addr, env.registry.Len())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(cmd.OutOrStdout(), "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return exitError(exitStartup, "shutdown error: %v", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(exitStartup, "server error: %v", err)
		}
		return nil
	}
}
