package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/auth"
	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/blueprint"
	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/config"
	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/events"
	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/graphql"
	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/logging"
	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/safety"
	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/tools"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(flags *globalFlags) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Spacelift blocks as MCP tools over streamable HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, note, err := loadConfig(flags.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			a, err := newApp(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			a.logger.Info().Msg(note)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides server.port)")
	return cmd
}

// serve runs the MCP HTTP server until ctx is cancelled.
func serve(ctx context.Context, a *app) error {
	log := logging.Module(a.logger, "server")

	tokenBefore := a.cfg.Server.AuthToken
	token, err := config.EnsureAuthToken(a.cfg)
	if err != nil {
		log.Warn().Err(err).Msg("could not generate auth token, running without authentication")
	} else if tokenBefore == "" {
		log.Warn().Str("token", token).Msg("generated auth token (set FLOWS_SPACELIFT_AUTH_TOKEN to persist)")
	}

	var audit *safety.AuditLogger
	if a.cfg.Audit.Enabled {
		f, err := os.OpenFile(a.cfg.Audit.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			log.Warn().Err(err).Str("path", a.cfg.Audit.LogPath).Msg("could not open audit log, audit logging disabled")
		} else {
			audit = safety.NewAuditLogger(f)
			defer func() { _ = f.Close() }()
		}
	}

	if err := a.bus.Subscribe(func(_ context.Context, e events.Event) {
		log.Info().Str("event_id", e.ID).Str("block", e.Block).Interface("payload", e.Payload).Msg("block output")
	}); err != nil {
		return err
	}

	handler, err := newHandler(a, audit)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("version", version).Msg("flows-spacelift listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

// newHandler builds the authenticated MCP handler exposing the registrations
// of a.
func newHandler(a *app, audit *safety.AuditLogger) (http.Handler, error) {
	mcpServer := server.NewMCPServer(
		"flows-spacelift",
		version,
		server.WithToolCapabilities(false),
	)
	regs := registrations(a, audit)
	if err := tools.RegisterAll(mcpServer, regs); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	logging.Module(a.logger, "server").Debug().Strs("tools", tools.Names(regs)).Msg("registered tools")

	httpHandler := server.NewStreamableHTTPServer(mcpServer)
	return auth.NewAuthMiddleware(a.cfg.Server.AuthToken, logging.Module(a.logger, "auth"))(httpHandler), nil
}

// registrations returns every MCP tool served by flows-spacelift.
func registrations(a *app, audit *safety.AuditLogger) []tools.Registration {
	var guarded []string
	if a.cfg.Safety.ConfirmCreate {
		guarded = blueprint.GuardedTools
	}
	confirm := safety.NewConfirmationTracker(guarded)

	var regs []tools.Registration
	regs = append(regs, blueprint.BlueprintTools(a.block, a.appConfig, confirm, audit)...)
	regs = append(regs, graphql.GraphQLTools(a.client, a.appConfig, audit)...)
	return regs
}
