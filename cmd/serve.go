package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lumos-Labs-HQ/flashgate/internal/server"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway HTTP server",
	Long: `
Start serving POST /api and GET /meta.

The bearer secret is read from the environment variable named by
auth.token_env (FLASHGATE_TOKEN by default).

Examples:
  flashgate serve
  flashgate serve --port 9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	token, err := cfg.GetToken()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := server.New(svc.gateway, svc.log, server.Options{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		Token:       token,
		Service:     cfg.Service.Name,
		Version:     serviceVersion(cfg.Service.Version),
		BodyLimit:   cfg.Server.BodyLimit,
		ReadTimeout: cfg.Server.ReadTimeout,
	})

	showBanner()
	color.Cyan("🚀 Listening on http://%s (%s)", srv.Addr(), cfg.Database.Provider)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	svc.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		svc.log.Error("shutdown failed", zap.Error(err))
		return err
	}
	color.Green("✅ Stopped")
	return nil
}

func serviceVersion(configured string) string {
	if configured != "" {
		return configured
	}
	return Version
}
