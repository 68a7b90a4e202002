package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raysh454/replaydesk/internal/app"
	"github.com/raysh454/replaydesk/internal/archiveapi"
	"github.com/raysh454/replaydesk/internal/logging"
	"github.com/raysh454/replaydesk/internal/server"
	"github.com/raysh454/replaydesk/internal/webclient"
)

var (
	configPath  string
	listenAddr  string
	backendURL  string
	logLevel    string
	editionID   int64
	timestamp14 string
)

var rootCmd = &cobra.Command{
	Use:           "replaydesk",
	Short:         "Edition-aware replay pages for archived snapshots",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve replay pages, the session API and the message relay",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <url>",
	Short: "Ask the archive backend for the capture of a URL in one edition",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", "", "archive backend base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error (overrides config)")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (overrides config)")

	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().Int64Var(&editionID, "edition", 0, "target edition id (required)")
	resolveCmd.Flags().StringVar(&timestamp14, "timestamp", "", "14-digit capture time hint")
	_ = resolveCmd.MarkFlagRequired("edition")
}

// loadConfig reads --config and applies flag overrides.
func loadConfig() (*app.Config, error) {
	cfg := app.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = app.LoadConfig(configPath); err != nil {
			return nil, err
		}
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if backendURL != "" {
		cfg.BackendBaseURL = backendURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *app.Config, component string) *logging.StdoutLogger {
	logger := logging.NewStdoutLogger(component)
	logger.SetLevel(cfg.LogLevel)
	return logger
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "replaydesk")

	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		return fmt.Errorf("starting application: %w", err)
	}
	if err := application.Start(); err != nil {
		return err
	}

	srv, err := server.NewServer(server.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger.With(logging.Field{Key: "component", Value: "server"}),
	}, application.Orch)
	if err != nil {
		return err
	}
	httpServer := srv.HTTPServer()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", logging.Field{Key: "addr", Value: cfg.ListenAddr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = application.Shutdown(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Close sessions first so websocket handlers return and Shutdown can finish.
	appErr := application.Shutdown(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", logging.Field{Key: "error", Value: err.Error()})
	}
	return appErr
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "resolve")

	wc, err := webclient.NewWebClient(cfg.WebClientCfg, logger)
	if err != nil {
		return err
	}
	defer wc.Close()

	client, err := archiveapi.NewClient(cfg.BackendBaseURL, wc, nil, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ResolveTimeout)
	defer cancel()
	res, err := client.ResolveEdition(ctx, archiveapi.ResolveRequest{
		EditionID:   editionID,
		URL:         args[0],
		Timestamp14: timestamp14,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
