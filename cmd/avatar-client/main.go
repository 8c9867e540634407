// Package main is the entry point for the avatar client.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/mdp/qrterminal/v3"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/ihiteshgupta/avatar-client/internal/client"
	"github.com/ihiteshgupta/avatar-client/internal/config"
	"github.com/ihiteshgupta/avatar-client/internal/state"
	"github.com/ihiteshgupta/avatar-client/internal/status"
	"github.com/ihiteshgupta/avatar-client/internal/store"
	"github.com/ihiteshgupta/avatar-client/internal/transport"
	"github.com/ihiteshgupta/avatar-client/pkg/api"
	"github.com/ihiteshgupta/avatar-client/pkg/mcp"
)

var version = "dev"

// Flag names
const (
	FlagConfig   = "config"
	FlagLogLevel = "log-level"
	FlagLogFile  = "log-file"
	FlagDaemon   = "daemon"
	FlagNoMCP    = "no-mcp"
	FlagPNG      = "png"
	FlagJSON     = "json"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "avatar-client",
		Short:         "Headless client for the avatar chat backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String(FlagConfig, "config.yaml", "Path to config file")
	rootCmd.PersistentFlags().String(FlagLogLevel, "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String(FlagLogFile, "", "Write logs to a rotating file instead of stderr")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("avatar-client %s\n", version)
		},
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the backend and serve MCP tools on stdio",
		Args:  cobra.NoArgs,
		RunE:  runClient,
	}
	runCmd.Flags().Bool(FlagDaemon, false, "Stay connected after the MCP client disconnects")
	runCmd.Flags().Bool(FlagNoMCP, false, "Do not serve MCP; print status changes instead")

	resolveCmd := &cobra.Command{
		Use:   "resolve [location-url]",
		Short: "Show the backend URLs the client would use",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runResolve,
	}
	resolveCmd.Flags().Bool(FlagJSON, false, "Output as JSON")

	historiesCmd := &cobra.Command{
		Use:   "histories",
		Short: "List stored conversations and the last readiness status",
		Args:  cobra.NoArgs,
		RunE:  runHistories,
	}

	shareCmd := &cobra.Command{
		Use:   "share",
		Short: "Show the backend base URL as a QR code",
		Args:  cobra.NoArgs,
		RunE:  runShare,
	}
	shareCmd.Flags().String(FlagPNG, "", "Also save the QR code as a PNG file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(historiesCmd)
	rootCmd.AddCommand(shareCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the configuration with the command's flags
// bound on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString(FlagConfig)

	cfg, err := config.LoadConfigWithFlags(configPath, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openStore opens the SQLite store, creating its directory if needed.
func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	// Needed when using the default ~/.avatar-client/ path
	if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	storeDB, err := store.NewSQLiteStore(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return storeDB, nil
}

func runClient(cmd *cobra.Command, args []string) error {
	daemon, _ := cmd.Flags().GetBool(FlagDaemon)
	noMCP, _ := cmd.Flags().GetBool(FlagNoMCP)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	storeDB, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer storeDB.Close()

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	debug := client.DebugModeEnabled(ctx, cfg, storeDB.Settings)
	logs, err := SetupLogger(cfg, debug)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer func() { _ = logs.Close() }()
	logger := logs.Logger
	slog.SetDefault(logger)

	logger.Info("avatar client starting",
		"version", version,
		"log_level", cfg.LogLevel,
		"debug_mode", debug,
	)

	endpoints, err := client.ResolveEndpoints(ctx, cfg, storeDB.Settings)
	if err != nil {
		return fmt.Errorf("failed to resolve backend: %w", err)
	}

	socket := transport.NewSocket(logger, transport.WithDialTimeout(cfg.ConnectTimeout))
	avatar := client.NewClient(cfg, storeDB, socket, endpoints)
	if err := avatar.Start(ctx); err != nil {
		return fmt.Errorf("failed to start client: %w", err)
	}
	defer avatar.Stop()

	logger.Info("client initialized",
		"store_path", cfg.StorePath,
		"ws_url", endpoints.WSURL,
		"environment", endpoints.Environment,
		"session_id", avatar.SessionID(),
	)

	// Connect in background; failed dials are retried by the client.
	go func() {
		if err := avatar.Connect(ctx); err != nil {
			logger.Warn("initial connection failed", "error", err)
		}
	}()

	if noMCP || !cfg.MCPEnabled {
		avatar.OnStatusChange(func(from, to state.State) {
			status.Render(os.Stderr, avatar.Indicator(), to)
		})
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig)
		return nil
	}

	handler := api.NewHandler(avatar)
	mcpServer := mcp.NewServer(os.Stdin, os.Stdout, handler, logger)
	mcpServer.SetVersion(version)

	avatar.OnStatusChange(func(from, to state.State) {
		if err := mcpServer.NotifyResourceUpdated(api.ResourceConnectionStatus); err != nil {
			logger.Debug("resource notification failed", "error", err)
		}
	})
	avatar.OnEvent(func(evt client.Event) {
		switch evt.Type {
		case client.EventHistoryList, client.EventHistoryCreated, client.EventHistoryDeleted:
			if err := mcpServer.NotifyResourceUpdated(api.ResourceHistories); err != nil {
				logger.Debug("resource notification failed", "error", err)
			}
		}
	})

	// Run MCP server in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- mcpServer.Run(ctx)
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errChan:
		if err != nil && err != context.Canceled {
			logger.Error("MCP server error", "error", err)
		}
		// MCP client disconnected (EOF). In daemon mode stay connected until
		// a signal arrives.
		if daemon {
			logger.Info("daemon mode: MCP client disconnected, staying connected")
			sig := <-sigChan
			logger.Info("received shutdown signal", "signal", sig)
		}
	}

	logger.Info("avatar client stopped", "status", avatar.Status())
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool(FlagJSON)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Location = args[0]
	}

	storeDB, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer storeDB.Close()

	ctx := context.Background()
	endpoints, err := client.ResolveEndpoints(ctx, cfg, storeDB.Settings)
	if err != nil {
		return err
	}
	debug := client.DebugModeEnabled(ctx, cfg, storeDB.Settings)

	if asJSON {
		return printJSON(map[string]interface{}{
			"environment": endpoints.Environment,
			"ws_url":      endpoints.WSURL,
			"base_url":    endpoints.BaseURL,
			"debug_mode":  debug,
		})
	}

	label := color.New(color.Bold)
	fmt.Printf("%s %s\n", label.Sprint("environment:"), color.New(color.FgCyan).Sprint(endpoints.Environment))
	fmt.Printf("%s %s\n", label.Sprint("ws_url:     "), endpoints.WSURL)
	fmt.Printf("%s %s\n", label.Sprint("base_url:   "), endpoints.BaseURL)
	fmt.Printf("%s %t\n", label.Sprint("debug_mode: "), debug)
	return nil
}

func runHistories(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	storeDB, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer storeDB.Close()

	ctx := context.Background()
	last, err := storeDB.State.GetState(ctx)
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}
	current, err := storeDB.Histories.GetSelection(ctx)
	if err != nil {
		return fmt.Errorf("failed to read selection: %w", err)
	}
	histories, err := storeDB.Histories.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list histories: %w", err)
	}

	fmt.Printf("Last status: %s\n", color.New(color.Bold).Sprint(last))
	if len(histories) == 0 {
		fmt.Println("No histories stored")
		return nil
	}

	marker := color.New(color.FgGreen, color.Bold)
	dim := color.New(color.Faint)
	for _, h := range histories {
		prefix := "  "
		uid := h.UID
		if h.UID == current {
			prefix = marker.Sprint("* ")
			uid = marker.Sprint(h.UID)
		}
		preview := h.LatestContent
		if len(preview) > 60 {
			preview = preview[:57] + "..."
		}
		fmt.Printf("%s%s  %s %s\n", prefix, uid, dim.Sprint(h.Timestamp), preview)
	}
	return nil
}

func runShare(cmd *cobra.Command, args []string) error {
	pngPath, _ := cmd.Flags().GetString(FlagPNG)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	storeDB, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer storeDB.Close()

	endpoints, err := client.ResolveEndpoints(context.Background(), cfg, storeDB.Settings)
	if err != nil {
		return err
	}

	if pngPath != "" {
		if err := qrcode.WriteFile(endpoints.BaseURL, qrcode.Medium, 256, pngPath); err != nil {
			return fmt.Errorf("failed to save QR code: %w", err)
		}
		fmt.Fprintf(os.Stderr, "QR code saved to %s\n", pngPath)
	}

	fmt.Println(endpoints.BaseURL)
	qrterminal.GenerateHalfBlock(endpoints.BaseURL, qrterminal.L, os.Stdout)
	return nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
