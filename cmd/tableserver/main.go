package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/tableserver/internal/server"
	"github.com/lox/tableserver/internal/table"
	"github.com/lox/tableserver/internal/wallet"
)

var CLI struct {
	Config   string `short:"c" long:"config" default:"tableserver.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" long:"addr" help:"Server address to bind to (overrides config)"`
	LogLevel string `short:"l" long:"log-level" help:"Log level (overrides config)"`
}

func main() {
	kctx := kong.Parse(&CLI)

	cfg, err := server.LoadConfig(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		kctx.Exit(1)
	}

	// Apply command line overrides
	if CLI.Addr != "" {
		host, port, err := net.SplitHostPort(CLI.Addr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --addr %q: %v\n", CLI.Addr, err)
			kctx.Exit(1)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --addr port %q: %v\n", port, err)
			kctx.Exit(1)
		}
		cfg.Server.Address = host
		cfg.Server.Port = p
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		kctx.Exit(1)
	}

	logger := log.New(os.Stderr)
	switch cfg.Server.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "info":
		logger.SetLevel(log.InfoLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		kctx.Exit(1)
	}
}

func run(cfg *server.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := wallet.Open(cfg.Server.WalletPath, logger)
	if err != nil {
		return fmt.Errorf("opening wallet: %w", err)
	}
	defer w.Close()

	srv := server.NewServer(cfg.Addr(), w, logger)

	registry := table.NewRegistry(table.Config{
		ActionTimeout:  cfg.ActionTimeout(),
		InterHandDelay: cfg.InterHandDelay(),
		OnDemand:       cfg.OnDemandTable(),
	}, w, srv, quartz.NewReal(), logger)
	srv.SetRegistry(registry)
	registry.Start(ctx)

	logger.Info("Starting table server",
		"addr", cfg.Addr(),
		"tables", len(cfg.Tables),
		"actionTimeout", cfg.ActionTimeout())

	for _, tc := range cfg.Tables {
		session := registry.Create(tc.GameConfig(), true)
		logger.Info("Created table",
			"id", session.ID(),
			"name", tc.Name,
			"stakes", fmt.Sprintf("%d/%d", tc.SmallBlind, tc.BigBlind),
			"maxSeats", tc.MaxSeats)
	}

	if err := srv.Run(ctx); err != nil {
		return err
	}

	// Server is down; wait for table sessions to drain.
	return registry.Wait()
}
