package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	bdk "github.com/finos/symphony-bdk-go"
	"github.com/finos/symphony-bdk-go/activity"
	"github.com/finos/symphony-bdk-go/config"
	"github.com/finos/symphony-bdk-go/datafeed"
)

var (
	version = "dev"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "Path to the bot configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("example-bot version %s\n", version)
		return nil
	}

	logger, err := bdk.NewLogger(*debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	runtime, err := bdk.New(cfg, bdk.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed creating bot runtime: %w", err)
	}
	defer runtime.Close()

	err = runtime.Activities().Slash("/ping", true, "Replies in the log", func(ctx context.Context, c *activity.CommandContext) error {
		logger.Info("pong", zap.String("stream_id", c.StreamID), zap.String("from", c.SourceEvent.InitiatorUsername()))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed registering command: %w", err)
	}

	if err := runtime.Authenticate(context.Background()); err != nil {
		return fmt.Errorf("failed authenticating: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		runtime.Datafeed().Stop(false, datafeed.DefaultStopTimeout)
	}()

	logger.Info(
		"example-bot ready",
		zap.String("version", version),
		zap.String("bot", cfg.Bot.Username),
		zap.String("datafeed_version", cfg.Datafeed.Version),
	)

	if err := runtime.Datafeed().Start(context.Background()); err != nil {
		return fmt.Errorf("datafeed loop failed: %w", err)
	}
	return nil
}
