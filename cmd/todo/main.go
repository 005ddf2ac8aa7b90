package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Makepad-fr/tada/internal/cli"
	"github.com/Makepad-fr/tada/internal/config"
	"github.com/Makepad-fr/tada/internal/logging"
	"github.com/Makepad-fr/tada/internal/ui"
)

func main() {
	// Root flags (apply to every subcommand)
	flags := config.BindFlags(flag.CommandLine)
	flag.Usage = func() { cli.PrintHelp(os.Stderr) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintHelp(os.Stderr)
		os.Exit(2)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, "✖ config:", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log)
	if cfg.File != "" {
		logger.WithField("file", cfg.File).Debug("config loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, args, cli.Options{
		Config:  cfg,
		Printer: ui.NewPrinter(os.Stdout, os.Stderr, cfg.Theme),
		Logger:  logger,
	})
	stop()
	if code != 0 {
		fmt.Fprintln(os.Stderr)
	}
	os.Exit(code)
}
