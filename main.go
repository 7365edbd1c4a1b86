package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/NamanBalaji/bitwire/internal/cli"
	"github.com/NamanBalaji/bitwire/internal/config"
	"github.com/NamanBalaji/bitwire/internal/logger"
)

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, cli.Usage())
	}
	flag.Parse()

	cfg, err := config.GetConfig()
	if err != nil {
		log.Fatalf("Error reading config %s: %v\n", config.Path(), err)
	}

	if *debug {
		err = os.MkdirAll(cfg.DataDir, 0o755)
		if err != nil {
			log.Fatalf("Error creating data directory: %v\n", err)
		}
	}

	err = logger.InitLogging(*debug, cfg.LogPath())
	if err != nil {
		log.Fatalf("Warning: Failed to initialize logging: %v\n", err)
	}
	defer logger.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := cli.New(cfg, os.Stdout)

	err = app.Run(ctx, flag.Args())
	if err != nil {
		if errors.Is(err, cli.ErrUsage) {
			fmt.Fprintf(os.Stderr, "%v\n\n%s\n", err, cli.Usage())
			logger.Close()
			os.Exit(2)
		}

		fmt.Fprintln(os.Stderr, cli.ErrorStyle.Render("error: ")+err.Error())
		logger.Errorf("%v", err)
		logger.Close()
		os.Exit(1)
	}
}
