package main

import (
	"bufio"
	"context"
	"errors"
	"log"
	"os"
	"os/signal"

	"stock-ledger/internal/adapters/cli"
	"stock-ledger/internal/adapters/repl"
	"stock-ledger/internal/app"
	"stock-ledger/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	backend, err := app.OpenBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("Unable to open %s store: %v", cfg.Store, err)
	}
	defer backend.Close()

	svc := app.NewService(backend, cfg)
	user := os.Getenv("USER")

	if len(os.Args) < 2 || os.Args[1] == "repl" {
		if cfg.OpenAIKey == "" {
			log.Println("Warning: OPENAI_API_KEY is not set; only slash commands are available")
		}
		repl.Run(ctx, svc, bufio.NewReader(os.Stdin), user)
		return
	}

	if err := cli.Run(ctx, svc, os.Args[1:], user, os.Stdin, os.Stdout); err != nil {
		backend.Close()
		if errors.Is(err, cli.ErrDrift) {
			log.Printf("%v", err)
			os.Exit(2)
		}
		log.Fatalf("%v", err)
	}
}
