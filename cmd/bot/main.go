package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"voyagebot/internal/app"
)

func main() {
	var opts app.Options
	flag.StringVar(&opts.ConfigPath, "config", "", "path to settings file (json or yaml); built-in defaults when empty")
	flag.StringVar(&opts.AccountsPath, "accounts", "./accounts.json", "path to accounts file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	fmt.Println("voyagebot stopped. Goodbye!")
}
