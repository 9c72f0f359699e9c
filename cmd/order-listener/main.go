package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"grocermap/internal/app"
	"grocermap/internal/config"
)

func main() {
	cfg, err := config.Load()
	must(err)

	a, err := app.New(cfg)
	must(err)
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(a.Engine.LoadCatalog(ctx))
	svc, err := a.Listener()
	must(err)
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
