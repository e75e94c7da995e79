package main

import (
	"context"
	"log"

	"github.com/okarpov/lingohist/internal/client/app"
	"github.com/okarpov/lingohist/internal/client/config"
)

func main() {
	cfg := config.LoadConfig()
	ctx := context.Background()

	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("init error: %v", err)
	}

	if err := a.Run(ctx); err != nil {
		log.Fatalf("client error: %v", err)
	}
}
