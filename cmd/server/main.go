package main

import (
	"context"
	"log"

	"github.com/okarpov/lingohist/internal/server"
	"github.com/okarpov/lingohist/internal/server/config"
)

func main() {
	cfg := config.LoadConfig()

	app, err := server.NewApp(cfg)
	if err != nil {
		log.Fatalf("init error: %v", err)
	}

	if err := app.Run(context.Background()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
