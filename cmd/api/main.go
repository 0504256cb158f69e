package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"taskService/internal/app"
	"taskService/internal/config"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg)
	if err := application.Init(ctx); err != nil {
		_ = application.Shutdown()
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := application.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
