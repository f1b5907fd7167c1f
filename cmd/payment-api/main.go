package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"bullrush.com/internal/gateway/app"
)

func main() {
	// SIGINT / SIGTERM from the terminal or the orchestrator
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	payApp, err := app.New("payment-api")
	if err != nil {
		log.Fatalf("init payment-api error: %v", err)
	}
	cleanUp, err := payApp.StartService(ctx)
	if err != nil {
		log.Fatalf("start payment-api error: %v", err)
	}
	defer cleanUp()

	srv := payApp.StartHttp(ctx)
	if err := payApp.Serve(ctx, srv); err != nil {
		log.Printf("payment-api stopped with error: %v", err)
	}
	log.Println("payment-api exit")
}
